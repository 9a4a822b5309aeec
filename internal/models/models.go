// Package models holds the records shared by the ranking, applying and notification layers.
package models

import (
	"strings"
	"time"
)

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name,omitempty"`
	ChatID        int64     `json:"chat_id,omitempty"`
	EmailPassword string    `json:"-"`
	Active        bool      `json:"active"`
	MinScore      *float64  `json:"min_score,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DisplayName falls back to the local part of the email when no full name is known.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// Profile is an immutable snapshot of resume-derived facts. A newer profile supersedes older ones.
type Profile struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Text              string    `json:"text"`
	Skills            []string  `json:"skills,omitempty"`
	ExperienceYears   *int      `json:"experience_years,omitempty"`
	DesiredTitle      string    `json:"desired_title,omitempty"`
	DesiredLocation   string    `json:"desired_location,omitempty"`
	SalaryExpectation string    `json:"salary_expectation,omitempty"`
	Embedding         []float32 `json:"-"`
	ResumePath        string    `json:"resume_path,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type Salary struct {
	From     *int   `json:"from,omitempty"`
	To       *int   `json:"to,omitempty"`
	Currency string `json:"currency,omitempty"`
}

type Contact struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Posting is identified by (Platform, ExternalID). ID is the storage identifier.
type Posting struct {
	ID             string         `json:"id"`
	Platform       string         `json:"platform"`
	ExternalID     string         `json:"external_id"`
	Title          string         `json:"title"`
	Employer       string         `json:"employer"`
	Description    string         `json:"description,omitempty"`
	Requirements   string         `json:"requirements,omitempty"`
	Salary         Salary         `json:"salary"`
	Location       string         `json:"location,omitempty"`
	EmploymentType string         `json:"employment_type,omitempty"`
	Experience     ExperienceTier `json:"experience,omitempty"`
	URL            string         `json:"url,omitempty"`
	Contacts       []Contact      `json:"contacts,omitempty"`
	PublishedAt    *time.Time     `json:"published_at,omitempty"`
	DiscoveredAt   time.Time      `json:"discovered_at"`
}

// Key returns the composite dedup key.
func (p *Posting) Key() string {
	return p.Platform + ":" + p.ExternalID
}

// ScoringText is the text handed to the scorer. The description is preferred.
func (p *Posting) ScoringText() string {
	if desc := strings.TrimSpace(p.Description); desc != "" {
		return desc
	}
	return strings.TrimSpace(strings.Join([]string{p.Title, p.Requirements}, "\n"))
}

type MatchResult struct {
	Score        float64  `json:"score"`
	Rationale    string   `json:"rationale"`
	MatchingTags []string `json:"matching_tags,omitempty"`
	MissingTags  []string `json:"missing_tags,omitempty"`
	Fallback     bool     `json:"fallback,omitempty"`
}

type RankedPosting struct {
	Posting *Posting    `json:"posting"`
	Match   MatchResult `json:"match"`
	// New is true when the posting was first stored during this run.
	New bool `json:"new"`
	// Cached is true when the match was reused instead of rescored.
	Cached bool `json:"cached"`
}

type DeliveryChannel string

const (
	ChannelEmail    DeliveryChannel = "email"
	ChannelPlatform DeliveryChannel = "platform"
)

type DeliveryAttempt struct {
	Channel   DeliveryChannel `json:"channel"`
	Recipient string          `json:"recipient"`
	At        time.Time       `json:"at"`
	OK        bool            `json:"ok"`
	Error     string          `json:"error,omitempty"`
}

type Application struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	PostingID        string            `json:"posting_id"`
	ProfileID        string            `json:"profile_id"`
	Status           ApplicationStatus `json:"status"`
	CoverLetter      string            `json:"cover_letter"`
	Attempts         []DeliveryAttempt `json:"attempts,omitempty"`
	ResponseReceived bool              `json:"response_received"`
	ResponseText     string            `json:"response_text,omitempty"`
	ResponseAt       *time.Time        `json:"response_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Delivered counts successful delivery attempts.
func (a *Application) Delivered() int {
	n := 0
	for _, attempt := range a.Attempts {
		if attempt.OK {
			n++
		}
	}
	return n
}

type NotificationType string

const (
	NotificationJobsFound        NotificationType = "jobs_found"
	NotificationApplicationSent  NotificationType = "application_sent"
	NotificationResponseReceived NotificationType = "response_received"
	NotificationWeeklySummary    NotificationType = "weekly_summary"
	NotificationStatus           NotificationType = "status"
)

// Choice is one interactive element attached to a notification.
// Data is a callback payload; URL makes it a link instead.
type Choice struct {
	Label string `json:"label"`
	Data  string `json:"data,omitempty"`
	URL   string `json:"url,omitempty"`
}

type Notification struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	Type              NotificationType `json:"type"`
	Title             string           `json:"title"`
	Body              string           `json:"body"`
	Format            string           `json:"format,omitempty"`
	Payload           map[string]any   `json:"payload,omitempty"`
	Choices           []Choice         `json:"choices,omitempty"`
	Sent              bool             `json:"sent"`
	SentAt            *time.Time       `json:"sent_at,omitempty"`
	ExternalMessageID string           `json:"external_message_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

type OutcomeKind string

const (
	OutcomeSucceeded      OutcomeKind = "succeeded"
	OutcomeAlreadyApplied OutcomeKind = "already_applied"
	OutcomeFailed         OutcomeKind = "failed"
)

// Outcome is the per-posting result of an apply batch.
type Outcome struct {
	PostingID     string            `json:"posting_id"`
	Title         string            `json:"title,omitempty"`
	Kind          OutcomeKind       `json:"kind"`
	ApplicationID string            `json:"application_id,omitempty"`
	Status        ApplicationStatus `json:"status,omitempty"`
	Message       string            `json:"message"`
	Delivered     int               `json:"delivered"`
	Reason        string            `json:"reason,omitempty"`
}
