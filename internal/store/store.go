// Package store defines persistence for users, profiles, postings, applications and notifications.
// Uniqueness of postings per (platform, external id) and of applications per (user, posting)
// is enforced by every implementation with a single atomic insert-or-fetch.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/hh-assistant/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict is returned when the stored status differs from the expected one
	// or the requested transition is not allowed.
	ErrStatusConflict = errors.New("application status conflict")
)

type Postings interface {
	// UpsertPosting stores the posting unless one with the same key exists.
	// The stored record is returned either way; existing records are never overwritten.
	UpsertPosting(ctx context.Context, p *models.Posting) (*models.Posting, bool, error)
	GetPosting(ctx context.Context, id string) (*models.Posting, error)

	GetMatch(ctx context.Context, postingID, profileID string) (*models.MatchResult, error)
	SaveMatch(ctx context.Context, postingID, profileID string, m models.MatchResult) error
}

type Profiles interface {
	CreateProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	// LatestProfile returns the most recently created profile of the user.
	LatestProfile(ctx context.Context, userID string) (*models.Profile, error)
}

type Users interface {
	UpsertUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByChatID(ctx context.Context, chatID int64) (*models.User, error)
	ListActiveUsers(ctx context.Context) ([]*models.User, error)
	LinkChat(ctx context.Context, userID string, chatID int64) error
}

type Applications interface {
	// CreateApplication inserts the application unless one exists for the same
	// user and posting, in which case the existing record is returned with created=false.
	CreateApplication(ctx context.Context, a *models.Application) (*models.Application, bool, error)
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	GetApplicationFor(ctx context.Context, userID, postingID string) (*models.Application, error)
	AddDeliveryAttempt(ctx context.Context, id string, attempt models.DeliveryAttempt) error
	UpdateApplicationStatus(ctx context.Context, id string, from, to models.ApplicationStatus) error
	// RecordResponse moves a sent application to responded.
	RecordResponse(ctx context.Context, id, text string, at time.Time) error
	ListApplications(ctx context.Context, userID string, since time.Time) ([]*models.Application, error)
}

type Notifications interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	MarkNotificationSent(ctx context.Context, id, externalID string, at time.Time) error
	ListUnsentNotifications(ctx context.Context) ([]*models.Notification, error)
	GetNotificationByMessage(ctx context.Context, userID, externalID string) (*models.Notification, error)
	// MarkPostingsNotified records that the user has been told about the postings
	// and returns the ids that were not recorded before.
	MarkPostingsNotified(ctx context.Context, userID string, postingIDs []string) ([]string, error)
	// UnmarkPostingsNotified forgets the marks so the postings are offered again.
	UnmarkPostingsNotified(ctx context.Context, userID string, postingIDs []string) error
}

type Store interface {
	Postings
	Profiles
	Users
	Applications
	Notifications

	Close()
}
