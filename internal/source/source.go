// Package source defines the posting source contract shared by every job board client.
package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spigell/hh-assistant/internal/models"
)

const DefaultLimit = 20

// Source searches one job platform.
type Source interface {
	Name() string
	Search(ctx context.Context, q Query) ([]*RawPosting, error)
}

type Query struct {
	Keywords    []string              `json:"keywords" validate:"required,min=1,dive,required"`
	Location    string                `json:"location,omitempty"`
	SalaryFloor int                   `json:"salary_floor,omitempty" validate:"gte=0"`
	Experience  models.ExperienceTier `json:"experience,omitempty" validate:"omitempty,oneof=junior middle senior"`
	Limit       int                   `json:"limit" validate:"gte=1,lte=500"`
}

var validate = validator.New()

// Validate normalizes the query and checks its fields.
func (q *Query) Validate() error {
	keywords := make([]string, 0, len(q.Keywords))
	for _, kw := range q.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	q.Keywords = keywords
	q.Location = strings.TrimSpace(q.Location)
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}

	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	return nil
}

// Text joins keywords into a single search string.
func (q Query) Text() string {
	return strings.Join(q.Keywords, " ")
}

// QueryFromProfile builds the query used for scheduled searches: the first five
// skills plus the desired title, the desired location and the tier derived from experience.
func QueryFromProfile(p *models.Profile, limit int) Query {
	keywords := make([]string, 0, 6)
	for i, skill := range p.Skills {
		if i == 5 {
			break
		}
		keywords = append(keywords, skill)
	}
	if title := strings.TrimSpace(p.DesiredTitle); title != "" {
		keywords = append(keywords, title)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return Query{
		Keywords:   keywords,
		Location:   p.DesiredLocation,
		Experience: models.TierForYears(p.ExperienceYears),
		Limit:      limit,
	}
}

// RawPosting is a posting as returned by a source, before deduplication.
type RawPosting struct {
	Platform       string
	ExternalID     string
	Title          string
	Employer       string
	EmployerID     string
	Description    string
	Requirements   string
	URL            string
	SalaryFrom     *int
	SalaryTo       *int
	Currency       string
	Location       string
	EmploymentType string
	Experience     models.ExperienceTier
	Contacts       []models.Contact
	PublishedAt    *time.Time
	// RequiresTest marks postings that cannot be applied to without a questionnaire.
	RequiresTest bool
}

func (r *RawPosting) Key() string {
	return r.Platform + ":" + r.ExternalID
}

// Posting converts the raw record into a storable posting.
func (r *RawPosting) Posting() *models.Posting {
	return &models.Posting{
		Platform:       r.Platform,
		ExternalID:     r.ExternalID,
		Title:          strings.TrimSpace(r.Title),
		Employer:       strings.TrimSpace(r.Employer),
		Description:    strings.TrimSpace(r.Description),
		Requirements:   strings.TrimSpace(r.Requirements),
		Salary:         models.Salary{From: r.SalaryFrom, To: r.SalaryTo, Currency: r.Currency},
		Location:       r.Location,
		EmploymentType: r.EmploymentType,
		Experience:     r.Experience,
		URL:            r.URL,
		Contacts:       r.Contacts,
		PublishedAt:    r.PublishedAt,
	}
}
