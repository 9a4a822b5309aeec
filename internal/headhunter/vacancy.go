package headhunter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/source"
)

const publishedAtLayout = "2006-01-02T15:04:05-0700"

type Vacancies struct {
	Items []*Vacancy
}

type Vacancy struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Area struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"area,omitempty"`
	HasTest bool `json:"has_test,omitempty"`
	Salary  struct {
		From     int    `json:"from,omitempty"`
		To       int    `json:"to,omitempty"`
		Currency string `json:"currency,omitempty"`
		Gross    bool   `json:"gross,omitempty"`
	} `json:"salary,omitempty"`
	Experience struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"experience,omitempty"`
	Employer struct {
		ID           string `json:"id,omitempty"`
		Name         string `json:"name,omitempty"`
		AlternateURL string `json:"alternate_url,omitempty"`
		SiteURL      string `json:"site_url,omitempty"`
	} `json:"employer,omitempty"`
	AlternateURL string `json:"alternate_url,omitempty"`
	Employment   struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"employment,omitempty"`
	Description string `json:"description,omitempty"`
	KeySkills   []struct {
		Name string `json:"name,omitempty"`
	} `json:"key_skills,omitempty"`
	Archived bool `json:"archived,omitempty"`
	Snippet  struct {
		Requirement    string `json:"requirement,omitempty"`
		Responsibility string `json:"responsibility,omitempty"`
	} `json:"snippet,omitempty"`
	Contacts *struct {
		Name   string `json:"name,omitempty"`
		Email  string `json:"email,omitempty"`
		Phones []struct {
			Formatted string `json:"formatted,omitempty"`
		} `json:"phones,omitempty"`
	} `json:"contacts,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// GetVacancy fetches the full vacancy including description and contacts.
func (c *Client) GetVacancy(ctx context.Context, id string) (*Vacancy, error) {
	if id == "" {
		return nil, fmt.Errorf("vacancy id is required")
	}

	var vacancy Vacancy
	if err := c.getJSON(ctx, fmt.Sprintf("%s%s/%s", c.APIURL, SearchPath, id), nil, &vacancy); err != nil {
		return nil, fmt.Errorf("get vacancy %s: %w", id, err)
	}

	return &vacancy, nil
}

func (v *Vacancies) Len() int {
	return len(v.Items)
}

// Raw converts the vacancy into the source-agnostic posting shape.
func (va *Vacancy) Raw() *source.RawPosting {
	raw := &source.RawPosting{
		Platform:       Platform,
		ExternalID:     va.ID,
		Title:          va.Name,
		Employer:       va.Employer.Name,
		EmployerID:     va.Employer.ID,
		URL:            va.AlternateURL,
		Currency:       normalizeCurrency(va.Salary.Currency),
		Location:       va.Area.Name,
		EmploymentType: va.Employment.Name,
		Experience:     tierFromExperience(va.Experience.ID),
		RequiresTest:   va.HasTest,
	}

	if va.Salary.From > 0 {
		from := va.Salary.From
		raw.SalaryFrom = &from
	}
	if va.Salary.To > 0 {
		to := va.Salary.To
		raw.SalaryTo = &to
	}

	if strings.TrimSpace(va.Description) != "" {
		raw.Description = htmlToText(va.Description)
		raw.Requirements = extractRequirements(raw.Description)
	} else {
		raw.Description = htmlToText(strings.TrimSpace(va.Snippet.Responsibility + "\n" + va.Snippet.Requirement))
	}
	if raw.Requirements == "" {
		raw.Requirements = htmlToText(va.Snippet.Requirement)
	}
	if skills := va.skillNames(); len(skills) > 0 {
		raw.Requirements = strings.TrimSpace(raw.Requirements + "\nKey skills: " + strings.Join(skills, ", "))
	}

	if va.Contacts != nil {
		contact := models.Contact{
			Name:  strings.TrimSpace(va.Contacts.Name),
			Email: strings.TrimSpace(va.Contacts.Email),
		}
		if len(va.Contacts.Phones) > 0 {
			contact.Phone = va.Contacts.Phones[0].Formatted
		}
		if contact != (models.Contact{}) {
			raw.Contacts = []models.Contact{contact}
		}
	}

	if published, err := time.Parse(publishedAtLayout, va.PublishedAt); err == nil {
		raw.PublishedAt = &published
	}

	return raw
}

func (va *Vacancy) skillNames() []string {
	names := make([]string, 0, len(va.KeySkills))
	for _, skill := range va.KeySkills {
		if name := strings.TrimSpace(skill.Name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// hh.ru still reports roubles with the legacy RUR code.
func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "RUR" {
		return "RUB"
	}
	return code
}

var experienceIDs = map[models.ExperienceTier]string{
	models.TierJunior: "noExperience",
	models.TierMiddle: "between1And3",
	models.TierSenior: "between3And6",
}

func experienceID(tier models.ExperienceTier) string {
	return experienceIDs[tier]
}

func tierFromExperience(id string) models.ExperienceTier {
	switch id {
	case "noExperience":
		return models.TierJunior
	case "between1And3":
		return models.TierMiddle
	case "between3And6", "moreThan6":
		return models.TierSenior
	default:
		return ""
	}
}
