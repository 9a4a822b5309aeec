package headhunter

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

type Resumes struct {
	Items []*Resume
}

type Resume struct {
	Title string
	ID    string `json:"id,omitempty"`
}

// ResumeDetails keeps the raw document; only a few fields are interpreted.
type ResumeDetails struct {
	ID    string
	Title string
	Raw   map[string]any
}

func (c *Client) GetMineResumes(ctx context.Context) (*Resumes, error) {
	apiURLMineResumes := fmt.Sprintf("%s/resumes/%s", c.APIURL, mineResumID)

	items, err := c.GetItems(ctx, apiURLMineResumes, nil, 0)
	if err != nil {
		return nil, err
	}

	var resumes []*Resume
	if err = mapstructure.Decode(items, &resumes); err != nil {
		return nil, err
	}

	return &Resumes{
		Items: resumes,
	}, nil
}

func (r *Resumes) Len() int {
	return len(r.Items)
}

func (r *Resumes) Titles() []string {
	titles := make([]string, 0, len(r.Items))

	for _, v := range r.Items {
		titles = append(titles, v.Title)
	}

	return titles
}

func (r *Resumes) FindByTitle(title string) *Resume {
	for _, resume := range r.Items {
		if resume.Title == title {
			return resume
		}
	}

	return nil
}

func (c *Client) GetResumeDetails(ctx context.Context, id string) (*ResumeDetails, error) {
	if id == "" {
		return nil, fmt.Errorf("resume id is required")
	}

	apiURL := fmt.Sprintf("%s/resumes/%s", c.APIURL, id)

	var raw map[string]any
	if err := c.getJSON(ctx, apiURL, nil, &raw); err != nil {
		return nil, err
	}

	if raw == nil {
		raw = make(map[string]any)
	}

	return &ResumeDetails{
		ID:    valueAsString(raw["id"]),
		Title: valueAsString(raw["title"]),
		Raw:   raw,
	}, nil
}

// Text flattens the resume into plain text suitable for profile ingestion.
func (d *ResumeDetails) Text() string {
	var b strings.Builder

	line := func(label, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if label != "" {
			b.WriteString(label)
			b.WriteString(": ")
		}
		b.WriteString(value)
		b.WriteString("\n")
	}

	line("Title", d.Title)
	if area, ok := d.Raw["area"].(map[string]any); ok {
		line("Location", valueAsString(area["name"]))
	}
	if total, ok := d.Raw["total_experience"].(map[string]any); ok {
		if months, ok := total["months"].(float64); ok && months > 0 {
			line("Total experience", fmt.Sprintf("%d years", int(months)/12))
		}
	}
	if skills, ok := d.Raw["skill_set"].([]any); ok && len(skills) > 0 {
		names := make([]string, 0, len(skills))
		for _, s := range skills {
			names = append(names, valueAsString(s))
		}
		line("Skills", strings.Join(names, ", "))
	}
	line("About", valueAsString(d.Raw["skills"]))

	if experience, ok := d.Raw["experience"].([]any); ok {
		for _, item := range experience {
			job, ok := item.(map[string]any)
			if !ok {
				continue
			}
			line("", fmt.Sprintf("%s at %s (%s - %s)",
				valueAsString(job["position"]),
				valueAsString(job["company"]),
				valueAsString(job["start"]),
				orPresent(valueAsString(job["end"])),
			))
			line("", valueAsString(job["description"]))
		}
	}

	return strings.TrimSpace(b.String())
}

func orPresent(end string) string {
	if end == "" {
		return "present"
	}
	return end
}

func valueAsString(v any) string {
	if v == nil {
		return ""
	}

	switch typed := v.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
