package filtering

import (
	"context"
	"strings"

	"github.com/spigell/hh-assistant/internal/source"
)

type redFlagsFilter struct {
	toggle
	flags []string
}

// NewRedFlags removes postings mentioning any of the flags in the title, employer or description.
func NewRedFlags(flags []string) Filter {
	lowered := make([]string, 0, len(flags))
	for _, flag := range flags {
		if flag = strings.ToLower(strings.TrimSpace(flag)); flag != "" {
			lowered = append(lowered, flag)
		}
	}
	return &redFlagsFilter{flags: lowered}
}

func (f *redFlagsFilter) Name() string { return "red_flags" }

func (f *redFlagsFilter) Apply(_ context.Context, postings []*source.RawPosting) ([]*source.RawPosting, Step, error) {
	kept, step := exclude(postings, func(p *source.RawPosting) bool {
		return ContainsRedFlag(p.Title, p.Employer, p.Description, f.flags)
	})
	return kept, step, nil
}

// ContainsRedFlag reports whether any flag appears case-insensitively in the combined text.
func ContainsRedFlag(title, employer, description string, flags []string) bool {
	if len(flags) == 0 {
		return false
	}
	combined := strings.ToLower(title + " " + employer + " " + description)
	for _, flag := range flags {
		if flag == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(flag)) {
			return true
		}
	}
	return false
}
