package filtering

import (
	"context"
	"strings"

	"github.com/spigell/hh-assistant/internal/source"
)

type employersFilter struct {
	toggle
	employers map[string]struct{}
}

// NewExcludedEmployers removes postings whose employer id or name is listed. Names match case-insensitively.
func NewExcludedEmployers(employers []string) Filter {
	set := make(map[string]struct{}, len(employers))
	for _, e := range employers {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			set[e] = struct{}{}
		}
	}
	return &employersFilter{employers: set}
}

func (f *employersFilter) Name() string { return "employers" }

func (f *employersFilter) Apply(_ context.Context, postings []*source.RawPosting) ([]*source.RawPosting, Step, error) {
	kept, step := exclude(postings, func(p *source.RawPosting) bool {
		if len(f.employers) == 0 {
			return false
		}
		for _, candidate := range []string{p.EmployerID, p.Employer} {
			if candidate == "" {
				continue
			}
			if _, ok := f.employers[strings.ToLower(strings.TrimSpace(candidate))]; ok {
				return true
			}
		}
		return false
	})
	return kept, step, nil
}

func (f *employersFilter) Status() Status {
	names := make([]string, 0, len(f.employers))
	for name := range f.employers {
		names = append(names, name)
	}
	details := map[string]string{}
	if len(names) > 0 {
		details["employers"] = strings.Join(names, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
