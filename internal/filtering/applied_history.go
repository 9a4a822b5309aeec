package filtering

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spigell/hh-assistant/internal/headhunter"
	"github.com/spigell/hh-assistant/internal/source"
)

// NegotiationLister returns the hh.ru negotiations of the token owner.
type NegotiationLister interface {
	GetNegotiations(ctx context.Context) (headhunter.Negotiations, error)
}

type appliedHistoryFilter struct {
	toggle
	hh NegotiationLister
}

// NewAppliedHistory removes hh.ru postings the account already responded to outside this tool.
func NewAppliedHistory(hh NegotiationLister) Filter {
	return &appliedHistoryFilter{hh: hh}
}

func (f *appliedHistoryFilter) Name() string { return "applied_history" }

func (f *appliedHistoryFilter) Apply(ctx context.Context, postings []*source.RawPosting) ([]*source.RawPosting, Step, error) {
	hasHH := false
	for _, p := range postings {
		if p.Platform == headhunter.Platform {
			hasHH = true
			break
		}
	}
	if !hasHH {
		return postings, Step{Initial: len(postings), Left: len(postings)}, nil
	}

	if f.hh == nil {
		return postings, Step{}, fmt.Errorf("headhunter client is required")
	}

	negotiations, err := f.hh.GetNegotiations(ctx)
	if err != nil {
		return postings, Step{}, fmt.Errorf("get my negotiations: %w", err)
	}

	applied := make(map[string]struct{}, len(negotiations))
	for _, id := range negotiations.VacanciesIDs() {
		applied[id] = struct{}{}
	}

	kept, step := exclude(postings, func(p *source.RawPosting) bool {
		if p.Platform != headhunter.Platform {
			return false
		}
		_, ok := applied[p.ExternalID]
		return ok
	})
	return kept, step, nil
}

func (f *appliedHistoryFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"exclude_applied": strconv.FormatBool(f.IsEnabled())},
	}
}
