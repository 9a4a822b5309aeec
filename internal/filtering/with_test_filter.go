package filtering

import (
	"context"

	"github.com/spigell/hh-assistant/internal/source"
)

type withTestFilter struct {
	toggle
}

// NewWithTest creates a filter that removes postings requiring a questionnaire. It is impossible to apply them.
func NewWithTest() Filter {
	return &withTestFilter{}
}

func (f *withTestFilter) Name() string { return "with_test" }

func (f *withTestFilter) Apply(_ context.Context, postings []*source.RawPosting) ([]*source.RawPosting, Step, error) {
	kept, step := exclude(postings, func(p *source.RawPosting) bool { return p.RequiresTest })
	return kept, step, nil
}
