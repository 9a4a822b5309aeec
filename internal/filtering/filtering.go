// Package filtering drops raw postings that can never be applied to before they are stored and scored.
package filtering

import (
	"context"

	"github.com/spigell/hh-assistant/internal/source"
	"go.uber.org/zap"
)

// Filter represents a single filtering step applied to raw postings.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Apply(ctx context.Context, postings []*source.RawPosting) ([]*source.RawPosting, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial  int
	Dropped  int
	Left     int
	Excluded []string
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

type Filtering struct {
	steps  []Filter
	logger *zap.Logger
}

func New(steps []Filter, logger *zap.Logger) *Filtering {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filtering{steps: steps, logger: logger}
}

// Run executes the filters sequentially. A failing step is logged and skipped,
// its input is passed on unchanged.
func (f *Filtering) Run(ctx context.Context, postings []*source.RawPosting) []*source.RawPosting {
	if f == nil {
		return postings
	}

	for _, step := range f.steps {
		if !step.IsEnabled() {
			f.logger.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, postings)
		if err != nil {
			f.logger.Warn("filter step failed, skipping", zap.String("name", step.Name()), zap.Error(err))
			continue
		}

		f.logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)
		if len(info.Excluded) > 0 {
			f.logger.Debug("excluded postings", zap.String("name", step.Name()), zap.Strings("keys", info.Excluded))
		}

		postings = next
	}

	return postings
}

// Describe returns status entries for the configured filters.
func (f *Filtering) Describe() []Status {
	statuses := make([]Status, 0, len(f.steps))
	for _, step := range f.steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func (f *Filtering) DisableByName(name, reason string) {
	for _, step := range f.steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// exclude splits postings by drop and reports the step.
func exclude(postings []*source.RawPosting, drop func(*source.RawPosting) bool) ([]*source.RawPosting, Step) {
	kept := make([]*source.RawPosting, 0, len(postings))
	var excluded []string
	for _, p := range postings {
		if drop(p) {
			excluded = append(excluded, p.Key())
			continue
		}
		kept = append(kept, p)
	}
	return kept, Step{Initial: len(postings), Dropped: len(excluded), Left: len(kept), Excluded: excluded}
}

// toggle is embedded by filters that can be switched off at runtime.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }
