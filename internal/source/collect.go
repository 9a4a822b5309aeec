package source

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultTimeout = 30 * time.Second

// Report describes the contribution of a single source to a search.
type Report struct {
	Source string
	Count  int
	Err    error
}

// Collect queries every source concurrently, each call bounded by timeout.
// A failing source contributes nothing and is reported; results keep the source order.
func Collect(ctx context.Context, sources []Source, q Query, timeout time.Duration, logger *zap.Logger) ([]*RawPosting, []Report) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	results := make([][]*RawPosting, len(sources))
	reports := make([]Report, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			reports[i].Source = src.Name()

			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			postings, err := safeSearch(callCtx, src, q)
			if err != nil {
				reports[i].Err = err
				logger.Warn("posting source failed", zap.String("source", src.Name()), zap.Error(err))
				return nil
			}

			if len(postings) > q.Limit {
				postings = postings[:q.Limit]
			}
			results[i] = postings
			reports[i].Count = len(postings)
			logger.Info("got postings from source", zap.String("source", src.Name()), zap.Int("count", len(postings)))
			return nil
		})
	}
	_ = g.Wait()

	var all []*RawPosting
	for _, postings := range results {
		all = append(all, postings...)
	}
	return all, reports
}

func safeSearch(ctx context.Context, src Source, q Query) (postings []*RawPosting, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source panicked: %v", r)
		}
	}()
	return src.Search(ctx, q)
}
