// Package ranking searches every posting source for a profile, stores what it finds and
// orders the postings by match quality.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spigell/hh-assistant/internal/filtering"
	"github.com/spigell/hh-assistant/internal/logger"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/source"
	"github.com/spigell/hh-assistant/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrProfileNotFound = errors.New("profile not found")

const defaultScoreWorkers = 4

// MatchScorer never fails; degraded results are flagged with Fallback.
type MatchScorer interface {
	Score(ctx context.Context, profileText, postingText string) models.MatchResult
}

type Config struct {
	SourceTimeout time.Duration `mapstructure:"source-timeout"`
	ScoreWorkers  int           `mapstructure:"score-workers"`
}

type Pipeline struct {
	sources  []source.Source
	filters  *filtering.Filtering
	postings store.Postings
	profiles store.Profiles
	scorer   MatchScorer
	cfg      Config
	logger   *zap.Logger
}

type Deps struct {
	Sources  []source.Source
	Filters  *filtering.Filtering
	Postings store.Postings
	Profiles store.Profiles
	Scorer   MatchScorer
	Logger   *zap.Logger
}

func New(deps Deps, cfg Config) *Pipeline {
	if cfg.ScoreWorkers <= 0 {
		cfg.ScoreWorkers = defaultScoreWorkers
	}
	return &Pipeline{
		sources:  deps.Sources,
		filters:  deps.Filters,
		postings: deps.Postings,
		profiles: deps.Profiles,
		scorer:   deps.Scorer,
		cfg:      cfg,
		logger:   logger.WithFields(deps.Logger),
	}
}

type Result struct {
	Items   []models.RankedPosting
	Sources []source.Report
	// Scored counts postings sent to the scorer; the rest reused a cached match.
	Scored int
}

// Top returns at most n items.
func (r *Result) Top(n int) []models.RankedPosting {
	if n <= 0 || n >= len(r.Items) {
		return r.Items
	}
	return r.Items[:n]
}

// NewItems returns the postings first stored by this run.
func (r *Result) NewItems() []models.RankedPosting {
	var out []models.RankedPosting
	for _, item := range r.Items {
		if item.New {
			out = append(out, item)
		}
	}
	return out
}

// RankUser ranks for the latest profile of the user.
func (p *Pipeline) RankUser(ctx context.Context, userID string, q source.Query) (*Result, *models.Profile, error) {
	profile, err := p.profiles.LatestProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: user %s", ErrProfileNotFound, userID)
	}
	if err != nil {
		return nil, nil, err
	}

	result, err := p.Rank(ctx, profile, q)
	return result, profile, err
}

// Rank collects postings from every source, upserts them and scores the ones without
// a cached match for this profile. A failing source contributes nothing; scorer failures
// yield neutral scores.
func (p *Pipeline) Rank(ctx context.Context, profile *models.Profile, q source.Query) (*Result, error) {
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	log := p.logger.With(zap.String(logger.FieldUser, profile.UserID), zap.String(logger.FieldProfile, profile.ID))

	raws, reports := source.Collect(ctx, p.sources, q, p.cfg.SourceTimeout, log)
	raws = p.filters.Run(ctx, raws)

	items := make([]models.RankedPosting, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		if _, ok := seen[raw.Key()]; ok {
			continue
		}
		seen[raw.Key()] = struct{}{}

		stored, isNew, err := p.postings.UpsertPosting(ctx, raw.Posting())
		if err != nil {
			log.Error("storing posting failed", zap.String("key", raw.Key()), zap.Error(err))
			continue
		}
		items = append(items, models.RankedPosting{Posting: stored, New: isNew})
	}

	scored, err := p.score(ctx, profile, items, log)
	if err != nil {
		return nil, err
	}

	Sort(items)

	log.Info("ranking finished",
		zap.Int("postings", len(items)),
		zap.Int("scored", scored),
		zap.Int("cached", len(items)-scored),
	)

	return &Result{Items: items, Sources: reports, Scored: scored}, nil
}

func (p *Pipeline) score(ctx context.Context, profile *models.Profile, items []models.RankedPosting, log *zap.Logger) (int, error) {
	var pending []int
	for i := range items {
		posting := items[i].Posting
		if !items[i].New {
			cached, err := p.postings.GetMatch(ctx, posting.ID, profile.ID)
			if err == nil {
				items[i].Match = *cached
				items[i].Cached = true
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				log.Warn("reading cached match failed, rescoring", append(logger.PostingFields(posting), zap.Error(err))...)
			}
		}
		pending = append(pending, i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ScoreWorkers)
	for _, i := range pending {
		g.Go(func() error {
			posting := items[i].Posting
			match := p.scorer.Score(gctx, profile.Text, posting.ScoringText())
			items[i].Match = match

			// Fallback results are not cached so the next run retries the scorer.
			if match.Fallback {
				return nil
			}
			if err := p.postings.SaveMatch(gctx, posting.ID, profile.ID, match); err != nil {
				log.Warn("caching match failed", append(logger.PostingFields(posting), zap.Error(err))...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	return len(pending), nil
}

// Sort orders by score, then newest discovery, then platform name and external id.
func Sort(items []models.RankedPosting) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Match.Score != b.Match.Score {
			return a.Match.Score > b.Match.Score
		}
		if !a.Posting.DiscoveredAt.Equal(b.Posting.DiscoveredAt) {
			return a.Posting.DiscoveredAt.After(b.Posting.DiscoveredAt)
		}
		if a.Posting.Platform != b.Posting.Platform {
			return a.Posting.Platform < b.Posting.Platform
		}
		return a.Posting.ExternalID < b.Posting.ExternalID
	})
}

// AboveThreshold keeps items scoring strictly above threshold.
func AboveThreshold(items []models.RankedPosting, threshold float64) []models.RankedPosting {
	out := make([]models.RankedPosting, 0, len(items))
	for _, item := range items {
		if item.Match.Score > threshold {
			out = append(out, item)
		}
	}
	return out
}

// Without returns items minus the posting with the given id.
func Without(items []models.RankedPosting, postingID string) []models.RankedPosting {
	out := make([]models.RankedPosting, 0, len(items))
	for _, item := range items {
		if item.Posting.ID != postingID {
			out = append(out, item)
		}
	}
	return out
}
