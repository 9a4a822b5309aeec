// Package matching turns a fallible profile scorer into a total function with a neutral fallback.
package matching

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spigell/hh-assistant/internal/ai"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/utils"
	"go.uber.org/zap"
)

const (
	FallbackScore     = 0.5
	FallbackRationale = "match evaluation unavailable"

	DefaultMaxInputRunes = 2000
	DefaultTimeout       = 30 * time.Second
	MaxRationaleRunes    = 200
)

type Config struct {
	MaxInputRunes int
	Timeout       time.Duration
}

// Scorer bounds the inputs and the duration of every backend call.
type Scorer struct {
	backend ai.Scorer
	cfg     Config
	logger  *zap.Logger
}

func NewScorer(backend ai.Scorer, cfg Config, logger *zap.Logger) *Scorer {
	if cfg.MaxInputRunes <= 0 {
		cfg.MaxInputRunes = DefaultMaxInputRunes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{backend: backend, cfg: cfg, logger: logger}
}

// Score never fails. Any backend problem yields Fallback().
func (s *Scorer) Score(ctx context.Context, profileText, postingText string) models.MatchResult {
	if s.backend == nil {
		return Fallback()
	}

	profileText = utils.Prefix(profileText, s.cfg.MaxInputRunes)
	postingText = utils.Prefix(postingText, s.cfg.MaxInputRunes)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	result, err := s.backend.Score(callCtx, profileText, postingText)
	if err == nil && result == nil {
		err = errors.New("scorer returned no result")
	}
	if err == nil && (math.IsNaN(result.Score) || math.IsInf(result.Score, 0)) {
		err = errors.New("scorer returned a non-finite score")
	}
	if err != nil {
		s.logger.Warn("match scoring failed, using fallback", zap.Error(err))
		return Fallback()
	}

	return normalize(*result)
}

// Fallback is the neutral result used when the scorer is unavailable.
func Fallback() models.MatchResult {
	return models.MatchResult{
		Score:        FallbackScore,
		Rationale:    FallbackRationale,
		MatchingTags: []string{},
		MissingTags:  []string{},
		Fallback:     true,
	}
}

func normalize(r models.MatchResult) models.MatchResult {
	r.Score = math.Max(0, math.Min(1, r.Score))
	r.Rationale = utils.Bound(r.Rationale, MaxRationaleRunes)
	if r.Rationale == "" {
		r.Rationale = "no rationale provided"
	}
	r.MatchingTags = tagSet(r.MatchingTags)
	r.MissingTags = tagSet(r.MissingTags)
	r.Fallback = false
	return r
}

func tagSet(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
