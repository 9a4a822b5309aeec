// Package profile turns resume text into stored profile snapshots.
// A new upload never edits an older profile; it creates a newer one.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/hh-assistant/internal/ai"
	"github.com/spigell/hh-assistant/internal/headhunter"
	"github.com/spigell/hh-assistant/internal/logger"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/store"
	"github.com/spigell/hh-assistant/internal/utils"
	"go.uber.org/zap"
)

var (
	ErrEmptyResume  = errors.New("resume text is empty")
	ErrUserNotFound = errors.New("user not found")
)

const (
	DefaultTimeout       = 60 * time.Second
	DefaultMaxInputRunes = 8000
)

// Overrides win over anything extracted from the resume.
type Overrides struct {
	Skills            []string
	ExperienceYears   *int
	Title             string
	Location          string
	SalaryExpectation string
}

type Config struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxInputRunes int           `mapstructure:"max-input-runes"`
}

type Deps struct {
	Users    store.Users
	Profiles store.Profiles
	// Analyzer and Embedder are optional.
	Analyzer ai.ResumeAnalyzer
	Embedder ai.Embedder
	Logger   *zap.Logger
}

type Service struct {
	users    store.Users
	profiles store.Profiles
	analyzer ai.ResumeAnalyzer
	embedder ai.Embedder
	cfg      Config
	logger   *zap.Logger
}

func New(deps Deps, cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxInputRunes <= 0 {
		cfg.MaxInputRunes = DefaultMaxInputRunes
	}
	return &Service{
		users:    deps.Users,
		profiles: deps.Profiles,
		analyzer: deps.Analyzer,
		embedder: deps.Embedder,
		cfg:      cfg,
		logger:   logger.WithFields(deps.Logger),
	}
}

// Ingest stores a new profile for the user built from text.
func (s *Service) Ingest(ctx context.Context, userID, text, resumePath string, o Overrides) (*models.Profile, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResume
	}

	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	log := s.logger.With(zap.String(logger.FieldUser, userID))
	facts := s.analyze(ctx, log, text)

	p := &models.Profile{
		UserID:            userID,
		Text:              text,
		Skills:            normalizeSkills(facts.Skills),
		ExperienceYears:   facts.ExperienceYears,
		DesiredTitle:      strings.TrimSpace(facts.Title),
		DesiredLocation:   strings.TrimSpace(facts.Location),
		SalaryExpectation: strings.TrimSpace(facts.SalaryExpectation),
		ResumePath:        resumePath,
	}
	o.apply(p)

	p.Embedding = s.embed(ctx, log, text)

	if err := s.profiles.CreateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("store profile: %w", err)
	}

	log.Info("profile stored",
		zap.String(logger.FieldProfile, p.ID),
		zap.Strings("skills", p.Skills),
		zap.String("title", p.DesiredTitle),
		zap.Bool("embedded", len(p.Embedding) > 0),
	)
	return p, nil
}

// HHResumes is the part of the hh.ru client used to import a resume.
type HHResumes interface {
	GetMineResumes(ctx context.Context) (*headhunter.Resumes, error)
	GetResumeDetails(ctx context.Context, id string) (*headhunter.ResumeDetails, error)
}

// ImportHH ingests the hh.ru resume with the given title.
func (s *Service) ImportHH(ctx context.Context, hh HHResumes, userID, title string, o Overrides) (*models.Profile, error) {
	resumes, err := hh.GetMineResumes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list hh resumes: %w", err)
	}

	resume := resumes.FindByTitle(title)
	if resume == nil {
		return nil, fmt.Errorf("%w: %q (available: %s)", headhunter.ErrResumeNotFound, title, strings.Join(resumes.Titles(), ", "))
	}

	details, err := hh.GetResumeDetails(ctx, resume.ID)
	if err != nil {
		return nil, fmt.Errorf("get hh resume %s: %w", resume.ID, err)
	}

	return s.Ingest(ctx, userID, details.Text(), "", o)
}

// analyze never fails; without an analyzer or on error the facts are empty.
func (s *Service) analyze(ctx context.Context, log *zap.Logger, text string) *ai.ResumeFacts {
	if s.analyzer == nil {
		return &ai.ResumeFacts{}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	facts, err := s.analyzer.AnalyzeResume(callCtx, utils.Prefix(text, s.cfg.MaxInputRunes))
	if err == nil && facts == nil {
		err = errors.New("analyzer returned no facts")
	}
	if err != nil {
		log.Warn("resume analysis failed, storing text only", zap.Error(err))
		return &ai.ResumeFacts{}
	}
	return facts
}

func (s *Service) embed(ctx context.Context, log *zap.Logger, text string) []float32 {
	if s.embedder == nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	vec, err := s.embedder.Embed(callCtx, utils.Prefix(text, s.cfg.MaxInputRunes))
	if err != nil {
		log.Warn("resume embedding failed", zap.Error(err))
		return nil
	}
	return vec
}

func (o Overrides) apply(p *models.Profile) {
	if skills := normalizeSkills(o.Skills); len(skills) > 0 {
		p.Skills = skills
	}
	if o.ExperienceYears != nil {
		years := *o.ExperienceYears
		p.ExperienceYears = &years
	}
	if v := strings.TrimSpace(o.Title); v != "" {
		p.DesiredTitle = v
	}
	if v := strings.TrimSpace(o.Location); v != "" {
		p.DesiredLocation = v
	}
	if v := strings.TrimSpace(o.SalaryExpectation); v != "" {
		p.SalaryExpectation = v
	}
}

// normalizeSkills trims and drops case-insensitive duplicates, keeping the first spelling.
func normalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, skill := range skills {
		skill = strings.TrimSpace(skill)
		key := strings.ToLower(skill)
		if skill == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, skill)
	}
	return out
}
