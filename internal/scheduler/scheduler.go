// Package scheduler runs the daily job digest and the weekly summary for every active user.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spigell/hh-assistant/internal/digest"
	"github.com/spigell/hh-assistant/internal/events"
	"github.com/spigell/hh-assistant/internal/logger"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/notify"
	"github.com/spigell/hh-assistant/internal/ranking"
	"github.com/spigell/hh-assistant/internal/source"
	"github.com/spigell/hh-assistant/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultDaily     = "0 9 * * *"
	DefaultWeekly    = "0 18 * * 5"
	DefaultThreshold = 0.6
	DefaultWorkers   = 4
	summaryPeriod    = 7 * 24 * time.Hour
)

type Config struct {
	Daily    string `mapstructure:"daily"`
	Weekly   string `mapstructure:"weekly"`
	Timezone string `mapstructure:"timezone"`
	Workers  int    `mapstructure:"workers"`
	// Threshold is the global relevance cut. Nil means DefaultThreshold.
	// A user's MinScore overrides it.
	Threshold *float64 `mapstructure:"threshold" validate:"omitempty,gte=0,lte=1"`
	Limit     int     `mapstructure:"limit"`
}

type Ranker interface {
	Rank(ctx context.Context, profile *models.Profile, q source.Query) (*ranking.Result, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, user *models.User, n *models.Notification) error
	ResendUnsent(ctx context.Context) (int, error)
	Target(user *models.User) digest.Target
	Reachable(user *models.User) bool
}

type Deps struct {
	Users         store.Users
	Profiles      store.Profiles
	Applications  store.Applications
	Notifications store.Notifications
	Ranker        Ranker
	Composer      *digest.Composer
	Dispatcher    Dispatcher
	Events        events.Publisher
	Logger        *zap.Logger
}

type Scheduler struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func New(deps Deps, cfg Config) *Scheduler {
	if cfg.Daily == "" {
		cfg.Daily = DefaultDaily
	}
	if cfg.Weekly == "" {
		cfg.Weekly = DefaultWeekly
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Threshold == nil {
		threshold := DefaultThreshold
		cfg.Threshold = &threshold
	}
	if cfg.Limit <= 0 {
		cfg.Limit = source.DefaultLimit
	}
	if deps.Composer == nil {
		deps.Composer = digest.New(digest.Config{})
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	return &Scheduler{
		deps:   deps,
		cfg:    cfg,
		logger: logger.WithFields(deps.Logger),
		now:    time.Now,
	}
}

// Report summarises one scheduled run.
type Report struct {
	Users    int
	Notified int
	Skipped  int
	Failed   int
	Resent   int
}

// Start registers both jobs and blocks until ctx is done. Running jobs are
// waited for before returning.
func (s *Scheduler) Start(ctx context.Context) error {
	loc := time.Local
	if s.cfg.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(s.cfg.Timezone); err != nil {
			return fmt.Errorf("load timezone %q: %w", s.cfg.Timezone, err)
		}
	}

	c := cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{s.logger.Sugar()}))

	if _, err := c.AddFunc(s.cfg.Daily, func() {
		if _, err := s.RunDaily(ctx); err != nil {
			s.logger.Error("daily run failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule daily run %q: %w", s.cfg.Daily, err)
	}

	if _, err := c.AddFunc(s.cfg.Weekly, func() {
		if _, err := s.RunWeekly(ctx); err != nil {
			s.logger.Error("weekly run failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule weekly run %q: %w", s.cfg.Weekly, err)
	}

	s.logger.Info("scheduler started",
		zap.String("daily", s.cfg.Daily),
		zap.String("weekly", s.cfg.Weekly),
		zap.String("timezone", loc.String()),
	)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// RunDaily retries undelivered notifications, then sends every active user
// the relevant postings they have not been told about yet.
func (s *Scheduler) RunDaily(ctx context.Context) (*Report, error) {
	report := &Report{}

	resent, err := s.deps.Dispatcher.ResendUnsent(ctx)
	if err != nil {
		s.logger.Warn("failed to resend notifications", zap.Error(err))
	}
	report.Resent = resent

	users, err := s.deps.Users.ListActiveUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("list active users: %w", err)
	}
	report.Users = len(users)

	var notified, skipped, failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, user := range users {
		g.Go(func() error {
			n, err := s.daily(gctx, user)
			switch {
			case errors.Is(err, errSkipped):
				skipped.Add(1)
			case err != nil:
				failed.Add(1)
				s.logger.Error("daily run failed for user", zap.String(logger.FieldUser, user.ID), zap.Error(err))
			case n > 0:
				notified.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Notified = int(notified.Load())
	report.Skipped = int(skipped.Load())
	report.Failed = int(failed.Load())

	s.logger.Info("daily run finished",
		zap.Int("users", report.Users),
		zap.Int("notified", report.Notified),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("resent", report.Resent),
	)
	return report, nil
}

// RunDailyForUser runs the daily digest for one user and returns the number of postings sent.
func (s *Scheduler) RunDailyForUser(ctx context.Context, userID string) (int, error) {
	user, err := s.deps.Users.GetUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load user %s: %w", userID, err)
	}
	n, err := s.daily(ctx, user)
	if errors.Is(err, errSkipped) {
		return 0, nil
	}
	return n, err
}

var errSkipped = errors.New("skipped")

func (s *Scheduler) daily(ctx context.Context, user *models.User) (int, error) {
	log := s.logger.With(zap.String(logger.FieldUser, user.ID))

	if !s.deps.Dispatcher.Reachable(user) {
		log.Debug("user has no notification channel")
		return 0, errSkipped
	}

	profile, err := s.deps.Profiles.LatestProfile(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		log.Debug("user has no profile")
		return 0, errSkipped
	}
	if err != nil {
		return 0, fmt.Errorf("load profile: %w", err)
	}

	query := source.QueryFromProfile(profile, s.cfg.Limit)
	if len(query.Keywords) == 0 {
		log.Info("profile has no skills or desired title", zap.String("profile_id", profile.ID))
		return 0, errSkipped
	}

	result, err := s.deps.Ranker.Rank(ctx, profile, query)
	if err != nil {
		return 0, fmt.Errorf("rank postings: %w", err)
	}

	relevant := ranking.AboveThreshold(result.Items, s.threshold(user))
	if len(relevant) == 0 {
		log.Info("no relevant postings", zap.Int("ranked", len(result.Items)))
		return 0, nil
	}

	ids := make([]string, 0, len(relevant))
	for _, item := range relevant {
		ids = append(ids, item.Posting.ID)
	}
	freshIDs, err := s.deps.Notifications.MarkPostingsNotified(ctx, user.ID, ids)
	if err != nil {
		return 0, fmt.Errorf("mark postings notified: %w", err)
	}
	if len(freshIDs) == 0 {
		log.Info("every relevant posting was already sent", zap.Int("relevant", len(relevant)))
		return 0, nil
	}

	fresh := make(map[string]struct{}, len(freshIDs))
	for _, id := range freshIDs {
		fresh[id] = struct{}{}
	}
	items := make([]models.RankedPosting, 0, len(freshIDs))
	for _, item := range relevant {
		if _, ok := fresh[item.Posting.ID]; ok {
			items = append(items, item)
		}
	}

	n := s.deps.Composer.JobsFound(user.ID, items, s.deps.Dispatcher.Target(user))
	err = s.deps.Dispatcher.Dispatch(ctx, user, n)
	switch {
	case errors.Is(err, notify.ErrNotStored):
		if uerr := s.deps.Notifications.UnmarkPostingsNotified(ctx, user.ID, freshIDs); uerr != nil {
			log.Error("failed to unmark postings", zap.Strings("posting_ids", freshIDs), zap.Error(uerr))
		}
		return 0, fmt.Errorf("dispatch digest: %w", err)
	case err != nil:
		// the stored notification is retried by the next run
		log.Warn("digest not delivered", zap.Error(err))
	}

	if err := s.deps.Events.Publish(ctx, events.Event{
		Type:   events.TypePostingsNotified,
		UserID: user.ID,
		Data:   map[string]any{"posting_ids": freshIDs, "notification_id": n.ID},
		At:     s.now().UTC(),
	}); err != nil {
		log.Warn("failed to publish event", zap.Error(err))
	}

	log.Info("digest composed", zap.Int("postings", len(items)))
	return len(items), nil
}

func (s *Scheduler) threshold(user *models.User) float64 {
	if user.MinScore != nil {
		return *user.MinScore
	}
	return *s.cfg.Threshold
}

// RunWeekly sends a summary of the last week's applications to every reachable active user.
func (s *Scheduler) RunWeekly(ctx context.Context) (*Report, error) {
	users, err := s.deps.Users.ListActiveUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}

	report := &Report{Users: len(users)}
	since := s.now().Add(-summaryPeriod)

	for _, user := range users {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if !s.deps.Dispatcher.Reachable(user) {
			report.Skipped++
			continue
		}

		apps, err := s.deps.Applications.ListApplications(ctx, user.ID, since)
		if err != nil {
			report.Failed++
			s.logger.Error("failed to list applications", zap.String(logger.FieldUser, user.ID), zap.Error(err))
			continue
		}
		if len(apps) == 0 {
			report.Skipped++
			continue
		}

		n := s.deps.Composer.WeeklySummary(user.ID, apps, s.deps.Dispatcher.Target(user))
		if err := s.deps.Dispatcher.Dispatch(ctx, user, n); err != nil {
			report.Failed++
			continue
		}
		report.Notified++
	}

	s.logger.Info("weekly run finished",
		zap.Int("users", report.Users),
		zap.Int("notified", report.Notified),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
