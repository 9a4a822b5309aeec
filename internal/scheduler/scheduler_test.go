package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spigell/hh-assistant/internal/digest"
	"github.com/spigell/hh-assistant/internal/events"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/notify"
	"github.com/spigell/hh-assistant/internal/ranking"
	"github.com/spigell/hh-assistant/internal/source"
	"github.com/spigell/hh-assistant/internal/store/memory"
	"github.com/spigell/hh-assistant/internal/store/storetest"
)

type stubRanker struct {
	mu     sync.Mutex
	items  []models.RankedPosting
	err    error
	called int
}

func (r *stubRanker) Rank(_ context.Context, _ *models.Profile, _ source.Query) (*ranking.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.called++
	if r.err != nil {
		return nil, r.err
	}
	return &ranking.Result{Items: append([]models.RankedPosting(nil), r.items...)}, nil
}

type stubChat struct {
	mu   sync.Mutex
	err  error
	sent []*models.Notification
}

func (c *stubChat) Send(_ context.Context, _ int64, n *models.Notification) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.sent = append(c.sent, n)
	return "1", nil
}

func (c *stubChat) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fixture struct {
	store  *memory.Store
	chat   *stubChat
	ranker *stubRanker
	events *events.Recorder
	sched  *Scheduler
	user   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s := memory.New()
	user, _ := storetest.Seed(t, s, "ivan@example.com")
	if err := s.LinkChat(ctx, user.ID, 42); err != nil {
		t.Fatalf("link chat: %v", err)
	}
	user, _ = s.GetUser(ctx, user.ID)

	var items []models.RankedPosting
	for id, score := range map[string]float64{"1": 0.9, "2": 0.5, "3": 0.7} {
		p := storetest.SeedPosting(t, s, "headhunter", id)
		items = append(items, models.RankedPosting{Posting: p, Match: models.MatchResult{Score: score}})
	}
	ranking.Sort(items)

	chat := &stubChat{}
	ranker := &stubRanker{items: items}
	rec := &events.Recorder{}

	sched := New(Deps{
		Users:         s,
		Profiles:      s,
		Applications:  s,
		Notifications: s,
		Ranker:        ranker,
		Composer:      digest.New(digest.Config{}),
		Dispatcher:    notify.NewDispatcher(s, s, chat, nil, nil),
		Events:        rec,
	}, Config{})

	return &fixture{store: s, chat: chat, ranker: ranker, events: rec, sched: sched, user: user}
}

func selectable(n *models.Notification) int {
	count := 0
	for _, ch := range n.Choices {
		if _, ok := digest.ParseSelect(ch.Data); ok {
			count++
		}
	}
	return count
}

func TestRunDailyIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	report, err := f.sched.RunDaily(ctx)
	if err != nil {
		t.Fatalf("daily run failed: %v", err)
	}
	if report.Users != 1 || report.Notified != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if f.chat.count() != 1 {
		t.Fatalf("expected one digest, got %d", f.chat.count())
	}
	if got := selectable(f.chat.sent[0]); got != 2 {
		t.Fatalf("expected 2 postings above the threshold, got %d", got)
	}
	if f.chat.sent[0].Format != digest.FormatMarkdown {
		t.Fatalf("expected chat formatting, got %q", f.chat.sent[0].Format)
	}

	report, err = f.sched.RunDaily(ctx)
	if err != nil {
		t.Fatalf("second daily run failed: %v", err)
	}
	if report.Notified != 0 || f.chat.count() != 1 {
		t.Fatalf("expected no repeated digest, report %+v, sent %d", report, f.chat.count())
	}

	evs := f.events.Events()
	if len(evs) != 1 || evs[0].Type != events.TypePostingsNotified {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestRunDailyUserThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	minScore := 0.8
	f.user.MinScore = &minScore
	if err := f.store.UpsertUser(ctx, f.user); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	if _, err := f.sched.RunDailyForUser(ctx, f.user.ID); err != nil {
		t.Fatalf("run for user failed: %v", err)
	}
	if got := selectable(f.chat.sent[0]); got != 1 {
		t.Fatalf("expected 1 posting above the user threshold, got %d", got)
	}
}

func TestRunDailyRetriesUndelivered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.chat.err = errors.New("telegram unavailable")
	if _, err := f.sched.RunDaily(ctx); err != nil {
		t.Fatalf("daily run failed: %v", err)
	}
	if f.chat.count() != 0 {
		t.Fatal("nothing should be delivered")
	}

	f.chat.err = nil
	report, err := f.sched.RunDaily(ctx)
	if err != nil {
		t.Fatalf("daily run failed: %v", err)
	}
	if report.Resent != 1 || f.chat.count() != 1 {
		t.Fatalf("expected the stored digest to be resent once, report %+v, sent %d", report, f.chat.count())
	}
}

func TestRunDailySkipsAndFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	noProfile := &models.User{Email: "noprofile@example.com", ChatID: 43, Active: true}
	unreachable := &models.User{Active: true}
	for _, u := range []*models.User{noProfile, unreachable} {
		if err := f.store.UpsertUser(ctx, u); err != nil {
			t.Fatalf("upsert user: %v", err)
		}
	}

	f.ranker.err = errors.New("invalid query")
	report, err := f.sched.RunDaily(ctx)
	if err != nil {
		t.Fatalf("daily run failed: %v", err)
	}
	if report.Users != 3 || report.Skipped != 2 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunWeekly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	idle, _ := storetest.Seed(t, f.store, "idle@example.com")
	if err := f.store.LinkChat(ctx, idle.ID, 44); err != nil {
		t.Fatalf("link chat: %v", err)
	}

	profile, err := f.store.LatestProfile(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("latest profile: %v", err)
	}
	posting := storetest.SeedPosting(t, f.store, "headhunter", "1")
	if _, _, err := f.store.CreateApplication(ctx, &models.Application{
		UserID: f.user.ID, PostingID: posting.ID, ProfileID: profile.ID, Status: models.StatusPending,
	}); err != nil {
		t.Fatalf("create application: %v", err)
	}

	report, err := f.sched.RunWeekly(ctx)
	if err != nil {
		t.Fatalf("weekly run failed: %v", err)
	}
	if report.Notified != 1 || report.Skipped != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if f.chat.sent[0].Type != models.NotificationWeeklySummary {
		t.Fatalf("unexpected notification %+v", f.chat.sent[0])
	}
}

func TestStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	bad := New(f.sched.deps, Config{Daily: "every other tuesday"})
	if err := bad.Start(context.Background()); err == nil {
		t.Fatal("expected invalid cron expression error")
	}

	tz := New(f.sched.deps, Config{Timezone: "Mars/Olympus"})
	if err := tz.Start(context.Background()); err == nil {
		t.Fatal("expected invalid timezone error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := New(f.sched.deps, Config{Timezone: "UTC"}).Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
}

// flakyNotifications fails to store the first notification.
type flakyNotifications struct {
	*memory.Store
	mu     sync.Mutex
	failed bool
}

func (f *flakyNotifications) CreateNotification(ctx context.Context, n *models.Notification) error {
	f.mu.Lock()
	if !f.failed {
		f.failed = true
		f.mu.Unlock()
		return errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.Store.CreateNotification(ctx, n)
}

func TestRunDailyRestoresPostingsWhenDigestIsNotStored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	flaky := &flakyNotifications{Store: f.store}
	f.sched.deps.Notifications = flaky
	f.sched.deps.Dispatcher = notify.NewDispatcher(flaky, f.store, f.chat, nil, nil)

	report, err := f.sched.RunDaily(ctx)
	if err != nil {
		t.Fatalf("daily run failed: %v", err)
	}
	if report.Failed != 1 || report.Notified != 0 || f.chat.count() != 0 {
		t.Fatalf("unexpected first report %+v, sent %d", report, f.chat.count())
	}

	report, err = f.sched.RunDaily(ctx)
	if err != nil {
		t.Fatalf("second daily run failed: %v", err)
	}
	if report.Notified != 1 || f.chat.count() != 1 {
		t.Fatalf("postings must be offered again, report %+v, sent %d", report, f.chat.count())
	}
	if got := selectable(f.chat.sent[0]); got != 2 {
		t.Fatalf("expected 2 postings in the retried digest, got %d", got)
	}
}

func TestRunDailyZeroThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	zero := 0.0
	f.sched.cfg.Threshold = &zero

	if _, err := f.sched.RunDailyForUser(ctx, f.user.ID); err != nil {
		t.Fatalf("run for user failed: %v", err)
	}
	if got := selectable(f.chat.sent[0]); got != 3 {
		t.Fatalf("expected every scored posting with a zero threshold, got %d", got)
	}
}

func TestRunDailySkipsProfileWithoutKeywords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	bare := &models.User{Email: "bare@example.com", ChatID: 45, Active: true}
	if err := f.store.UpsertUser(ctx, bare); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if err := f.store.CreateProfile(ctx, &models.Profile{UserID: bare.ID, Text: "looking for anything"}); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	report, err := f.sched.RunDaily(ctx)
	if err != nil {
		t.Fatalf("daily run failed: %v", err)
	}
	if report.Users != 2 || report.Notified != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("expected the bare profile to be skipped, report %+v", report)
	}
	if f.ranker.called != 1 {
		t.Fatalf("expected one ranking for the complete profile, got %d", f.ranker.called)
	}
}
