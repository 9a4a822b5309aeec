// Package storetest holds behaviour checks shared by every store implementation.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/store"
)

// Run executes the suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("PostingUpsertKeepsFirstRecord", func(t *testing.T) { testPostingUpsert(t, newStore(t)) })
	t.Run("ConcurrentPostingUpsert", func(t *testing.T) { testConcurrentPostingUpsert(t, newStore(t)) })
	t.Run("Matches", func(t *testing.T) { testMatches(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("LatestProfile", func(t *testing.T) { testLatestProfile(t, newStore(t)) })
	t.Run("ConcurrentApplicationCreate", func(t *testing.T) { testConcurrentApplicationCreate(t, newStore(t)) })
	t.Run("ApplicationLifecycle", func(t *testing.T) { testApplicationLifecycle(t, newStore(t)) })
	t.Run("Notifications", func(t *testing.T) { testNotifications(t, newStore(t)) })
}

func intPtr(v int) *int { return &v }

// Seed creates a user with a profile and returns both.
func Seed(t *testing.T, s store.Store, email string) (*models.User, *models.Profile) {
	t.Helper()
	ctx := context.Background()

	u := &models.User{Email: email, Active: true}
	if err := s.UpsertUser(ctx, u); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	p := &models.Profile{UserID: u.ID, Text: "Go developer", Skills: []string{"go", "sql"}, ExperienceYears: intPtr(3)}
	if err := s.CreateProfile(ctx, p); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return u, p
}

// SeedPosting stores a posting and returns the stored record.
func SeedPosting(t *testing.T, s store.Store, platform, externalID string) *models.Posting {
	t.Helper()

	p, _, err := s.UpsertPosting(context.Background(), &models.Posting{
		Platform:   platform,
		ExternalID: externalID,
		Title:      "Go developer " + externalID,
		Employer:   "Acme",
		Salary:     models.Salary{From: intPtr(100000), Currency: "RUB"},
		Contacts:   []models.Contact{{Email: "hr@acme.test"}},
	})
	if err != nil {
		t.Fatalf("upsert posting: %v", err)
	}
	return p
}

func testPostingUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()

	first, isNew, err := s.UpsertPosting(ctx, &models.Posting{Platform: "headhunter", ExternalID: "1", Title: "Original", Employer: "Acme"})
	if err != nil || !isNew {
		t.Fatalf("expected new posting, got %v %v", isNew, err)
	}
	if first.ID == "" || first.DiscoveredAt.IsZero() {
		t.Fatalf("expected id and discovery time, got %+v", first)
	}

	second, isNew, err := s.UpsertPosting(ctx, &models.Posting{Platform: "headhunter", ExternalID: "1", Title: "Changed"})
	if err != nil || isNew {
		t.Fatalf("expected existing posting, got %v %v", isNew, err)
	}
	if second.ID != first.ID || second.Title != "Original" || second.Employer != "Acme" {
		t.Fatalf("existing posting was overwritten: %+v", second)
	}

	// Same external id on another platform is a different posting.
	_, isNew, err = s.UpsertPosting(ctx, &models.Posting{Platform: "adzuna", ExternalID: "1", Title: "Other"})
	if err != nil || !isNew {
		t.Fatalf("expected new posting for another platform, got %v %v", isNew, err)
	}

	got, err := s.GetPosting(ctx, first.ID)
	if err != nil || got.Title != "Original" {
		t.Fatalf("unexpected posting %+v %v", got, err)
	}

	if _, err := s.GetPosting(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testConcurrentPostingUpsert(t *testing.T, s store.Store) {
	const workers = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]struct{}{}
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, isNew, err := s.UpsertPosting(context.Background(), &models.Posting{Platform: "headhunter", ExternalID: "race", Title: "Race"})
			if err != nil {
				t.Errorf("upsert: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if isNew {
				created++
			}
			ids[p.ID] = struct{}{}
		}()
	}
	wg.Wait()

	if created != 1 || len(ids) != 1 {
		t.Fatalf("expected exactly one insert, got %d inserts and %d ids", created, len(ids))
	}
}

func testMatches(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, profile := Seed(t, s, "match@example.com")
	posting := SeedPosting(t, s, "headhunter", "m1")

	if _, err := s.GetMatch(ctx, posting.ID, profile.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	want := models.MatchResult{Score: 0.8, Rationale: "good", MatchingTags: []string{"go"}, MissingTags: []string{"k8s"}}
	if err := s.SaveMatch(ctx, posting.ID, profile.ID, want); err != nil {
		t.Fatalf("save match: %v", err)
	}
	want.Score = 0.9
	if err := s.SaveMatch(ctx, posting.ID, profile.ID, want); err != nil {
		t.Fatalf("overwrite match: %v", err)
	}

	got, err := s.GetMatch(ctx, posting.ID, profile.ID)
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	if got.Score != 0.9 || got.Rationale != "good" || len(got.MatchingTags) != 1 || got.MissingTags[0] != "k8s" {
		t.Fatalf("unexpected match %+v", got)
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	active := &models.User{Email: "a@example.com", Active: true}
	inactive := &models.User{Email: "b@example.com"}
	for _, u := range []*models.User{active, inactive} {
		if err := s.UpsertUser(ctx, u); err != nil {
			t.Fatalf("upsert user: %v", err)
		}
	}

	users, err := s.ListActiveUsers(ctx)
	if err != nil || len(users) != 1 || users[0].ID != active.ID {
		t.Fatalf("unexpected active users %v %v", users, err)
	}

	if err := s.LinkChat(ctx, active.ID, 1001); err != nil {
		t.Fatalf("link chat: %v", err)
	}
	got, err := s.GetUserByChatID(ctx, 1001)
	if err != nil || got.ID != active.ID {
		t.Fatalf("unexpected user by chat %+v %v", got, err)
	}

	// Relinking moves the chat.
	if err := s.LinkChat(ctx, inactive.ID, 1001); err != nil {
		t.Fatalf("relink chat: %v", err)
	}
	got, err = s.GetUserByChatID(ctx, 1001)
	if err != nil || got.ID != inactive.ID {
		t.Fatalf("unexpected user by chat after relink %+v %v", got, err)
	}

	if _, err := s.GetUserByChatID(ctx, 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.LinkChat(ctx, "missing", 7); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testLatestProfile(t *testing.T, s store.Store) {
	ctx := context.Background()

	u := &models.User{Email: "p@example.com", Active: true}
	if err := s.UpsertUser(ctx, u); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	if _, err := s.LatestProfile(ctx, u.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	older := &models.Profile{UserID: u.ID, Text: "old", CreatedAt: base}
	newer := &models.Profile{UserID: u.ID, Text: "new", Skills: []string{"go"}, CreatedAt: base.Add(time.Minute)}
	for _, p := range []*models.Profile{newer, older} {
		if err := s.CreateProfile(ctx, p); err != nil {
			t.Fatalf("create profile: %v", err)
		}
	}

	got, err := s.LatestProfile(ctx, u.ID)
	if err != nil || got.ID != newer.ID || got.Text != "new" || got.Skills[0] != "go" {
		t.Fatalf("unexpected latest profile %+v %v", got, err)
	}
}

func testConcurrentApplicationCreate(t *testing.T, s store.Store) {
	u, p := Seed(t, s, "race@example.com")
	posting := SeedPosting(t, s, "headhunter", "race-app")

	const workers = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]struct{}{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, ok, err := s.CreateApplication(context.Background(), &models.Application{
				UserID: u.ID, PostingID: posting.ID, ProfileID: p.ID, Status: models.StatusPending, CoverLetter: "hi",
			})
			if err != nil {
				t.Errorf("create application: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			ids[a.ID] = struct{}{}
		}()
	}
	wg.Wait()

	if created != 1 || len(ids) != 1 {
		t.Fatalf("expected a single application, got %d created and %d ids", created, len(ids))
	}
}

func testApplicationLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	u, p := Seed(t, s, "life@example.com")
	posting := SeedPosting(t, s, "headhunter", "life")

	a, created, err := s.CreateApplication(ctx, &models.Application{
		UserID: u.ID, PostingID: posting.ID, ProfileID: p.ID, Status: models.StatusPending, CoverLetter: "Dear Acme",
	})
	if err != nil || !created {
		t.Fatalf("create application: %v %v", created, err)
	}

	at := time.Now().UTC().Truncate(time.Millisecond)
	attempts := []models.DeliveryAttempt{
		{Channel: models.ChannelEmail, Recipient: "hr@acme.test", At: at, OK: false, Error: "timeout"},
		{Channel: models.ChannelEmail, Recipient: "hr2@acme.test", At: at, OK: true},
	}
	for _, attempt := range attempts {
		if err := s.AddDeliveryAttempt(ctx, a.ID, attempt); err != nil {
			t.Fatalf("add attempt: %v", err)
		}
	}

	if err := s.UpdateApplicationStatus(ctx, a.ID, models.StatusSent, models.StatusResponded); !errors.Is(err, store.ErrStatusConflict) {
		t.Fatalf("expected conflict for a stale status, got %v", err)
	}
	if err := s.RecordResponse(ctx, a.ID, "too early", at); !errors.Is(err, store.ErrStatusConflict) {
		t.Fatalf("expected conflict for a pending application, got %v", err)
	}
	if err := s.UpdateApplicationStatus(ctx, a.ID, models.StatusPending, models.StatusSent); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := s.RecordResponse(ctx, a.ID, "Let's talk", at); err != nil {
		t.Fatalf("record response: %v", err)
	}

	got, err := s.GetApplicationFor(ctx, u.ID, posting.ID)
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	if got.Status != models.StatusResponded || !got.ResponseReceived || got.ResponseText != "Let's talk" || got.ResponseAt == nil {
		t.Fatalf("unexpected application %+v", got)
	}
	if len(got.Attempts) != 2 || got.Delivered() != 1 || got.Attempts[0].Error != "timeout" {
		t.Fatalf("unexpected attempts %+v", got.Attempts)
	}

	if err := s.UpdateApplicationStatus(ctx, a.ID, models.StatusResponded, models.StatusRejected); !errors.Is(err, store.ErrStatusConflict) {
		t.Fatalf("expected terminal status, got %v", err)
	}

	list, err := s.ListApplications(ctx, u.ID, time.Now().Add(-24*time.Hour))
	if err != nil || len(list) != 1 {
		t.Fatalf("unexpected list %v %v", list, err)
	}
	list, err = s.ListApplications(ctx, u.ID, time.Now().Add(time.Hour))
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v %v", list, err)
	}

	if _, err := s.GetApplication(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testNotifications(t *testing.T, s store.Store) {
	ctx := context.Background()
	u, _ := Seed(t, s, "n@example.com")

	n := &models.Notification{
		UserID:  u.ID,
		Type:    models.NotificationJobsFound,
		Title:   "Found 2 postings",
		Body:    "body",
		Payload: map[string]any{"total": float64(2)},
		Choices: []models.Choice{{Label: "Go developer", Data: "select:1"}},
	}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}

	unsent, err := s.ListUnsentNotifications(ctx)
	if err != nil || len(unsent) != 1 || unsent[0].ID != n.ID || len(unsent[0].Choices) != 1 {
		t.Fatalf("unexpected unsent %v %v", unsent, err)
	}

	if err := s.MarkNotificationSent(ctx, n.ID, "77", time.Now().UTC()); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	unsent, err = s.ListUnsentNotifications(ctx)
	if err != nil || len(unsent) != 0 {
		t.Fatalf("expected no unsent notifications, got %v %v", unsent, err)
	}

	got, err := s.GetNotificationByMessage(ctx, u.ID, "77")
	if err != nil || got.ID != n.ID || !got.Sent || got.Choices[0].Data != "select:1" {
		t.Fatalf("unexpected notification %+v %v", got, err)
	}

	p1 := SeedPosting(t, s, "headhunter", "n1")
	p2 := SeedPosting(t, s, "headhunter", "n2")

	fresh, err := s.MarkPostingsNotified(ctx, u.ID, []string{p1.ID})
	if err != nil || len(fresh) != 1 {
		t.Fatalf("unexpected fresh %v %v", fresh, err)
	}
	fresh, err = s.MarkPostingsNotified(ctx, u.ID, []string{p1.ID, p2.ID})
	if err != nil || len(fresh) != 1 || fresh[0] != p2.ID {
		t.Fatalf("expected only the second posting, got %v %v", fresh, err)
	}

	if err := s.UnmarkPostingsNotified(ctx, u.ID, []string{p2.ID}); err != nil {
		t.Fatalf("unmark: %v", err)
	}
	fresh, err = s.MarkPostingsNotified(ctx, u.ID, []string{p1.ID, p2.ID})
	if err != nil || len(fresh) != 1 || fresh[0] != p2.ID {
		t.Fatalf("expected the unmarked posting to be fresh again, got %v %v", fresh, err)
	}
}
