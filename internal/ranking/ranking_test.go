package ranking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spigell/hh-assistant/internal/matching"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/source"
	"github.com/spigell/hh-assistant/internal/store/memory"
)

type stubSource struct {
	name     string
	postings []*source.RawPosting
	err      error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Search(context.Context, source.Query) ([]*source.RawPosting, error) {
	return s.postings, s.err
}

// stubBackend scores by the first line of the posting text.
type stubBackend struct {
	mu     sync.Mutex
	scores map[string]float64
	err    error
	calls  int
}

func (b *stubBackend) Score(_ context.Context, _, postingText string) (*models.MatchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	title, _, _ := strings.Cut(postingText, "\n")
	return &models.MatchResult{Score: b.scores[title], Rationale: "scored " + title}, nil
}

func (b *stubBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func posting(platform, id, title string) *source.RawPosting {
	return &source.RawPosting{Platform: platform, ExternalID: id, Title: title, Employer: "Acme"}
}

func setup(t *testing.T, backend *stubBackend, sources ...source.Source) (*Pipeline, *memory.Store, *models.Profile) {
	t.Helper()

	st := memory.New()
	u := &models.User{Email: "user@example.com", Active: true}
	if err := st.UpsertUser(context.Background(), u); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	profile := &models.Profile{UserID: u.ID, Text: "python sql", Skills: []string{"python", "sql"}}
	if err := st.CreateProfile(context.Background(), profile); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	p := New(Deps{
		Sources:  sources,
		Postings: st,
		Profiles: st,
		Scorer:   matching.NewScorer(backend, matching.Config{}, nil),
	}, Config{})
	return p, st, profile
}

func query() source.Query {
	return source.Query{Keywords: []string{"python", "sql"}}
}

func titles(items []models.RankedPosting) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Posting.Title)
	}
	return out
}

func TestRankOrdersByScore(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{scores: map[string]float64{"Data engineer": 0.4, "Python developer": 0.9}}
	src := &stubSource{name: "headhunter", postings: []*source.RawPosting{
		posting("headhunter", "1", "Data engineer"),
		posting("headhunter", "2", "Python developer"),
	}}
	p, _, profile := setup(t, backend, src)

	result, err := p.Rank(context.Background(), profile, query())
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}

	got := titles(result.Items)
	if len(got) != 2 || got[0] != "Python developer" || got[1] != "Data engineer" {
		t.Fatalf("unexpected order: %v", got)
	}
	if result.Items[0].Match.Score != 0.9 || result.Items[1].Match.Score != 0.4 {
		t.Fatalf("unexpected scores: %+v", result.Items)
	}
	if !result.Items[0].New || result.Scored != 2 {
		t.Fatalf("expected new scored postings, got %+v", result)
	}
}

func TestRankReusesCachedMatch(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{scores: map[string]float64{"Python developer": 0.9}}
	src := &stubSource{name: "headhunter", postings: []*source.RawPosting{posting("headhunter", "1", "Python developer")}}
	p, st, profile := setup(t, backend, src)
	ctx := context.Background()

	first, err := p.Rank(ctx, profile, query())
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	second, err := p.Rank(ctx, profile, query())
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}

	if backend.Calls() != 1 {
		t.Fatalf("expected a single scorer call, got %d", backend.Calls())
	}
	item := second.Items[0]
	if item.New || !item.Cached || item.Match.Score != 0.9 || item.Posting.ID != first.Items[0].Posting.ID {
		t.Fatalf("expected cached existing posting, got %+v", item)
	}

	// A newer profile scores again.
	newer := &models.Profile{UserID: profile.UserID, Text: "go", CreatedAt: time.Now().Add(time.Hour)}
	if err := st.CreateProfile(ctx, newer); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	third, _, err := p.RankUser(ctx, profile.UserID, query())
	if err != nil {
		t.Fatalf("rank user failed: %v", err)
	}
	if backend.Calls() != 2 || third.Items[0].Cached {
		t.Fatalf("expected a rescore for the new profile, calls %d", backend.Calls())
	}
}

func TestRankScorerFallback(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{err: errors.New("quota exceeded")}
	src := &stubSource{name: "headhunter", postings: []*source.RawPosting{
		posting("headhunter", "1", "Python developer"),
		posting("headhunter", "2", "Data engineer"),
	}}
	p, _, profile := setup(t, backend, src)

	result, err := p.Rank(context.Background(), profile, query())
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected every posting, got %d", len(result.Items))
	}
	for _, item := range result.Items {
		if item.Match.Score != matching.FallbackScore || item.Match.Rationale == "" || !item.Match.Fallback {
			t.Fatalf("expected fallback match, got %+v", item.Match)
		}
	}

	// Fallback results are not cached.
	if _, err := p.Rank(context.Background(), profile, query()); err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if backend.Calls() != 4 {
		t.Fatalf("expected postings to be rescored, got %d calls", backend.Calls())
	}
}

func TestRankSourceFailureIsScoped(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{scores: map[string]float64{"Python developer": 0.7}}
	broken := &stubSource{name: "adzuna", err: errors.New("unavailable")}
	working := &stubSource{name: "headhunter", postings: []*source.RawPosting{
		posting("headhunter", "1", "Python developer"),
		posting("headhunter", "1", "Python developer"),
	}}
	duplicate := &stubSource{name: "mirror", postings: []*source.RawPosting{posting("headhunter", "1", "Python developer")}}
	p, _, profile := setup(t, backend, broken, working, duplicate)

	result, err := p.Rank(context.Background(), profile, query())
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected one deduplicated posting, got %v", titles(result.Items))
	}
	if result.Sources[0].Err == nil || result.Sources[1].Err != nil {
		t.Fatalf("unexpected reports: %+v", result.Sources)
	}
}

func TestRankPreconditions(t *testing.T) {
	t.Parallel()

	p, _, _ := setup(t, &stubBackend{})

	if _, err := p.Rank(context.Background(), nil, query()); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected profile not found, got %v", err)
	}
	if _, _, err := p.RankUser(context.Background(), "missing", query()); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected profile not found, got %v", err)
	}
	if _, err := p.Rank(context.Background(), &models.Profile{}, source.Query{}); err == nil {
		t.Fatal("expected invalid query error")
	}
}

func TestSortTieBreaks(t *testing.T) {
	t.Parallel()

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	item := func(platform, id string, score float64, discovered time.Time) models.RankedPosting {
		return models.RankedPosting{
			Posting: &models.Posting{Platform: platform, ExternalID: id, Title: platform + id, DiscoveredAt: discovered},
			Match:   models.MatchResult{Score: score},
		}
	}

	items := []models.RankedPosting{
		item("headhunter", "1", 0.5, older),
		item("adzuna", "2", 0.5, older),
		item("headhunter", "3", 0.5, newer),
		item("headhunter", "4", 0.8, older),
	}
	Sort(items)

	want := []string{"headhunter4", "headhunter3", "adzuna2", "headhunter1"}
	for i, title := range titles(items) {
		if title != want[i] {
			t.Fatalf("expected %v, got %v", want, titles(items))
		}
	}

	// Re-running the sort on a shuffled copy is stable.
	items[0], items[3] = items[3], items[0]
	Sort(items)
	for i, title := range titles(items) {
		if title != want[i] {
			t.Fatalf("expected %v after resort, got %v", want, titles(items))
		}
	}
}

func TestAboveThreshold(t *testing.T) {
	t.Parallel()

	items := []models.RankedPosting{
		{Posting: &models.Posting{Title: "a"}, Match: models.MatchResult{Score: 0.9}},
		{Posting: &models.Posting{Title: "b"}, Match: models.MatchResult{Score: 0.6}},
		{Posting: &models.Posting{Title: "c"}, Match: models.MatchResult{Score: 0.3}},
	}
	if got := titles(AboveThreshold(items, 0.6)); len(got) != 1 || got[0] != "a" {
		t.Fatalf("unexpected items: %v", got)
	}
}

func TestWithout(t *testing.T) {
	t.Parallel()

	items := []models.RankedPosting{
		{Posting: &models.Posting{ID: "1", Title: "a"}},
		{Posting: &models.Posting{ID: "2", Title: "b"}},
	}
	got := Without(items, "1")
	if names := titles(got); len(names) != 1 || names[0] != "b" {
		t.Fatalf("unexpected items: %v", names)
	}
	if len(items) != 2 {
		t.Fatal("input must not be modified")
	}
}
