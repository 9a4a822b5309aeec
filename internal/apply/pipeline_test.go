package apply_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/spigell/hh-assistant/internal/apply"
	"github.com/spigell/hh-assistant/internal/matching"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/notify/email"
	"github.com/spigell/hh-assistant/internal/ranking"
	"github.com/spigell/hh-assistant/internal/source"
	"github.com/spigell/hh-assistant/internal/store/memory"
	"github.com/spigell/hh-assistant/internal/store/storetest"
)

type boardSource struct {
	postings []*source.RawPosting
}

func (s boardSource) Name() string { return "board" }

func (s boardSource) Search(context.Context, source.Query) ([]*source.RawPosting, error) {
	return s.postings, nil
}

type titleScores struct {
	mu     sync.Mutex
	scores map[string]float64
	calls  int
}

func (b *titleScores) Score(_ context.Context, _, postingText string) (*models.MatchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	title, _, _ := strings.Cut(postingText, "\n")
	return &models.MatchResult{Score: b.scores[title], Rationale: "scored"}, nil
}

type outbox struct {
	mu   sync.Mutex
	sent []*email.Message
}

func (o *outbox) Send(_ context.Context, msg *email.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func TestRankThenApply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := memory.New()
	user, profile := storetest.Seed(t, s, "ivan@example.com")

	backend := &titleScores{scores: map[string]float64{"Go developer": 0.9, "Java developer": 0.2}}
	pipeline := ranking.New(ranking.Deps{
		Sources: []source.Source{boardSource{postings: []*source.RawPosting{
			{Platform: "board", ExternalID: "1", Title: "Java developer", Employer: "Beans"},
			{
				Platform:   "board",
				ExternalID: "2",
				Title:      "Go developer",
				Employer:   "Gophers",
				Contacts:   []models.Contact{{Email: "hr@gophers.test"}},
			},
		}}},
		Postings: s,
		Profiles: s,
		Scorer:   matching.NewScorer(backend, matching.Config{}, nil),
	}, ranking.Config{})

	q := source.QueryFromProfile(profile, 0)
	result, err := pipeline.Rank(ctx, profile, q)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	relevant := ranking.AboveThreshold(result.Items, 0.6)
	if len(relevant) != 1 || relevant[0].Posting.Title != "Go developer" {
		t.Fatalf("unexpected relevant postings: %+v", relevant)
	}

	mail := &outbox{}
	orchestrator := apply.New(apply.Deps{
		Users:        s,
		Profiles:     s,
		Postings:     s,
		Applications: s,
		Mailer:       mail,
	}, apply.Config{})

	req := apply.Request{UserID: user.ID, PostingIDs: []string{relevant[0].Posting.ID}}
	outcomes, err := orchestrator.Apply(ctx, req)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Kind != models.OutcomeSucceeded || outcomes[0].Status != models.StatusSent {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
	if len(mail.sent) != 1 || mail.sent[0].To != "hr@gophers.test" {
		t.Fatalf("unexpected emails: %+v", mail.sent)
	}
	if !strings.Contains(mail.sent[0].Body, "Gophers") {
		t.Fatalf("template letter should name the employer: %q", mail.sent[0].Body)
	}

	again, err := orchestrator.Apply(ctx, req)
	if err != nil {
		t.Fatalf("apply again: %v", err)
	}
	if again[0].Kind != models.OutcomeAlreadyApplied || len(mail.sent) != 1 {
		t.Fatalf("second apply must be a no-op: %+v", again)
	}

	rerun, err := pipeline.Rank(ctx, profile, q)
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if backend.calls != 2 {
		t.Fatalf("cached matches must not be rescored, scorer called %d times", backend.calls)
	}
	for _, item := range rerun.Items {
		if item.New || !item.Cached {
			t.Fatalf("expected a stored, cached item: %+v", item)
		}
	}
}
