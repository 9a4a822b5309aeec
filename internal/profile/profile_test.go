package profile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spigell/hh-assistant/internal/ai"
	"github.com/spigell/hh-assistant/internal/headhunter"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/store/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubAnalyzer struct {
	facts *ai.ResumeFacts
	err   error
}

func (s stubAnalyzer) AnalyzeResume(context.Context, string) (*ai.ResumeFacts, error) {
	return s.facts, s.err
}

type stubEmbedder struct {
	err error
}

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2}, nil
}

func newUser(t *testing.T, s *memory.Store) *models.User {
	t.Helper()
	u := &models.User{Email: "ivan@example.com", Active: true}
	if err := s.UpsertUser(context.Background(), u); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return u
}

func TestIngest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := memory.New()
	user := newUser(t, s)
	years := 5

	svc := New(Deps{
		Users:    s,
		Profiles: s,
		Analyzer: stubAnalyzer{facts: &ai.ResumeFacts{
			Skills:          []string{"Go", "go", " PostgreSQL ", ""},
			ExperienceYears: &years,
			Title:           "Backend developer",
			Location:        "Moscow",
		}},
		Embedder: stubEmbedder{},
	}, Config{})

	p, err := svc.Ingest(ctx, user.ID, "  Go developer with 5 years  ", "/tmp/cv.pdf", Overrides{Location: "Remote"})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	if strings.Join(p.Skills, ",") != "Go,PostgreSQL" {
		t.Fatalf("unexpected skills %v", p.Skills)
	}
	if p.DesiredTitle != "Backend developer" || p.DesiredLocation != "Remote" || *p.ExperienceYears != 5 {
		t.Fatalf("unexpected profile %+v", p)
	}
	if p.Text != "Go developer with 5 years" || p.ResumePath != "/tmp/cv.pdf" || len(p.Embedding) != 2 {
		t.Fatalf("unexpected profile %+v", p)
	}

	latest, err := s.LatestProfile(ctx, user.ID)
	if err != nil || latest.ID != p.ID {
		t.Fatalf("expected the new profile to be the latest, got %v (%v)", latest, err)
	}
}

func TestIngestDegradesWithoutAnalysis(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	core, logs := observer.New(zap.WarnLevel)
	s := memory.New()
	user := newUser(t, s)

	svc := New(Deps{
		Users:    s,
		Profiles: s,
		Analyzer: stubAnalyzer{err: errors.New("quota exceeded")},
		Embedder: stubEmbedder{err: errors.New("quota exceeded")},
		Logger:   zap.New(core),
	}, Config{})

	p, err := svc.Ingest(ctx, user.ID, "resume", "", Overrides{Skills: []string{"Go"}})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if strings.Join(p.Skills, ",") != "Go" || p.DesiredTitle != "" || p.Embedding != nil {
		t.Fatalf("unexpected profile %+v", p)
	}
	if logs.FilterMessage("resume analysis failed, storing text only").Len() != 1 {
		t.Fatalf("expected analysis warning, got %v", logs.All())
	}
}

func TestIngestErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := memory.New()
	svc := New(Deps{Users: s, Profiles: s}, Config{})

	if _, err := svc.Ingest(ctx, "u1", "   ", "", Overrides{}); !errors.Is(err, ErrEmptyResume) {
		t.Fatalf("expected ErrEmptyResume, got %v", err)
	}
	if _, err := svc.Ingest(ctx, "missing", "text", "", Overrides{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestImportHH(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/resumes/mine":
			_, _ = w.Write([]byte(`{"items":[{"id":"r1","title":"Go developer"}],"page":0,"pages":1}`))
		case "/resumes/r1":
			_, _ = w.Write([]byte(`{"id":"r1","title":"Go developer","skills":"Go and Kubernetes"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := headhunter.New(zap.NewNop(), "token")
	client.APIURL = srv.URL

	s := memory.New()
	user := newUser(t, s)
	svc := New(Deps{Users: s, Profiles: s}, Config{})

	p, err := svc.ImportHH(ctx, client, user.ID, "Go developer", Overrides{})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(p.Text, "Go developer") || !strings.Contains(p.Text, "Go and Kubernetes") {
		t.Fatalf("unexpected profile text %q", p.Text)
	}

	if _, err := svc.ImportHH(ctx, client, user.ID, "Designer", Overrides{}); !errors.Is(err, headhunter.ErrResumeNotFound) {
		t.Fatalf("expected ErrResumeNotFound, got %v", err)
	}
}

func TestReadResume(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	txt := filepath.Join(dir, "cv.txt")
	html := filepath.Join(dir, "cv.html")
	pdf := filepath.Join(dir, "cv.pdf")
	for path, body := range map[string]string{
		txt:  "  Go developer\n",
		html: "<html><head><style>p{}</style></head><body><h1>Go developer</h1><p>Kubernetes</p><script>x()</script></body></html>",
		pdf:  "%PDF",
	} {
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	if got, err := ReadResume(txt); err != nil || got != "Go developer" {
		t.Fatalf("unexpected text resume %q (%v)", got, err)
	}
	if got, err := ReadResume(html); err != nil || got != "Go developer Kubernetes" {
		t.Fatalf("unexpected html resume %q (%v)", got, err)
	}
	if _, err := ReadResume(pdf); err == nil {
		t.Fatal("expected unsupported format error")
	}
}
