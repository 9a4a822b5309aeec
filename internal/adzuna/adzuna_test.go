package adzuna

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/source"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := New(Config{AppID: "id", AppKey: "key", Country: "GB"}, nil)
	s.BaseURL = srv.URL
	s.HTTPClient = srv.Client()
	return s
}

func TestSearch(t *testing.T) {
	t.Parallel()

	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gb/search/1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("what") != "go developer" || q.Get("where") != "London" || q.Get("results_per_page") != "5" || q.Get("salary_min") != "50000" {
			t.Errorf("unexpected query %v", q)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"count": 2,
			"results": []any{
				map[string]any{
					"id": "a1", "title": "Senior Go Developer", "description": "Go and Kubernetes",
					"salary_min": 60000.4, "salary_max": 80000,
					"redirect_url": "https://adzuna.test/a1", "created": "2024-05-01T10:00:00Z",
					"contract_time": "full_time",
					"company":       map[string]any{"display_name": "Acme"},
					"location":      map[string]any{"display_name": "London"},
				},
				map[string]any{"id": "a2", "title": "Go Engineer", "company": map[string]any{"display_name": "Beta"}},
			},
		})
	})

	postings, err := s.Search(context.Background(), source.Query{
		Keywords: []string{"go", "developer"}, Location: "London", SalaryFloor: 50000, Limit: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(postings) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(postings))
	}

	first := postings[0]
	if first.Platform != Platform || first.ExternalID != "a1" || first.Employer != "Acme" {
		t.Fatalf("unexpected posting %+v", first)
	}
	if *first.SalaryFrom != 60000 || *first.SalaryTo != 80000 || first.Currency != "GBP" {
		t.Fatalf("unexpected salary %+v", first)
	}
	if first.Experience != models.TierSenior || first.EmploymentType != "full time" || first.PublishedAt == nil {
		t.Fatalf("unexpected details %+v", first)
	}
	if postings[1].Currency != "" || postings[1].SalaryFrom != nil {
		t.Fatalf("expected no salary, got %+v", postings[1])
	}
}

func TestSearchPagesUntilLimit(t *testing.T) {
	t.Parallel()

	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		results := make([]any, 0, 50)
		for i := 0; i < 50; i++ {
			results = append(results, map[string]any{"id": fmt.Sprintf("%s-%d", r.URL.Path, i), "title": "Go"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	})

	postings, err := s.Search(context.Background(), source.Query{Keywords: []string{"go"}, Limit: 120})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(postings) != 120 {
		t.Fatalf("expected 120 postings, got %d", len(postings))
	}
	if !strings.HasPrefix(postings[119].ExternalID, "/gb/search/3") {
		t.Fatalf("expected the third page to be used, got %s", postings[119].ExternalID)
	}
}

func TestSearchErrors(t *testing.T) {
	t.Parallel()

	s := newTestSource(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	_, err := s.Search(context.Background(), source.Query{Keywords: []string{"go"}, Limit: 5})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestSearchWithoutCredentials(t *testing.T) {
	t.Parallel()

	postings, err := New(Config{}, nil).Search(context.Background(), source.Query{Keywords: []string{"go"}, Limit: 5})
	if err != nil || postings != nil {
		t.Fatalf("expected empty result, got %v %v", postings, err)
	}
}
