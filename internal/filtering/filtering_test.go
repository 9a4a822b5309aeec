package filtering

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spigell/hh-assistant/internal/headhunter"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/source"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func raw(platform, id string) *source.RawPosting {
	return &source.RawPosting{Platform: platform, ExternalID: id, Title: "Go developer"}
}

func keys(postings []*source.RawPosting) []string {
	out := make([]string, 0, len(postings))
	for _, p := range postings {
		out = append(out, p.Key())
	}
	return out
}

type stubNegotiations struct {
	ids []string
	err error
}

func (s stubNegotiations) GetNegotiations(context.Context) (headhunter.Negotiations, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(headhunter.Negotiations, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, &headhunter.Negotiation{Vacancy: &headhunter.Vacancy{ID: id}})
	}
	return out, nil
}

func TestFilters(t *testing.T) {
	t.Parallel()

	withTest := raw("headhunter", "1")
	withTest.RequiresTest = true

	byEmployer := raw("headhunter", "2")
	byEmployer.Employer = "Evil Corp"

	byEmployerID := raw("headhunter", "3")
	byEmployerID.EmployerID = "42"

	flagged := raw("adzuna", "4")
	flagged.Description = "Unpaid internship, MLM opportunity"

	applied := raw("headhunter", "5")
	foreign := raw("adzuna", "5")
	clean := raw("headhunter", "6")

	input := []*source.RawPosting{withTest, byEmployer, byEmployerID, flagged, applied, foreign, clean}

	f := New([]Filter{
		NewWithTest(),
		NewExcludedEmployers([]string{"evil corp", "42"}),
		NewRedFlags([]string{"MLM"}),
		NewAppliedHistory(stubNegotiations{ids: []string{"5"}}),
	}, nil)

	got := keys(f.Run(context.Background(), input))
	want := []string{"adzuna:5", "headhunter:6"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRunSkipsFailingStep(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	f := New([]Filter{
		NewAppliedHistory(stubNegotiations{err: errors.New("unauthorized")}),
		NewWithTest(),
	}, zap.New(core))

	input := []*source.RawPosting{raw("headhunter", "1"), raw("headhunter", "2")}
	if got := f.Run(context.Background(), input); len(got) != 2 {
		t.Fatalf("expected postings to pass through, got %v", keys(got))
	}
	if logs.FilterMessage("filter step failed, skipping").Len() != 1 {
		t.Fatalf("expected a warning, got %v", logs.All())
	}
}

func TestDisabledFilterIsSkipped(t *testing.T) {
	t.Parallel()

	f := New([]Filter{NewRedFlags([]string{"go"})}, nil)
	f.DisableByName("red_flags", "flag")

	if got := f.Run(context.Background(), []*source.RawPosting{raw("adzuna", "1")}); len(got) != 1 {
		t.Fatalf("expected posting to be kept, got %v", keys(got))
	}

	statuses := f.Describe()
	if len(statuses) != 1 || statuses[0].Enabled {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}
}

func TestExcludeFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "excluded.json")

	// A missing file excludes nothing.
	f := New([]Filter{NewExcludeFile(path)}, nil)
	input := []*source.RawPosting{raw("headhunter", "1"), raw("adzuna", "1"), raw("headhunter", "2")}
	if got := f.Run(context.Background(), input); len(got) != 3 {
		t.Fatalf("expected all postings, got %v", keys(got))
	}

	excluded, err := GetExcludedPostingsFromFile(path)
	if err != nil {
		t.Fatalf("read exclude file: %v", err)
	}
	excluded.Append(ToExcluded([]*models.Posting{{Platform: "headhunter", ExternalID: "1"}}))
	excluded.Append(&ExcludedPostings{Items: []*ExcludedPosting{{ID: "2"}}})
	if err := excluded.ToFile(path); err != nil {
		t.Fatalf("write exclude file: %v", err)
	}

	got := keys(f.Run(context.Background(), input))
	if !reflect.DeepEqual(got, []string{"adzuna:1"}) {
		t.Fatalf("unexpected postings: %v", got)
	}
}
