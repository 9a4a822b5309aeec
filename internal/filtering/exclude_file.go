package filtering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/source"
)

type ExcludedPostings struct {
	Items []*ExcludedPosting
}

type ExcludedPosting struct {
	Platform     string
	ID           string
	URL          string
	EmployerName string
	ExcludedAt   time.Time
}

// ToExcluded records postings for the exclude file.
func ToExcluded(postings []*models.Posting) *ExcludedPostings {
	excluded := &ExcludedPostings{}
	for _, p := range postings {
		excluded.Items = append(excluded.Items, &ExcludedPosting{
			Platform:     p.Platform,
			ID:           p.ExternalID,
			URL:          p.URL,
			EmployerName: p.Employer,
			ExcludedAt:   time.Now().UTC(),
		})
	}
	return excluded
}

// GetExcludedPostingsFromFile reads the exclude file. A missing or empty file is an empty list.
func GetExcludedPostingsFromFile(path string) (*ExcludedPostings, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ExcludedPostings{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedPostings{}, nil
	}

	var excluded ExcludedPostings
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

func (e *ExcludedPostings) Append(s *ExcludedPostings) {
	e.Items = append(e.Items, s.Items...)
}

// Keys returns platform:id keys. Entries without a platform are hh.ru vacancies.
func (e *ExcludedPostings) Keys() map[string]struct{} {
	keys := make(map[string]struct{}, len(e.Items))
	for _, item := range e.Items {
		platform := item.Platform
		if platform == "" {
			platform = "headhunter"
		}
		keys[platform+":"+item.ID] = struct{}{}
	}
	return keys
}

func (e *ExcludedPostings) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

type excludeFileFilter struct {
	toggle
	path string
}

// NewExcludeFile creates a filter that removes postings listed in the exclude file.
func NewExcludeFile(path string) Filter {
	return &excludeFileFilter{path: path}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Apply(_ context.Context, postings []*source.RawPosting) ([]*source.RawPosting, Step, error) {
	if f.path == "" {
		return postings, Step{Initial: len(postings), Left: len(postings)}, nil
	}

	excluded, err := GetExcludedPostingsFromFile(f.path)
	if err != nil {
		return postings, Step{}, fmt.Errorf("getting excluded postings from file: %w", err)
	}

	keys := excluded.Keys()
	kept, step := exclude(postings, func(p *source.RawPosting) bool {
		_, ok := keys[p.Key()]
		return ok
	})
	return kept, step, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
