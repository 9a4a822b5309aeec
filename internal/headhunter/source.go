package headhunter

import (
	"context"
	"strings"

	"github.com/spigell/hh-assistant/internal/source"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// Moscow.
	DefaultArea = 1

	defaultDetailWorkers = 4
)

// SourceConfig tunes the hh.ru posting source.
type SourceConfig struct {
	// Areas maps lower-cased location names to hh.ru area ids.
	Areas         map[string]int `mapstructure:"areas"`
	DefaultArea   int            `mapstructure:"default-area"`
	FetchDetails  bool           `mapstructure:"fetch-details"`
	DetailWorkers int            `mapstructure:"detail-workers"`
	SearchField   string         `mapstructure:"search-field"`
	Period        uint           `mapstructure:"period"`
}

// Source searches hh.ru vacancies.
type Source struct {
	client *Client
	cfg    SourceConfig
	logger *zap.Logger
}

var _ source.Source = (*Source)(nil)

func NewSource(client *Client, cfg SourceConfig, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultArea == 0 {
		cfg.DefaultArea = DefaultArea
	}
	if cfg.DetailWorkers <= 0 {
		cfg.DetailWorkers = defaultDetailWorkers
	}
	areas := make(map[string]int, len(cfg.Areas))
	for name, id := range cfg.Areas {
		areas[strings.ToLower(strings.TrimSpace(name))] = id
	}
	cfg.Areas = areas

	return &Source{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("source", Platform)),
	}
}

func (s *Source) Name() string {
	return Platform
}

// Search runs a vacancy search and optionally enriches each result with its details.
// A failed detail fetch keeps the search summary. Cancellation during the detail
// phase returns what has been fetched so far.
func (s *Source) Search(ctx context.Context, q source.Query) ([]*source.RawPosting, error) {
	params := s.params(q)

	maxPages := (q.Limit + params.PerPage - 1) / params.PerPage
	vacancies, err := s.client.Search(ctx, params, maxPages)
	if err != nil {
		return nil, err
	}

	items := vacancies.Items
	if len(items) > q.Limit {
		items = items[:q.Limit]
	}

	if s.cfg.FetchDetails {
		items = s.details(ctx, items)
	}

	postings := make([]*source.RawPosting, 0, len(items))
	for _, v := range items {
		if v == nil || v.Archived {
			continue
		}
		postings = append(postings, v.Raw())
	}

	return postings, nil
}

func (s *Source) params(q source.Query) *SearchParams {
	perPage := q.Limit
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}

	area := s.cfg.DefaultArea
	if q.Location != "" {
		if id, ok := s.cfg.Areas[strings.ToLower(q.Location)]; ok {
			area = id
		}
	}

	return &SearchParams{
		Text:           q.Text(),
		Areas:          []int{area},
		PerPage:        perPage,
		Experience:     experienceID(q.Experience),
		Salary:         q.SalaryFloor,
		OnlyWithSalary: q.SalaryFloor > 0,
		SearchField:    s.cfg.SearchField,
		Period:         s.cfg.Period,
	}
}

func (s *Source) details(ctx context.Context, items []*Vacancy) []*Vacancy {
	out := make([]*Vacancy, len(items))
	copy(out, items)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DetailWorkers)

	for i, item := range items {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			full, err := s.client.GetVacancy(gctx, item.ID)
			if err != nil {
				s.logger.Warn("fetching vacancy details failed, keeping summary",
					zap.String("vacancy_id", item.ID),
					zap.Error(err),
				)
				return nil
			}
			out[i] = full
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		s.logger.Warn("detail fetch interrupted", zap.Error(ctx.Err()))
	}

	return out
}
