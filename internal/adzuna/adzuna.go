// Package adzuna is a posting source backed by the Adzuna public search API.
package adzuna

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/source"
	"github.com/spigell/hh-assistant/internal/utils"
	"go.uber.org/zap"
)

const (
	Platform = "adzuna"

	baseURL     = "https://api.adzuna.com/v1/api/jobs"
	maxPageSize = 50
	maxPages    = 3
	httpTimeout = 15 * time.Second
)

var currencies = map[string]string{
	"gb": "GBP",
	"us": "USD",
	"de": "EUR",
	"fr": "EUR",
	"nl": "EUR",
	"pl": "PLN",
	"in": "INR",
}

type Config struct {
	AppID   string `mapstructure:"app-id"`
	AppKey  string `mapstructure:"app-key"`
	Country string `mapstructure:"country"`
}

// Source fetches postings from Adzuna. Missing credentials make every search
// return an empty result.
type Source struct {
	appID   string
	appKey  string
	country string
	logger  *zap.Logger

	HTTPClient *http.Client
	BaseURL    string
}

var _ source.Source = (*Source)(nil)

func New(cfg Config, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	country := strings.ToLower(strings.TrimSpace(cfg.Country))
	if country == "" {
		country = "gb"
	}
	return &Source{
		appID:      cfg.AppID,
		appKey:     cfg.AppKey,
		country:    country,
		logger:     logger.With(zap.String("source", Platform)),
		HTTPClient: &http.Client{Timeout: httpTimeout},
		BaseURL:    baseURL,
	}
}

func (s *Source) Name() string {
	return Platform
}

type response struct {
	Results []result `json:"results"`
	Count   int      `json:"count"`
}

type result struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	SalaryMin   float64 `json:"salary_min"`
	SalaryMax   float64 `json:"salary_max"`
	RedirectURL string  `json:"redirect_url"`
	Created     string  `json:"created"`
	// contract_type is permanent/contract, contract_time is full_time/part_time.
	ContractType string `json:"contract_type"`
	ContractTime string `json:"contract_time"`
	Company      struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
}

// Search pages through results until the limit, an empty page or the page cap.
func (s *Source) Search(ctx context.Context, q source.Query) ([]*source.RawPosting, error) {
	if s.appID == "" || s.appKey == "" {
		s.logger.Warn("adzuna credentials are not set, skipping search")
		return nil, nil
	}

	pageSize := min(q.Limit, maxPageSize)
	if pageSize <= 0 {
		pageSize = maxPageSize
	}

	var postings []*source.RawPosting
	for page := 1; page <= maxPages && len(postings) < q.Limit; page++ {
		batch, err := s.fetchPage(ctx, q, page, pageSize)
		if err != nil {
			if len(postings) > 0 {
				s.logger.Warn("adzuna page failed, returning partial results", zap.Int("page", page), zap.Error(err))
				break
			}
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		postings = append(postings, batch...)
		if len(batch) < pageSize {
			break
		}
	}

	if len(postings) > q.Limit {
		postings = postings[:q.Limit]
	}
	return postings, nil
}

func (s *Source) fetchPage(ctx context.Context, q source.Query, page, pageSize int) ([]*source.RawPosting, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", s.BaseURL, s.country, page)

	params := url.Values{}
	params.Set("app_id", s.appID)
	params.Set("app_key", s.appKey)
	params.Set("results_per_page", strconv.Itoa(pageSize))
	params.Set("what", q.Text())
	if q.Location != "" {
		params.Set("where", q.Location)
	}
	if q.SalaryFloor > 0 {
		params.Set("salary_min", strconv.Itoa(q.SalaryFloor))
	}
	params.Set("sort_by", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adzuna returned %d: %s", resp.StatusCode, utils.TruncateForLog(string(body), 200))
	}

	var apiResp response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	postings := make([]*source.RawPosting, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		postings = append(postings, s.raw(r))
	}
	return postings, nil
}

func (s *Source) raw(r result) *source.RawPosting {
	raw := &source.RawPosting{
		Platform:       Platform,
		ExternalID:     r.ID,
		Title:          r.Title,
		Employer:       r.Company.DisplayName,
		Description:    r.Description,
		URL:            r.RedirectURL,
		Location:       r.Location.DisplayName,
		EmploymentType: strings.TrimSpace(strings.ReplaceAll(r.ContractTime+" "+r.ContractType, "_", " ")),
		Experience:     tierFromTitle(r.Title),
	}

	if r.SalaryMin > 0 {
		v := int(math.Round(r.SalaryMin))
		raw.SalaryFrom = &v
	}
	if r.SalaryMax > 0 {
		v := int(math.Round(r.SalaryMax))
		raw.SalaryTo = &v
	}
	if raw.SalaryFrom != nil || raw.SalaryTo != nil {
		raw.Currency = currencies[s.country]
	}

	if created, err := time.Parse(time.RFC3339, r.Created); err == nil {
		raw.PublishedAt = &created
	}

	return raw
}

// Adzuna has no experience facet; the title is the only hint.
func tierFromTitle(title string) models.ExperienceTier {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "junior"), strings.Contains(t, "graduate"), strings.Contains(t, "intern"):
		return models.TierJunior
	case strings.Contains(t, "senior"), strings.Contains(t, "lead"), strings.Contains(t, "principal"):
		return models.TierSenior
	default:
		return ""
	}
}
