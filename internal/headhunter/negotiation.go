package headhunter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/spigell/hh-assistant/internal/models"
	"go.uber.org/zap"
)

const (
	apiNegotiationPath        = "/negotiations"
	allStatusesExceptArchived = "non_archived"
)

type Negotiations []*Negotiation

type Negotiation struct {
	ID        string
	CreatedAt string `json:"created_at" mapstructure:"created_at"`
	URL       string
	Vacancy   *Vacancy
}

// GetNegotiations returns every non-archived negotiation of the token owner.
func (c *Client) GetNegotiations(ctx context.Context) (Negotiations, error) {
	apiURLMineNegotiations := fmt.Sprintf("%s%s", c.APIURL, apiNegotiationPath)

	q := url.Values{}
	// We never need our archived negotiations
	q.Add("status", allStatusesExceptArchived)
	q.Add("per_page", strconv.Itoa(maxPerPage))

	items, err := c.GetItems(ctx, apiURLMineNegotiations, q, 0)
	if err != nil {
		return nil, err
	}

	var negotiations Negotiations
	if err = mapstructure.Decode(items, &negotiations); err != nil {
		return nil, err
	}

	return negotiations, nil
}

func (n Negotiations) VacanciesIDs() []string {
	ids := make([]string, 0, len(n))

	for _, v := range n {
		if v.Vacancy != nil {
			ids = append(ids, v.Vacancy.ID)
		}
	}

	return ids
}

func (c *Client) postNegotiation(ctx context.Context, resume, vacancy, message string) error {
	apiURLMineNegotiations := fmt.Sprintf("%s%s", c.APIURL, apiNegotiationPath)

	data := map[string]string{
		"resume_id":  resume,
		"vacancy_id": vacancy,
		"message":    message,
	}

	return c.postFormData(ctx, apiURLMineNegotiations, data)
}

var ErrResumeNotFound = errors.New("resume not found")

// Applier responds to hh.ru vacancies with the resume titled ResumeTitle.
type Applier struct {
	client      *Client
	resumeTitle string
	logger      *zap.Logger

	once     sync.Once
	resumeID string
	err      error
}

func NewApplier(client *Client, resumeTitle string, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		client:      client,
		resumeTitle: resumeTitle,
		logger:      logger,
	}
}

func (a *Applier) Platform() string {
	return Platform
}

// Apply creates a negotiation for the posting. The resume id is resolved once.
func (a *Applier) Apply(ctx context.Context, posting *models.Posting, letter string) error {
	if posting.Platform != Platform {
		return fmt.Errorf("posting %s is not from %s", posting.Key(), Platform)
	}

	a.once.Do(func() {
		a.resumeID, a.err = a.resolveResume(ctx)
	})
	if a.err != nil {
		return a.err
	}

	if err := a.client.postNegotiation(ctx, a.resumeID, posting.ExternalID, letter); err != nil {
		return fmt.Errorf("apply to vacancy %s: %w", posting.ExternalID, err)
	}

	a.logger.Info("successfully applied to vacancy",
		zap.String("vacancy_id", posting.ExternalID),
		zap.String("vacancy_name", posting.Title),
	)
	return nil
}

func (a *Applier) resolveResume(ctx context.Context) (string, error) {
	resumes, err := a.client.GetMineResumes(ctx)
	if err != nil {
		return "", fmt.Errorf("getting mine resumes: %w", err)
	}

	resume := resumes.FindByTitle(a.resumeTitle)
	if resume == nil {
		a.logger.Error("resume with given title not found",
			zap.Strings("existed resumes titles", resumes.Titles()),
			zap.String("resume title", a.resumeTitle),
		)
		return "", fmt.Errorf("%w: %q", ErrResumeNotFound, a.resumeTitle)
	}
	return resume.ID, nil
}
