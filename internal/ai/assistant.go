// Package ai declares the language-model backed capabilities used by the pipeline.
package ai

import (
	"context"

	"github.com/spigell/hh-assistant/internal/models"
)

// Scorer rates how well a profile fits a posting. Implementations may fail;
// callers decide how to degrade.
type Scorer interface {
	Score(ctx context.Context, profileText, postingText string) (*models.MatchResult, error)
}

type CoverLetterWriter interface {
	WriteCoverLetter(ctx context.Context, profileText, postingText, employer string) (string, error)
}

// ResumeFacts are the structured facts extracted from resume text.
type ResumeFacts struct {
	Skills            []string
	ExperienceYears   *int
	Title             string
	Location          string
	SalaryExpectation string
}

type ResumeAnalyzer interface {
	AnalyzeResume(ctx context.Context, text string) (*ResumeFacts, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
