package gemini

import (
	"context"
	"errors"
	"math"
	"strings"

	_ "embed"

	"github.com/spigell/hh-assistant/internal/ai"
)

//go:embed resume_prompt.md
var resumeTemplate string

// ResumeAnalyzer extracts structured facts from resume text.
type ResumeAnalyzer struct {
	generator contentGenerator
}

func NewResumeAnalyzer(generator contentGenerator) *ResumeAnalyzer {
	return &ResumeAnalyzer{generator: generator}
}

func (a *ResumeAnalyzer) AnalyzeResume(ctx context.Context, text string) (*ai.ResumeFacts, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("resume text is required")
	}

	prompt := strings.ReplaceAll(resumeTemplate, "{{RESUME}}", strings.TrimSpace(text))

	raw, err := a.generator.GenerateContent(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	data, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	facts := &ai.ResumeFacts{
		Skills:            coerceStrings(data["skills"]),
		Title:             firstString(data, "position_title", "title"),
		Location:          coerceString(data["location"]),
		SalaryExpectation: coerceString(data["salary_expectation"]),
	}

	if years := coerceFloat(data["experience_years"]); !math.IsNaN(years) && years >= 0 {
		y := int(math.Round(years))
		facts.ExperienceYears = &y
	}

	return facts, nil
}
