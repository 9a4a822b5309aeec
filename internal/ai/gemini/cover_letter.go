package gemini

import (
	"context"
	"errors"
	"strings"

	_ "embed"

	"go.uber.org/zap"
)

//go:embed cover_letter_prompt.md
var coverLetterTemplate string

type CoverLetterWriter struct {
	generator contentGenerator
	logger    *zap.Logger
	overrides PromptOverrides
}

func NewCoverLetterWriter(generator contentGenerator, logger *zap.Logger) *CoverLetterWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoverLetterWriter{generator: generator, logger: logger}
}

func (w *CoverLetterWriter) SetPromptOverrides(o PromptOverrides) {
	w.overrides = o
}

func (w *CoverLetterWriter) WriteCoverLetter(ctx context.Context, profileText, postingText, employer string) (string, error) {
	employer = strings.TrimSpace(employer)
	if employer == "" {
		employer = "the company"
	}

	prompt := strings.NewReplacer(
		"{{EMPLOYER}}", sanitizeLine(employer),
		"{{TONE}}", lineOrDefault(w.overrides.Tone, defaultTone),
		"{{USER_INSTRUCTIONS}}", instructionsBlock(w.overrides.UserInstructions),
		"{{PROFILE}}", strings.TrimSpace(profileText),
		"{{POSTING}}", strings.TrimSpace(postingText),
	).Replace(coverLetterTemplate)

	raw, err := w.generator.GenerateContent(ctx, systemPrompt, prompt)
	if err != nil {
		return "", err
	}

	letter := stripFences(raw)
	if letter == "" {
		return "", errors.New("gemini returned an empty cover letter")
	}

	w.logger.Debug("cover letter generated", zap.Int("length", len([]rune(letter))))
	return letter, nil
}
