package gemini

import (
	"context"
	"errors"
	"math"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/utils"
	"go.uber.org/zap"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

var (
	//go:embed system.md
	systemPrompt string
	//go:embed match_prompt.md
	matchTemplate string
)

const defaultMaxLogLength = 200

// Matcher scores a profile against a posting with Gemini.
type Matcher struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
	overrides PromptOverrides
}

func NewMatcher(generator contentGenerator, maxLogLength int, logger *zap.Logger) *Matcher {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Matcher{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (m *Matcher) SetPromptOverrides(o PromptOverrides) {
	m.overrides = o
}

func (m *Matcher) Score(ctx context.Context, profileText, postingText string) (*models.MatchResult, error) {
	if strings.TrimSpace(profileText) == "" {
		return nil, errors.New("profile text is required")
	}
	if strings.TrimSpace(postingText) == "" {
		return nil, errors.New("posting text is required")
	}

	prompt := m.buildPrompt(profileText, postingText)

	m.logger.Debug("gemini match request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, m.maxLogLen)),
	)

	raw, err := m.generator.GenerateContent(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("gemini match response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, m.maxLogLen)),
	)

	return parseMatch(raw)
}

func (m *Matcher) buildPrompt(profileText, postingText string) string {
	o := m.overrides
	return strings.NewReplacer(
		"{{EXTRA_CRITERIA}}", lineOrDefault(o.ExtraCriteria, noneValue),
		"{{DEAL_BREAKERS}}", lineOrDefault(o.DealBreakers, noneValue),
		"{{CUSTOM_KEYWORDS}}", keywordList(o.CustomKeywords),
		"{{REGION_CONSTRAINTS}}", lineOrDefault(o.RegionConstraints, noneValue),
		"{{USER_INSTRUCTIONS}}", instructionsBlock(o.UserInstructions),
		"{{PROFILE}}", strings.TrimSpace(profileText),
		"{{POSTING}}", strings.TrimSpace(postingText),
	).Replace(matchTemplate)
}

func parseMatch(raw string) (*models.MatchResult, error) {
	data, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		return nil, errors.New("gemini response has no numeric score")
	}
	// Some answers come back on a 0-100 scale.
	if score > 1 && score <= 100 {
		score /= 100
	}

	return &models.MatchResult{
		Score:        score,
		Rationale:    firstString(data, "rationale", "analysis", "reason"),
		MatchingTags: coerceStrings(data["matching_skills"]),
		MissingTags:  coerceStrings(data["missing_skills"]),
	}, nil
}
