package gemini

import (
	"strings"
	"unicode"
)

const (
	maxUserInstructionRunes = 500
	maxOverrideRunes        = 200

	noneValue   = "none"
	defaultTone = "Friendly"
)

// PromptOverrides carries user-supplied hints injected into the prompt templates.
// All values are sanitized before use.
type PromptOverrides struct {
	ExtraCriteria     string `mapstructure:"extra-criteria"`
	DealBreakers      string `mapstructure:"deal-breakers"`
	CustomKeywords    string `mapstructure:"custom-keywords"`
	Tone              string `mapstructure:"tone"`
	RegionConstraints string `mapstructure:"region-constraints"`
	UserInstructions  string `mapstructure:"user-instructions"`
}

// sanitizeLine collapses whitespace into single spaces and neutralizes section brackets.
func sanitizeLine(s string) string {
	s = strings.NewReplacer("[", "(", "]", ")").Replace(s)
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	return truncateRunes(s, maxOverrideRunes)
}

func lineOrDefault(s, fallback string) string {
	if cleaned := sanitizeLine(s); cleaned != "" {
		return cleaned
	}
	return fallback
}

// keywordList normalizes comma separated keywords to "a, b, c".
func keywordList(s string) string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if cleaned := sanitizeLine(part); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	if len(out) == 0 {
		return noneValue
	}
	return strings.Join(out, ", ")
}

// instructionsBlock renders free-form instructions as an indented list, one entry per line.
// The total amount of instruction text is capped.
func instructionsBlock(s string) string {
	budget := maxUserInstructionRunes
	var lines []string
	for _, raw := range strings.Split(s, "\n") {
		if budget <= 0 {
			break
		}
		line := sanitizeLineUnbounded(raw)
		if line == "" {
			continue
		}
		line = truncateRunes(line, budget)
		budget -= len([]rune(line))
		lines = append(lines, "  - "+line)
	}
	if len(lines) == 0 {
		return "  - " + noneValue
	}
	return strings.Join(lines, "\n")
}

func sanitizeLineUnbounded(s string) string {
	s = strings.NewReplacer("[", "(", "]", ")").Replace(s)
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
