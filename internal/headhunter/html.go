package headhunter

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/spigell/hh-assistant/internal/utils"
)

const maxRequirementsRunes = 1000

var (
	requirementsStart = []string{"требования", "требуется", "ожидаем", "навыки", "requirements", "what we expect"}
	requirementsStop  = []string{"условия", "предлагаем", "обязанности", "задачи", "responsibilities", "we offer", "benefits"}
)

// htmlToText renders vacancy HTML as plain text with one block element per line.
func htmlToText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}

	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("li").PrependHtml("- ")
	doc.Find("p, li, div, h1, h2, h3, h4, ul, ol").AppendHtml("\n")

	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// extractRequirements returns the lines of the requirements section of a description.
func extractRequirements(text string) string {
	var (
		section []string
		inside  bool
	)

	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		switch {
		case containsAny(lower, requirementsStop) && inside:
			inside = false
		case !inside && containsAny(lower, requirementsStart) && len([]rune(line)) < 60:
			inside = true
		case inside:
			section = append(section, line)
		}
	}

	return utils.Prefix(strings.Join(section, "\n"), maxRequirementsRunes)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
