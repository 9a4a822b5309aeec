package digest

import (
	"strings"

	"github.com/spigell/hh-assistant/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var numbers = message.NewPrinter(language.English)

// FormatSalary renders a salary range with thousands separators.
// An empty string means there is nothing to show.
func FormatSalary(s models.Salary) string {
	currency := strings.TrimSpace(s.Currency)
	suffix := ""
	if currency != "" {
		suffix = " " + currency
	}

	switch {
	case s.From != nil && s.To != nil:
		return numbers.Sprintf("%d - %d", *s.From, *s.To) + suffix
	case s.From != nil:
		return numbers.Sprintf("from %d", *s.From) + suffix
	case s.To != nil:
		return numbers.Sprintf("up to %d", *s.To) + suffix
	default:
		return ""
	}
}
