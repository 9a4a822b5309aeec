package digest

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// writer builds a body for one target and keeps it within MaxBodyRunes.
type writer struct {
	target Target
	lines  []string
}

func newWriter(target Target) *writer {
	return &writer{target: target}
}

func (w *writer) format() string {
	if w.target == TargetChat {
		return FormatMarkdown
	}
	return ""
}

// plain escapes s for the target.
func (w *writer) plain(s string) string {
	if w.target == TargetChat {
		return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
	}
	return s
}

// b renders s in bold.
func (w *writer) b(s string) string {
	if w.target == TargetChat {
		return "*" + w.plain(s) + "*"
	}
	return s
}

func (w *writer) bold(s string) { w.lines = append(w.lines, w.b(s)) }

func (w *writer) text(s string) { w.lines = append(w.lines, w.plain(s)) }

func (w *writer) blank() { w.lines = append(w.lines, "") }

// line joins a plain prefix with already rendered parts.
func (w *writer) line(prefix string, rendered ...string) {
	w.lines = append(w.lines, w.plain(prefix)+strings.Join(rendered, ""))
}

func (w *writer) String() string {
	body := strings.TrimSpace(strings.Join(w.lines, "\n"))
	return w.bound(body)
}

func (w *writer) bound(body string) string {
	runes := []rune(body)
	if len(runes) <= MaxBodyRunes {
		return body
	}

	ellipsis := "..."
	if w.target != TargetChat {
		return string(runes[:MaxBodyRunes-len(ellipsis)]) + ellipsis
	}

	ellipsis = `\.\.\.`
	// one rune is kept free for closing a bold span
	cut := runes[:MaxBodyRunes-len([]rune(ellipsis))-1]
	return string(dropDangling(cut)) + ellipsis
}

// dropDangling removes a trailing unpaired escape and closes an open bold span
// so a cut MarkdownV2 body stays parseable.
func dropDangling(runes []rune) []rune {
	trailing := 0
	for i := len(runes) - 1; i >= 0 && runes[i] == '\\'; i-- {
		trailing++
	}
	if trailing%2 == 1 {
		runes = runes[:len(runes)-1]
	}

	open := false
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\\':
			i++
		case '*':
			open = !open
		}
	}
	if open {
		runes = append(runes, '*')
	}
	return runes
}

// Plain undoes the chat markup of a body rendered in format.
// Bodies in any other format are returned unchanged.
func Plain(body, format string) string {
	if format != FormatMarkdown {
		return body
	}

	runes := []rune(body)
	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\\' && i+1 < len(runes) {
			i++
			b.WriteRune(runes[i])
			continue
		}
		if r == '*' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
