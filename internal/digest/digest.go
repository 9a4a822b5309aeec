// Package digest renders ranked postings and application results as notifications.
// Rendering is pure: nothing here talks to storage or the network.
package digest

import (
	"fmt"
	"math"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/utils"
)

const (
	MaxChoices     = 10
	MaxLabelRunes  = 30
	MaxBodyRunes   = 4096
	topInBody      = 3
	selectPrefix   = "select:"
	ApplyAction    = "apply"
	FormatMarkdown = tgbotapi.ModeMarkdownV2
)

type Target int

const (
	// TargetChat renders Telegram MarkdownV2.
	TargetChat Target = iota
	TargetPlain
)

// Payload keys of a jobs notification.
const (
	PayloadPostingIDs = "posting_ids"
	PayloadTotal      = "total"
	PayloadOverflow   = "overflow"
)

type Config struct {
	// ViewAllURL adds a link button to the jobs list when set.
	ViewAllURL string `mapstructure:"view-all-url" validate:"omitempty,url"`
}

type Composer struct {
	cfg Config
}

func New(cfg Config) *Composer {
	return &Composer{cfg: cfg}
}

// SelectData is the callback payload that toggles a posting.
func SelectData(postingID string) string {
	return selectPrefix + postingID
}

// ParseSelect extracts the posting id from a toggle callback.
func ParseSelect(data string) (string, bool) {
	id, ok := strings.CutPrefix(data, selectPrefix)
	return id, ok && id != ""
}

// JobsFound lists the postings found for a user. At most MaxChoices postings
// become selectable; the rest are reported as an overflow count.
func (c *Composer) JobsFound(userID string, ranked []models.RankedPosting, target Target) *models.Notification {
	w := newWriter(target)

	n := &models.Notification{
		UserID: userID,
		Type:   models.NotificationJobsFound,
		Format: w.format(),
	}
	if len(ranked) == 0 {
		n.Title = "No new jobs found"
		n.Body = w.plain(n.Title)
		return n
	}

	n.Title = fmt.Sprintf("Found %d new %s", len(ranked), plural(len(ranked), "job", "jobs"))
	w.bold(n.Title)
	w.blank()

	for i, item := range ranked[:min(topInBody, len(ranked))] {
		p := item.Posting
		w.line(fmt.Sprintf("%d. ", i+1), w.b(p.Title))
		employer := p.Employer
		if salary := FormatSalary(p.Salary); salary != "" {
			employer += " (" + salary + ")"
		}
		w.text(employer)
		w.text(fmt.Sprintf("Match: %d%%", percent(item.Match.Score)))
		if p.URL != "" {
			w.text(p.URL)
		}
		w.blank()
	}
	if rest := len(ranked) - topInBody; rest > 0 {
		w.text(fmt.Sprintf("... and %d more", rest))
		w.blank()
	}

	selectable := ranked[:min(MaxChoices, len(ranked))]
	overflow := len(ranked) - len(selectable)
	if overflow > 0 {
		w.text(fmt.Sprintf("Only the top %d can be selected here, %d more not listed.", MaxChoices, overflow))
	}
	w.text("Select jobs to apply:")

	ids := make([]string, 0, len(selectable))
	choices := make([]models.Choice, 0, len(selectable)+2)
	for _, item := range selectable {
		ids = append(ids, item.Posting.ID)
		choices = append(choices, models.Choice{
			Label: utils.Bound(item.Posting.Title, MaxLabelRunes),
			Data:  SelectData(item.Posting.ID),
		})
	}
	choices = append(choices, models.Choice{Label: "Apply to selected", Data: ApplyAction})
	if c.cfg.ViewAllURL != "" {
		choices = append(choices, models.Choice{Label: "View all jobs", URL: c.cfg.ViewAllURL})
	}

	n.Body = w.String()
	n.Choices = RenderSelection(choices, nil)
	n.Payload = map[string]any{
		PayloadPostingIDs: ids,
		PayloadTotal:      len(ranked),
		PayloadOverflow:   overflow,
	}
	return n
}

// ApplicationReport summarises the outcomes of an apply batch.
func (c *Composer) ApplicationReport(userID string, outcomes []models.Outcome, target Target) *models.Notification {
	w := newWriter(target)

	counts := map[models.OutcomeKind]int{}
	for _, o := range outcomes {
		counts[o.Kind]++
	}

	title := fmt.Sprintf("Applications: %d sent, %d already applied, %d failed",
		counts[models.OutcomeSucceeded], counts[models.OutcomeAlreadyApplied], counts[models.OutcomeFailed])
	w.bold(title)
	w.blank()

	for _, o := range outcomes {
		name := o.Title
		if name == "" {
			name = o.PostingID
		}
		w.text(fmt.Sprintf("%s %s: %s", outcomeMark(o), name, o.Message))
	}
	if len(outcomes) == 0 {
		w.text("Nothing was selected.")
	}

	return &models.Notification{
		UserID: userID,
		Type:   models.NotificationApplicationSent,
		Title:  title,
		Body:   w.String(),
		Format: w.format(),
		Payload: map[string]any{
			"succeeded":       counts[models.OutcomeSucceeded],
			"already_applied": counts[models.OutcomeAlreadyApplied],
			"failed":          counts[models.OutcomeFailed],
		},
	}
}

// WeeklySummary reports on the applications of the last week.
func (c *Composer) WeeklySummary(userID string, apps []*models.Application, target Target) *models.Notification {
	w := newWriter(target)

	total := len(apps)
	responded := 0
	for _, a := range apps {
		if a.ResponseReceived {
			responded++
		}
	}

	title := "Weekly summary"
	w.bold(title)
	w.blank()
	w.text("Over the last week:")
	w.text(fmt.Sprintf("- Applications sent: %d", total))
	w.text(fmt.Sprintf("- Responses received: %d", responded))
	w.text(fmt.Sprintf("- Awaiting response: %d", total-responded))
	if total > 0 {
		w.blank()
		w.text(fmt.Sprintf("Response rate: %.1f%%", float64(responded)/float64(total)*100))
	}
	w.blank()
	w.text("Keep going and good luck with your search!")

	return &models.Notification{
		UserID: userID,
		Type:   models.NotificationWeeklySummary,
		Title:  title,
		Body:   w.String(),
		Format: w.format(),
		Payload: map[string]any{
			"total":     total,
			"responded": responded,
		},
	}
}

var statusOrder = []models.ApplicationStatus{
	models.StatusPending,
	models.StatusSent,
	models.StatusResponded,
	models.StatusRejected,
}

// Status counts the user's applications per status.
func (c *Composer) Status(userID string, apps []*models.Application, target Target) *models.Notification {
	w := newWriter(target)

	counts := map[models.ApplicationStatus]int{}
	for _, a := range apps {
		counts[a.Status]++
	}

	title := "Application status"
	w.bold(title)
	w.blank()
	if len(apps) == 0 {
		w.text("No applications yet.")
	} else {
		w.text(fmt.Sprintf("Total: %d", len(apps)))
		for _, st := range statusOrder {
			if counts[st] > 0 {
				w.text(fmt.Sprintf("- %s: %d", st, counts[st]))
			}
		}
	}

	return &models.Notification{
		UserID: userID,
		Type:   models.NotificationStatus,
		Title:  title,
		Body:   w.String(),
		Format: w.format(),
	}
}

// RenderSelection marks the selectable choices according to selected.
// Labels already carrying a mark are re-marked.
func RenderSelection(choices []models.Choice, selected map[string]bool) []models.Choice {
	out := make([]models.Choice, len(choices))
	for i, ch := range choices {
		out[i] = ch
		id, ok := ParseSelect(ch.Data)
		if !ok {
			continue
		}
		label := strings.TrimPrefix(strings.TrimPrefix(ch.Label, markOn), markOff)
		if selected[id] {
			out[i].Label = markOn + label
		} else {
			out[i].Label = markOff + label
		}
	}
	return out
}

const (
	markOn  = "☑️ "
	markOff = "⬜ "
)

func outcomeMark(o models.Outcome) string {
	switch o.Kind {
	case models.OutcomeSucceeded:
		if o.Status == models.StatusSent {
			return "✅"
		}
		return "🕓"
	case models.OutcomeAlreadyApplied:
		return "↩️"
	default:
		return "❌"
	}
}

func percent(score float64) int {
	return int(math.Round(math.Max(0, math.Min(1, score)) * 100))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
