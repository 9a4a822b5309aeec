package apply

import (
	"fmt"
	"strings"

	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/notify/email"
)

// TemplateLetter is the letter used when no generator is available.
func TemplateLetter(p *models.Posting) string {
	employer := strings.TrimSpace(p.Employer)
	if employer == "" {
		employer = "your company"
	}
	return fmt.Sprintf(
		"Hello!\n\nI am interested in the %s position at %s. "+
			"My experience matches the requirements of the role and I would be glad to discuss how I can help your team.\n\n"+
			"Thank you for your time. I look forward to hearing from you.",
		strings.TrimSpace(p.Title), employer,
	)
}

func subject(p *models.Posting) string {
	return "Application for " + strings.TrimSpace(p.Title)
}

// composeEmail sends from the user's own mailbox when its password is known,
// otherwise from the default account with replies routed to the user.
func composeEmail(user *models.User, profile *models.Profile, posting *models.Posting, letter, to string) *email.Message {
	msg := &email.Message{
		To:         to,
		Subject:    subject(posting),
		Body:       letter + "\n\n" + user.DisplayName() + "\n" + user.Email,
		Attachment: profile.ResumePath,
	}
	if user.EmailPassword != "" {
		msg.From = email.Account{Address: user.Email, Name: user.FullName, Password: user.EmailPassword}
	} else {
		msg.ReplyTo = user.Email
	}
	return msg
}
