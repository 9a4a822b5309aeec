// Package notify persists notifications and hands them to the user's channel.
// A notification is stored before delivery, so a failed send is retried by
// ResendUnsent instead of being composed again.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/hh-assistant/internal/digest"
	"github.com/spigell/hh-assistant/internal/logger"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/notify/email"
	"github.com/spigell/hh-assistant/internal/store"
	"go.uber.org/zap"
)

var (
	ErrNoChannel = errors.New("user has no notification channel")
	// ErrNotStored means nothing was persisted, so nothing will be resent.
	ErrNotStored = errors.New("notification not stored")
)

// Chat delivers notifications to a chat and returns the message id.
type Chat interface {
	Send(ctx context.Context, chatID int64, n *models.Notification) (string, error)
}

type Mailer interface {
	Send(ctx context.Context, msg *email.Message) error
}

// Inbound is a message or a button press received from a chat.
type Inbound struct {
	ChatID    int64
	MessageID string
	Username  string

	Text    string
	Command string
	Args    string

	CallbackID string
	Data       string
}

func (in Inbound) IsCallback() bool {
	return in.CallbackID != ""
}

type Handler func(ctx context.Context, in Inbound)

type Dispatcher struct {
	notifications store.Notifications
	users         store.Users
	chat          Chat
	mailer        Mailer
	logger        *zap.Logger
	now           func() time.Time
}

// NewDispatcher accepts nil chat or mailer when the channel is not configured.
func NewDispatcher(notifications store.Notifications, users store.Users, chat Chat, mailer Mailer, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		users:         users,
		chat:          chat,
		mailer:        mailer,
		logger:        logger.WithFields(log),
		now:           time.Now,
	}
}

// Target picks how notifications for the user should be rendered.
func (d *Dispatcher) Target(user *models.User) digest.Target {
	if d.chat != nil && user.ChatID != 0 {
		return digest.TargetChat
	}
	return digest.TargetPlain
}

// Reachable reports whether any channel can deliver to the user.
func (d *Dispatcher) Reachable(user *models.User) bool {
	return (d.chat != nil && user.ChatID != 0) || (d.mailer != nil && user.Email != "")
}

// Dispatch stores n and delivers it. The stored record stays unsent when delivery fails.
func (d *Dispatcher) Dispatch(ctx context.Context, user *models.User, n *models.Notification) error {
	n.UserID = user.ID
	if err := d.notifications.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("%w: %w", ErrNotStored, err)
	}
	return d.deliver(ctx, user, n)
}

// ResendUnsent retries every stored notification that was never delivered.
// It returns the number of notifications delivered.
func (d *Dispatcher) ResendUnsent(ctx context.Context) (int, error) {
	pending, err := d.notifications.ListUnsentNotifications(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unsent notifications: %w", err)
	}

	sent := 0
	for _, n := range pending {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		user, err := d.users.GetUser(ctx, n.UserID)
		if err != nil {
			d.logger.Warn("skipping notification of unknown user", zap.String(logger.FieldUser, n.UserID), zap.Error(err))
			continue
		}
		if !user.Active {
			continue
		}
		if err := d.deliver(ctx, user, n); err != nil {
			continue
		}
		sent++
	}
	return sent, nil
}

func (d *Dispatcher) deliver(ctx context.Context, user *models.User, n *models.Notification) error {
	log := d.logger.With(
		zap.String(logger.FieldUser, user.ID),
		zap.String("notification_id", n.ID),
		zap.String("type", string(n.Type)),
	)

	var (
		externalID string
		err        error
	)
	switch {
	case d.chat != nil && user.ChatID != 0:
		externalID, err = d.chat.Send(ctx, user.ChatID, n)
	case d.mailer != nil && user.Email != "":
		err = d.mailer.Send(ctx, &email.Message{
			To:      user.Email,
			Subject: n.Title,
			Body:    digest.Plain(n.Body, n.Format),
		})
	default:
		err = ErrNoChannel
	}
	if err != nil {
		log.Warn("notification delivery failed", zap.Error(err))
		return fmt.Errorf("deliver notification %s: %w", n.ID, err)
	}

	if err := d.notifications.MarkNotificationSent(ctx, n.ID, externalID, d.now().UTC()); err != nil {
		log.Error("failed to mark notification sent", zap.Error(err))
		return fmt.Errorf("mark notification %s sent: %w", n.ID, err)
	}
	n.Sent = true
	n.ExternalMessageID = externalID

	log.Info("notification delivered", zap.String("message_id", externalID))
	return nil
}
