// Package bot answers chat commands and the buttons of job digests.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/hh-assistant/internal/apply"
	"github.com/spigell/hh-assistant/internal/digest"
	"github.com/spigell/hh-assistant/internal/logger"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/notify"
	"github.com/spigell/hh-assistant/internal/selection"
	"github.com/spigell/hh-assistant/internal/store"
	"go.uber.org/zap"
)

const (
	welcomeText = `Welcome to hh-assistant!

I search for relevant jobs every day, rate how well they fit your resume, send applications to recruiters and report the results.

Link this chat to your account with /start <user-id>.`

	helpText = `Available commands:
/start <user-id> - link this chat to your account
/help - show this message
/status - status of your applications

How it works:
1. Upload your resume
2. Every morning new jobs are collected and rated
3. Pick the ones you like with the buttons under the digest
4. Press "Apply to selected" and the applications are sent`

	notLinkedText = "This chat is not linked yet. Send /start <user-id> first."
)

// Chat is the part of the chat channel the handler talks back through.
type Chat interface {
	Reply(ctx context.Context, chatID int64, text string) error
	EditChoices(ctx context.Context, chatID int64, messageID string, choices []models.Choice) error
	Answer(ctx context.Context, callbackID, text string) error
}

type Applier interface {
	Apply(ctx context.Context, req apply.Request) ([]models.Outcome, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, user *models.User, n *models.Notification) error
}

type Deps struct {
	Users         store.Users
	Applications  store.Applications
	Notifications store.Notifications
	Selection     selection.Store
	Applier       Applier
	Composer      *digest.Composer
	Dispatcher    Dispatcher
	Chat          Chat
	Logger        *zap.Logger
}

type Handler struct {
	Deps
	logger *zap.Logger
}

func New(deps Deps) *Handler {
	if deps.Composer == nil {
		deps.Composer = digest.New(digest.Config{})
	}
	return &Handler{Deps: deps, logger: logger.WithFields(deps.Logger)}
}

// Handle processes one inbound event. Failures are logged and reported to the chat.
func (h *Handler) Handle(ctx context.Context, in notify.Inbound) {
	log := h.logger.With(zap.Int64("chat_id", in.ChatID), zap.String("username", in.Username))

	var err error
	if in.IsCallback() {
		err = h.handleCallback(ctx, log, in)
	} else {
		err = h.handleMessage(ctx, log, in)
	}
	if err != nil {
		log.Error("failed to handle chat event", zap.String("data", in.Data), zap.String("command", in.Command), zap.Error(err))
	}
}

func (h *Handler) handleMessage(ctx context.Context, log *zap.Logger, in notify.Inbound) error {
	switch in.Command {
	case "start":
		return h.start(ctx, log, in)
	case "status":
		user, ok, err := h.user(ctx, in.ChatID)
		if err != nil || !ok {
			return err
		}
		return h.status(ctx, user)
	default:
		return h.Chat.Reply(ctx, in.ChatID, helpText)
	}
}

func (h *Handler) start(ctx context.Context, log *zap.Logger, in notify.Inbound) error {
	userID := strings.TrimSpace(in.Args)
	if userID == "" {
		if user, err := h.Users.GetUserByChatID(ctx, in.ChatID); err == nil {
			return h.Chat.Reply(ctx, in.ChatID, fmt.Sprintf("Welcome back, %s! Send /status to see your applications.", user.DisplayName()))
		}
		return h.Chat.Reply(ctx, in.ChatID, welcomeText)
	}

	user, err := h.Users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return h.Chat.Reply(ctx, in.ChatID, "Unknown user id. Check the id and try again.")
	}
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}

	if err := h.Users.LinkChat(ctx, user.ID, in.ChatID); err != nil {
		return fmt.Errorf("link chat: %w", err)
	}
	log.Info("chat linked", zap.String(logger.FieldUser, user.ID))

	return h.Chat.Reply(ctx, in.ChatID, fmt.Sprintf("Done, %s! Job digests will arrive in this chat.", user.DisplayName()))
}

func (h *Handler) status(ctx context.Context, user *models.User) error {
	apps, err := h.Applications.ListApplications(ctx, user.ID, time.Time{})
	if err != nil {
		return fmt.Errorf("list applications: %w", err)
	}
	return h.Dispatcher.Dispatch(ctx, user, h.Composer.Status(user.ID, apps, digest.TargetChat))
}

func (h *Handler) handleCallback(ctx context.Context, log *zap.Logger, in notify.Inbound) error {
	user, err := h.Users.GetUserByChatID(ctx, in.ChatID)
	if errors.Is(err, store.ErrNotFound) {
		return h.Chat.Answer(ctx, in.CallbackID, notLinkedText)
	}
	if err != nil {
		return fmt.Errorf("load user by chat: %w", err)
	}

	if postingID, ok := digest.ParseSelect(in.Data); ok {
		return h.toggle(ctx, user, in, postingID)
	}
	if in.Data == digest.ApplyAction {
		return h.applySelected(ctx, log, user, in)
	}
	return h.Chat.Answer(ctx, in.CallbackID, "")
}

func (h *Handler) toggle(ctx context.Context, user *models.User, in notify.Inbound, postingID string) error {
	selected, err := h.Selection.Toggle(ctx, user.ID, postingID)
	if err != nil {
		_ = h.Chat.Answer(ctx, in.CallbackID, "Could not update the selection, try again.")
		return err
	}

	answer := "Removed"
	if selected {
		answer = "Selected"
	}
	if err := h.Chat.Answer(ctx, in.CallbackID, answer); err != nil {
		return err
	}

	return h.redraw(ctx, user, in)
}

// redraw re-renders the digest keyboard with the current selection.
func (h *Handler) redraw(ctx context.Context, user *models.User, in notify.Inbound) error {
	n, err := h.Notifications.GetNotificationByMessage(ctx, user.ID, in.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load notification of message %s: %w", in.MessageID, err)
	}

	ids, err := h.Selection.List(ctx, user.ID)
	if err != nil {
		return err
	}
	picked := make(map[string]bool, len(ids))
	for _, id := range ids {
		picked[id] = true
	}

	return h.Chat.EditChoices(ctx, in.ChatID, in.MessageID, digest.RenderSelection(n.Choices, picked))
}

func (h *Handler) applySelected(ctx context.Context, log *zap.Logger, user *models.User, in notify.Inbound) error {
	ids, err := h.Selection.List(ctx, user.ID)
	if err != nil {
		_ = h.Chat.Answer(ctx, in.CallbackID, "Could not read the selection, try again.")
		return err
	}
	if len(ids) == 0 {
		return h.Chat.Answer(ctx, in.CallbackID, "Select at least one job first.")
	}
	if err := h.Chat.Answer(ctx, in.CallbackID, fmt.Sprintf("Applying to %d jobs...", len(ids))); err != nil {
		log.Warn("failed to answer callback", zap.Error(err))
	}

	outcomes, err := h.Applier.Apply(ctx, apply.Request{UserID: user.ID, PostingIDs: ids})
	if err != nil {
		if errors.Is(err, apply.ErrProfileNotFound) {
			return h.Chat.Reply(ctx, in.ChatID, "Upload your resume before applying.")
		}
		_ = h.Chat.Reply(ctx, in.ChatID, "Applying failed, please try again later.")
		return fmt.Errorf("apply: %w", err)
	}

	if err := h.Selection.Clear(ctx, user.ID); err != nil {
		log.Warn("failed to clear selection", zap.Error(err))
	}
	if err := h.redraw(ctx, user, in); err != nil {
		log.Warn("failed to reset keyboard", zap.Error(err))
	}

	return h.Dispatcher.Dispatch(ctx, user, h.Composer.ApplicationReport(user.ID, outcomes, digest.TargetChat))
}

// user resolves the chat owner, replying with instructions when the chat is not linked.
func (h *Handler) user(ctx context.Context, chatID int64) (*models.User, bool, error) {
	user, err := h.Users.GetUserByChatID(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, h.Chat.Reply(ctx, chatID, notLinkedText)
	}
	if err != nil {
		return nil, false, fmt.Errorf("load user by chat: %w", err)
	}
	return user, true, nil
}
