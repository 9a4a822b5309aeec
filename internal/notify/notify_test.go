package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/spigell/hh-assistant/internal/digest"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/notify/email"
	"github.com/spigell/hh-assistant/internal/store/memory"
	"go.uber.org/zap"
)

type stubChat struct {
	err  error
	sent []int64
}

func (s *stubChat) Send(_ context.Context, chatID int64, _ *models.Notification) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, chatID)
	return "555", nil
}

type stubMailer struct {
	sent []*email.Message
}

func (s *stubMailer) Send(_ context.Context, msg *email.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func TestDispatchAndResend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := memory.New()
	user := &models.User{Email: "ivan@example.com", ChatID: 42, Active: true}
	if err := s.UpsertUser(ctx, user); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	chat := &stubChat{err: errors.New("telegram unavailable")}
	d := NewDispatcher(s, s, chat, nil, zap.NewNop())

	if d.Target(user) != digest.TargetChat {
		t.Fatal("expected chat target")
	}

	n := &models.Notification{Type: models.NotificationStatus, Title: "Status", Body: "ok"}
	if err := d.Dispatch(ctx, user, n); err == nil {
		t.Fatal("expected delivery error")
	}
	if n.ID == "" || n.UserID != user.ID {
		t.Fatalf("expected the notification to be stored, got %+v", n)
	}

	unsent, err := s.ListUnsentNotifications(ctx)
	if err != nil || len(unsent) != 1 {
		t.Fatalf("expected one unsent notification, got %d (%v)", len(unsent), err)
	}

	chat.err = nil
	sent, err := d.ResendUnsent(ctx)
	if err != nil || sent != 1 {
		t.Fatalf("expected one resent notification, got %d (%v)", sent, err)
	}

	stored, err := s.GetNotificationByMessage(ctx, user.ID, "555")
	if err != nil {
		t.Fatalf("lookup by message: %v", err)
	}
	if !stored.Sent || stored.ID != n.ID {
		t.Fatalf("unexpected stored notification: %+v", stored)
	}

	if sent, _ := d.ResendUnsent(ctx); sent != 0 {
		t.Fatalf("expected nothing to resend, got %d", sent)
	}
}

func TestDispatchFallsBackToEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := memory.New()
	user := &models.User{Email: "ivan@example.com", Active: true}
	if err := s.UpsertUser(ctx, user); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	mailer := &stubMailer{}
	d := NewDispatcher(s, s, &stubChat{}, mailer, nil)

	if d.Target(user) != digest.TargetPlain || !d.Reachable(user) {
		t.Fatal("expected plain target over email")
	}
	if err := d.Dispatch(ctx, user, &models.Notification{Title: "Weekly summary", Body: "text"}); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].To != user.Email || mailer.sent[0].Subject != "Weekly summary" {
		t.Fatalf("unexpected emails: %+v", mailer.sent)
	}
}

func TestDispatchWithoutChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := memory.New()
	user := &models.User{Email: "ivan@example.com", Active: true}
	if err := s.UpsertUser(ctx, user); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	d := NewDispatcher(s, s, nil, nil, nil)
	if d.Reachable(user) {
		t.Fatal("expected user to be unreachable")
	}
	if err := d.Dispatch(ctx, user, &models.Notification{Title: "x"}); !errors.Is(err, ErrNoChannel) {
		t.Fatalf("expected ErrNoChannel, got %v", err)
	}
}

func TestChatRenderedNotificationFallsBackToPlainEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := memory.New()
	user := &models.User{Email: "ivan@example.com", ChatID: 42, Active: true}
	if err := s.UpsertUser(ctx, user); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	composer := digest.New(digest.Config{})
	n := composer.Status(user.ID, []*models.Application{{Status: models.StatusSent}}, digest.TargetChat)
	if n.Format != digest.FormatMarkdown {
		t.Fatalf("expected a chat rendered notification, got %q", n.Format)
	}

	// the chat fails now and is unlinked before the resend
	d := NewDispatcher(s, s, &stubChat{err: errors.New("blocked")}, nil, nil)
	if err := d.Dispatch(ctx, user, n); err == nil {
		t.Fatal("expected delivery error")
	}
	user.ChatID = 0
	if err := s.UpsertUser(ctx, user); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	mailer := &stubMailer{}
	d = NewDispatcher(s, s, nil, mailer, nil)
	if sent, err := d.ResendUnsent(ctx); err != nil || sent != 1 {
		t.Fatalf("expected one resent notification, got %d (%v)", sent, err)
	}

	plain := composer.Status(user.ID, []*models.Application{{Status: models.StatusSent}}, digest.TargetPlain)
	if got := mailer.sent[0].Body; got != plain.Body {
		t.Fatalf("expected plain body %q, got %q", plain.Body, got)
	}
}
