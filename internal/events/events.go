// Package events publishes pipeline activity for external consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "hh-assistant:events"

const (
	TypeApplicationCreated = "application.created"
	TypeApplicationSent    = "application.sent"
	TypeApplicationChanged = "application.status_changed"
	TypePostingsNotified   = "postings.notified"
)

type Event struct {
	Type   string         `json:"type"`
	UserID string         `json:"user_id"`
	Data   map[string]any `json:"data,omitempty"`
	At     time.Time      `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Redis publishes JSON encoded events on a pub/sub channel.
type Redis struct {
	rdb     *redis.Client
	channel string
}

func NewRedis(rdb *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{rdb: rdb, channel: channel}
}

func (r *Redis) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
