package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/spigell/hh-assistant/internal/redisdb"
)

func TestRedisPublish(t *testing.T) {
	url := os.Getenv("HH_ASSISTANT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("HH_ASSISTANT_TEST_REDIS_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := redisdb.Connect(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rdb.Close()

	sub := rdb.Subscribe(ctx, "hh-assistant:test-events")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub := NewRedis(rdb, "hh-assistant:test-events")
	if err := pub.Publish(ctx, Event{Type: TypeApplicationCreated, UserID: "u1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var got Event
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != TypeApplicationCreated || got.UserID != "u1" || got.At.IsZero() {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	var r Recorder
	_ = r.Publish(context.Background(), Event{Type: TypePostingsNotified})
	_ = Nop{}.Publish(context.Background(), Event{Type: TypePostingsNotified})

	if got := r.Events(); len(got) != 1 || got[0].Type != TypePostingsNotified {
		t.Fatalf("unexpected events %+v", got)
	}
}
