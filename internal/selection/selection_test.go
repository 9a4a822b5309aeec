package selection

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spigell/hh-assistant/internal/redisdb"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	for _, id := range []string{"p1", "p2", "p3"} {
		selected, err := s.Toggle(ctx, "u1", id)
		if err != nil || !selected {
			t.Fatalf("toggle %s: selected=%v err=%v", id, selected, err)
		}
	}
	selected, err := s.Toggle(ctx, "u1", "p2")
	if err != nil || selected {
		t.Fatalf("expected p2 to be unselected, got selected=%v err=%v", selected, err)
	}

	ids, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Join(ids, ",") != "p1,p3" {
		t.Fatalf("unexpected selection %v", ids)
	}

	if other, _ := s.List(ctx, "u2"); len(other) != 0 {
		t.Fatalf("selection leaked to another user: %v", other)
	}

	if err := s.Clear(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if ids, _ := s.List(ctx, "u1"); len(ids) != 0 {
		t.Fatalf("expected empty selection, got %v", ids)
	}
}

func TestMemory(t *testing.T) {
	t.Parallel()

	m := NewMemory(0)
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	testStore(t, m)
}

func TestMemoryExpires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Hour)
	m.now = func() time.Time { return now }

	if _, err := m.Toggle(ctx, "u1", "p1"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if ids, _ := m.List(ctx, "u1"); len(ids) != 0 {
		t.Fatalf("expected selection to expire, got %v", ids)
	}
}

func TestRedis(t *testing.T) {
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

	r := NewRedis(rdb, time.Minute)
	r.prefix = "hh-assistant:test-selection:"
	_ = r.Clear(ctx, "u1")
	_ = r.Clear(ctx, "u2")

	testStore(t, r)

	if _, err := r.Toggle(ctx, "u1", "p1"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	ttl, err := rdb.TTL(ctx, r.key("u1")).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v (%v)", ttl, err)
	}
	_ = r.Clear(ctx, "u1")
}
