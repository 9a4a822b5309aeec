// Package selection remembers which postings a user ticked in a chat before applying.
package selection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL    = 7 * 24 * time.Hour
	defaultPrefix = "hh-assistant:selection:"
)

type Store interface {
	// Toggle flips the posting and reports whether it is selected afterwards.
	Toggle(ctx context.Context, userID, postingID string) (bool, error)
	// List returns the selected postings in the order they were picked.
	List(ctx context.Context, userID string) ([]string, error)
	Clear(ctx context.Context, userID string) error
}

// Redis keeps one sorted set per user, scored by selection time.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, prefix: defaultPrefix, ttl: ttl, now: time.Now}
}

func (r *Redis) key(userID string) string {
	return r.prefix + userID
}

func (r *Redis) Toggle(ctx context.Context, userID, postingID string) (bool, error) {
	key := r.key(userID)

	added, err := r.rdb.ZAddNX(ctx, key, redis.Z{Score: float64(r.now().UnixNano()), Member: postingID}).Result()
	if err != nil {
		return false, fmt.Errorf("select %s: %w", postingID, err)
	}

	selected := added == 1
	if !selected {
		if err := r.rdb.ZRem(ctx, key, postingID).Err(); err != nil {
			return false, fmt.Errorf("unselect %s: %w", postingID, err)
		}
	}

	if err := r.rdb.Expire(ctx, key, r.ttl).Err(); err != nil {
		return selected, fmt.Errorf("expire selection: %w", err)
	}
	return selected, nil
}

func (r *Redis) List(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.rdb.ZRange(ctx, r.key(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list selection: %w", err)
	}
	return ids, nil
}

func (r *Redis) Clear(ctx context.Context, userID string) error {
	if err := r.rdb.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}
	return nil
}

// Memory is used when Redis is not configured. Selections expire after the TTL.
type Memory struct {
	mu    sync.Mutex
	users map[string]map[string]time.Time
	ttl   time.Duration
	now   func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{users: make(map[string]map[string]time.Time), ttl: ttl, now: time.Now}
}

func (m *Memory) Toggle(_ context.Context, userID, postingID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	picked := m.live(userID)
	if _, ok := picked[postingID]; ok {
		delete(picked, postingID)
		return false, nil
	}
	picked[postingID] = m.now()
	return true, nil
}

func (m *Memory) List(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	picked := m.live(userID)
	ids := make([]string, 0, len(picked))
	for id := range picked {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if picked[ids[i]].Equal(picked[ids[j]]) {
			return ids[i] < ids[j]
		}
		return picked[ids[i]].Before(picked[ids[j]])
	})
	return ids, nil
}

func (m *Memory) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
	return nil
}

// live drops expired entries and returns the user's set. Caller holds mu.
func (m *Memory) live(userID string) map[string]time.Time {
	picked, ok := m.users[userID]
	if !ok {
		picked = make(map[string]time.Time)
		m.users[userID] = picked
	}
	cutoff := m.now().Add(-m.ttl)
	for id, at := range picked {
		if at.Before(cutoff) {
			delete(picked, id)
		}
	}
	return picked
}
