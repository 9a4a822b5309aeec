// Package memory is an in-process store used by tests and by single-run CLI commands.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/store"
)

type matchKey struct {
	posting, profile string
}

type Store struct {
	mu sync.Mutex

	users         map[string]*models.User
	profiles      map[string]*models.Profile
	postings      map[string]*models.Posting
	postingKeys   map[string]string
	matches       map[matchKey]models.MatchResult
	applications  map[string]*models.Application
	applicationBy map[string]string
	notifications map[string]*models.Notification
	notified      map[string]map[string]struct{}

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:         make(map[string]*models.User),
		profiles:      make(map[string]*models.Profile),
		postings:      make(map[string]*models.Posting),
		postingKeys:   make(map[string]string),
		matches:       make(map[matchKey]models.MatchResult),
		applications:  make(map[string]*models.Application),
		applicationBy: make(map[string]string),
		notifications: make(map[string]*models.Notification),
		notified:      make(map[string]map[string]struct{}),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() {}

func (s *Store) UpsertPosting(_ context.Context, p *models.Posting) (*models.Posting, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.postingKeys[p.Key()]; ok {
		return clonePosting(s.postings[id]), false, nil
	}

	stored := clonePosting(p)
	stored.ID = uuid.NewString()
	if stored.DiscoveredAt.IsZero() {
		stored.DiscoveredAt = s.now()
	}
	s.postings[stored.ID] = stored
	s.postingKeys[stored.Key()] = stored.ID

	return clonePosting(stored), true, nil
}

func (s *Store) GetPosting(_ context.Context, id string) (*models.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.postings[id]
	if !ok {
		return nil, fmt.Errorf("posting %s: %w", id, store.ErrNotFound)
	}
	return clonePosting(p), nil
}

func (s *Store) GetMatch(_ context.Context, postingID, profileID string) (*models.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[matchKey{postingID, profileID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	m.MatchingTags = slices.Clone(m.MatchingTags)
	m.MissingTags = slices.Clone(m.MissingTags)
	return &m, nil
}

func (s *Store) SaveMatch(_ context.Context, postingID, profileID string, m models.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.postings[postingID]; !ok {
		return fmt.Errorf("posting %s: %w", postingID, store.ErrNotFound)
	}
	m.MatchingTags = slices.Clone(m.MatchingTags)
	m.MissingTags = slices.Clone(m.MissingTags)
	s.matches[matchKey{postingID, profileID}] = m
	return nil
}

func (s *Store) CreateProfile(_ context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[p.UserID]; !ok {
		return fmt.Errorf("user %s: %w", p.UserID, store.ErrNotFound)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.profiles[p.ID] = cloneProfile(p)
	return nil
}

func (s *Store) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, store.ErrNotFound)
	}
	return cloneProfile(p), nil
}

func (s *Store) LatestProfile(_ context.Context, userID string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.Profile
	for _, p := range s.profiles {
		if p.UserID != userID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("profile for user %s: %w", userID, store.ErrNotFound)
	}
	return cloneProfile(latest), nil
}

func (s *Store) UpsertUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if existing, ok := s.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	stored := *u
	s.users[u.ID] = &stored
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	out := *u
	return &out, nil
}

func (s *Store) GetUserByChatID(_ context.Context, chatID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if chatID != 0 && u.ChatID == chatID {
			out := *u
			return &out, nil
		}
	}
	return nil, fmt.Errorf("user with chat %d: %w", chatID, store.ErrNotFound)
}

func (s *Store) ListActiveUsers(_ context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		if u.Active {
			out := *u
			users = append(users, &out)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (s *Store) LinkChat(_ context.Context, userID string, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	// A chat belongs to one user at a time.
	for _, other := range s.users {
		if other.ChatID == chatID {
			other.ChatID = 0
		}
	}
	u.ChatID = chatID
	return nil
}

func applicationKey(userID, postingID string) string {
	return userID + "/" + postingID
}

func (s *Store) CreateApplication(_ context.Context, a *models.Application) (*models.Application, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := applicationKey(a.UserID, a.PostingID)
	if id, ok := s.applicationBy[key]; ok {
		return cloneApplication(s.applications[id]), false, nil
	}

	stored := cloneApplication(a)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Status == "" {
		stored.Status = models.StatusPending
	}
	now := s.now()
	stored.CreatedAt, stored.UpdatedAt = now, now

	s.applications[stored.ID] = stored
	s.applicationBy[key] = stored.ID

	return cloneApplication(stored), true, nil
}

func (s *Store) GetApplication(_ context.Context, id string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.applications[id]
	if !ok {
		return nil, fmt.Errorf("application %s: %w", id, store.ErrNotFound)
	}
	return cloneApplication(a), nil
}

func (s *Store) GetApplicationFor(_ context.Context, userID, postingID string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.applicationBy[applicationKey(userID, postingID)]
	if !ok {
		return nil, fmt.Errorf("application for %s/%s: %w", userID, postingID, store.ErrNotFound)
	}
	return cloneApplication(s.applications[id]), nil
}

func (s *Store) AddDeliveryAttempt(_ context.Context, id string, attempt models.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.applications[id]
	if !ok {
		return fmt.Errorf("application %s: %w", id, store.ErrNotFound)
	}
	a.Attempts = append(a.Attempts, attempt)
	a.UpdatedAt = s.now()
	return nil
}

func (s *Store) UpdateApplicationStatus(_ context.Context, id string, from, to models.ApplicationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.applications[id]
	if !ok {
		return fmt.Errorf("application %s: %w", id, store.ErrNotFound)
	}
	if a.Status != from || !models.IsTransitionAllowed(from, to) {
		return fmt.Errorf("%w: %s is %s, cannot move %s -> %s", store.ErrStatusConflict, id, a.Status, from, to)
	}
	a.Status = to
	a.UpdatedAt = s.now()
	return nil
}

func (s *Store) RecordResponse(_ context.Context, id, text string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.applications[id]
	if !ok {
		return fmt.Errorf("application %s: %w", id, store.ErrNotFound)
	}
	if a.Status != models.StatusSent {
		return fmt.Errorf("%w: %s is %s, responses are recorded for sent applications", store.ErrStatusConflict, id, a.Status)
	}
	a.Status = models.StatusResponded
	a.ResponseReceived = true
	a.ResponseText = text
	a.ResponseAt = &at
	a.UpdatedAt = s.now()
	return nil
}

func (s *Store) ListApplications(_ context.Context, userID string, since time.Time) ([]*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Application
	for _, a := range s.applications {
		if a.UserID == userID && !a.CreatedAt.Before(since) {
			out = append(out, cloneApplication(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	s.notifications[n.ID] = cloneNotification(n)
	return nil
}

func (s *Store) MarkNotificationSent(_ context.Context, id, externalID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}
	n.Sent = true
	n.SentAt = &at
	n.ExternalMessageID = externalID
	return nil
}

func (s *Store) ListUnsentNotifications(_ context.Context) ([]*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Notification
	for _, n := range s.notifications {
		if !n.Sent {
			out = append(out, cloneNotification(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetNotificationByMessage(_ context.Context, userID, externalID string) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.notifications {
		if n.UserID == userID && externalID != "" && n.ExternalMessageID == externalID {
			return cloneNotification(n), nil
		}
	}
	return nil, fmt.Errorf("notification for message %s: %w", externalID, store.ErrNotFound)
}

func (s *Store) MarkPostingsNotified(_ context.Context, userID string, postingIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, ok := s.notified[userID]
	if !ok {
		seen = make(map[string]struct{})
		s.notified[userID] = seen
	}

	var fresh []string
	for _, id := range postingIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	return fresh, nil
}

func (s *Store) UnmarkPostingsNotified(_ context.Context, userID string, postingIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range postingIDs {
		delete(s.notified[userID], id)
	}
	return nil
}

func clonePosting(p *models.Posting) *models.Posting {
	out := *p
	out.Contacts = slices.Clone(p.Contacts)
	return &out
}

func cloneProfile(p *models.Profile) *models.Profile {
	out := *p
	out.Skills = slices.Clone(p.Skills)
	out.Embedding = slices.Clone(p.Embedding)
	return &out
}

func cloneApplication(a *models.Application) *models.Application {
	out := *a
	out.Attempts = slices.Clone(a.Attempts)
	return &out
}

func cloneNotification(n *models.Notification) *models.Notification {
	out := *n
	out.Choices = slices.Clone(n.Choices)
	return &out
}
