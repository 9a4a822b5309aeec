// Package postgres implements the store on PostgreSQL with the pgvector extension.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/store"
)

//go:embed schema.sql
var schema string

type Config struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max-conns"`
	MaxConnLifetime time.Duration `mapstructure:"max-conn-lifetime"`
}

type Store struct {
	db  *pgxpool.Pool
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return &Store{db: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, store.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// ---------------- POSTINGS ----------------

const postingColumns = `id, platform, external_id, title, employer, description, requirements,
	salary_from, salary_to, currency, location, employment_type, experience, url, contacts,
	published_at, discovered_at`

func scanPosting(row pgx.Row) (*models.Posting, error) {
	var p models.Posting
	err := row.Scan(&p.ID, &p.Platform, &p.ExternalID, &p.Title, &p.Employer, &p.Description, &p.Requirements,
		&p.Salary.From, &p.Salary.To, &p.Salary.Currency, &p.Location, &p.EmploymentType, &p.Experience, &p.URL, &p.Contacts,
		&p.PublishedAt, &p.DiscoveredAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPosting relies on the (platform, external_id) constraint: the loser of a
// concurrent insert gets no row back and reads the winner's record.
func (s *Store) UpsertPosting(ctx context.Context, p *models.Posting) (*models.Posting, bool, error) {
	contacts := p.Contacts
	if contacts == nil {
		contacts = []models.Contact{}
	}
	discovered := p.DiscoveredAt
	if discovered.IsZero() {
		discovered = s.now()
	}

	query := `
		INSERT INTO postings (id, platform, external_id, title, employer, description, requirements,
			salary_from, salary_to, currency, location, employment_type, experience, url, contacts,
			published_at, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (platform, external_id) DO NOTHING
		RETURNING ` + postingColumns

	stored, err := scanPosting(s.db.QueryRow(ctx, query,
		uuid.NewString(), p.Platform, p.ExternalID, p.Title, p.Employer, p.Description, p.Requirements,
		p.Salary.From, p.Salary.To, p.Salary.Currency, p.Location, p.EmploymentType, p.Experience, p.URL, contacts,
		p.PublishedAt, discovered,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert posting %s: %w", p.Key(), err)
	}

	existing, err := scanPosting(s.db.QueryRow(ctx,
		`SELECT `+postingColumns+` FROM postings WHERE platform = $1 AND external_id = $2`,
		p.Platform, p.ExternalID,
	))
	if err != nil {
		return nil, false, notFound(err, "failed to get posting %s", p.Key())
	}
	return existing, false, nil
}

func (s *Store) GetPosting(ctx context.Context, id string) (*models.Posting, error) {
	p, err := scanPosting(s.db.QueryRow(ctx, `SELECT `+postingColumns+` FROM postings WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "posting %s", id)
	}
	return p, nil
}

func (s *Store) GetMatch(ctx context.Context, postingID, profileID string) (*models.MatchResult, error) {
	var m models.MatchResult
	err := s.db.QueryRow(ctx, `
		SELECT score, rationale, matching_tags, missing_tags, fallback
		FROM posting_matches WHERE posting_id = $1 AND profile_id = $2`,
		postingID, profileID,
	).Scan(&m.Score, &m.Rationale, &m.MatchingTags, &m.MissingTags, &m.Fallback)
	if err != nil {
		return nil, notFound(err, "match %s/%s", postingID, profileID)
	}
	return &m, nil
}

func (s *Store) SaveMatch(ctx context.Context, postingID, profileID string, m models.MatchResult) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO posting_matches (posting_id, profile_id, score, rationale, matching_tags, missing_tags, fallback, scored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (posting_id, profile_id) DO UPDATE SET
			score = EXCLUDED.score,
			rationale = EXCLUDED.rationale,
			matching_tags = EXCLUDED.matching_tags,
			missing_tags = EXCLUDED.missing_tags,
			fallback = EXCLUDED.fallback,
			scored_at = EXCLUDED.scored_at`,
		postingID, profileID, m.Score, m.Rationale, nonNil(m.MatchingTags), nonNil(m.MissingTags), m.Fallback, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}

// ---------------- PROFILES ----------------

const profileColumns = `id, user_id, text, skills, experience_years, desired_title, desired_location,
	salary_expectation, embedding::text, resume_path, created_at`

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var (
		p         models.Profile
		embedding *string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Text, &p.Skills, &p.ExperienceYears, &p.DesiredTitle, &p.DesiredLocation,
		&p.SalaryExpectation, &embedding, &p.ResumePath, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if embedding != nil {
		var vec pgvector.Vector
		if err := vec.Scan(*embedding); err != nil {
			return nil, fmt.Errorf("parse embedding: %w", err)
		}
		p.Embedding = vec.Slice()
	}
	return &p, nil
}

func (s *Store) CreateProfile(ctx context.Context, p *models.Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}

	var embedding *string
	if len(p.Embedding) > 0 {
		v, err := pgvector.NewVector(p.Embedding).Value()
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		text := v.(string)
		embedding = &text
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO profiles (id, user_id, text, skills, experience_years, desired_title, desired_location,
			salary_expectation, embedding, resume_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::text::vector, $10, $11)`,
		p.ID, p.UserID, p.Text, nonNil(p.Skills), p.ExperienceYears, p.DesiredTitle, p.DesiredLocation,
		p.SalaryExpectation, embedding, p.ResumePath, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "profile %s", id)
	}
	return p, nil
}

func (s *Store) LatestProfile(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, userID))
	if err != nil {
		return nil, notFound(err, "profile for user %s", userID)
	}
	return p, nil
}

// ---------------- USERS ----------------

const userColumns = `id, email, full_name, chat_id, email_password, active, min_score, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.ChatID, &u.EmailPassword, &u.Active, &u.MinScore, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UpsertUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	created := u.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			chat_id = EXCLUDED.chat_id,
			email_password = EXCLUDED.email_password,
			active = EXCLUDED.active,
			min_score = EXCLUDED.min_score
		RETURNING created_at`,
		u.ID, u.Email, u.FullName, u.ChatID, u.EmailPassword, u.Active, u.MinScore, created,
	).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user %s", id)
	}
	return u, nil
}

func (s *Store) GetUserByChatID(ctx context.Context, chatID int64) (*models.User, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("user with chat 0: %w", store.ErrNotFound)
	}
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE chat_id = $1`, chatID))
	if err != nil {
		return nil, notFound(err, "user with chat %d", chatID)
	}
	return u, nil
}

func (s *Store) ListActiveUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// LinkChat moves the chat to the user, unlinking any previous owner.
func (s *Store) LinkChat(ctx context.Context, userID string, chatID int64) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE users SET chat_id = 0 WHERE chat_id = $1 AND id <> $2`, chatID, userID); err != nil {
			return fmt.Errorf("failed to unlink chat: %w", err)
		}
		tag, err := tx.Exec(ctx, `UPDATE users SET chat_id = $1 WHERE id = $2`, chatID, userID)
		if err != nil {
			return fmt.Errorf("failed to link chat: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
		}
		return nil
	})
}

// ---------------- APPLICATIONS ----------------

const applicationColumns = `id, user_id, posting_id, profile_id, status, cover_letter, attempts,
	response_received, response_text, response_at, created_at, updated_at`

func scanApplication(row pgx.Row) (*models.Application, error) {
	var a models.Application
	err := row.Scan(&a.ID, &a.UserID, &a.PostingID, &a.ProfileID, &a.Status, &a.CoverLetter, &a.Attempts,
		&a.ResponseReceived, &a.ResponseText, &a.ResponseAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateApplication is the atomic check-and-insert for a (user, posting) pair.
func (s *Store) CreateApplication(ctx context.Context, a *models.Application) (*models.Application, bool, error) {
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := a.Status
	if status == "" {
		status = models.StatusPending
	}
	attempts := a.Attempts
	if attempts == nil {
		attempts = []models.DeliveryAttempt{}
	}
	now := s.now()

	created, err := scanApplication(s.db.QueryRow(ctx, `
		INSERT INTO applications (id, user_id, posting_id, profile_id, status, cover_letter, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (user_id, posting_id) DO NOTHING
		RETURNING `+applicationColumns,
		id, a.UserID, a.PostingID, a.ProfileID, status, a.CoverLetter, attempts, now,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create application: %w", err)
	}

	existing, err := s.GetApplicationFor(ctx, a.UserID, a.PostingID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	a, err := scanApplication(s.db.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "application %s", id)
	}
	return a, nil
}

func (s *Store) GetApplicationFor(ctx context.Context, userID, postingID string) (*models.Application, error) {
	a, err := scanApplication(s.db.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE user_id = $1 AND posting_id = $2`, userID, postingID))
	if err != nil {
		return nil, notFound(err, "application for %s/%s", userID, postingID)
	}
	return a, nil
}

func (s *Store) AddDeliveryAttempt(ctx context.Context, id string, attempt models.DeliveryAttempt) error {
	data, err := json.Marshal([]models.DeliveryAttempt{attempt})
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE applications SET attempts = attempts || $2::jsonb, updated_at = $3 WHERE id = $1`,
		id, string(data), s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to add delivery attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("application %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, id string, from, to models.ApplicationStatus) error {
	if !models.IsTransitionAllowed(from, to) {
		return fmt.Errorf("%w: cannot move %s -> %s", store.ErrStatusConflict, from, to)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE applications SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, from, to, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update application status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.statusMiss(ctx, id, from)
	}
	return nil
}

func (s *Store) RecordResponse(ctx context.Context, id, text string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE applications
		SET status = $2, response_received = TRUE, response_text = $3, response_at = $4, updated_at = $5
		WHERE id = $1 AND status = $6`,
		id, models.StatusResponded, text, at, s.now(), models.StatusSent,
	)
	if err != nil {
		return fmt.Errorf("failed to record response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.statusMiss(ctx, id, models.StatusSent)
	}
	return nil
}

// statusMiss explains why a conditional status update touched no rows.
func (s *Store) statusMiss(ctx context.Context, id string, expected models.ApplicationStatus) error {
	var current models.ApplicationStatus
	err := s.db.QueryRow(ctx, `SELECT status FROM applications WHERE id = $1`, id).Scan(&current)
	if err != nil {
		return notFound(err, "application %s", id)
	}
	return fmt.Errorf("%w: %s is %s, expected %s", store.ErrStatusConflict, id, current, expected)
}

func (s *Store) ListApplications(ctx context.Context, userID string, since time.Time) ([]*models.Application, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE user_id = $1 AND created_at >= $2 ORDER BY created_at`,
		userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ---------------- NOTIFICATIONS ----------------

const notificationColumns = `id, user_id, type, title, body, format, payload, choices, sent, sent_at,
	external_message_id, created_at`

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Format, &n.Payload, &n.Choices, &n.Sent, &n.SentAt,
		&n.ExternalMessageID, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	choices := n.Choices
	if choices == nil {
		choices = []models.Choice{}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, format, payload, choices, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.UserID, n.Type, n.Title, n.Body, n.Format, n.Payload, choices, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *Store) MarkNotificationSent(ctx context.Context, id, externalID string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE notifications SET sent = TRUE, sent_at = $2, external_message_id = $3 WHERE id = $1`,
		id, at, externalID)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListUnsentNotifications(ctx context.Context) ([]*models.Notification, error) {
	rows, err := s.db.Query(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE NOT sent ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) GetNotificationByMessage(ctx context.Context, userID, externalID string) (*models.Notification, error) {
	n, err := scanNotification(s.db.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE user_id = $1 AND external_message_id = $2 AND external_message_id <> ''
		 ORDER BY created_at DESC LIMIT 1`,
		userID, externalID))
	if err != nil {
		return nil, notFound(err, "notification for message %s", externalID)
	}
	return n, nil
}

func (s *Store) MarkPostingsNotified(ctx context.Context, userID string, postingIDs []string) ([]string, error) {
	if len(postingIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `
		INSERT INTO notified_postings (user_id, posting_id, notified_at)
		SELECT $1, unnest($2::text[]), $3
		ON CONFLICT DO NOTHING
		RETURNING posting_id`,
		userID, postingIDs, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to mark postings notified: %w", err)
	}
	inserted, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to mark postings notified: %w", err)
	}

	set := make(map[string]struct{}, len(inserted))
	for _, id := range inserted {
		set[id] = struct{}{}
	}
	var fresh []string
	for _, id := range postingIDs {
		if _, ok := set[id]; ok {
			fresh = append(fresh, id)
			delete(set, id)
		}
	}
	return fresh, nil
}

func (s *Store) UnmarkPostingsNotified(ctx context.Context, userID string, postingIDs []string) error {
	if len(postingIDs) == 0 {
		return nil
	}

	if _, err := s.db.Exec(ctx, `
		DELETE FROM notified_postings
		WHERE user_id = $1 AND posting_id = ANY($2::text[])`,
		userID, postingIDs); err != nil {
		return fmt.Errorf("failed to unmark postings notified: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
