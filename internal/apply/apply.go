// Package apply sends applications for postings a user selected.
// A user gets at most one application per posting no matter how often or how
// concurrently the same posting is requested.
package apply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spigell/hh-assistant/internal/ai"
	"github.com/spigell/hh-assistant/internal/events"
	"github.com/spigell/hh-assistant/internal/logger"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/notify/email"
	"github.com/spigell/hh-assistant/internal/store"
	"github.com/spigell/hh-assistant/internal/utils"
	"go.uber.org/zap"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProfileNotFound = errors.New("profile not found")
)

const (
	DefaultLetterTimeout   = 30 * time.Second
	DefaultDeliveryTimeout = 30 * time.Second
	// DefaultLetterInputRunes bounds the profile and posting text handed to the generator.
	DefaultLetterInputRunes = 1500
)

// Mailer delivers a single email.
type Mailer interface {
	Send(ctx context.Context, msg *email.Message) error
}

// PlatformApplier applies through the job platform itself.
type PlatformApplier interface {
	Platform() string
	Apply(ctx context.Context, posting *models.Posting, letter string) error
}

type Config struct {
	LetterTimeout    time.Duration `mapstructure:"letter-timeout"`
	DeliveryTimeout  time.Duration `mapstructure:"delivery-timeout"`
	LetterInputRunes int           `mapstructure:"letter-input-runes"`
}

type Deps struct {
	Users        store.Users
	Profiles     store.Profiles
	Postings     store.Postings
	Applications store.Applications
	Letters      ai.CoverLetterWriter
	Mailer       Mailer
	Platforms    []PlatformApplier
	Events       events.Publisher
	Logger       *zap.Logger
}

type Orchestrator struct {
	users        store.Users
	profiles     store.Profiles
	postings     store.Postings
	applications store.Applications
	letters      ai.CoverLetterWriter
	mailer       Mailer
	platforms    map[string]PlatformApplier
	events       events.Publisher
	validate     *validator.Validate
	cfg          Config
	logger       *zap.Logger
	now          func() time.Time
}

func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.LetterTimeout <= 0 {
		cfg.LetterTimeout = DefaultLetterTimeout
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if cfg.LetterInputRunes <= 0 {
		cfg.LetterInputRunes = DefaultLetterInputRunes
	}

	pub := deps.Events
	if pub == nil {
		pub = events.Nop{}
	}

	platforms := make(map[string]PlatformApplier, len(deps.Platforms))
	for _, p := range deps.Platforms {
		if p != nil {
			platforms[p.Platform()] = p
		}
	}

	return &Orchestrator{
		users:        deps.Users,
		profiles:     deps.Profiles,
		postings:     deps.Postings,
		applications: deps.Applications,
		letters:      deps.Letters,
		mailer:       deps.Mailer,
		platforms:    platforms,
		events:       pub,
		validate:     validator.New(),
		cfg:          cfg,
		logger:       logger.WithFields(deps.Logger),
		now:          time.Now,
	}
}

type Request struct {
	UserID     string
	PostingIDs []string
	// ProfileID selects a profile explicitly. Empty means the latest one.
	ProfileID string
	// CoverLetter skips generation when set.
	CoverLetter string
}

// Apply processes every posting of the request in order. Only a missing user or
// profile fails the whole call; every other problem is reported in the posting's outcome.
func (o *Orchestrator) Apply(ctx context.Context, req Request) ([]models.Outcome, error) {
	user, err := o.users.GetUser(ctx, req.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, req.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", req.UserID, err)
	}

	profile, err := o.loadProfile(ctx, user.ID, req.ProfileID)
	if err != nil {
		return nil, err
	}

	log := o.logger.With(
		zap.String(logger.FieldUser, user.ID),
		zap.String(logger.FieldProfile, profile.ID),
	)

	ids := dedupe(req.PostingIDs)
	outcomes := make([]models.Outcome, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, failed(id, "", "cancelled", err.Error()))
			continue
		}
		outcome := o.applyOne(ctx, log, user, profile, id, req.CoverLetter)
		log.Info("application processed",
			zap.String(logger.FieldPosting, id),
			zap.String("kind", string(outcome.Kind)),
			zap.Int("delivered", outcome.Delivered),
		)
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

func (o *Orchestrator) loadProfile(ctx context.Context, userID, profileID string) (*models.Profile, error) {
	var (
		profile *models.Profile
		err     error
	)
	if profileID != "" {
		profile, err = o.profiles.GetProfile(ctx, profileID)
		if err == nil && profile.UserID != userID {
			err = store.ErrNotFound
		}
	} else {
		profile, err = o.profiles.LatestProfile(ctx, userID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrProfileNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}

func (o *Orchestrator) applyOne(ctx context.Context, log *zap.Logger, user *models.User, profile *models.Profile, postingID, letter string) models.Outcome {
	log = log.With(zap.String(logger.FieldPosting, postingID))

	existing, err := o.applications.GetApplicationFor(ctx, user.ID, postingID)
	switch {
	case err == nil:
		return alreadyApplied(postingID, "", existing)
	case !errors.Is(err, store.ErrNotFound):
		return failed(postingID, "", "could not check existing application", err.Error())
	}

	posting, err := o.postings.GetPosting(ctx, postingID)
	if errors.Is(err, store.ErrNotFound) {
		return failed(postingID, "", "posting not found", err.Error())
	}
	if err != nil {
		return failed(postingID, "", "could not load posting", err.Error())
	}

	if strings.TrimSpace(letter) == "" {
		letter = o.coverLetter(ctx, log, profile, posting)
	}

	app, created, err := o.applications.CreateApplication(ctx, &models.Application{
		UserID:      user.ID,
		PostingID:   posting.ID,
		ProfileID:   profile.ID,
		Status:      models.StatusPending,
		CoverLetter: letter,
	})
	if err != nil {
		return failed(posting.ID, posting.Title, "could not create application", err.Error())
	}
	if !created {
		return alreadyApplied(posting.ID, posting.Title, app)
	}
	log = log.With(zap.String(logger.FieldApplication, app.ID))

	o.publish(ctx, log, events.TypeApplicationCreated, user.ID, map[string]any{
		"application_id": app.ID,
		"posting_id":     posting.ID,
	})

	delivered, attempts := o.deliver(ctx, log, user, profile, posting, app)

	status := models.StatusPending
	if delivered > 0 {
		if err := o.applications.UpdateApplicationStatus(ctx, app.ID, models.StatusPending, models.StatusSent); err != nil {
			log.Error("failed to mark application sent", zap.Error(err))
		} else {
			status = models.StatusSent
			o.publish(ctx, log, events.TypeApplicationSent, user.ID, map[string]any{
				"application_id": app.ID,
				"posting_id":     posting.ID,
				"delivered":      delivered,
			})
		}
	}

	outcome := models.Outcome{
		PostingID:     posting.ID,
		Title:         posting.Title,
		Kind:          models.OutcomeSucceeded,
		ApplicationID: app.ID,
		Status:        status,
		Delivered:     delivered,
	}
	switch {
	case delivered > 0:
		outcome.Message = fmt.Sprintf("application sent to %s (%d of %d deliveries)", posting.Employer, delivered, attempts)
	case attempts == 0:
		outcome.Message = "application saved, no contact to deliver to"
	default:
		outcome.Message = "application saved, every delivery failed"
	}
	return outcome
}

func (o *Orchestrator) coverLetter(ctx context.Context, log *zap.Logger, profile *models.Profile, posting *models.Posting) string {
	if o.letters == nil {
		return TemplateLetter(posting)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.LetterTimeout)
	defer cancel()

	letter, err := o.letters.WriteCoverLetter(callCtx,
		utils.Prefix(profile.Text, o.cfg.LetterInputRunes),
		utils.Prefix(posting.ScoringText(), o.cfg.LetterInputRunes),
		posting.Employer,
	)
	if err == nil && strings.TrimSpace(letter) == "" {
		err = errors.New("generator returned an empty letter")
	}
	if err != nil {
		log.Warn("cover letter generation failed, using template", zap.Error(err))
		return TemplateLetter(posting)
	}
	return strings.TrimSpace(letter)
}

// deliver returns the number of successful attempts and the number of attempts made.
func (o *Orchestrator) deliver(ctx context.Context, log *zap.Logger, user *models.User, profile *models.Profile, posting *models.Posting, app *models.Application) (int, int) {
	delivered, attempts := 0, 0

	record := func(channel models.DeliveryChannel, recipient string, err error) {
		attempts++
		attempt := models.DeliveryAttempt{
			Channel:   channel,
			Recipient: recipient,
			At:        o.now().UTC(),
			OK:        err == nil,
		}
		if err != nil {
			attempt.Error = err.Error()
			log.Warn("delivery failed", zap.String("channel", string(channel)), zap.String("recipient", recipient), zap.Error(err))
		} else {
			delivered++
		}
		if err := o.applications.AddDeliveryAttempt(ctx, app.ID, attempt); err != nil {
			log.Error("failed to record delivery attempt", zap.Error(err))
		}
	}

	if o.mailer != nil {
		for _, addr := range o.recipients(posting.Contacts) {
			callCtx, cancel := context.WithTimeout(ctx, o.cfg.DeliveryTimeout)
			err := o.mailer.Send(callCtx, composeEmail(user, profile, posting, app.CoverLetter, addr))
			cancel()
			record(models.ChannelEmail, addr, err)
		}
	}

	if applier, ok := o.platforms[posting.Platform]; ok {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.DeliveryTimeout)
		err := applier.Apply(callCtx, posting, app.CoverLetter)
		cancel()
		record(models.ChannelPlatform, posting.Platform+":"+posting.ExternalID, err)
	}

	return delivered, attempts
}

// recipients returns the usable contact addresses, deduplicated case-insensitively.
func (o *Orchestrator) recipients(contacts []models.Contact) []string {
	seen := make(map[string]struct{}, len(contacts))
	out := make([]string, 0, len(contacts))
	for _, c := range contacts {
		addr := strings.TrimSpace(c.Email)
		if addr == "" || o.validate.Var(addr, "required,email") != nil {
			continue
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}

func (o *Orchestrator) publish(ctx context.Context, log *zap.Logger, typ, userID string, data map[string]any) {
	err := o.events.Publish(ctx, events.Event{Type: typ, UserID: userID, Data: data, At: o.now().UTC()})
	if err != nil {
		log.Warn("failed to publish event", zap.String("type", typ), zap.Error(err))
	}
}

// RecordResponse stores an employer reply for a sent application.
func (o *Orchestrator) RecordResponse(ctx context.Context, applicationID, text string) error {
	app, err := o.applications.GetApplication(ctx, applicationID)
	if err != nil {
		return fmt.Errorf("load application %s: %w", applicationID, err)
	}
	if err := o.applications.RecordResponse(ctx, applicationID, text, o.now().UTC()); err != nil {
		return fmt.Errorf("record response for %s: %w", applicationID, err)
	}
	o.publish(ctx, o.logger, events.TypeApplicationChanged, app.UserID, map[string]any{
		"application_id": applicationID,
		"status":         string(models.StatusResponded),
	})
	return nil
}

// Reject closes a pending or sent application.
func (o *Orchestrator) Reject(ctx context.Context, applicationID string) error {
	app, err := o.applications.GetApplication(ctx, applicationID)
	if err != nil {
		return fmt.Errorf("load application %s: %w", applicationID, err)
	}
	if !models.IsTransitionAllowed(app.Status, models.StatusRejected) {
		return fmt.Errorf("%w: %s -> %s", store.ErrStatusConflict, app.Status, models.StatusRejected)
	}
	if err := o.applications.UpdateApplicationStatus(ctx, applicationID, app.Status, models.StatusRejected); err != nil {
		return fmt.Errorf("reject %s: %w", applicationID, err)
	}
	o.publish(ctx, o.logger, events.TypeApplicationChanged, app.UserID, map[string]any{
		"application_id": applicationID,
		"status":         string(models.StatusRejected),
	})
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func failed(postingID, title, message, reason string) models.Outcome {
	return models.Outcome{
		PostingID: postingID,
		Title:     title,
		Kind:      models.OutcomeFailed,
		Message:   message,
		Reason:    reason,
	}
}

func alreadyApplied(postingID, title string, app *models.Application) models.Outcome {
	return models.Outcome{
		PostingID:     postingID,
		Title:         title,
		Kind:          models.OutcomeAlreadyApplied,
		ApplicationID: app.ID,
		Status:        app.Status,
		Message:       "already applied",
		Delivered:     app.Delivered(),
	}
}
