package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/spigell/hh-assistant/internal/adzuna"
	"github.com/spigell/hh-assistant/internal/ai"
	"github.com/spigell/hh-assistant/internal/ai/gemini"
	"github.com/spigell/hh-assistant/internal/apply"
	"github.com/spigell/hh-assistant/internal/digest"
	"github.com/spigell/hh-assistant/internal/events"
	"github.com/spigell/hh-assistant/internal/filtering"
	"github.com/spigell/hh-assistant/internal/headhunter"
	"github.com/spigell/hh-assistant/internal/logger"
	"github.com/spigell/hh-assistant/internal/matching"
	"github.com/spigell/hh-assistant/internal/notify"
	"github.com/spigell/hh-assistant/internal/notify/email"
	"github.com/spigell/hh-assistant/internal/notify/telegram"
	"github.com/spigell/hh-assistant/internal/profile"
	"github.com/spigell/hh-assistant/internal/ranking"
	"github.com/spigell/hh-assistant/internal/redisdb"
	"github.com/spigell/hh-assistant/internal/scheduler"
	"github.com/spigell/hh-assistant/internal/secrets"
	"github.com/spigell/hh-assistant/internal/selection"
	"github.com/spigell/hh-assistant/internal/source"
	"github.com/spigell/hh-assistant/internal/store"
	"github.com/spigell/hh-assistant/internal/store/memory"
	"github.com/spigell/hh-assistant/internal/store/postgres"
	"go.uber.org/zap"
)

// components is the process-wide object graph. Every command builds it once.
type components struct {
	cfg    *Config
	logger *zap.Logger

	store  store.Store
	redis  *redis.Client
	events events.Publisher

	hh       *headhunter.Client
	letters  ai.CoverLetterWriter
	analyzer ai.ResumeAnalyzer
	embedder ai.Embedder

	filters      *filtering.Filtering
	pipeline     *ranking.Pipeline
	orchestrator *apply.Orchestrator
	profiles     *profile.Service

	mailer     *email.Mailer
	chat       *telegram.Bot
	dispatcher *notify.Dispatcher
	composer   *digest.Composer
	selection  selection.Store
	scheduler  *scheduler.Scheduler
}

type setupOptions struct {
	// chat connects to Telegram. Only commands that talk to users need it.
	chat bool
}

func newLogger() (*zap.Logger, error) {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}
	return l, nil
}

func setup(ctx context.Context, opts setupOptions) (*components, error) {
	log, err := newLogger()
	if err != nil {
		return nil, err
	}

	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}

	c := &components{cfg: cfg, logger: log}
	if err := c.build(ctx, opts); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *components) build(ctx context.Context, opts setupOptions) error {
	if err := c.openStore(ctx); err != nil {
		return err
	}
	if err := c.openRedis(ctx); err != nil {
		return err
	}
	if err := c.connectHH(); err != nil {
		return err
	}

	scorerBackend, err := c.connectAI(ctx)
	if err != nil {
		return err
	}

	sources, err := c.sources()
	if err != nil {
		return err
	}

	c.filters = c.buildFilters()

	scoreTimeout := matching.DefaultTimeout
	if c.cfg.AI != nil && c.cfg.AI.ScoreTimeout > 0 {
		scoreTimeout = c.cfg.AI.ScoreTimeout
	}
	scorer := matching.NewScorer(scorerBackend, matching.Config{Timeout: scoreTimeout}, c.logger.Named("scorer"))

	c.pipeline = ranking.New(ranking.Deps{
		Sources:  sources,
		Filters:  c.filters,
		Postings: c.store,
		Profiles: c.store,
		Scorer:   scorer,
		Logger:   c.logger.Named("ranking"),
	}, c.cfg.Ranking)

	if err := c.buildMailer(); err != nil {
		return err
	}

	var platforms []apply.PlatformApplier
	if c.hh != nil && c.cfg.HeadHunter.ResumeTitle != "" {
		platforms = append(platforms, headhunter.NewApplier(c.hh, c.cfg.HeadHunter.ResumeTitle, c.logger.Named("hh-applier")))
	}

	var mailer apply.Mailer
	if c.mailer.Enabled() {
		mailer = c.mailer
	}

	c.orchestrator = apply.New(apply.Deps{
		Users:        c.store,
		Profiles:     c.store,
		Postings:     c.store,
		Applications: c.store,
		Letters:      c.letters,
		Mailer:       mailer,
		Platforms:    platforms,
		Events:       c.events,
		Logger:       c.logger.Named("apply"),
	}, c.cfg.Apply)

	c.profiles = profile.New(profile.Deps{
		Users:    c.store,
		Profiles: c.store,
		Analyzer: c.analyzer,
		Embedder: c.embedder,
		Logger:   c.logger.Named("profile"),
	}, c.cfg.Profile)

	if opts.chat {
		if err := c.connectChat(); err != nil {
			return err
		}
	}

	var chat notify.Chat
	if c.chat != nil {
		chat = c.chat
	}
	var notifyMailer notify.Mailer
	if c.mailer.Enabled() {
		notifyMailer = c.mailer
	}
	c.dispatcher = notify.NewDispatcher(c.store, c.store, chat, notifyMailer, c.logger.Named("notify"))
	c.composer = digest.New(c.cfg.Digest)

	c.scheduler = scheduler.New(scheduler.Deps{
		Users:         c.store,
		Profiles:      c.store,
		Applications:  c.store,
		Notifications: c.store,
		Ranker:        c.pipeline,
		Composer:      c.composer,
		Dispatcher:    c.dispatcher,
		Events:        c.events,
		Logger:        c.logger.Named("scheduler"),
	}, c.cfg.Scheduler)

	return nil
}

func (c *components) openStore(ctx context.Context) error {
	if c.cfg.Database.URL == "" {
		c.logger.Warn("no database configured, state is kept in memory for this run")
		c.store = memory.New()
		return nil
	}

	pg, err := postgres.Open(ctx, c.cfg.Database)
	if err != nil {
		return err
	}
	c.store = pg
	return nil
}

func (c *components) openRedis(ctx context.Context) error {
	c.events = events.Nop{}
	c.selection = selection.NewMemory(selection.DefaultTTL)

	if c.cfg.Redis.URL == "" {
		return nil
	}

	rdb, err := redisdb.Connect(ctx, c.cfg.Redis.URL)
	if err != nil {
		return err
	}
	c.redis = rdb
	c.events = events.NewRedis(rdb, c.cfg.Redis.Channel)
	c.selection = selection.NewRedis(rdb, selection.DefaultTTL)
	return nil
}

func (c *components) connectHH() error {
	if c.cfg.HeadHunter.Disabled {
		return nil
	}

	token, err := secrets.Optional(secrets.Source{
		Name:  "headhunter token",
		File:  c.cfg.HeadHunter.TokenFile,
		Env:   "HH_TOKEN",
		Value: c.cfg.HeadHunter.Token,
	})
	if err != nil {
		return err
	}
	if token == "" {
		c.logger.Warn("headhunter token is not set, searching anonymously",
			zap.String("hint", "set headhunter.token-file or HH_TOKEN to apply through hh.ru"),
		)
	}

	c.hh = headhunter.New(c.logger.Named("headhunter"), token)
	if c.cfg.HeadHunter.UserAgent != "" {
		c.hh.UserAgent = c.cfg.HeadHunter.UserAgent
	}
	return nil
}

// connectAI returns the scorer backend: Gemini when enabled, keyword overlap otherwise.
func (c *components) connectAI(ctx context.Context) (ai.Scorer, error) {
	cfg := c.cfg.AI
	if cfg == nil || !cfg.Enabled {
		c.logger.Info("language model disabled, using keyword scoring and template letters")
		return matching.NewKeywords(), nil
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
	if cfg.Gemini == nil {
		return nil, errors.New("ai.gemini section is required when ai is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
		Value: cfg.Gemini.APIKey,
	})
	if err != nil {
		return nil, err
	}

	genLogger := logger.WithFields(c.logger, logger.CommonFields("gemini", cfg.Gemini.Model)...).
		With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries))

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	matcher := gemini.NewMatcher(generator, cfg.Gemini.MaxLogLength, genLogger)
	matcher.SetPromptOverrides(cfg.Overrides)

	writer := gemini.NewCoverLetterWriter(generator, genLogger)
	writer.SetPromptOverrides(cfg.Overrides)

	c.letters = writer
	c.analyzer = gemini.NewResumeAnalyzer(generator)
	if cfg.Gemini.EmbeddingModel != "" {
		c.embedder = gemini.NewEmbedder(generator, cfg.Gemini.EmbeddingModel)
	}
	return matcher, nil
}

func (c *components) sources() ([]source.Source, error) {
	var sources []source.Source
	if c.hh != nil {
		sources = append(sources, headhunter.NewSource(c.hh, c.cfg.HeadHunter.Source, c.logger.Named("hh-source")))
	}

	appKey, err := secrets.Optional(secrets.Source{
		Name:  "adzuna app key",
		File:  c.cfg.Adzuna.AppKeyFile,
		Env:   "ADZUNA_APP_KEY",
		Value: c.cfg.Adzuna.AppKey,
	})
	if err != nil {
		return nil, err
	}
	if c.cfg.Adzuna.AppID != "" && appKey != "" {
		cfg := c.cfg.Adzuna.Config
		cfg.AppKey = appKey
		sources = append(sources, adzuna.New(cfg, c.logger.Named("adzuna")))
	}

	if len(sources) == 0 {
		return nil, errors.New("no posting source is configured")
	}
	return sources, nil
}

func (c *components) buildFilters() *filtering.Filtering {
	cfg := c.cfg.Filters

	steps := []filtering.Filter{
		filtering.NewWithTest(),
		filtering.NewExcludedEmployers(cfg.ExcludeEmployers),
		filtering.NewRedFlags(cfg.RedFlags),
		filtering.NewExcludeFile(cfg.ExcludeFile),
	}
	if c.hh != nil && c.cfg.HeadHunter.ResumeTitle != "" {
		steps = append(steps, filtering.NewAppliedHistory(c.hh))
	}

	f := filtering.New(steps, c.logger.Named("filters"))
	if cfg.KeepWithTest {
		f.DisableByName("with_test", "keep-with-test is set")
	}
	if cfg.KeepApplied {
		f.DisableByName("applied_history", "keep-applied is set")
	}

	for _, st := range f.Describe() {
		c.logger.Debug("filter configured",
			zap.String("filter", st.Name),
			zap.Bool("enabled", st.Enabled),
			zap.String("reason", st.Reason),
			zap.Any("details", st.Details),
		)
	}
	return f
}

func (c *components) buildMailer() error {
	cfg := c.cfg.SMTP.Config

	password, err := secrets.Optional(secrets.Source{
		Name:  "smtp password",
		File:  c.cfg.SMTP.PasswordFile,
		Env:   "SMTP_PASSWORD",
		Value: cfg.From.Password,
	})
	if err != nil {
		return err
	}
	cfg.From.Password = password

	c.mailer = email.New(cfg, c.logger.Named("email"))
	if !c.mailer.Enabled() {
		c.logger.Info("smtp is not configured, applications are recorded without email delivery")
	}
	return nil
}

func (c *components) connectChat() error {
	token, err := secrets.Optional(secrets.Source{
		Name:  "telegram token",
		File:  c.cfg.Telegram.TokenFile,
		Env:   "TELEGRAM_BOT_TOKEN",
		Value: c.cfg.Telegram.Token,
	})
	if err != nil {
		return err
	}
	if token == "" {
		c.logger.Warn("telegram token is not set, notifications go by email only")
		return nil
	}

	bot, err := telegram.New(token, c.cfg.Telegram.Config, c.logger.Named("telegram"))
	if err != nil {
		return err
	}
	c.chat = bot
	return nil
}

func (c *components) Close() {
	if c.store != nil {
		c.store.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	_ = c.logger.Sync()
}
