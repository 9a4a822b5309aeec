package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/spigell/hh-assistant/internal/adzuna"
	"github.com/spigell/hh-assistant/internal/ai/gemini"
	"github.com/spigell/hh-assistant/internal/apply"
	"github.com/spigell/hh-assistant/internal/digest"
	"github.com/spigell/hh-assistant/internal/events"
	"github.com/spigell/hh-assistant/internal/headhunter"
	"github.com/spigell/hh-assistant/internal/notify/email"
	"github.com/spigell/hh-assistant/internal/notify/telegram"
	"github.com/spigell/hh-assistant/internal/profile"
	"github.com/spigell/hh-assistant/internal/ranking"
	"github.com/spigell/hh-assistant/internal/scheduler"
	"github.com/spigell/hh-assistant/internal/store/postgres"
)

const (
	app       = "hh-assistant"
	envPrefix = "HH_ASSISTANT"
)

type Config struct {
	Database   postgres.Config  `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	HeadHunter HeadHunterConfig `mapstructure:"headhunter"`
	Adzuna     AdzunaConfig     `mapstructure:"adzuna"`
	AI         *AIConfig        `mapstructure:"ai"`
	Filters    FiltersConfig    `mapstructure:"filters"`
	Ranking    ranking.Config   `mapstructure:"ranking"`
	Apply      apply.Config     `mapstructure:"apply"`
	Profile    profile.Config   `mapstructure:"profile"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Digest     digest.Config    `mapstructure:"digest"`
	Scheduler  scheduler.Config `mapstructure:"scheduler"`
}

type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Channel string `mapstructure:"channel"`
}

type HeadHunterConfig struct {
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token-file"`
	UserAgent string `mapstructure:"user-agent"`
	// ResumeTitle enables applying through hh.ru negotiations with this resume.
	ResumeTitle string                  `mapstructure:"resume-title"`
	Source      headhunter.SourceConfig `mapstructure:"source"`
	Disabled    bool                    `mapstructure:"disabled"`
}

type AdzunaConfig struct {
	adzuna.Config `mapstructure:",squash"`
	AppKeyFile    string `mapstructure:"app-key-file"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider" validate:"omitempty,oneof=gemini"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
	// ScoreTimeout bounds a single match evaluation.
	ScoreTimeout time.Duration          `mapstructure:"score-timeout"`
	Overrides    gemini.PromptOverrides `mapstructure:"overrides"`
}

type GeminiConfig struct {
	APIKey         string `mapstructure:"api-key"`
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
	MaxRetries     int    `mapstructure:"max-retries" validate:"gte=0"`
	MaxLogLength   int    `mapstructure:"max-log-length"`
}

type FiltersConfig struct {
	ExcludeFile      string   `mapstructure:"exclude-file"`
	ExcludeEmployers []string `mapstructure:"exclude-employers"`
	RedFlags         []string `mapstructure:"red-flags"`
	KeepWithTest     bool     `mapstructure:"keep-with-test"`
	KeepApplied      bool     `mapstructure:"keep-applied"`
}

type SMTPConfig struct {
	email.Config `mapstructure:",squash"`
	PasswordFile string `mapstructure:"password-file"`
}

type TelegramConfig struct {
	telegram.Config `mapstructure:",squash"`
	Token           string `mapstructure:"token"`
	TokenFile       string `mapstructure:"token-file"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "hh-assistant finds relevant jobs, ranks them against your resume and applies for you",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == versionCmd.Name() {
				return nil
			}
			return initConfig()
		},
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is hh-assistant.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		log.Fatalf("binding debug flag: %v", err)
	}
	if err := viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json")); err != nil {
		log.Fatalf("binding json flag: %v", err)
	}
}

func initConfig() error {
	// .env is optional; values already in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

// setDefaults registers the keys that are commonly set from the environment only,
// AutomaticEnv ignores nested keys viper has never seen.
func setDefaults() {
	viper.SetDefault("database.url", "")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.channel", events.DefaultChannel)
	viper.SetDefault("headhunter.token", "")
	viper.SetDefault("headhunter.token-file", "")
	viper.SetDefault("headhunter.resume-title", "")
	viper.SetDefault("headhunter.source.fetch-details", true)
	viper.SetDefault("adzuna.app-id", "")
	viper.SetDefault("adzuna.app-key", "")
	viper.SetDefault("adzuna.country", "gb")
	viper.SetDefault("ai.enabled", false)
	viper.SetDefault("ai.gemini.api-key", "")
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.embedding-model", "text-embedding-004")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 500)
	viper.SetDefault("smtp.host", "")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.from.address", "")
	viper.SetDefault("smtp.from.password", "")
	viper.SetDefault("telegram.token", "")
	viper.SetDefault("telegram.token-file", "")
	viper.SetDefault("telegram.timeout", telegram.DefaultTimeout)
	viper.SetDefault("scheduler.daily", scheduler.DefaultDaily)
	viper.SetDefault("scheduler.weekly", scheduler.DefaultWeekly)
	viper.SetDefault("scheduler.threshold", scheduler.DefaultThreshold)
	viper.SetDefault("scheduler.timezone", "Europe/Moscow")
}

func getConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
