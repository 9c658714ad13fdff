package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coredatabase "stroybot/core/database"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
	Dir     string `yaml:"dir" envconfig:"LOG_DIR"`
	File    string `yaml:"file" envconfig:"LOG_FILE"`
}

// BillingConfig carries the entitlement lifecycle knobs.
type BillingConfig struct {
	// TrialDays is the length of the trial created together with a company.
	TrialDays int `yaml:"trial_days" envconfig:"BILLING_TRIAL_DAYS"`
	// RemindDays sets how many days before expiry reminder notifications fire.
	RemindDays int `yaml:"remind_days" envconfig:"BILLING_REMIND_DAYS"`
}

// WorkerConfig controls the reconciliation worker.
type WorkerConfig struct {
	// CronSpec is a robfig/cron expression; empty selects the daily default.
	CronSpec string `yaml:"cron_spec" envconfig:"WORKER_CRON_SPEC"`
	// RunOnStart triggers one reconciliation cycle immediately after boot.
	RunOnStart bool `yaml:"run_on_start" envconfig:"WORKER_RUN_ON_START"`
	// MetricsListen exposes the Prometheus endpoint when non-empty, e.g. ":9090".
	MetricsListen string `yaml:"metrics_listen" envconfig:"WORKER_METRICS_LISTEN"`
}

// NotifyConfig bounds the outbound notification queue.
type NotifyConfig struct {
	QueueSize  int           `yaml:"queue_size" envconfig:"NOTIFY_QUEUE_SIZE"`
	Workers    int           `yaml:"workers" envconfig:"NOTIFY_WORKERS"`
	MaxRetries int           `yaml:"max_retries" envconfig:"NOTIFY_MAX_RETRIES"`
	Backoff    time.Duration `yaml:"backoff" envconfig:"NOTIFY_BACKOFF"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

// DefaultCronSpec matches the legacy worker schedule: daily at 09:00 UTC.
const DefaultCronSpec = "0 9 * * *"

// Config aggregates bot and worker configuration.
type Config struct {
	Telegram TelegramConfig      `yaml:"telegram"`
	Webhook  WebhookConfig       `yaml:"webhook"`
	Logging  LoggingConfig       `yaml:"logging"`
	Database coredatabase.Config `yaml:"database"`
	Billing  BillingConfig       `yaml:"billing"`
	Worker   WorkerConfig        `yaml:"worker"`
	Notify   NotifyConfig        `yaml:"notify"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if cfg.Billing.TrialDays < 0 {
		return fmt.Errorf("billing.trial_days must be >= 0")
	}
	if cfg.Billing.TrialDays == 0 {
		cfg.Billing.TrialDays = 14
	}
	if cfg.Billing.RemindDays < 0 {
		return fmt.Errorf("billing.remind_days must be >= 0")
	}
	if cfg.Billing.RemindDays == 0 {
		cfg.Billing.RemindDays = 3
	}

	if spec := strings.TrimSpace(cfg.Worker.CronSpec); spec == "" {
		cfg.Worker.CronSpec = DefaultCronSpec
	} else {
		cfg.Worker.CronSpec = spec
	}

	if cfg.Notify.QueueSize <= 0 {
		cfg.Notify.QueueSize = 256
	}
	if cfg.Notify.Workers <= 0 {
		cfg.Notify.Workers = 2
	}
	if cfg.Notify.MaxRetries < 0 {
		cfg.Notify.MaxRetries = 0
	}
	if cfg.Notify.Backoff <= 0 {
		cfg.Notify.Backoff = 2 * time.Second
	}
	return nil
}
