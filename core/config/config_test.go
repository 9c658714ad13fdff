package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode %q, want %q", cfg.Telegram.RunMode, RunModeLongpoll)
	}
	if cfg.Billing.TrialDays != 14 {
		t.Fatalf("trial days %d, want 14", cfg.Billing.TrialDays)
	}
	if cfg.Billing.RemindDays != 3 {
		t.Fatalf("remind days %d, want 3", cfg.Billing.RemindDays)
	}
	if cfg.Worker.CronSpec != DefaultCronSpec {
		t.Fatalf("cron spec %q, want %q", cfg.Worker.CronSpec, DefaultCronSpec)
	}
	if cfg.Notify.QueueSize != 256 || cfg.Notify.Workers != 2 || cfg.Notify.Backoff != 2*time.Second {
		t.Fatalf("notify defaults not applied: %+v", cfg.Notify)
	}
}

func TestNormalizeRequiresToken(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = ""
	if err := Normalize(cfg); err == nil {
		t.Fatalf("missing token must be rejected")
	}
}

func TestNormalizePollingAlias(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "Polling"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("alias not normalized, got %q", cfg.Telegram.RunMode)
	}
}

func TestNormalizeRejectsUnknownRunMode(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "carrier-pigeon"
	err := Normalize(cfg)
	if err == nil || !strings.Contains(err.Error(), "run_mode") {
		t.Fatalf("want run_mode error, got %v", err)
	}
}

func TestNormalizeWebhookRequirements(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = RunModeWebhook
	if err := Normalize(cfg); err == nil {
		t.Fatalf("webhook mode without url/listen/port must be rejected")
	}

	cfg = validConfig()
	cfg.Telegram.RunMode = RunModeWebhook
	cfg.Webhook = WebhookConfig{URL: "https://bot.example.com/hook", Listen: "0.0.0.0", Port: 8443}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("complete webhook config rejected: %v", err)
	}
}

func TestNormalizeRejectsNegativeBillingKnobs(t *testing.T) {
	cfg := validConfig()
	cfg.Billing.TrialDays = -1
	if err := Normalize(cfg); err == nil {
		t.Fatalf("negative trial days must be rejected")
	}
	cfg = validConfig()
	cfg.Billing.RemindDays = -1
	if err := Normalize(cfg); err == nil {
		t.Fatalf("negative remind days must be rejected")
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	cfg := validConfig()
	cfg.Billing.TrialDays = 30
	cfg.Billing.RemindDays = 7
	cfg.Worker.CronSpec = "0 */6 * * *"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Billing.TrialDays != 30 || cfg.Billing.RemindDays != 7 {
		t.Fatalf("explicit billing knobs overwritten: %+v", cfg.Billing)
	}
	if cfg.Worker.CronSpec != "0 */6 * * *" {
		t.Fatalf("explicit cron spec overwritten: %q", cfg.Worker.CronSpec)
	}
}
