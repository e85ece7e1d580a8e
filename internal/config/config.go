// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults applied when the matching variable is unset.
const (
	DefaultListenAddr          = "127.0.0.1:8080"
	DefaultDBPath              = "gamepay.db"
	DefaultBankBaseURL         = "https://public-api.sandbox.bunq.com/v1"
	DefaultDeviceDescription   = "gamepay"
	DefaultPhoneSurchargeCents = 20
	DefaultRecheckAfter        = 10 * time.Minute
	DefaultWebhookQueueSize    = 256
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string

	BankBaseURL       string
	DeviceDescription string
	KDFIterations     int // Zero selects the vault default.

	TelegramBotToken string // Empty disables Telegram delivery.
	SMSGatewayURL    string // Empty disables SMS delivery.

	PhoneSurchargeCents int64

	SweepPrincipalID int64
	SweepPassword    string
	SweepInterval    time.Duration // Zero disables the periodic sweep.
	RecheckAfter     time.Duration
	WebhookQueueSize int
}

// HasPeriodicSweep returns true when a principal, its vault password and an
// interval are all configured.
func (c *Config) HasPeriodicSweep() bool {
	return c.SweepPrincipalID != 0 && c.SweepPassword != "" && c.SweepInterval > 0
}

// Load reads configuration from environment variables and returns a validated Config.
// Every variable is optional. Optional variables with defaults:
// GAMEPAY_LISTEN_ADDR (127.0.0.1:8080), GAMEPAY_DB_PATH (gamepay.db),
// GAMEPAY_BANK_BASE_URL (bunq sandbox), GAMEPAY_BANK_DEVICE_DESCRIPTION (gamepay),
// GAMEPAY_PHONE_SURCHARGE_CENTS (20), GAMEPAY_RECHECK_AFTER (10m),
// GAMEPAY_WEBHOOK_QUEUE_SIZE (256). The periodic sweep needs
// GAMEPAY_SWEEP_PRINCIPAL_ID, GAMEPAY_SWEEP_PASSWORD and GAMEPAY_SWEEP_INTERVAL.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:        stringEnv("GAMEPAY_LISTEN_ADDR", DefaultListenAddr),
		DBPath:            stringEnv("GAMEPAY_DB_PATH", DefaultDBPath),
		BankBaseURL:       stringEnv("GAMEPAY_BANK_BASE_URL", DefaultBankBaseURL),
		DeviceDescription: stringEnv("GAMEPAY_BANK_DEVICE_DESCRIPTION", DefaultDeviceDescription),
		TelegramBotToken:  os.Getenv("GAMEPAY_TELEGRAM_BOT_TOKEN"),
		SMSGatewayURL:     os.Getenv("GAMEPAY_SMS_GATEWAY_URL"),
		SweepPassword:     os.Getenv("GAMEPAY_SWEEP_PASSWORD"),
	}

	var err error
	if cfg.KDFIterations, err = intEnv("GAMEPAY_KDF_ITERATIONS", 0); err != nil {
		return nil, err
	}
	if cfg.WebhookQueueSize, err = intEnv("GAMEPAY_WEBHOOK_QUEUE_SIZE", DefaultWebhookQueueSize); err != nil {
		return nil, err
	}
	if cfg.PhoneSurchargeCents, err = int64Env("GAMEPAY_PHONE_SURCHARGE_CENTS", DefaultPhoneSurchargeCents); err != nil {
		return nil, err
	}
	if cfg.SweepPrincipalID, err = int64Env("GAMEPAY_SWEEP_PRINCIPAL_ID", 0); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = durationEnv("GAMEPAY_SWEEP_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.RecheckAfter, err = durationEnv("GAMEPAY_RECHECK_AFTER", DefaultRecheckAfter); err != nil {
		return nil, err
	}

	if cfg.PhoneSurchargeCents < 0 {
		return nil, fmt.Errorf("GAMEPAY_PHONE_SURCHARGE_CENTS must not be negative, got %d", cfg.PhoneSurchargeCents)
	}
	if cfg.WebhookQueueSize <= 0 {
		return nil, fmt.Errorf("GAMEPAY_WEBHOOK_QUEUE_SIZE must be positive, got %d", cfg.WebhookQueueSize)
	}
	if cfg.SweepInterval < 0 || cfg.RecheckAfter <= 0 {
		return nil, fmt.Errorf("GAMEPAY_SWEEP_INTERVAL and GAMEPAY_RECHECK_AFTER must be positive")
	}
	if cfg.SweepInterval > 0 && (cfg.SweepPrincipalID == 0 || cfg.SweepPassword == "") {
		return nil, fmt.Errorf("GAMEPAY_SWEEP_INTERVAL requires GAMEPAY_SWEEP_PRINCIPAL_ID and GAMEPAY_SWEEP_PASSWORD")
	}

	return cfg, nil
}

func stringEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return parsed, nil
}

func int64Env(key string, def int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return parsed, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return parsed, nil
}
