// Package config provides application configuration. Values come from an
// optional YAML file overlaid by environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Modes for receiving Telegram updates.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Config holds all application configuration.
type Config struct {
	API            APIConfig      `yaml:"api"`
	Telegram       TelegramConfig `yaml:"telegram"`
	DBPath         string         `yaml:"db_path"`
	CDNRoot        string         `yaml:"cdn_root"`
	EANFrontendURL string         `yaml:"ean_frontend_url"`
	HTTPTimeout    time.Duration  `yaml:"http_timeout"`
}

// APIConfig describes the loyalty backend. The version strings must match
// the app revision the backend expects; they change on backend deploys.
type APIConfig struct {
	Root                    string   `yaml:"root"`
	BrandName               string   `yaml:"brand_name"`
	AnonymousCSRF           string   `yaml:"anonymous_csrf"`
	ModuleVersion           string   `yaml:"module_version"`
	SMSAPIVersion           string   `yaml:"sms_api_version"`
	NextStepAPIVersion      string   `yaml:"next_step_api_version"`
	CreateAccountAPIVersion string   `yaml:"create_account_api_version"`
	LoginAPIVersion         string   `yaml:"login_api_version"`
	OfferSyncAPIVersion     string   `yaml:"offer_sync_api_version"`
	LegalDocumentIDs        []string `yaml:"legal_document_ids"`
	RegisterLocale          string   `yaml:"register_locale"`
	RegisterStoreID         string   `yaml:"register_store_id"`
}

// TelegramConfig describes the bot identity and update source.
type TelegramConfig struct {
	BotToken          string  `yaml:"bot_token"`
	AdminIDs          []int64 `yaml:"admin_ids"`
	Mode              string  `yaml:"mode"`
	WebhookListenAddr string  `yaml:"webhook_listen_addr"`
	WebhookPublicURL  string  `yaml:"webhook_public_url"`
	WebhookSecret     string  `yaml:"webhook_secret"`
}

// Load reads the YAML file named by CONFIG_PATH (default promobot.yaml, may
// be absent), applies environment overrides and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:      "./data/promobot.db",
		HTTPTimeout: 30 * time.Second,
		Telegram:    TelegramConfig{Mode: ModePolling},
	}

	path := getEnv("CONFIG_PATH", "promobot.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg.API.Root = getEnv("API_ROOT", cfg.API.Root)
	cfg.API.BrandName = getEnv("BRAND_NAME", cfg.API.BrandName)
	cfg.API.AnonymousCSRF = getEnv("ANONYMOUS_CSRF", cfg.API.AnonymousCSRF)
	cfg.API.ModuleVersion = getEnv("MODULE_VERSION", cfg.API.ModuleVersion)
	cfg.API.SMSAPIVersion = getEnv("SMS_API_VERSION", cfg.API.SMSAPIVersion)
	cfg.API.NextStepAPIVersion = getEnv("NEXT_STEP_API_VERSION", cfg.API.NextStepAPIVersion)
	cfg.API.CreateAccountAPIVersion = getEnv("CREATE_ACCOUNT_API_VERSION", cfg.API.CreateAccountAPIVersion)
	cfg.API.LoginAPIVersion = getEnv("LOGIN_API_VERSION", cfg.API.LoginAPIVersion)
	cfg.API.OfferSyncAPIVersion = getEnv("OFFER_SYNC_API_VERSION", cfg.API.OfferSyncAPIVersion)
	cfg.API.LegalDocumentIDs = getEnvList("LEGAL_DOCUMENT_IDS", cfg.API.LegalDocumentIDs)
	cfg.API.RegisterLocale = getEnv("REGISTER_LOCALE", cfg.API.RegisterLocale)
	cfg.API.RegisterStoreID = getEnv("REGISTER_STORE_ID", cfg.API.RegisterStoreID)

	cfg.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.Telegram.BotToken)
	cfg.Telegram.Mode = getEnv("TELEGRAM_MODE", cfg.Telegram.Mode)
	cfg.Telegram.WebhookListenAddr = getEnv("WEBHOOK_LISTEN_ADDR", cfg.Telegram.WebhookListenAddr)
	cfg.Telegram.WebhookPublicURL = getEnv("WEBHOOK_PUBLIC_URL", cfg.Telegram.WebhookPublicURL)
	cfg.Telegram.WebhookSecret = getEnv("WEBHOOK_SECRET", cfg.Telegram.WebhookSecret)

	adminIDs, err := getEnvInt64List("TELEGRAM_ADMIN_IDS", cfg.Telegram.AdminIDs)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ADMIN_IDS: %w", err)
	}
	cfg.Telegram.AdminIDs = adminIDs

	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.CDNRoot = getEnv("CDN_ROOT", cfg.CDNRoot)
	cfg.EANFrontendURL = getEnv("EAN_FRONTEND_URL", cfg.EANFrontendURL)

	timeout, err := getEnvDuration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.API.Root == "" {
		return fmt.Errorf("API_ROOT cannot be empty")
	}
	if c.API.BrandName == "" {
		return fmt.Errorf("BRAND_NAME cannot be empty")
	}
	if c.API.AnonymousCSRF == "" {
		return fmt.Errorf("ANONYMOUS_CSRF cannot be empty")
	}
	if c.API.ModuleVersion == "" {
		return fmt.Errorf("MODULE_VERSION cannot be empty")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN cannot be empty")
	}
	if len(c.Telegram.AdminIDs) == 0 {
		return fmt.Errorf("TELEGRAM_ADMIN_IDS cannot be empty")
	}
	switch c.Telegram.Mode {
	case ModePolling:
	case ModeWebhook:
		if c.Telegram.WebhookListenAddr == "" {
			return fmt.Errorf("WEBHOOK_LISTEN_ADDR cannot be empty in webhook mode")
		}
		if c.Telegram.WebhookPublicURL == "" {
			return fmt.Errorf("WEBHOOK_PUBLIC_URL cannot be empty in webhook mode")
		}
	default:
		return fmt.Errorf("TELEGRAM_MODE must be %q or %q", ModePolling, ModeWebhook)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt64List(key string, fallback []int64) ([]int64, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	var out []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	return d, nil
}
