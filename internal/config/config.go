package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RecordStore string `mapstructure:"RECORD_STORE"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	OpenAIAPIKey         string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel          string        `mapstructure:"OPENAI_MODEL"`
	OpenAIBaseURL        string        `mapstructure:"OPENAI_BASE_URL"`
	OracleMaxConcurrency int64         `mapstructure:"ORACLE_MAX_CONCURRENCY"`
	OracleTimeout        time.Duration `mapstructure:"ORACLE_TIMEOUT"`
	OracleMaxRetries     uint          `mapstructure:"ORACLE_MAX_RETRIES"`

	TurnLockWait    time.Duration `mapstructure:"TURN_LOCK_WAIT"`
	TurnLockTTL     time.Duration `mapstructure:"TURN_LOCK_TTL"`
	DedupTTL        time.Duration `mapstructure:"DEDUP_TTL"`
	DedupMaxEntries int           `mapstructure:"DEDUP_MAX_ENTRIES"`
	ReplyCooldown   time.Duration `mapstructure:"REPLY_COOLDOWN"`

	WhatsAppAccessToken   string `mapstructure:"WHATSAPP_ACCESS_TOKEN"`
	WhatsAppPhoneNumberID string `mapstructure:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppVerifyToken   string `mapstructure:"WHATSAPP_VERIFY_TOKEN"`
	WhatsAppAppSecret     string `mapstructure:"WHATSAPP_APP_SECRET"`
	WhatsAppAPIBase       string `mapstructure:"WHATSAPP_API_BASE"`

	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	ReportFontPath string `mapstructure:"REPORT_FONT_PATH"`
	ReportWorkers  int    `mapstructure:"REPORT_WORKERS"`
}

var defaults = map[string]any{
	"PORT":                   "8000",
	"ENV":                    "development",
	"DB_MAX_CONNS":           10,
	"DB_MIN_CONNS":           2,
	"RECORD_STORE":           StorePostgres,
	"OPENAI_MODEL":           "gpt-4o-mini",
	"ORACLE_MAX_CONCURRENCY": 8,
	"ORACLE_TIMEOUT":         "20s",
	"ORACLE_MAX_RETRIES":     3,
	"TURN_LOCK_WAIT":         "60s",
	"TURN_LOCK_TTL":          "2m",
	"DEDUP_TTL":              "10m",
	"DEDUP_MAX_ENTRIES":      10000,
	"REPLY_COOLDOWN":         "3s",
	"WHATSAPP_API_BASE":      "https://graph.facebook.com/v18.0",
	"AUTH_ISSUER":            "intake-server",
	"CORS_ORIGINS":           "http://localhost:3000",
	"RATE_LIMIT_RPS":         5,
	"RATE_LIMIT_BURST":       10,
	"REQUEST_TIMEOUT":        "120s",
	"REPORT_WORKERS":         2,
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "RECORD_STORE", "REDIS_URL",
	"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
	"ORACLE_MAX_CONCURRENCY", "ORACLE_TIMEOUT", "ORACLE_MAX_RETRIES",
	"TURN_LOCK_WAIT", "TURN_LOCK_TTL", "DEDUP_TTL", "DEDUP_MAX_ENTRIES", "REPLY_COOLDOWN",
	"WHATSAPP_ACCESS_TOKEN", "WHATSAPP_PHONE_NUMBER_ID", "WHATSAPP_VERIFY_TOKEN",
	"WHATSAPP_APP_SECRET", "WHATSAPP_API_BASE",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT", "REPORT_FONT_PATH", "REPORT_WORKERS",
}

// Load reads .env when present, then the environment, which wins.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = nil
	for _, o := range strings.Split(v.GetString("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	cfg.RecordStore = strings.ToLower(strings.TrimSpace(cfg.RecordStore))
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.RecordStore {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when RECORD_STORE is %q", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("RECORD_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.RecordStore)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"ORACLE_TIMEOUT", c.OracleTimeout},
		{"TURN_LOCK_WAIT", c.TurnLockWait},
		{"TURN_LOCK_TTL", c.TurnLockTTL},
		{"DEDUP_TTL", c.DedupTTL},
		{"REQUEST_TIMEOUT", c.RequestTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.d)
		}
	}
	if c.ReplyCooldown < 0 {
		return fmt.Errorf("REPLY_COOLDOWN must not be negative, got %s", c.ReplyCooldown)
	}
	if c.OracleMaxConcurrency < 1 || c.DedupMaxEntries < 1 || c.ReportWorkers < 1 || c.RateLimitBurst < 1 {
		return fmt.Errorf("ORACLE_MAX_CONCURRENCY, DEDUP_MAX_ENTRIES, REPORT_WORKERS and RATE_LIMIT_BURST must be at least 1")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive, got %v", c.RateLimitRPS)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if c.IsProduction() {
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
		}
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes")
		}
		if c.WhatsAppAppSecret == "" {
			return fmt.Errorf("WHATSAPP_APP_SECRET is required in production")
		}
	}
	return nil
}

// WhatsAppEnabled reports whether outbound WhatsApp credentials are set.
func (c *Config) WhatsAppEnabled() bool {
	return c.WhatsAppAccessToken != "" && c.WhatsAppPhoneNumberID != ""
}
