// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"interview-copilot/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"` // non-streaming routes only
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	// AdminKey guards the /api/admin routes; empty disables them.
	AdminKey string `yaml:"admin_key"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type RateLimitConfig struct {
	Limit  int64         `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

type RedisConfig struct {
	URL       string          `yaml:"url"`
	Password  string          `yaml:"password"`
	DB        int             `yaml:"db"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// ProfileTTL bounds how stale a cached candidate profile may be.
	ProfileTTL time.Duration `yaml:"profile_ttl"`
}

type AIConfig struct {
	Provider        string        `yaml:"provider"` // gemini | openai
	GeminiKey       string        `yaml:"gemini_key"`
	GeminiModel     string        `yaml:"gemini_model"`
	OpenAIKey       string        `yaml:"openai_key"`
	OpenAIModel     string        `yaml:"openai_model"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	TokenEncoding   string        `yaml:"token_encoding"`
	HistoryTokens   int           `yaml:"history_tokens"`
}

type JobsConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"` // 0 = startup sweep only
	DedupWindow   time.Duration `yaml:"dedup_window"`
	HistoryLimit  int           `yaml:"history_limit"`
}

type RelayConfig struct {
	LiveURL          string        `yaml:"live_url"`
	LiveModel        string        `yaml:"live_model"`
	Language         string        `yaml:"language"` // BCP-47 code; empty lets the service detect
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	SampleRate       int           `yaml:"sample_rate"`
	MaxMessageBytes  int64         `yaml:"max_message_bytes"`
}

type SecurityConfig struct {
	// TranscriptKey seals raw transcripts at rest; empty stores them as is.
	TranscriptKey string `yaml:"transcript_key"`
}

type AlertsConfig struct {
	TelegramToken string  `yaml:"telegram_token"`
	ChatIDs       []int64 `yaml:"chat_ids"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Relay    RelayConfig    `yaml:"relay"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads .env files into the process environment, then parses
// the yaml file at path. A missing file is tolerated so deployments can be
// configured through the environment alone.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env.local wins over .env; neither overrides real env vars.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	var raw []byte
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			raw = b
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg, err := Parse(raw, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse builds a validated Config from yaml bytes and an env lookup.
func Parse(raw []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("DATABASE_URL", &cfg.Database.URL)
	str("REDIS_URL", &cfg.Redis.URL)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("GEMINI_API_KEY", &cfg.AI.GeminiKey)
	str("OPENAI_API_KEY", &cfg.AI.OpenAIKey)
	str("AI_PROVIDER", &cfg.AI.Provider)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("TELEGRAM_ALERT_TOKEN", &cfg.Alerts.TelegramToken)
	str("ADMIN_API_KEY", &cfg.Server.AdminKey)
	str("TRANSCRIPT_ENCRYPTION_KEY", &cfg.Security.TranscriptKey)

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("ALERT_CHAT_IDS"); ok && v != "" {
		ids := make([]int64, 0, 2)
		for _, part := range strings.Split(v, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return fmt.Errorf("env ALERT_CHAT_IDS: %w", err)
			}
			ids = append(ids, id)
		}
		cfg.Alerts.ChatIDs = ids
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.RateLimit.Limit <= 0 {
		cfg.Redis.RateLimit.Limit = 30
	}
	if cfg.Redis.RateLimit.Window <= 0 {
		cfg.Redis.RateLimit.Window = time.Minute
	}
	if cfg.Redis.ProfileTTL <= 0 {
		cfg.Redis.ProfileTTL = 5 * time.Minute
	}

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "gemini"
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-2.5-flash"
	}
	if cfg.AI.OpenAIModel == "" {
		cfg.AI.OpenAIModel = "gpt-4o-mini"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 25 * time.Second
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.TokenEncoding == "" {
		cfg.AI.TokenEncoding = "cl100k_base"
	}
	if cfg.AI.HistoryTokens <= 0 {
		cfg.AI.HistoryTokens = 1500
	}

	if cfg.Jobs.Workers <= 0 {
		cfg.Jobs.Workers = 8
	}
	if cfg.Jobs.QueueSize <= 0 {
		cfg.Jobs.QueueSize = 64
	}
	if cfg.Jobs.StaleAfter <= 0 {
		cfg.Jobs.StaleAfter = 30 * time.Second
	}
	if cfg.Jobs.DedupWindow <= 0 {
		cfg.Jobs.DedupWindow = 8 * time.Second
	}
	if cfg.Jobs.HistoryLimit <= 0 {
		cfg.Jobs.HistoryLimit = 5
	}

	if cfg.Relay.LiveURL == "" {
		cfg.Relay.LiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"
	}
	if cfg.Relay.LiveModel == "" {
		cfg.Relay.LiveModel = "models/gemini-2.0-flash-live-001"
	}
	if cfg.Relay.ReconnectDelay <= 0 {
		cfg.Relay.ReconnectDelay = 2 * time.Second
	}
	if cfg.Relay.HandshakeTimeout <= 0 {
		cfg.Relay.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Relay.SampleRate <= 0 {
		cfg.Relay.SampleRate = 16000
	}
	if cfg.Relay.MaxMessageBytes <= 0 {
		cfg.Relay.MaxMessageBytes = 1 << 20
	}
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	switch c.AI.Provider {
	case "gemini":
		if c.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required for provider gemini")
		}
	case "openai":
		if c.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required for provider openai")
		}
	default:
		return fmt.Errorf("ai.provider %q is not supported", c.AI.Provider)
	}
	// Every attempt is cut off before it can look stale; a single model call
	// must still fit in what is left for generation.
	if budget, _ := model.AttemptBudget(c.Jobs.StaleAfter); budget <= c.AI.Timeout {
		return fmt.Errorf("jobs.stale_after (%s) leaves %s for generation, which must exceed ai.timeout (%s)",
			c.Jobs.StaleAfter, budget, c.AI.Timeout)
	}
	if c.Relay.HandshakeTimeout <= 0 || c.Relay.ReconnectDelay <= 0 {
		return errors.New("relay timings must be positive")
	}
	return nil
}
