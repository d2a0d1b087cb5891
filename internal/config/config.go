// Package config loads the monitor configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrInvalidThreshold    = errors.New("dedup.threshold must be within (0, 1]")
	ErrInvalidIndex        = errors.New("dedup.index must be 'linear' or 'token'")
	ErrInvalidWorkers      = errors.New("scan.workers must be at least 1")
	ErrInvalidTimeout      = errors.New("scan.timeout_sec must be at least 1")
	ErrMissingDataDir      = errors.New("store.data_dir is required")
	ErrInvalidTimezone     = errors.New("store.timezone is not a known location")
	ErrInvalidProvider     = errors.New("llm.provider must be 'gemini' or 'openai'")
	ErrInvalidDigestSize   = errors.New("email.top_n must be at least 1")
	ErrInvalidRetention    = errors.New("dashboard.retention_days must be at least 1")
	ErrMissingGeminiAPIKey = errors.New("GEMINI_API_KEY is required for the gemini provider")
	ErrMissingOpenAIAPIKey = errors.New("OPENAI_API_KEY is required for the openai provider")
	ErrMissingEmailAuth    = errors.New("EMAIL_ADDRESS and EMAIL_PASSWORD are required to send email")
)

type Config struct {
	Scan      ScanConfig      `yaml:"scan"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Store     StoreConfig     `yaml:"store"`
	LLM       LLMConfig       `yaml:"llm"`
	Email     EmailConfig     `yaml:"email"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	NATS      NATSConfig      `yaml:"nats"`

	Debug bool `yaml:"-"`
}

type ScanConfig struct {
	SourcesPath          string `yaml:"sources_path"`
	Workers              int    `yaml:"workers"`
	TimeoutSec           int    `yaml:"timeout_sec"`
	MaxArticlesPerSource int    `yaml:"max_articles_per_source"`
	MaxAgeHours          int    `yaml:"max_age_hours"`
	UserAgent            string `yaml:"user_agent"`
}

type DedupConfig struct {
	Threshold float64 `yaml:"threshold"`
	Index     string  `yaml:"index"` // linear | token
}

type StoreConfig struct {
	DataDir  string `yaml:"data_dir"`
	Timezone string `yaml:"timezone"`
}

type LLMConfig struct {
	Provider          string `yaml:"provider"` // gemini | openai
	Model             string `yaml:"model"`
	BaseURL           string `yaml:"base_url"`
	TargetLanguage    string `yaml:"target_language"`
	MaxRPM            int    `yaml:"max_rpm"`
	MaxRequests       int    `yaml:"max_requests"` // per run, 0 = unlimited
	FetchFullArticles bool   `yaml:"fetch_full_articles"`
	MaxContentChars   int    `yaml:"max_content_chars"`
	RetryAttempts     int    `yaml:"retry_attempts"`
	RetryDelaySec     int    `yaml:"retry_delay_sec"`

	GeminiAPIKey string `yaml:"-"`
	OpenAIAPIKey string `yaml:"-"`
}

type EmailConfig struct {
	Enabled        bool   `yaml:"enabled"`
	SMTPHost       string `yaml:"smtp_host"`
	SMTPPort       int    `yaml:"smtp_port"`
	SubjectPrefix  string `yaml:"subject_prefix"`
	TopN           int    `yaml:"top_n"`
	RecipientsPath string `yaml:"recipients_path"`
	DashboardURL   string `yaml:"dashboard_url"`

	Address  string `yaml:"-"`
	Password string `yaml:"-"`
}

type TelegramConfig struct {
	Enabled bool `yaml:"enabled"`

	Token  string `yaml:"-"`
	ChatID string `yaml:"-"`
}

type DashboardConfig struct {
	Port          string `yaml:"port"`
	RetentionDays int    `yaml:"retention_days"`
	TopN          int    `yaml:"top_n"`
}

type ScheduleConfig struct {
	Scan   string `yaml:"scan"`
	Digest string `yaml:"digest"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			SourcesPath:          "configs/sources.yaml",
			Workers:              8,
			TimeoutSec:           12,
			MaxArticlesPerSource: 20,
			MaxAgeHours:          48,
			UserAgent:            "AI-Cyber-Monitor/1.0 (RSS Reader)",
		},
		Dedup: DedupConfig{
			Threshold: 0.82,
			Index:     "linear",
		},
		Store: StoreConfig{
			DataDir:  "data",
			Timezone: "UTC",
		},
		LLM: LLMConfig{
			Provider:          "gemini",
			Model:             "gemini-1.5-flash",
			TargetLanguage:    "Hebrew",
			MaxRPM:            14,
			FetchFullArticles: true,
			MaxContentChars:   8000,
			RetryAttempts:     3,
			RetryDelaySec:     5,
		},
		Email: EmailConfig{
			SMTPHost:       "smtp.gmail.com",
			SMTPPort:       465,
			SubjectPrefix:  "AI & Cyber Daily",
			TopN:           15,
			RecipientsPath: "configs/recipients.yaml",
		},
		Dashboard: DashboardConfig{
			Port:          "8080",
			RetentionDays: 30,
			TopN:          20,
		},
		Schedule: ScheduleConfig{
			Scan:   "0 */2 * * *",
			Digest: "0 6 * * *",
		},
		NATS: NATSConfig{
			Subject: "monitor.day.updated",
		},
	}
}

// Load reads path (missing file means defaults) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.LLM.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	c.LLM.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.LLM.Provider = getEnvOrDefault("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = getEnvOrDefault("LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.MaxRequests = getEnvIntOrDefault("MAX_LLM_REQUESTS", c.LLM.MaxRequests)

	c.Email.Address = os.Getenv("EMAIL_ADDRESS")
	c.Email.Password = os.Getenv("EMAIL_PASSWORD")

	c.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")
	c.Telegram.ChatID = os.Getenv("TELEGRAM_CHAT_ID")

	c.Store.DataDir = getEnvOrDefault("DATA_DIR", c.Store.DataDir)
	c.Scan.SourcesPath = getEnvOrDefault("SOURCES_PATH", c.Scan.SourcesPath)
	c.NATS.URL = getEnvOrDefault("NATS_URL", c.NATS.URL)
	c.Dashboard.Port = getEnvOrDefault("PORT", c.Dashboard.Port)

	if v := os.Getenv("DEDUP_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Dedup.Threshold = f
		}
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		c.Debug = true
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Validate checks settings every command needs. Credentials are checked by
// RequireLLM and RequireEmail since only some commands use them.
func (c *Config) Validate() error {
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		return ErrInvalidThreshold
	}
	if c.Dedup.Index != "linear" && c.Dedup.Index != "token" {
		return fmt.Errorf("%w: %q", ErrInvalidIndex, c.Dedup.Index)
	}
	if c.Scan.Workers < 1 {
		return ErrInvalidWorkers
	}
	if c.Scan.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}
	if strings.TrimSpace(c.Store.DataDir) == "" {
		return ErrMissingDataDir
	}
	if _, err := time.LoadLocation(c.Store.Timezone); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, c.Store.Timezone)
	}
	if c.LLM.Provider != "gemini" && c.LLM.Provider != "openai" {
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.LLM.Provider)
	}
	if c.Email.TopN < 1 {
		return ErrInvalidDigestSize
	}
	if c.Dashboard.RetentionDays < 1 {
		return ErrInvalidRetention
	}
	return nil
}

// RequireLLM reports whether the selected provider has credentials.
func (c *Config) RequireLLM() error {
	switch c.LLM.Provider {
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			return ErrMissingGeminiAPIKey
		}
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			return ErrMissingOpenAIAPIKey
		}
	}
	return nil
}

func (c *Config) RequireEmail() error {
	if c.Email.Address == "" || c.Email.Password == "" {
		return ErrMissingEmailAuth
	}
	return nil
}

// Location returns the time zone used to bucket articles into days.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Store.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Scan.TimeoutSec) * time.Second
}

func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.Scan.MaxAgeHours) * time.Hour
}
