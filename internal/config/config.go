package config

import "time"

// Config holds all application configuration.
type Config struct {
	Database   Database   `mapstructure:"database"`
	Extractor  Extractor  `mapstructure:"extractor"`
	Chunker    Chunker    `mapstructure:"chunker"`
	Summarizer Summarizer `mapstructure:"summarizer"`
	Vapi       Vapi       `mapstructure:"vapi"`
	Archive    Archive    `mapstructure:"archive"`
	Worker     Worker     `mapstructure:"worker"`
	Server     Server     `mapstructure:"server"`
	Logging    Logging    `mapstructure:"logging"`
}

// Database holds the relational store configuration. An empty DSN selects
// the in-memory store (dev and test runs only).
type Database struct {
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// Extractor holds page extraction configuration.
type Extractor struct {
	Renderer        string        `mapstructure:"renderer"` // "browser" or "static"
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	MaxContentChars int           `mapstructure:"max_content_chars"`
}

// Chunker holds content splitting configuration.
type Chunker struct {
	MaxChunkChars      int `mapstructure:"max_chunk_chars"`
	MinChunkChars      int `mapstructure:"min_chunk_chars"`
	WindowOverlap      int `mapstructure:"window_overlap"`
	MaxChunksPerSource int `mapstructure:"max_chunks_per_source"`
	MaxTotalChars      int `mapstructure:"max_total_chars"`
}

// Summarizer holds the chat-completions collaborator configuration.
type Summarizer struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Vapi holds assistant platform file API configuration.
type Vapi struct {
	Enabled  bool          `mapstructure:"enabled"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	OrgRate  float64       `mapstructure:"org_rate"`  // requests per second per organization
	OrgBurst int           `mapstructure:"org_burst"` // burst size per organization
}

// Archive holds S3/MinIO raw-page archive configuration. Disabled when the
// endpoint is empty.
type Archive struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// Worker holds orchestrator worker pool configuration.
type Worker struct {
	Count          int           `mapstructure:"count"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
}

// Server holds submission API configuration.
type Server struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Logging holds log output configuration.
type Logging struct {
	File string `mapstructure:"file"` // optional JSON sink alongside stderr
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Extractor: Extractor{
			Renderer:        "browser",
			Timeout:         45 * time.Second,
			UserAgent:       "recepd/1.0",
			MaxContentChars: 200_000,
		},
		Chunker: Chunker{
			MaxChunkChars:      100_000,
			MinChunkChars:      200,
			WindowOverlap:      200,
			MaxChunksPerSource: 10,
			MaxTotalChars:      1_000_000,
		},
		Summarizer: Summarizer{
			Enabled: false, // requires an API key
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Vapi: Vapi{
			Enabled:  false, // requires an API key
			BaseURL:  "https://api.vapi.ai",
			Timeout:  30 * time.Second,
			OrgRate:  2,
			OrgBurst: 1,
		},
		Archive: Archive{
			Bucket: "recepd-archive",
		},
		Worker: Worker{
			Count:          4,
			MaxAttempts:    3,
			RetryBaseDelay: 2 * time.Second,
			PollInterval:   time.Second,
			TaskTimeout:    5 * time.Minute,
			StaleAfter:     15 * time.Minute,
		},
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}
