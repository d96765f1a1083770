package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Engines     EngineConfig              `json:"engines" yaml:"engines"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address" yaml:"server_address"`
	UploadDir         string `json:"upload_dir" yaml:"upload_dir"`
	MaxUploadMB       int    `json:"max_upload_mb" yaml:"max_upload_mb"`
	MinWorkers        int    `json:"min_workers" yaml:"min_workers"`
	MaxWorkers        int    `json:"max_workers" yaml:"max_workers"`
	QueueSize         int    `json:"queue_size" yaml:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout" yaml:"worker_idle_timeout"` // minutes
	UploadTTL         int    `json:"upload_ttl" yaml:"upload_ttl"`                   // minutes
	CleanInterval     int    `json:"clean_interval" yaml:"clean_interval"`           // minutes
	CleanupOnFailure  bool   `json:"cleanup_on_failure" yaml:"cleanup_on_failure"`
	LogLevel          string `json:"log_level" yaml:"log_level"`
	LogFormat         string `json:"log_format" yaml:"log_format"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

type EngineConfig struct {
	Transcriber TranscriberConfig `json:"transcriber" yaml:"transcriber"`
	Summarizer  SummarizerConfig  `json:"summarizer" yaml:"summarizer"`
}

// TranscriberConfig selects and tunes the speech-to-text engine.
// Kind is "whisper" (whisper.cpp binary) or "gemini".
type TranscriberConfig struct {
	Kind           string `json:"kind" yaml:"kind"`
	BinaryPath     string `json:"binary_path" yaml:"binary_path"`
	FFmpegPath     string `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	ModelPath      string `json:"model_path" yaml:"model_path"`
	Model          string `json:"model" yaml:"model"`
	Language       string `json:"language" yaml:"language"`
	Threads        int    `json:"threads" yaml:"threads"`
	MaxConcurrent  int    `json:"max_concurrent" yaml:"max_concurrent"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// SummarizerConfig selects the chat provider used for summaries.
// LengthPolicy is "proportional" or "quarter".
type SummarizerConfig struct {
	Provider       string `json:"provider" yaml:"provider"`
	Model          string `json:"model" yaml:"model"`
	LengthPolicy   string `json:"length_policy" yaml:"length_policy"`
	MaxConcurrent  int    `json:"max_concurrent" yaml:"max_concurrent"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

const defaultConfigPath = "config.json"

// Load reads configuration from the provided path (defaults to config.json).
// A missing file yields the default configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := &Config{}
	data, err := os.ReadFile(absPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// fall through with defaults
	case err != nil:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	default:
		if err := decode(absPath, data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	cfg.resolvePaths(filepath.Dir(absPath))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = ":9099"
	}
	if b.UploadDir == "" {
		b.UploadDir = "uploads"
	}
	if b.MaxUploadMB <= 0 {
		b.MaxUploadMB = 100
	}
	if b.MinWorkers <= 0 {
		b.MinWorkers = 1
	}
	if b.MaxWorkers < b.MinWorkers {
		b.MaxWorkers = b.MinWorkers
	}
	if b.QueueSize <= 0 {
		b.QueueSize = 32
	}
	if b.UploadTTL <= 0 {
		b.UploadTTL = 24 * 60
	}
	if b.CleanInterval <= 0 {
		b.CleanInterval = 60
	}
	if b.LogLevel == "" {
		b.LogLevel = "info"
	}
	if b.LogFormat == "" {
		b.LogFormat = "text"
	}

	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if _, ok := c.Databases["sqlite3"]; !ok {
		c.Databases["sqlite3"] = DatabaseConfig{DSN: "data/audiodigest.db"}
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}

	t := &c.Engines.Transcriber
	if t.Kind == "" {
		t.Kind = "whisper"
	}
	if t.BinaryPath == "" {
		t.BinaryPath = "whisper-cli"
	}
	if t.Model == "" {
		t.Model = "gemini-2.5-flash"
	}
	if t.Language == "" {
		t.Language = "auto"
	}
	if t.Threads <= 0 {
		t.Threads = 4
	}
	if t.MaxConcurrent <= 0 {
		t.MaxConcurrent = 1
	}

	s := &c.Engines.Summarizer
	if s.Provider == "" {
		s.Provider = "openai"
	}
	if s.LengthPolicy == "" {
		s.LengthPolicy = "proportional"
	}
	if s.MaxConcurrent <= 0 {
		s.MaxConcurrent = 1
	}
}

// applyEnv fills provider API keys from AUDIODIGEST_<PROVIDER>_API_KEY when unset.
func (c *Config) applyEnv() {
	names := []string{"openai", "claude", "gemini"}
	for name := range c.Providers {
		names = append(names, name)
	}
	for _, name := range names {
		key := os.Getenv("AUDIODIGEST_" + strings.ToUpper(name) + "_API_KEY")
		if key == "" {
			continue
		}
		p := c.Providers[name]
		if p.APIKey == "" {
			p.APIKey = key
			c.Providers[name] = p
		}
	}
}

func (c *Config) resolvePaths(base string) {
	if !filepath.IsAbs(c.BasicConfig.UploadDir) {
		c.BasicConfig.UploadDir = filepath.Join(base, c.BasicConfig.UploadDir)
	}
	if db, ok := c.Databases["sqlite3"]; ok && db.DSN != "" && db.DSN != ":memory:" &&
		!strings.HasPrefix(db.DSN, "file:") && !filepath.IsAbs(db.DSN) {
		db.DSN = filepath.Join(base, db.DSN)
		c.Databases["sqlite3"] = db
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Engines.Transcriber.Kind {
	case "whisper", "gemini":
	default:
		return fmt.Errorf("unsupported transcriber kind: %s", c.Engines.Transcriber.Kind)
	}
	switch c.Engines.Summarizer.Provider {
	case "openai", "claude", "gemini":
	default:
		return fmt.Errorf("unsupported summarizer provider: %s", c.Engines.Summarizer.Provider)
	}
	switch c.Engines.Summarizer.LengthPolicy {
	case "proportional", "quarter":
	default:
		return fmt.Errorf("unsupported length policy: %s", c.Engines.Summarizer.LengthPolicy)
	}
	if c.Redis.Enabled && c.Redis.Port < 0 {
		return fmt.Errorf("invalid redis port: %d", c.Redis.Port)
	}
	return nil
}

// Provider returns the named provider section, falling back to an empty one.
func (c *Config) Provider(name string) ProviderConfig {
	if c == nil || c.Providers == nil {
		return ProviderConfig{}
	}
	return c.Providers[name]
}
