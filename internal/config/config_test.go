package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "absent.json"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":9099" {
		t.Fatalf("unexpected server address %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.BasicConfig.UploadDir != filepath.Join(dir, "uploads") {
		t.Fatalf("upload dir not resolved: %q", cfg.BasicConfig.UploadDir)
	}
	if got := cfg.Databases["sqlite3"].DSN; got != filepath.Join(dir, "data/audiodigest.db") {
		t.Fatalf("sqlite dsn not resolved: %q", got)
	}
	if cfg.Engines.Summarizer.LengthPolicy != "proportional" {
		t.Fatalf("unexpected default policy %q", cfg.Engines.Summarizer.LengthPolicy)
	}
	if cfg.Engines.Transcriber.MaxConcurrent != 1 || cfg.Engines.Summarizer.MaxConcurrent != 1 {
		t.Fatalf("engines should be serialized by default")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"basic_config": {"server_address": ":8000", "max_workers": 4, "min_workers": 2, "cleanup_on_failure": true},
		"databases": {"sqlite3": {"dsn": ":memory:"}},
		"providers": {"claude": {"model": "claude-sonnet"}},
		"engines": {
			"transcriber": {"kind": "gemini", "timeout_seconds": 30},
			"summarizer": {"provider": "claude", "length_policy": "quarter"}
		}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AUDIODIGEST_CLAUDE_API_KEY", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":8000" || cfg.BasicConfig.MaxWorkers != 4 || !cfg.BasicConfig.CleanupOnFailure {
		t.Fatalf("basic config mismatch: %+v", cfg.BasicConfig)
	}
	if cfg.Databases["sqlite3"].DSN != ":memory:" {
		t.Fatalf("memory dsn must not be rewritten")
	}
	if cfg.Engines.Transcriber.Kind != "gemini" || cfg.Engines.Transcriber.TimeoutSeconds != 30 {
		t.Fatalf("transcriber config mismatch: %+v", cfg.Engines.Transcriber)
	}
	if p := cfg.Provider("claude"); p.APIKey != "secret" || p.Model != "claude-sonnet" {
		t.Fatalf("provider env fallback failed: %+v", p)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "basic_config:\n  upload_dir: /var/lib/audio\n  queue_size: 3\nengines:\n  summarizer:\n    provider: gemini\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BasicConfig.UploadDir != "/var/lib/audio" || cfg.BasicConfig.QueueSize != 3 {
		t.Fatalf("yaml basic config mismatch: %+v", cfg.BasicConfig)
	}
	if cfg.Engines.Summarizer.Provider != "gemini" {
		t.Fatalf("yaml summarizer mismatch: %+v", cfg.Engines.Summarizer)
	}
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"engines":{"summarizer":{"length_policy":"half"}}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}
