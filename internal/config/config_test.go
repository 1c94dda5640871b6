package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"callpipe/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("CALLPIPE_STORAGE_TOKEN", "storage-token")
	t.Setenv("CALLPIPE_PROCESSING_TOKEN", "")
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "callpipe")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.HistoryPath() != filepath.Join(wantState, "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.HistoryPath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7489" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Storage.APIToken != "storage-token" {
		t.Fatalf("expected storage token from env, got %q", cfg.Storage.APIToken)
	}
	if cfg.Processing.APIToken != "storage-token" {
		t.Fatalf("expected processing token to fall back to storage token, got %q", cfg.Processing.APIToken)
	}
	if cfg.Processing.BaseURL != cfg.Storage.BaseURL {
		t.Fatalf("expected processing base url to default to storage, got %q", cfg.Processing.BaseURL)
	}
	if !cfg.Defaults.AutoProcess {
		t.Fatal("expected auto processing enabled by default")
	}
	if cfg.ChunkSize() != 256*1024 {
		t.Fatalf("unexpected chunk size: %d", cfg.ChunkSize())
	}
	if cfg.PollInterval().Seconds() != 3 {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("CALLPIPE_STORAGE_TOKEN", "")
	t.Setenv("CALLPIPE_PROCESSING_TOKEN", "")

	configPath := filepath.Join(tempHome, "config.toml")
	payload := config.Default()
	payload.Paths.StateDir = "~/state"
	payload.Storage.BaseURL = "https://storage.example.com/"
	payload.Storage.APIToken = "abc"
	payload.Storage.MaxConcurrentUploads = 1
	payload.Processing.BaseURL = "https://pipeline.example.com"
	payload.Processing.APIToken = "def"
	payload.Processing.MaxConsecutiveFailures = 2
	payload.Defaults.Destination = "project-7"
	payload.Logging.Format = "JSON"

	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q, got %q exists=%v", configPath, resolved, exists)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Storage.BaseURL != "https://storage.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Storage.BaseURL)
	}
	if cfg.Processing.APIToken != "def" {
		t.Fatalf("unexpected processing token: %q", cfg.Processing.APIToken)
	}
	if cfg.Defaults.Destination != "project-7" {
		t.Fatalf("unexpected default destination: %q", cfg.Defaults.Destination)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lower-cased log format, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"storage scheme", func(c *config.Config) { c.Storage.BaseURL = "ftp://host" }, "storage.base_url"},
		{"poll interval", func(c *config.Config) { c.Processing.PollIntervalSeconds = 0 }, "processing.poll_interval_seconds"},
		{"query timeout", func(c *config.Config) { c.Processing.QueryTimeoutSeconds = -1 }, "processing.query_timeout_seconds"},
		{"failure cap", func(c *config.Config) { c.Processing.MaxConsecutiveFailures = 0 }, "processing.max_consecutive_failures"},
		{"upload concurrency", func(c *config.Config) { c.Storage.MaxConcurrentUploads = -1 }, "storage.max_concurrent_uploads must be zero or positive"},
		{"chunk size", func(c *config.Config) { c.Storage.ChunkSizeKiB = -1 }, "storage.chunk_size_kib must be zero or positive"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"ntfy topic", func(c *config.Config) { c.Notifications.NtfyTopic = "not a url" }, "notifications.ntfy_topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Processing.BaseURL = cfg.Storage.BaseURL
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateAcceptsZeroStorageLimits(t *testing.T) {
	cfg := config.Default()
	cfg.Processing.BaseURL = cfg.Storage.BaseURL
	cfg.Storage.MaxConcurrentUploads = 0
	cfg.Storage.ChunkSizeKiB = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected zero limits to mean defaults, got %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	configPath := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(configPath, []byte("[storage]\nbogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected parse error for unknown key")
	}
}

func TestCreateSampleLoads(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Processing.InitialDelaySeconds != 2 {
		t.Fatalf("unexpected initial delay: %d", cfg.Processing.InitialDelaySeconds)
	}
}

func TestEnsureDirectoriesCreatesStateAndLogDirs(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
