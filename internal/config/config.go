package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Storage configures the remote endpoint that receives uploaded artifacts.
type Storage struct {
	BaseURL              string `toml:"base_url"`
	APIToken             string `toml:"api_token"`
	MaxConcurrentUploads int    `toml:"max_concurrent_uploads"`
	ChunkSizeKiB         int    `toml:"chunk_size_kib"`
	MaxFileSizeMB        int    `toml:"max_file_size_mb"`
}

// Processing configures the remote status endpoint and the polling cadence.
type Processing struct {
	// BaseURL defaults to the storage base URL when empty.
	BaseURL                string `toml:"base_url"`
	APIToken               string `toml:"api_token"`
	InitialDelaySeconds    int    `toml:"initial_delay_seconds"`
	PollIntervalSeconds    int    `toml:"poll_interval_seconds"`
	QueryTimeoutSeconds    int    `toml:"query_timeout_seconds"`
	MaxConsecutiveFailures int    `toml:"max_consecutive_failures"`
}

// SubmitDefaults holds the settings applied to submissions that omit them.
type SubmitDefaults struct {
	Destination string `toml:"destination"`
	Checklist   string `toml:"checklist"`
	Model       string `toml:"model"`
	AutoProcess bool   `toml:"auto_process"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	TaskFailed     bool   `toml:"task_failed"`
	BatchCompleted bool   `toml:"batch_completed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for callpipe.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and API bind address
//   - Storage: upload endpoint, credentials, and upload concurrency
//   - Processing: status endpoint and polling cadence
//   - Defaults: submit settings used when a caller omits them
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths          `toml:"paths"`
	Storage       Storage        `toml:"storage"`
	Processing    Processing     `toml:"processing"`
	Defaults      SubmitDefaults `toml:"defaults"`
	Notifications Notifications  `toml:"notifications"`
	Logging       Logging        `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(filepath.Join(defaultConfigDir, defaultConfigFileName))
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigFileName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryPath returns the location of the task history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, defaultHistoryDatabaseFileName)
}

// LogPath returns the daemon log file written alongside stdout.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, defaultLogFileName)
}

// LockPath returns the location of the daemon single-instance lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, defaultDaemonLockFileName)
}

// ChunkSize returns the upload read size in bytes.
func (c *Config) ChunkSize() int {
	return c.Storage.ChunkSizeKiB * 1024
}

// MaxFileSize returns the configured artifact size ceiling in bytes, or 0 when unlimited.
func (c *Config) MaxFileSize() int64 {
	return int64(c.Storage.MaxFileSizeMB) * 1024 * 1024
}

// InitialPollDelay is the wait between transfer completion and the first status query.
func (c *Config) InitialPollDelay() time.Duration {
	return time.Duration(c.Processing.InitialDelaySeconds) * time.Second
}

// PollInterval is the wait between consecutive status queries.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Processing.PollIntervalSeconds) * time.Second
}

// QueryTimeout bounds a single status query.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Processing.QueryTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
