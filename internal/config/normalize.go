package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeProcessing()
	c.normalizeDefaults()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv(apiTokenEnv); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.BaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.BaseURL), "/")
	if c.Storage.BaseURL == "" {
		c.Storage.BaseURL = defaultStorageBaseURL
	}
	c.Storage.APIToken = strings.TrimSpace(c.Storage.APIToken)
	if c.Storage.APIToken == "" {
		if value, ok := os.LookupEnv(storageTokenEnv); ok {
			c.Storage.APIToken = strings.TrimSpace(value)
		}
	}
	if c.Storage.MaxConcurrentUploads == 0 {
		c.Storage.MaxConcurrentUploads = defaultMaxConcurrentUploads
	}
	if c.Storage.ChunkSizeKiB == 0 {
		c.Storage.ChunkSizeKiB = defaultChunkSizeKiB
	}
}

func (c *Config) normalizeProcessing() {
	c.Processing.BaseURL = strings.TrimRight(strings.TrimSpace(c.Processing.BaseURL), "/")
	if c.Processing.BaseURL == "" {
		c.Processing.BaseURL = c.Storage.BaseURL
	}
	c.Processing.APIToken = strings.TrimSpace(c.Processing.APIToken)
	if c.Processing.APIToken == "" {
		if value, ok := os.LookupEnv(processingTokenEnv); ok {
			c.Processing.APIToken = strings.TrimSpace(value)
		}
	}
	if c.Processing.APIToken == "" {
		c.Processing.APIToken = c.Storage.APIToken
	}
}

func (c *Config) normalizeDefaults() {
	c.Defaults.Destination = strings.TrimSpace(c.Defaults.Destination)
	c.Defaults.Checklist = strings.TrimSpace(c.Defaults.Checklist)
	c.Defaults.Model = strings.TrimSpace(c.Defaults.Model)
	if c.Defaults.Model == "" {
		c.Defaults.Model = defaultSubmitModel
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
