package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	if err := validateBaseURL("storage.base_url", c.Storage.BaseURL); err != nil {
		return err
	}
	if c.Storage.MaxConcurrentUploads < 0 {
		return errors.New("storage.max_concurrent_uploads must be zero or positive")
	}
	if c.Storage.ChunkSizeKiB < 0 {
		return errors.New("storage.chunk_size_kib must be zero or positive")
	}
	if c.Storage.MaxFileSizeMB < 0 {
		return errors.New("storage.max_file_size_mb must be zero or positive")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if err := validateBaseURL("processing.base_url", c.Processing.BaseURL); err != nil {
		return err
	}
	if c.Processing.InitialDelaySeconds < 0 {
		return errors.New("processing.initial_delay_seconds must be zero or positive")
	}
	if c.Processing.PollIntervalSeconds <= 0 {
		return errors.New("processing.poll_interval_seconds must be positive")
	}
	if c.Processing.QueryTimeoutSeconds <= 0 {
		return errors.New("processing.query_timeout_seconds must be positive")
	}
	if c.Processing.MaxConsecutiveFailures <= 0 {
		return errors.New("processing.max_consecutive_failures must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.NtfyTopic != "" {
		if err := validateBaseURL("notifications.ntfy_topic", c.Notifications.NtfyTopic); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validateBaseURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", key, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}
