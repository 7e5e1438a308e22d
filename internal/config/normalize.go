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
	if err := c.normalizeListeners(); err != nil {
		return err
	}
	if err := c.normalizeEndpoints(); err != nil {
		return err
	}
	c.normalizeRoutes()
	c.normalizeManager()
	c.normalizeWorkers()
	c.normalizeNotifications()
	c.normalizeJournal()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	// Decoding happens over Default(), so an absent api_bind key keeps the
	// default. An explicit empty string disables the HTTP API.
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeListeners() error {
	for i := range c.Listeners {
		listener := &c.Listeners[i]
		listener.Name = strings.TrimSpace(listener.Name)
		listener.AE = strings.TrimSpace(listener.AE)
		listener.Output = strings.TrimSpace(listener.Output)
		if listener.Output == "" {
			continue
		}
		expanded, err := expandPath(listener.Output)
		if err != nil {
			return fmt.Errorf("listeners[%d].output: %w", i, err)
		}
		listener.Output = expanded
	}
	return nil
}

func (c *Config) normalizeEndpoints() error {
	for i := range c.Endpoints.Dicom {
		endpoint := &c.Endpoints.Dicom[i]
		endpoint.Name = strings.TrimSpace(endpoint.Name)
		endpoint.Addr = strings.TrimSpace(endpoint.Addr)
		endpoint.AET = strings.TrimSpace(endpoint.AET)
		endpoint.AEC = strings.TrimSpace(endpoint.AEC)
	}
	for i := range c.Endpoints.Directory {
		endpoint := &c.Endpoints.Directory[i]
		endpoint.Name = strings.TrimSpace(endpoint.Name)
		endpoint.Path = strings.TrimSpace(endpoint.Path)
		if endpoint.Path == "" {
			continue
		}
		expanded, err := expandPath(endpoint.Path)
		if err != nil {
			return fmt.Errorf("endpoints.directory[%d].path: %w", i, err)
		}
		endpoint.Path = expanded
	}
	return nil
}

func (c *Config) normalizeRoutes() {
	for i := range c.Routes {
		route := &c.Routes[i]
		route.Name = strings.TrimSpace(route.Name)
		targets := make([]string, 0, len(route.Endpoints))
		for _, target := range route.Endpoints {
			if target = strings.TrimSpace(target); target != "" {
				targets = append(targets, target)
			}
		}
		route.Endpoints = targets
	}
}

func (c *Config) normalizeManager() {
	if c.Manager.MaxStopAttempts <= 0 {
		c.Manager.MaxStopAttempts = defaultMaxStopAttempts
	}
}

func (c *Config) normalizeWorkers() {
	if c.Workers.BufferSize < 0 {
		c.Workers.BufferSize = 0
	}
	if c.Workers.MinFileAgeSeconds < 0 {
		c.Workers.MinFileAgeSeconds = 0
	}
	if c.Workers.IdlePollSeconds <= 0 {
		c.Workers.IdlePollSeconds = defaultIdlePollSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("DCMRELAY_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		c.Notifications.DedupWindowSeconds = 0
	}
}

func (c *Config) normalizeJournal() {
	if c.Journal.RetentionDays < 0 {
		c.Journal.RetentionDays = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
