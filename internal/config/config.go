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
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Listener describes a storescp receiver that writes incoming DICOM files to
// an inbox directory.
type Listener struct {
	Name   string `toml:"name"`
	Port   int    `toml:"port"`
	AE     string `toml:"ae"`
	Output string `toml:"output"`
}

// DicomEndpoint describes a remote DICOM node reached through storescu.
type DicomEndpoint struct {
	Name string `toml:"name"`
	Addr string `toml:"addr"`
	Port int    `toml:"port"`
	// AET is the calling AE title presented to the peer.
	AET string `toml:"aet"`
	// AEC is the called AE title of the peer.
	AEC string `toml:"aec"`
}

// DirectoryEndpoint describes a local directory files are copied into.
type DirectoryEndpoint struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// Endpoints groups delivery targets by kind.
type Endpoints struct {
	Dicom     []DicomEndpoint     `toml:"dicom"`
	Directory []DirectoryEndpoint `toml:"directory"`
}

// Route links a listener inbox to the endpoints its files fan out to. Name
// must match a configured listener.
type Route struct {
	Name      string   `toml:"name"`
	Endpoints []string `toml:"endpoints"`
}

// Manager contains configuration for the relay stop protocol.
type Manager struct {
	MaxStopAttempts int `toml:"max_stop_attempts"`
}

// Workers contains configuration for inbox scanning and delivery pacing.
type Workers struct {
	// BufferSize caps the number of files collected per scan cycle.
	// Zero means unbounded.
	BufferSize int `toml:"buffer_size"`
	// MinFileAgeSeconds is the settle window: a file must be strictly older
	// before it becomes eligible for delivery.
	MinFileAgeSeconds int `toml:"min_file_age_seconds"`
	// IdlePollSeconds is how long a worker waits after an empty scan.
	IdlePollSeconds int `toml:"idle_poll_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	Startup            bool   `toml:"startup"`
	Shutdown           bool   `toml:"shutdown"`
	DeliveryFailures   bool   `toml:"delivery_failures"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Journal contains configuration for the delivery journal database.
type Journal struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Config encapsulates all configuration values for dcmrelay.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Listeners: storescp receivers and their inbox directories
//   - Endpoints: DICOM and directory delivery targets
//   - Routes: listener-to-endpoint fan-out links
//   - Manager: stop protocol bounds
//   - Workers: scan batching, settle window, and idle pacing
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
//   - Journal: delivery history persistence
type Config struct {
	Paths         Paths         `toml:"paths"`
	Listeners     []Listener    `toml:"listeners"`
	Endpoints     Endpoints     `toml:"endpoints"`
	Routes        []Route       `toml:"routes"`
	Manager       Manager       `toml:"manager"`
	Workers       Workers       `toml:"workers"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Journal       Journal       `toml:"journal"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dcmrelay/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
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

	projectPath, err := filepath.Abs("dcmrelay.toml")
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
// Listener inboxes are created so storescp can write into them from the first
// association; directory endpoints must already exist and are checked during
// validation instead.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, listener := range c.Listeners {
		if strings.TrimSpace(listener.Output) == "" {
			continue
		}
		if err := os.MkdirAll(listener.Output, 0o755); err != nil {
			return fmt.Errorf("create listener inbox %q: %w", listener.Output, err)
		}
	}
	return nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample returns the embedded sample configuration text.
func Sample() string {
	return sampleConfig
}

// JournalPath returns the delivery journal database location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.DataDir, "journal.db")
}

// SocketPath returns the daemon control socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "dcmrelay.sock")
}

// LockPath returns the daemon instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "dcmrelay.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "dcmrelay.pid")
}

// StoreSCUBinary returns the DCMTK send executable name.
func (c *Config) StoreSCUBinary() string {
	return "storescu"
}

// StoreSCPBinary returns the DCMTK listener executable name.
func (c *Config) StoreSCPBinary() string {
	return "storescp"
}

// EchoSCUBinary returns the DCMTK ping executable name.
func (c *Config) EchoSCUBinary() string {
	return "echoscu"
}

// MinFileAge returns the settle window as a duration.
func (c *Workers) MinFileAge() time.Duration {
	return time.Duration(c.MinFileAgeSeconds) * time.Second
}

// IdlePollInterval returns the empty-scan wait as a duration.
func (c *Workers) IdlePollInterval() time.Duration {
	return time.Duration(c.IdlePollSeconds) * time.Second
}

// ListenerByName returns the listener with the given name.
func (c *Config) ListenerByName(name string) (Listener, bool) {
	for _, listener := range c.Listeners {
		if listener.Name == name {
			return listener, true
		}
	}
	return Listener{}, false
}

// EndpointNames returns the names of all configured endpoints in declaration
// order, DICOM endpoints first.
func (c *Config) EndpointNames() []string {
	names := make([]string, 0, len(c.Endpoints.Dicom)+len(c.Endpoints.Directory))
	for _, endpoint := range c.Endpoints.Dicom {
		names = append(names, endpoint.Name)
	}
	for _, endpoint := range c.Endpoints.Directory {
		names = append(names, endpoint.Name)
	}
	return names
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
