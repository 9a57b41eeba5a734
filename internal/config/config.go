package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/BurntSushi/toml"
)

// Database types accepted by DatabaseConfig.Type.
const (
	DatabaseSQLite = "sqlite"
	DatabaseMemory = "memory"
)

// Log levels accepted by Config.LogLevel.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Config represents the main configuration for flowstate.
type Config struct {
	DeviceName string           `toml:"device_name"`
	DataRoot   string           `toml:"data_root"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level"`
	Database   DatabaseConfig   `toml:"database"`
	Git        GitConfig        `toml:"git"`
	Watch      WatchConfig      `toml:"watch"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// DatabaseConfig represents configuration for the record store.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// GitConfig controls how the version-control binary is invoked.
type GitConfig struct {
	Binary         string `toml:"binary"`
	Remote         string `toml:"remote"`
	Branch         string `toml:"branch"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// WatchConfig holds settings for the working-tree watcher.
type WatchConfig struct {
	DebounceMS int `toml:"debounce_ms"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	// Ignore lists patterns added to the generated ignore file on init.
	Ignore []string `toml:"ignore"`
}

// NewConfig creates a new Config with the provided values and defaults
// derived from dataRoot. Logs go next to the data root, not inside it.
func NewConfig(deviceName, dataRoot string) *Config {
	clean := filepath.Clean(dataRoot)
	return &Config{
		DeviceName: deviceName,
		DataRoot:   dataRoot,
		LogDir:     filepath.Join(filepath.Dir(clean), filepath.Base(clean)+"-log"),
		LogLevel:   LogLevelInfo,
		Database: DatabaseConfig{
			Type: DatabaseSQLite,
			Path: filepath.Join(dataRoot, "flowstate.db"),
		},
		Git: GitConfig{
			Binary:         "git",
			Remote:         "origin",
			Branch:         "main",
			TimeoutSeconds: 120,
		},
		Watch: WatchConfig{DebounceMS: 2000},
	}
}

// Validate validates the whole configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DeviceName, validation.Required),
		validation.Field(&c.DataRoot, validation.Required),
		validation.Field(&c.LogLevel, validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError)),
		validation.Field(&c.Database),
		validation.Field(&c.Git),
		validation.Field(&c.Watch),
	)
}

// Validate validates the database configuration.
func (c DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.Required, validation.In(DatabaseSQLite, DatabaseMemory)),
		validation.Field(&c.Path, validation.When(c.Type == DatabaseSQLite, validation.Required)),
	)
}

// Validate validates the git configuration.
func (c GitConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Binary, validation.Required),
		validation.Field(&c.Remote, validation.Required),
		validation.Field(&c.Branch, validation.Required),
		validation.Field(&c.TimeoutSeconds, validation.Min(0)),
	)
}

// Validate validates the watcher configuration.
func (c WatchConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DebounceMS, validation.Min(0)),
	)
}

// Timeout returns the per-call timeout for git. Zero means the client default.
func (c GitConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Debounce returns how long the watcher waits for changes to settle.
func (c WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. It refuses to overwrite an
// existing file.
func Init(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
