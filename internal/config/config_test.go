package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		DeviceName: "laptop",
		DataRoot:   "/home/user/.local/share/flowstate",
		LogDir:     "/home/user/.local/share/flowstate/log",
		LogLevel:   LogLevelDebug,
		Database:   DatabaseConfig{Type: "sqlite", Path: "/home/user/.local/share/flowstate/flowstate.db"},
		Git: GitConfig{
			Binary:         "/usr/bin/git",
			Remote:         "upstream",
			Branch:         "trunk",
			TimeoutSeconds: 30,
		},
		Watch: WatchConfig{DebounceMS: 500},
		Filesystem: FilesystemConfig{
			Ignore: []string{"*.log", "scratch/"},
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.DeviceName != original.DeviceName {
		t.Errorf("DeviceName = %q, want %q", got.DeviceName, original.DeviceName)
	}
	if got.DataRoot != original.DataRoot {
		t.Errorf("DataRoot = %q, want %q", got.DataRoot, original.DataRoot)
	}
	if got.LogLevel != LogLevelDebug {
		t.Errorf("LogLevel = %q, want %q", got.LogLevel, LogLevelDebug)
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
	if got.Git != original.Git {
		t.Errorf("Git = %+v, want %+v", got.Git, original.Git)
	}
	if got.Watch.DebounceMS != 500 {
		t.Errorf("Watch.DebounceMS = %d, want 500", got.Watch.DebounceMS)
	}
	if len(got.Filesystem.Ignore) != 2 {
		t.Fatalf("len(Filesystem.Ignore) = %d, want 2", len(got.Filesystem.Ignore))
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("desk", "/data/flowstate")

	if cfg.DeviceName != "desk" {
		t.Errorf("DeviceName = %q, want %q", cfg.DeviceName, "desk")
	}
	if cfg.LogDir != "/data/flowstate-log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/flowstate-log")
	}
	if got := NewConfig("desk", "/data/flowstate/").LogDir; got != "/data/flowstate-log" {
		t.Errorf("LogDir with trailing slash = %q, want %q", got, "/data/flowstate-log")
	}
	if cfg.Database.Path != "/data/flowstate/flowstate.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/data/flowstate/flowstate.db")
	}
	if cfg.Git.Remote != "origin" || cfg.Git.Branch != "main" {
		t.Errorf("Git = %+v, want origin/main", cfg.Git)
	}
	if cfg.Git.Timeout() != 2*time.Minute {
		t.Errorf("Git.Timeout() = %v, want 2m", cfg.Git.Timeout())
	}
	if cfg.Watch.Debounce() != 2*time.Second {
		t.Errorf("Watch.Debounce() = %v, want 2s", cfg.Watch.Debounce())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"memory database without path", func(c *Config) { c.Database = DatabaseConfig{Type: DatabaseMemory} }, false},
		{"missing device name", func(c *Config) { c.DeviceName = "" }, true},
		{"missing data root", func(c *Config) { c.DataRoot = "" }, true},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"unknown database type", func(c *Config) { c.Database.Type = "postgres" }, true},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, true},
		{"missing git binary", func(c *Config) { c.Git.Binary = "" }, true},
		{"negative timeout", func(c *Config) { c.Git.TimeoutSeconds = -1 }, true},
		{"negative debounce", func(c *Config) { c.Watch.DebounceMS = -5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("desk", "/data/flowstate")
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "flowstate.toml")
		cfg := NewConfig("d1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "flowstate.toml")
		cfg := NewConfig("d1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "flowstate.toml")
		cfg := NewConfig("", dir)

		if err := Init(path, cfg); err == nil {
			t.Fatal("Init() expected error for missing device name")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("config file should not exist, stat err = %v", err)
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "flowstate.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: DatabaseMemory}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.DeviceName != "read-test" {
			t.Errorf("DeviceName = %q, want %q", got.DeviceName, "read-test")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/flowstate.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})

	t.Run("returns error for invalid content", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "flowstate.toml")
		if err := os.WriteFile(path, []byte("device_name = \"x\"\n[database]\ntype = \"postgres\"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadFromFile(path); err == nil {
			t.Fatal("ReadFromFile() expected validation error")
		}
	})
}
