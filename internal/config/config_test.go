package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultInstance = "work"
	cfg.Remote.BaseURL = "https://backend.example"
	cfg.Remote.Timeout = Duration{3 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultInstance != "work" {
		t.Errorf("DefaultInstance = %q, want %q", loaded.DefaultInstance, "work")
	}
	if loaded.Remote.Timeout.Duration != 3*time.Second {
		t.Errorf("Remote.Timeout = %v, want 3s", loaded.Remote.Timeout)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	t.Setenv("WPP_REMOTE_URL", "http://env.example")
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Remote.BaseURL != "http://env.example" {
		t.Errorf("BaseURL = %q, want env override", cfg.Remote.BaseURL)
	}
	if cfg.Sweep.Cron != defaultSweepCron {
		t.Errorf("Sweep.Cron = %q, want default", cfg.Sweep.Cron)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[remote]
base_url = "http://localhost:3000"
timeout = "250ms"

[sweep]
batch_size = 10
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Remote.Timeout.Duration != 250*time.Millisecond {
		t.Errorf("Timeout = %v", cfg.Remote.Timeout)
	}
	if cfg.Sweep.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.Sweep.BatchSize)
	}
	if cfg.HTTP.Listen != defaultHTTPListen || cfg.Log.Level != defaultLogLevel {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"WPP_REMOTE_TOKEN": "secret",
		"WPP_SWEEP_CRON":   "0 * * * * * *",
		"WPP_HTTP_LISTEN":  "  ",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Remote.Token != "secret" {
		t.Errorf("Token = %q", cfg.Remote.Token)
	}
	if cfg.Sweep.Cron != "0 * * * * * *" {
		t.Errorf("Cron = %q", cfg.Sweep.Cron)
	}
	if cfg.HTTP.Listen != defaultHTTPListen {
		t.Errorf("blank env should not override, got %q", cfg.HTTP.Listen)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"missing url", func(c *Config) { c.Remote.BaseURL = "" }, true},
		{"bad scheme", func(c *Config) { c.Remote.BaseURL = "ftp://x" }, true},
		{"no host", func(c *Config) { c.Remote.BaseURL = "http://" }, true},
		{"bad cron", func(c *Config) { c.Sweep.Cron = "every minute" }, true},
		{"five segment cron", func(c *Config) { c.Sweep.Cron = "*/5 * * * *" }, false},
		{"zero batch", func(c *Config) { c.Sweep.BatchSize = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Remote.BaseURL = "https://backend.example"
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultInstance: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
