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
	cfg.DefaultSession = "work"
	cfg.Timing.TypingTimeout = Duration{7 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Timing.TypingTimeout.Duration != 7*time.Second {
		t.Errorf("TypingTimeout = %s, want 7s", loaded.Timing.TypingTimeout)
	}
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Timing.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", cfg.Timing.PageSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "[server]\nbase_url = \"https://chat.example.com/api\"\n\n[timing]\ntyping_idle = \"1500ms\"\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.BaseURL != "https://chat.example.com/api" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Server.WSURL != "ws://localhost:8080/ws" {
		t.Errorf("WSURL = %q, want default", cfg.Server.WSURL)
	}
	if cfg.Timing.TypingIdle.Duration != 1500*time.Millisecond {
		t.Errorf("TypingIdle = %s, want 1.5s", cfg.Timing.TypingIdle)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[timing]\ntyping_timeout = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for bad duration")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CHATSYNC_SERVER_URL":       "https://api.example.com",
		"CHATSYNC_TOKEN":            "secret",
		"CHATSYNC_UPLOAD_PRESIGNED": "true",
		"CHATSYNC_PAGE_SIZE":        "20",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Server.BaseURL != "https://api.example.com" || cfg.Server.Token != "secret" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if !cfg.Uploads.Presigned {
		t.Error("Presigned not applied")
	}
	if cfg.Timing.PageSize != 20 {
		t.Errorf("PageSize = %d, want 20", cfg.Timing.PageSize)
	}

	env["CHATSYNC_PAGE_SIZE"] = "many"
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err == nil {
		t.Error("ApplyEnv() expected error for non-numeric page size")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing base url", func(c *Config) { c.Server.BaseURL = "" }, true},
		{"bad ws url", func(c *Config) { c.Server.WSURL = "not a url" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"page size zero", func(c *Config) { c.Timing.PageSize = 0 }, true},
		{"reconnect inverted", func(c *Config) { c.Timing.ReconnectMax = Duration{time.Millisecond} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CHATSYNC_TOKEN=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHATSYNC_TOKEN", "")
	os.Unsetenv("CHATSYNC_TOKEN")

	cfg, err := Resolve(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Server.Token != "from-dotenv" {
		t.Errorf("Token = %q, want from-dotenv", cfg.Server.Token)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
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
