package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHATSYNC_"

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultSession string  `toml:"default_session" validate:"omitempty,max=64"`
	LogLevel       string  `toml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Server         Server  `toml:"server"`
	Timing         Timing  `toml:"timing"`
	Uploads        Uploads `toml:"uploads"`
}

// Server locates the chat backend.
type Server struct {
	BaseURL        string   `toml:"base_url" validate:"required,url"`
	WSURL          string   `toml:"ws_url" validate:"required,url"`
	Token          string   `toml:"token"`
	RequestTimeout Duration `toml:"request_timeout"`
}

// Timing holds the client-side timing knobs.
type Timing struct {
	TypingTimeout Duration `toml:"typing_timeout"`
	TypingIdle    Duration `toml:"typing_idle"`
	PresencePoll  Duration `toml:"presence_poll"`
	DraftDebounce Duration `toml:"draft_debounce"`
	NoteAutosave  Duration `toml:"note_autosave"`
	ReconnectMin  Duration `toml:"reconnect_min"`
	ReconnectMax  Duration `toml:"reconnect_max"`
	OutboxKeep    Duration `toml:"outbox_keep"`
	PageSize      int      `toml:"page_size" validate:"gte=1,lte=200"`
}

// Uploads bounds media uploads.
type Uploads struct {
	MaxImageBytes int64 `toml:"max_image_bytes" validate:"gte=0"`
	MaxFileBytes  int64 `toml:"max_file_bytes" validate:"gte=0"`
	Presigned     bool  `toml:"presigned"`
}

// Duration is a time.Duration written as "5s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: Server{
			BaseURL:        "http://localhost:8080/api",
			WSURL:          "ws://localhost:8080/ws",
			RequestTimeout: Duration{15 * time.Second},
		},
		Timing: Timing{
			TypingTimeout: Duration{5 * time.Second},
			TypingIdle:    Duration{3 * time.Second},
			PresencePoll:  Duration{30 * time.Second},
			DraftDebounce: Duration{500 * time.Millisecond},
			NoteAutosave:  Duration{2 * time.Second},
			ReconnectMin:  Duration{time.Second},
			ReconnectMax:  Duration{30 * time.Second},
			OutboxKeep:    Duration{7 * 24 * time.Hour},
			PageSize:      50,
		},
		Uploads: Uploads{
			MaxImageBytes: 10 << 20,
			MaxFileBytes:  50 << 20,
		},
	}
}

// Load reads config from path over the defaults. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables already set. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from CHATSYNC_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	str("SESSION", &c.DefaultSession)
	str("LOG_LEVEL", &c.LogLevel)
	str("SERVER_URL", &c.Server.BaseURL)
	str("WS_URL", &c.Server.WSURL)
	str("TOKEN", &c.Server.Token)

	if v := getenv(EnvPrefix + "UPLOAD_PRESIGNED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sUPLOAD_PRESIGNED: %w", EnvPrefix, err)
		}
		c.Uploads.Presigned = b
	}
	if v := getenv(EnvPrefix + "PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPAGE_SIZE: %w", EnvPrefix, err)
		}
		c.Timing.PageSize = n
	}
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Timing.ReconnectMax.Duration < c.Timing.ReconnectMin.Duration {
		return fmt.Errorf("invalid config: reconnect_max %s is below reconnect_min %s", c.Timing.ReconnectMax, c.Timing.ReconnectMin)
	}
	return nil
}

// Resolve loads the .env file next to path, the config file and the
// environment overrides, then validates the result.
func Resolve(path string) (*Config, error) {
	if err := LoadEnvFile(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
