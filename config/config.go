// Package config loads relay settings.
//
// Values are resolved in order: built-in defaults, an optional YAML file,
// then environment variables (PORT, ALLOWED_ORIGINS, WS_PATH, LOG_LEVEL,
// RELAY_RATE_LIMIT, RELAY_RATE_BURST, RELAY_SEND_BUFFER,
// RELAY_MAX_MESSAGE_BYTES, RELAY_SHUTDOWN_TIMEOUT). The result is validated
// before it is returned.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = 4000
	DefaultOrigin          = "http://localhost:3000"
	DefaultWSPath          = "/ws"
	DefaultLogLevel        = "info"
	DefaultRateLimit       = 100
	DefaultRateBurst       = 200
	DefaultSendBuffer      = 256
	DefaultMaxMessageBytes = 1 << 20
	DefaultShutdownTimeout = 10 * time.Second
)

type Config struct {
	// Port is the HTTP listen port for the websocket endpoint and probes.
	Port int `yaml:"port"`

	// AllowedOrigins lists browser origins permitted to open a socket.
	// "*" allows every origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	WSPath   string `yaml:"ws_path"`
	LogLevel string `yaml:"log_level"`

	// RateLimit is the sustained inbound messages per second allowed per
	// connection; RateBurst is the bucket size. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// SendBuffer is the per-connection outbound queue depth.
	SendBuffer int `yaml:"send_buffer"`

	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port:            DefaultPort,
		AllowedOrigins:  []string{DefaultOrigin},
		WSPath:          DefaultWSPath,
		LogLevel:        DefaultLogLevel,
		RateLimit:       DefaultRateLimit,
		RateBurst:       DefaultRateBurst,
		SendBuffer:      DefaultSendBuffer,
		MaxMessageBytes: DefaultMaxMessageBytes,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// ParseOrigins splits a comma-separated origin list, trimming blanks.
func ParseOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, strings.TrimSuffix(o, "/"))
		}
	}
	return out
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q: %w", v, err)
		}
		cfg.Port = n
	}
	if v, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok && v != "" {
		cfg.AllowedOrigins = ParseOrigins(v)
	}
	if v := os.Getenv("WS_PATH"); v != "" {
		cfg.WSPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("RELAY_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RELAY_RATE_LIMIT %q: %w", v, err)
		}
		cfg.RateLimit = f
	}
	for _, iv := range []struct {
		name string
		dst  *int
	}{
		{"RELAY_RATE_BURST", &cfg.RateBurst},
		{"RELAY_SEND_BUFFER", &cfg.SendBuffer},
	} {
		if v := os.Getenv(iv.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s %q: %w", iv.name, v, err)
			}
			*iv.dst = n
		}
	}
	if v := os.Getenv("RELAY_MAX_MESSAGE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("RELAY_MAX_MESSAGE_BYTES %q: %w", v, err)
		}
		cfg.MaxMessageBytes = n
	}
	if v := os.Getenv("RELAY_SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RELAY_SHUTDOWN_TIMEOUT %q: %w", v, err)
		}
		cfg.ShutdownTimeout = d
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d is out of range [1, 65535]", cfg.Port)
	}
	if len(cfg.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed_origins must not be empty")
	}
	if !strings.HasPrefix(cfg.WSPath, "/") {
		return fmt.Errorf("ws_path %q must start with /", cfg.WSPath)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q unknown: want debug|info|warn|error", cfg.LogLevel)
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if cfg.RateLimit > 0 && cfg.RateBurst < 1 {
		return fmt.Errorf("rate_burst must be at least 1 when rate_limit is set")
	}
	if cfg.SendBuffer < 1 {
		return fmt.Errorf("send_buffer must be at least 1")
	}
	if cfg.MaxMessageBytes < 1 {
		return fmt.Errorf("max_message_bytes must be positive")
	}
	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must not be negative")
	}
	return nil
}
