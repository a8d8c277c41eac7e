// Package config loads the server configuration once at startup from
// three sources merged in order: built-in defaults, an optional YAML
// file, then environment variables (HOST, PORT, WS_PORT, DEBUG, DB_NAME,
// LOG_FILE, STATIC_DIR, RATE_LIMIT_CAPACITY, RATE_LIMIT_REFILL). The
// result is process-wide and read-only afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 9090
	cfg.Server.ReadTimeout = Duration(30 * time.Second)
	cfg.Server.WriteTimeout = Duration(30 * time.Second)
	cfg.Server.MaxBodyBytes = 1 << 20
	cfg.Server.GracePeriod = Duration(10 * time.Second)
	cfg.WebSocket.Port = 9091
	cfg.WebSocket.IdleTimeout = Duration(30 * time.Second)
	cfg.Security.CORS.AllowedOrigins = []string{"*"}
	cfg.Security.RateLimit.Capacity = 100
	cfg.Security.RateLimit.Refill = 50
	cfg.Security.RateLimit.EvictCron = "*/5 * * * *"
	cfg.Security.RateLimit.EvictIdle = Duration(10 * time.Minute)
	cfg.Logging.Level = "info"
	cfg.Static.Dir = "static"
	cfg.Templates.Dir = "templates"
	cfg.Storage.DBName = "servlite.db"
	return cfg
}

// Load reads the YAML config file at path into a default config. An empty
// path skips the file stage.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEffective builds the effective config: defaults, then the optional
// file, then environment overrides.
func LoadEffective(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v, ok := envInt("PORT"); ok {
		cfg.Server.Port = v
	}
	if v, ok := envInt("WS_PORT"); ok {
		cfg.WebSocket.Port = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Debug = truthy(v)
		if cfg.Debug {
			cfg.Logging.Level = "debug"
		}
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Storage.DBName = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		cfg.Static.Dir = v
	}
	if v, ok := envInt("RATE_LIMIT_CAPACITY"); ok {
		cfg.Security.RateLimit.Capacity = v
	}
	if v := os.Getenv("RATE_LIMIT_REFILL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Security.RateLimit.Refill = f
		}
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes":
		return true
	}
	return false
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Server.Port)
	}
	if c.WebSocket.Port <= 0 || c.WebSocket.Port > 65535 {
		return fmt.Errorf("invalid websocket port %d", c.WebSocket.Port)
	}
	if c.Server.Port == c.WebSocket.Port {
		return fmt.Errorf("http and websocket ports collide on %d", c.Server.Port)
	}
	if c.Security.RateLimit.Capacity <= 0 {
		return fmt.Errorf("rate limit capacity must be positive")
	}
	if c.Security.RateLimit.Refill <= 0 {
		return fmt.Errorf("rate limit refill must be positive")
	}
	return nil
}
