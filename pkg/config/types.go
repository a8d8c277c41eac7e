package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct. It is assembled once at
// startup (defaults, then file, then environment) and read-only after.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Ops       OpsConfig       `yaml:"ops"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Static    StaticConfig    `yaml:"static"`
	Templates TemplatesConfig `yaml:"templates"`
	Storage   StorageConfig   `yaml:"storage"`
	Debug     bool            `yaml:"debug"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
	GracePeriod  Duration `yaml:"grace_period"`
}

// WebSocketConfig holds the WebSocket surface settings.
type WebSocketConfig struct {
	Port        int      `yaml:"port"`
	IdleTimeout Duration `yaml:"idle_timeout"`
}

// OpsConfig holds the operational endpoint settings (metrics, docs,
// health). Empty Addr disables the ops listener.
type OpsConfig struct {
	Addr string `yaml:"addr"`
}

// SecurityConfig holds CORS and rate-limit settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		Capacity  int      `yaml:"capacity"`
		Refill    float64  `yaml:"refill"`
		EvictCron string   `yaml:"evict_cron"`
		EvictIdle Duration `yaml:"evict_idle"`
	} `yaml:"rate_limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// StaticConfig holds the static-file root.
type StaticConfig struct {
	Dir string `yaml:"dir"`
}

// TemplatesConfig holds the template directory.
type TemplatesConfig struct {
	Dir string `yaml:"dir"`
}

// StorageConfig holds the embedded store location.
type StorageConfig struct {
	DBName string `yaml:"db_name"`
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// WSAddr returns the WebSocket listen address.
func (c *Config) WSAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.WebSocket.Port)
}

// Duration wraps time.Duration supporting YAML values like "100ms" or
// plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }
