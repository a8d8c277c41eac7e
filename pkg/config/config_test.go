package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Addr() != "localhost:9090" {
		t.Fatalf("Addr = %q", cfg.Addr())
	}
	if cfg.WSAddr() != "localhost:9091" {
		t.Fatalf("WSAddr = %q", cfg.WSAddr())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  host: 0.0.0.0
  port: 8000
  read_timeout: 5s
  grace_period: 2
websocket:
  port: 8001
  idle_timeout: 500ms
security:
  cors:
    allowed_origins: ["https://app.example.com"]
  rate_limit:
    capacity: 20
    refill: 2.5
logging:
  level: debug
storage:
  db_name: test.db
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:8000" || cfg.WSAddr() != "0.0.0.0:8001" {
		t.Fatalf("addrs = %q / %q", cfg.Addr(), cfg.WSAddr())
	}
	if cfg.Server.ReadTimeout.Duration() != 5*time.Second {
		t.Fatalf("read_timeout = %v", cfg.Server.ReadTimeout.Duration())
	}
	// bare numbers are seconds
	if cfg.Server.GracePeriod.Duration() != 2*time.Second {
		t.Fatalf("grace_period = %v", cfg.Server.GracePeriod.Duration())
	}
	if cfg.WebSocket.IdleTimeout.Duration() != 500*time.Millisecond {
		t.Fatalf("idle_timeout = %v", cfg.WebSocket.IdleTimeout.Duration())
	}
	if got := cfg.Security.CORS.AllowedOrigins; len(got) != 1 || got[0] != "https://app.example.com" {
		t.Fatalf("allowed_origins = %v", got)
	}
	if cfg.Security.RateLimit.Capacity != 20 || cfg.Security.RateLimit.Refill != 2.5 {
		t.Fatalf("rate limit = %+v", cfg.Security.RateLimit)
	}
	if cfg.Storage.DBName != "test.db" {
		t.Fatalf("db_name = %q", cfg.Storage.DBName)
	}
	// values the file omits keep their defaults
	if cfg.Security.RateLimit.EvictCron != "*/5 * * * *" {
		t.Fatalf("evict_cron = %q", cfg.Security.RateLimit.EvictCron)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing config file did not fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOST", "10.1.2.3")
	t.Setenv("PORT", "7000")
	t.Setenv("WS_PORT", "7001")
	t.Setenv("DEBUG", "true")
	t.Setenv("DB_NAME", "env.db")
	t.Setenv("LOG_FILE", "/tmp/servlite.log")
	t.Setenv("STATIC_DIR", "/srv/static")
	t.Setenv("RATE_LIMIT_CAPACITY", "3")
	t.Setenv("RATE_LIMIT_REFILL", "0.5")

	cfg, err := LoadEffective("")
	if err != nil {
		t.Fatalf("LoadEffective failed: %v", err)
	}
	if cfg.Addr() != "10.1.2.3:7000" || cfg.WSAddr() != "10.1.2.3:7001" {
		t.Fatalf("addrs = %q / %q", cfg.Addr(), cfg.WSAddr())
	}
	if !cfg.Debug || cfg.Logging.Level != "debug" {
		t.Fatalf("debug not applied: %+v", cfg.Logging)
	}
	if cfg.Storage.DBName != "env.db" || cfg.Logging.File != "/tmp/servlite.log" || cfg.Static.Dir != "/srv/static" {
		t.Fatalf("env values not applied: %+v", cfg)
	}
	if cfg.Security.RateLimit.Capacity != 3 || cfg.Security.RateLimit.Refill != 0.5 {
		t.Fatalf("rate limit env not applied: %+v", cfg.Security.RateLimit)
	}
}

func TestEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	cfg, err := LoadEffective("")
	if err != nil {
		t.Fatalf("LoadEffective failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("garbage PORT applied: %d", cfg.Server.Port)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"bad http port", func(c *Config) { c.Server.Port = -1 }},
		{"bad ws port", func(c *Config) { c.WebSocket.Port = 70000 }},
		{"port collision", func(c *Config) { c.WebSocket.Port = c.Server.Port }},
		{"zero capacity", func(c *Config) { c.Security.RateLimit.Capacity = 0 }},
		{"zero refill", func(c *Config) { c.Security.RateLimit.Refill = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mut(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("invalid config passed validation")
			}
		})
	}
}
