package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the root gateway configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	LogLevel  string          `yaml:"log_level"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Routes    RoutesConfig    `yaml:"routes"`
	Fallback  FallbackConfig  `yaml:"fallback"`
	Limits    LimitsConfig    `yaml:"limits"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Server    ServerConfig    `yaml:"server"`
}

// AuthConfig configures token issuing and verification.
type AuthConfig struct {
	// Secret is the HMAC signing secret for issued tokens.
	Secret string `yaml:"secret"`
	// TokenTTL is the validity window of issued tokens.
	TokenTTL time.Duration `yaml:"token_ttl"`
	// Users maps usernames to passwords. Placeholder for a real credential
	// store; defaults to the single administrative account.
	Users map[string]string `yaml:"users"`
	// SkipPaths lists path prefixes that bypass token verification.
	SkipPaths []string `yaml:"skip_paths"`
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	Capacity       int           `yaml:"capacity"`        // tokens per bucket
	RefillInterval time.Duration `yaml:"refill_interval"` // one token per interval
	IdleEviction   *bool         `yaml:"idle_eviction"`   // evict idle buckets (default true)
	IdleAfter      time.Duration `yaml:"idle_after"`      // idle cutoff (default 2x refill interval)
	SweepInterval  time.Duration `yaml:"sweep_interval"`  // eviction sweep period
}

// RoutesConfig configures the route table and predicate behavior.
type RoutesConfig struct {
	// StorePath is the SQLite database file backing the route table.
	StorePath string `yaml:"store_path"`
	// BodyPredicateFallback controls the BodyValue predicate when no body was
	// cached for the request: "permissive" (match) or "strict" (no match).
	BodyPredicateFallback string `yaml:"body_predicate_fallback"`
}

// FallbackConfig configures the no-route-matched responder.
type FallbackConfig struct {
	Status int    `yaml:"status"`
	Body   string `yaml:"body"`
}

// LimitsConfig bounds per-request resource use.
type LimitsConfig struct {
	// MaxBodyBytes caps buffered request bodies. 0 disables the cap.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// MetricsConfig configures Prometheus exposition.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig holds HTTP server timeouts.
type ServerConfig struct {
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns a config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:   ":8080",
		LogLevel: "info",
		Auth: AuthConfig{
			TokenTTL:  time.Hour,
			Users:     map[string]string{"admin": "admin123"},
			SkipPaths: []string{"/auth"},
		},
		RateLimit: RateLimitConfig{
			Capacity:       1,
			RefillInterval: 10 * time.Second,
			SweepInterval:  5 * time.Minute,
		},
		Routes: RoutesConfig{
			StorePath:             "routes.db",
			BodyPredicateFallback: "permissive",
		},
		Fallback: FallbackConfig{
			Status: 200,
			Body:   "Service temporarily unavailable. Please try later!",
		},
		Limits: LimitsConfig{
			MaxBodyBytes: 4 << 20,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Server: ServerConfig{
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
	}
}

// MetricsEnabled reports whether the metrics endpoint should be served.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

// IdleEvictionEnabled reports whether idle rate-limit buckets are swept.
func (c *RateLimitConfig) IdleEvictionEnabled() bool {
	return c.IdleEviction == nil || *c.IdleEviction
}

// Loader handles configuration loading and parsing
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Parse parses configuration from YAML bytes
func (l *Loader) Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := l.expandEnvVars(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR} references with environment values.
func (l *Loader) expandEnvVars(s string) string {
	return l.envPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.RateLimit.Capacity < 1 {
		return fmt.Errorf("rate_limit.capacity must be at least 1")
	}
	if c.RateLimit.RefillInterval <= 0 {
		return fmt.Errorf("rate_limit.refill_interval must be positive")
	}
	switch c.Routes.BodyPredicateFallback {
	case "permissive", "strict":
	default:
		return fmt.Errorf("routes.body_predicate_fallback must be %q or %q, got %q",
			"permissive", "strict", c.Routes.BodyPredicateFallback)
	}
	if c.Fallback.Status < 100 || c.Fallback.Status > 599 {
		return fmt.Errorf("fallback.status %d is not a valid HTTP status", c.Fallback.Status)
	}
	if c.Limits.MaxBodyBytes < 0 {
		return fmt.Errorf("limits.max_body_bytes must not be negative")
	}
	for _, p := range c.Auth.SkipPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("auth.skip_paths entry %q must start with /", p)
		}
	}
	return nil
}
