package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.RateLimit.Capacity != 1 {
		t.Errorf("Capacity = %d, want 1", cfg.RateLimit.Capacity)
	}
	if cfg.RateLimit.RefillInterval != 10*time.Second {
		t.Errorf("RefillInterval = %v, want 10s", cfg.RateLimit.RefillInterval)
	}
	if cfg.Fallback.Status != 200 {
		t.Errorf("Fallback.Status = %d, want 200", cfg.Fallback.Status)
	}
	if cfg.Fallback.Body != "Service temporarily unavailable. Please try later!" {
		t.Errorf("Fallback.Body = %q", cfg.Fallback.Body)
	}
	if cfg.Auth.Users["admin"] != "admin123" {
		t.Error("default credential set missing")
	}
	if cfg.Routes.BodyPredicateFallback != "permissive" {
		t.Errorf("BodyPredicateFallback = %q", cfg.Routes.BodyPredicateFallback)
	}
	if !cfg.MetricsEnabled() {
		t.Error("metrics should default to enabled")
	}
	if !cfg.RateLimit.IdleEvictionEnabled() {
		t.Error("idle eviction should default to enabled")
	}
}

func TestParseOverrides(t *testing.T) {
	raw := `
listen: ":9090"
log_level: debug
auth:
  secret: s3cr3t
  token_ttl: 30m
rate_limit:
  capacity: 5
  refill_interval: 2s
  idle_eviction: false
routes:
  store_path: /var/lib/gw/routes.db
  body_predicate_fallback: strict
fallback:
  status: 503
  body: "no route"
metrics:
  enabled: false
`
	cfg, err := NewLoader().Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Listen != ":9090" || cfg.LogLevel != "debug" {
		t.Errorf("top-level overrides not applied: %+v", cfg)
	}
	if cfg.Auth.Secret != "s3cr3t" || cfg.Auth.TokenTTL != 30*time.Minute {
		t.Errorf("auth overrides not applied: %+v", cfg.Auth)
	}
	if cfg.RateLimit.Capacity != 5 || cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("rate limit overrides not applied: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.IdleEvictionEnabled() {
		t.Error("idle_eviction: false should disable eviction")
	}
	if cfg.Routes.BodyPredicateFallback != "strict" {
		t.Errorf("BodyPredicateFallback = %q", cfg.Routes.BodyPredicateFallback)
	}
	if cfg.Fallback.Status != 503 || cfg.Fallback.Body != "no route" {
		t.Errorf("fallback overrides not applied: %+v", cfg.Fallback)
	}
	if cfg.MetricsEnabled() {
		t.Error("metrics should be disabled")
	}
	// Unset sections keep their defaults.
	if cfg.Limits.MaxBodyBytes != 4<<20 {
		t.Errorf("MaxBodyBytes = %d", cfg.Limits.MaxBodyBytes)
	}
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("GW_SECRET", "from-env")

	cfg, err := NewLoader().Parse([]byte("auth:\n  secret: ${GW_SECRET}\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Auth.Secret != "from-env" {
		t.Errorf("Secret = %q, want env value", cfg.Auth.Secret)
	}
}

func TestEnvExpansionUnsetKeepsPlaceholder(t *testing.T) {
	cfg, err := NewLoader().Parse([]byte("auth:\n  secret: ${DEFINITELY_UNSET_VAR_42}\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Auth.Secret != "${DEFINITELY_UNSET_VAR_42}" {
		t.Errorf("Secret = %q, unset vars should pass through", cfg.Auth.Secret)
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad listen", "listen: nohostport", "listen"},
		{"zero capacity", "rate_limit:\n  capacity: 0", "capacity"},
		{"negative refill", "rate_limit:\n  refill_interval: -1s", "refill_interval"},
		{"bad fallback mode", "routes:\n  body_predicate_fallback: maybe", "body_predicate_fallback"},
		{"bad fallback status", "fallback:\n  status: 99", "status"},
		{"negative body cap", "limits:\n  max_body_bytes: -1", "max_body_bytes"},
		{"bad skip path", "auth:\n  skip_paths: [\"auth\"]", "skip_paths"},
		{"zero ttl", "auth:\n  token_ttl: 0s", "token_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := NewLoader().Load("/nonexistent/tollgate.yaml"); err == nil {
		t.Error("missing config file should fail")
	}
}
