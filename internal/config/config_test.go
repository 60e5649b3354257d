package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_NoEnv_ReturnsDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.BackendOrigin != DefaultBackendOrigin {
		t.Errorf("BackendOrigin = %q, want %q", cfg.BackendOrigin, DefaultBackendOrigin)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, 10*time.Second)
	}
	if cfg.MaxResponseSize != 5242880 {
		t.Errorf("MaxResponseSize = %d, want %d", cfg.MaxResponseSize, 5242880)
	}
	if cfg.BackendRate != 10 {
		t.Errorf("BackendRate = %v, want 10", cfg.BackendRate)
	}
	if cfg.BackendBurst != 10 {
		t.Errorf("BackendBurst = %d, want 10", cfg.BackendBurst)
	}
	if cfg.OptimisticSignIn {
		t.Error("OptimisticSignIn should default to false")
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if cfg.CORSAllowedOrigin != "http://localhost:3000" {
		t.Errorf("CORSAllowedOrigin = %q, want %q", cfg.CORSAllowedOrigin, "http://localhost:3000")
	}
	if cfg.RefreshInterval != 0 {
		t.Errorf("RefreshInterval = %v, want 0", cfg.RefreshInterval)
	}
	if cfg.HasSessionCookie() {
		t.Error("HasSessionCookie should be false by default")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("BACKEND_ORIGIN", "https://api.example.com/")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("BACKEND_RATE_PER_SEC", "2.5")
	t.Setenv("BACKEND_BURST", "5")
	t.Setenv("SESSION_COOKIE_NAME", "connect.sid")
	t.Setenv("SESSION_COOKIE_VALUE", "s%3Aabc")
	t.Setenv("OPTIMISTIC_SIGN_IN", "true")
	t.Setenv("REFRESH_INTERVAL", "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// 末尾のスラッシュは除去される
	if cfg.BackendOrigin != "https://api.example.com" {
		t.Errorf("BackendOrigin = %q, want %q", cfg.BackendOrigin, "https://api.example.com")
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Errorf("RequestTimeout = %v, want 3s", cfg.RequestTimeout)
	}
	if cfg.BackendRate != 2.5 {
		t.Errorf("BackendRate = %v, want 2.5", cfg.BackendRate)
	}
	if cfg.BackendBurst != 5 {
		t.Errorf("BackendBurst = %d, want 5", cfg.BackendBurst)
	}
	if !cfg.HasSessionCookie() {
		t.Error("HasSessionCookie should be true")
	}
	if !cfg.OptimisticSignIn {
		t.Error("OptimisticSignIn should be true")
	}
	if cfg.RefreshInterval != time.Minute {
		t.Errorf("RefreshInterval = %v, want 1m", cfg.RefreshInterval)
	}
}

func TestLoad_InvalidOrigin_ReturnsError(t *testing.T) {
	tests := []struct {
		name   string
		origin string
	}{
		{"スキームなし", "localhost:3100"},
		{"ftpスキーム", "ftp://example.com"},
		{"パス付き", "http://localhost:3100/api"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BACKEND_ORIGIN", tt.origin)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for origin %q", tt.origin)
			}
		})
	}
}

func TestLoad_InvalidDuration_ReturnsError(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid REQUEST_TIMEOUT")
	}
}

func TestLoad_NonPositiveTimeout_ReturnsError(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "0s")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero REQUEST_TIMEOUT")
	}
}

func TestLoad_CookieNameWithoutValue_ReturnsError(t *testing.T) {
	t.Setenv("SESSION_COOKIE_NAME", "connect.sid")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when only SESSION_COOKIE_NAME is set")
	}
}

func TestConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
