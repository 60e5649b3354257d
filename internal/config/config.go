package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultBackendOrigin はバックエンドAPIの既定オリジン。
const DefaultBackendOrigin = "http://localhost:3100"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	BackendOrigin   string        `env:"BACKEND_ORIGIN" envDefault:"http://localhost:3100"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	MaxResponseSize int64         `env:"MAX_RESPONSE_SIZE" envDefault:"5242880"`
	BackendRate     float64       `env:"BACKEND_RATE_PER_SEC" envDefault:"10"`
	BackendBurst    int           `env:"BACKEND_BURST" envDefault:"10"`

	// Session
	SessionCookieName  string `env:"SESSION_COOKIE_NAME"`
	SessionCookieValue string `env:"SESSION_COOKIE_VALUE"`
	OptimisticSignIn   bool   `env:"OPTIMISTIC_SIGN_IN" envDefault:"false"`

	// Dashboard
	ServerPort        string        `env:"SERVER_PORT" envDefault:"8080"`
	CORSAllowedOrigin string        `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
	RefreshInterval   time.Duration `env:"REFRESH_INTERVAL" envDefault:"0s"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// 値の形式が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	cfg.BackendOrigin = strings.TrimRight(cfg.BackendOrigin, "/")
	if err := validateOrigin(cfg.BackendOrigin); err != nil {
		return nil, fmt.Errorf("invalid BACKEND_ORIGIN: %w", err)
	}

	var invalid []string
	if cfg.RequestTimeout <= 0 {
		invalid = append(invalid, "REQUEST_TIMEOUT")
	}
	if cfg.MaxResponseSize <= 0 {
		invalid = append(invalid, "MAX_RESPONSE_SIZE")
	}
	if cfg.BackendRate <= 0 {
		invalid = append(invalid, "BACKEND_RATE_PER_SEC")
	}
	if cfg.BackendBurst <= 0 {
		invalid = append(invalid, "BACKEND_BURST")
	}
	if cfg.RefreshInterval < 0 {
		invalid = append(invalid, "REFRESH_INTERVAL")
	}
	if (cfg.SessionCookieName == "") != (cfg.SessionCookieValue == "") {
		invalid = append(invalid, "SESSION_COOKIE_NAME/SESSION_COOKIE_VALUE")
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("environment variables have invalid values: %v", invalid)
	}

	return cfg, nil
}

// SlogLevel はLOG_LEVELをslog.Levelに変換する。
// 未知の値はInfoとして扱う。
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HasSessionCookie はセッションCookieの初期値が設定されているかを返す。
func (c *Config) HasSessionCookie() bool {
	return c.SessionCookieName != "" && c.SessionCookieValue != ""
}

// validateOrigin はオリジンがhttp/httpsのスキームとホストを持つかを検証する。
// パスやクエリを含むURLは受け付けない。
func validateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is empty")
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("origin must not contain path, query or fragment")
	}
	return nil
}
