package app

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/guildboard/internal/auth"
	"github.com/hitoshi/guildboard/internal/backend"
	"github.com/hitoshi/guildboard/internal/community"
	"github.com/hitoshi/guildboard/internal/config"
	"github.com/hitoshi/guildboard/internal/logger"
	"github.com/hitoshi/guildboard/internal/metrics"
)

// Portal はプロセス単位のアプリケーションコンテキスト。
// 起動時に1回生成し、AuthStoreとDataStoreを1つずつ保持する。
// CLIコマンドとダッシュボードのハンドラーはここからストアを受け取る。
// 実行をまたいだ永続化は行わない。
type Portal struct {
	Auth      *auth.Store
	Community *community.Store
	Client    *backend.Client
	Registry  *prometheus.Registry
	Logger    *slog.Logger
}

// NewPortal は設定からバックエンドクライアントと2つのストアを構築する。
func NewPortal(cfg *config.Config, base *slog.Logger) (*Portal, error) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	clientCfg := backend.Config{
		Origin:          cfg.BackendOrigin,
		Timeout:         cfg.RequestTimeout,
		MaxResponseSize: cfg.MaxResponseSize,
		RatePerSec:      cfg.BackendRate,
		Burst:           cfg.BackendBurst,
	}
	if cfg.HasSessionCookie() {
		clientCfg.SessionCookieName = cfg.SessionCookieName
		clientCfg.SessionCookieValue = cfg.SessionCookieValue
	}

	client, err := backend.NewClient(clientCfg, collector, logger.Component(base, "backend"))
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	base.Debug("backend client ready",
		slog.String("origin", client.Origin()),
		slog.Bool("session_cookie", cfg.HasSessionCookie()),
	)

	authStore := auth.NewStore(client, auth.StoreConfig{
		OptimisticSignIn: cfg.OptimisticSignIn,
	}, collector, logger.Component(base, "auth"))

	communityStore := community.NewStore(client, collector, logger.Component(base, "community"))

	return &Portal{
		Auth:      authStore,
		Community: communityStore,
		Client:    client,
		Registry:  reg,
		Logger:    base,
	}, nil
}

// Close はPortalが保持するリソースを解放する。
func (p *Portal) Close() {
	p.Client.CloseIdleConnections()
}
