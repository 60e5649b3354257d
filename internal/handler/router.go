package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/guildboard/internal/middleware"
	"github.com/hitoshi/guildboard/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// ストア
	AuthStore AuthStoreInterface
	DataStore DataStoreInterface

	// アバタープロキシ
	AvatarFetcher AvatarFetcher

	// メトリクス（nilの場合は /metrics を公開しない）
	MetricsHandler http.Handler
}

// NewRouter はダッシュボードの全エンドポイントとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → CSRF
//
// バックエンド呼び出しを伴うPOSTにはクライアント単位のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(middleware.CSRFConfig{
		AllowedOrigin: deps.CORSAllowedOrigin,
		Logger:        logger,
	}))

	sanitizer := security.NewDisplaySanitizer()
	authHandler := NewAuthHandler(deps.AuthStore, deps.AvatarFetcher, sanitizer, logger)
	dataHandler := NewDataHandler(deps.DataStore, sanitizer)

	limited := func(h http.HandlerFunc) http.Handler {
		if deps.RateLimiter == nil {
			return h
		}
		return deps.RateLimiter.Middleware()(h)
	}

	r.Get("/health", Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Post("/auth/signin", authHandler.SignIn)

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/state", authHandler.State)
		r.Get("/avatar", authHandler.Avatar)
		r.Method(http.MethodPost, "/signout", limited(authHandler.SignOut))
		r.Method(http.MethodPost, "/refresh", limited(authHandler.Refresh))
	})

	r.Route("/api/data", func(r chi.Router) {
		r.Get("/", dataHandler.Snapshot)
		r.Method(http.MethodPost, "/init", limited(dataHandler.Init))
	})

	return r
}

// Health はプロセスの稼働確認用エンドポイント。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
