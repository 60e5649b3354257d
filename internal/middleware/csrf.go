package middleware

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/guildboard/internal/model"
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	// AllowedOrigin は状態変更リクエストを受け付けるブラウザのオリジン。
	AllowedOrigin string
	Logger        *slog.Logger
}

// NewCSRFMiddleware は状態変更メソッドのOriginを検証するミドルウェアを返す。
// ダッシュボードはバックエンドへのログアウトや再取得を代理実行するため、
// 他サイトからのフォーム送信で起動されないようにする。
//
// 安全なメソッド（GET, HEAD, OPTIONS）は検証をスキップする。
// Originヘッダーのないリクエスト（CLIやcurl）は許可する。
// Originがある場合は、許可オリジンかダッシュボード自身のホストでなければ403を返す。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" || origin == config.AllowedOrigin || isSameHost(origin, r.Host) {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("CSRF validation failed: origin mismatch",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("origin", origin),
			)
			WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenOriginError())
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// isSameHost はOriginのホスト部がリクエストのHostと一致するかを判定する。
func isSameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Host == host
}
