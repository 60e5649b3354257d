// Package backend はコミュニティバックエンドAPIのクライアントを提供する。
// セッションCookieによる認証付き呼び出しと、認証不要のデータ取得を扱う。
package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/hitoshi/guildboard/internal/metrics"
	"github.com/hitoshi/guildboard/internal/model"
)

const (
	userAgent = "Guildboard/1.0"

	// requestIDHeader はリクエスト追跡用のヘッダー名。
	requestIDHeader = "X-Request-ID"

	// defaultMaxResponseSize はレスポンスボディの既定上限（5MiB）。
	defaultMaxResponseSize = 5 << 20
)

// endpoint はバックエンドAPIのエンドポイント定義。
type endpoint struct {
	name         string // メトリクス・ログ用の名前
	path         string
	method       string
	credentialed bool // セッションCookieを送信するか
}

var (
	endpointLogin        = endpoint{name: "login", path: "/api/auth/login", method: http.MethodGet, credentialed: true}
	endpointLogout       = endpoint{name: "logout", path: "/api/auth/logout", method: http.MethodPost, credentialed: true}
	endpointSession      = endpoint{name: "session", path: "/api/auth/session", method: http.MethodGet, credentialed: true}
	endpointMembers      = endpoint{name: "members", path: "/api/members", method: http.MethodGet}
	endpointOnlineCount  = endpoint{name: "online_count", path: "/api/getOnlineCount", method: http.MethodGet}
	endpointDiscordUsers = endpoint{name: "discord_users", path: "/api/discordUsers", method: http.MethodGet}
)

// Config はClientの設定。
type Config struct {
	Origin          string        // 例: http://localhost:3100
	Timeout         time.Duration // 1リクエストあたりのタイムアウト
	MaxResponseSize int64
	RatePerSec      float64 // バックエンドへの送信レート。0以下の場合は無制限
	Burst           int

	// CLIからブラウザログイン後のセッションを使うためのCookie初期値
	SessionCookieName  string
	SessionCookieValue string
}

// Client はバックエンドAPIのクライアント。
// 認証付き呼び出しはCookieJarを持つhttp.Clientで送信し、
// 認証不要の呼び出しはCookieを送らないhttp.Clientで送信する。
type Client struct {
	origin       *url.URL
	credentialed *http.Client
	anonymous    *http.Client
	limiter      *rate.Limiter
	metrics      metrics.MetricsCollector
	logger       *slog.Logger
	maxBodySize  int64
	newRequestID func() string // テスト用に差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// オリジンのパースやCookieJarの生成に失敗した場合はエラーを返す。
func NewClient(cfg Config, collector metrics.MetricsCollector, logger *slog.Logger) (*Client, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("failed to parse backend origin: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("backend origin must be an absolute URL: %q", cfg.Origin)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if cfg.SessionCookieName != "" && cfg.SessionCookieValue != "" {
		jar.SetCookies(origin, []*http.Cookie{{
			Name:  cfg.SessionCookieName,
			Value: cfg.SessionCookieValue,
			Path:  "/",
		}})
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if burst <= 0 {
		burst = 1
	}

	maxBody := cfg.MaxResponseSize
	if maxBody <= 0 {
		maxBody = defaultMaxResponseSize
	}

	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		origin:       origin,
		credentialed: &http.Client{Timeout: cfg.Timeout, Jar: jar},
		anonymous:    &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(limit, burst),
		metrics:      collector,
		logger:       logger,
		maxBodySize:  maxBody,
		newRequestID: func() string { return uuid.New().String() },
	}, nil
}

// Origin はバックエンドのオリジンを返す。
func (c *Client) Origin() string {
	return c.origin.String()
}

// CloseIdleConnections は保持しているアイドル接続を閉じる。
func (c *Client) CloseIdleConnections() {
	c.credentialed.CloseIdleConnections()
	c.anonymous.CloseIdleConnections()
}

// LoginURL はOAuthログインを開始するバックエンドのURLを返す。
// ブラウザをこのURLへ遷移させるとバックエンドが外部IdPへリダイレクトする。
func (c *Client) LoginURL() string {
	return c.origin.JoinPath(endpointLogin.path).String()
}

// Logout はバックエンドのセッションを破棄する。
// 2xxであれば成功とみなし、レスポンスボディは検査しない。
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.do(ctx, endpointLogout); err != nil {
		return err
	}
	c.succeeded(endpointLogout)
	return nil
}

// Session は現在のセッション情報を取得する。
// 未ログインの場合はUserがnilのSessionDataを返す。
func (c *Client) Session(ctx context.Context) (*model.SessionData, error) {
	body, err := c.do(ctx, endpointSession)
	if err != nil {
		return nil, err
	}
	data, err := decodeSession(body)
	if err != nil {
		return nil, c.malformed(endpointSession, err)
	}
	c.succeeded(endpointSession)
	return data, nil
}

// Members はメンバー一覧を取得する。
func (c *Client) Members(ctx context.Context) ([]model.Member, error) {
	body, err := c.do(ctx, endpointMembers)
	if err != nil {
		return nil, err
	}
	members, err := decodeMembers(body)
	if err != nil {
		return nil, c.malformed(endpointMembers, err)
	}
	c.succeeded(endpointMembers)
	return members, nil
}

// OnlineCount はオンライン人数を取得する。
func (c *Client) OnlineCount(ctx context.Context) (int, error) {
	body, err := c.do(ctx, endpointOnlineCount)
	if err != nil {
		return 0, err
	}
	count, err := decodeOnlineCount(body)
	if err != nil {
		return 0, c.malformed(endpointOnlineCount, err)
	}
	c.succeeded(endpointOnlineCount)
	return count, nil
}

// DiscordUsers はDiscordユーザーの生レコード一覧を取得する。
func (c *Client) DiscordUsers(ctx context.Context) ([]model.DiscordUser, error) {
	body, err := c.do(ctx, endpointDiscordUsers)
	if err != nil {
		return nil, err
	}
	users, err := decodeDiscordUsers(body)
	if err != nil {
		return nil, c.malformed(endpointDiscordUsers, err)
	}
	c.succeeded(endpointDiscordUsers)
	return users, nil
}

// do はエンドポイントへリクエストを送信し、2xxの場合にレスポンスボディを返す。
// 失敗は*model.ClientErrorとして返す。成功のメトリクスは呼び出し元が記録する。
func (c *Client) do(ctx context.Context, ep endpoint) ([]byte, error) {
	start := time.Now()

	// 送信レート制御
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.transportFailure(ep, "", fmt.Errorf("rate limiter: %w", err))
	}

	// POSTは空のJSONオブジェクトを送る
	var reqBody io.Reader
	if ep.method == http.MethodPost {
		reqBody = strings.NewReader("{}")
	}

	reqURL := c.origin.JoinPath(ep.path).String()
	req, err := http.NewRequestWithContext(ctx, ep.method, reqURL, reqBody)
	if err != nil {
		return nil, c.transportFailure(ep, "", fmt.Errorf("failed to create request: %w", err))
	}

	requestID := c.newRequestID()
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.anonymous
	if ep.credentialed {
		client = c.credentialed
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, c.transportFailure(ep, requestID, err)
	}
	defer resp.Body.Close()

	c.metrics.RecordHTTPStatus(resp.StatusCode)
	c.metrics.RecordLatency(ep.name, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("バックエンドAPIがエラーステータスを返しました",
			slog.String("endpoint", ep.name),
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.StatusCode),
		)
		c.metrics.RecordRequest(ep.name, string(model.ClientErrorHTTPStatus))
		return nil, &model.ClientError{
			Kind:       model.ClientErrorHTTPStatus,
			Endpoint:   ep.path,
			StatusCode: resp.StatusCode,
		}
	}

	// レスポンスボディ読み取り（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, c.transportFailure(ep, requestID, fmt.Errorf("failed to read response body: %w", err))
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, c.malformed(ep, fmt.Errorf("response body exceeds %d bytes", c.maxBodySize))
	}

	c.logger.Debug("バックエンドAPIの呼び出しに成功しました",
		slog.String("endpoint", ep.name),
		slog.String("request_id", requestID),
		slog.Int("http_status", resp.StatusCode),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return body, nil
}

// succeeded は呼び出し成功をメトリクスに記録する。
// レスポンスの検証まで通過した時点で呼び出す。
func (c *Client) succeeded(ep endpoint) {
	c.metrics.RecordRequest(ep.name, "ok")
}

// transportFailure は通信エラーをログ・メトリクスに記録し、ClientErrorに変換する。
func (c *Client) transportFailure(ep endpoint, requestID string, err error) error {
	c.logger.Error("バックエンドAPIの呼び出しに失敗しました",
		slog.String("endpoint", ep.name),
		slog.String("request_id", requestID),
		slog.String("error", err.Error()),
	)
	c.metrics.RecordRequest(ep.name, string(model.ClientErrorTransport))
	return &model.ClientError{
		Kind:     model.ClientErrorTransport,
		Endpoint: ep.path,
		Err:      err,
	}
}

// malformed はレスポンス形式の不正をログ・メトリクスに記録し、ClientErrorに変換する。
func (c *Client) malformed(ep endpoint, err error) error {
	c.logger.Error("バックエンドAPIのレスポンスが不正です",
		slog.String("endpoint", ep.name),
		slog.String("error", err.Error()),
	)
	c.metrics.RecordRequest(ep.name, string(model.ClientErrorMalformed))
	return &model.ClientError{
		Kind:     model.ClientErrorMalformed,
		Endpoint: ep.path,
		Err:      err,
	}
}
