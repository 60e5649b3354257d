// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// defaultAvatarHosts はアバター画像の取得を許可するホスト。
var defaultAvatarHosts = []string{"cdn.discordapp.com"}

// Avatar は取得したアバター画像。
type Avatar struct {
	ContentType string
	Data        []byte
}

// AvatarFetcher はDiscord CDNからアバター画像を取得する。
// 許可ホスト・httpsのみを事前検証し、実際の接続はsafeurlのクライアントで行う。
// safeurlはDNS解決後のIPアドレスも検証するため、
// プライベートIPやループバックへの接続はDialerレベルで拒否される。
type AvatarFetcher struct {
	client       *http.Client
	allowedHosts []string // テスト用に差し替え可能
	maxSize      int64
	logger       *slog.Logger
}

// NewAvatarFetcher はAvatarFetcherを生成する。
func NewAvatarFetcher(timeout time.Duration, maxSize int64, logger *slog.Logger) *AvatarFetcher {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	if logger == nil {
		logger = slog.Default()
	}
	return &AvatarFetcher{
		client:       safeurl.Client(config).Client,
		allowedHosts: defaultAvatarHosts,
		maxSize:      maxSize,
		logger:       logger,
	}
}

// ValidateURL はアバターURLを事前に検証する。
// httpsスキーム、既定ポート、許可ホストのみを受け付ける。
func (f *AvatarFetcher) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("disallowed scheme: %s", parsed.Scheme)
	}
	if parsed.User != nil {
		return fmt.Errorf("URL must not contain credentials")
	}

	host := parsed.Hostname()
	if !f.isAllowedHost(host) {
		return fmt.Errorf("disallowed host: %s", host)
	}
	return nil
}

// Fetch はアバター画像を取得する。
// 画像以外のContent-Typeや上限サイズ超過はエラーとする。
func (f *AvatarFetcher) Fetch(ctx context.Context, rawURL string) (*Avatar, error) {
	if err := f.ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("avatar URL rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create avatar request: %w", err)
	}
	req.Header.Set("User-Agent", "Guildboard/1.0")
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("アバター画像の取得に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("avatar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("アバター画像の取得でエラーステータスが返されました",
			slog.String("url", rawURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("avatar request returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("unexpected avatar content type: %q", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read avatar body: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("avatar exceeds %d bytes", f.maxSize)
	}

	return &Avatar{ContentType: mediaType, Data: data}, nil
}

// isAllowedHost はホストが許可リストに含まれるかを検証する。
func (f *AvatarFetcher) isAllowedHost(host string) bool {
	for _, allowed := range f.allowedHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}
