package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, data, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNoSession        = "NO_SESSION"
	ErrCodeAvatarNotFound   = "AVATAR_NOT_FOUND"
	ErrCodeAvatarFetch      = "AVATAR_FETCH_FAILED"
	ErrCodeBackendFailed    = "BACKEND_FAILED"
	ErrCodeNavigationFailed = "NAVIGATION_FAILED"
	ErrCodeForbiddenOrigin  = "FORBIDDEN_ORIGIN"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
)

// NewNoSessionError はセッション未確立エラーを生成する。
func NewNoSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoSession,
		Message:  "ログインしていません。",
		Category: "auth",
		Action:   "サインインしてから再度お試しください。",
	}
}

// NewAvatarNotFoundError はアバター未設定エラーを生成する。
func NewAvatarNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAvatarNotFound,
		Message:  "アバター画像が設定されていません。",
		Category: "auth",
		Action:   "Discord側でアバターを設定してください。",
	}
}

// NewAvatarFetchError はアバター取得失敗エラーを生成する。
func NewAvatarFetchError() *APIError {
	return &APIError{
		Code:     ErrCodeAvatarFetch,
		Message:  "アバター画像の取得に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewBackendFailedError はバックエンド呼び出し失敗エラーを生成する。
func NewBackendFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeBackendFailed,
		Message:  fmt.Sprintf("バックエンドの呼び出しに失敗しました: %s", reason),
		Category: "data",
		Action:   "バックエンドが起動しているか確認してください。",
	}
}

// NewNavigationFailedError はサインイン画面への遷移失敗エラーを生成する。
func NewNavigationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeNavigationFailed,
		Message:  "ログイン画面への遷移に失敗しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewForbiddenOriginError は許可されていないオリジンからの状態変更リクエストのエラーを生成する。
func NewForbiddenOriginError() *APIError {
	return &APIError{
		Code:     ErrCodeForbiddenOrigin,
		Message:  "許可されていないオリジンからのリクエストです。",
		Category: "validation",
		Action:   "ダッシュボードから操作してください。",
	}
}

// NewRateLimitedError はリクエスト過多エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// ClientErrorKind はバックエンド呼び出し失敗の分類。
type ClientErrorKind string

const (
	// ClientErrorTransport は接続失敗・タイムアウト等の通信エラー。
	ClientErrorTransport ClientErrorKind = "transport"
	// ClientErrorHTTPStatus は2xx以外のステータスコード。
	ClientErrorHTTPStatus ClientErrorKind = "http_status"
	// ClientErrorMalformed は期待した形式でないレスポンスボディ。
	ClientErrorMalformed ClientErrorKind = "malformed_payload"
)

// ClientError はバックエンドAPI呼び出しの失敗を表す型付きエラー。
type ClientError struct {
	Kind       ClientErrorKind
	Endpoint   string
	StatusCode int // Kind == ClientErrorHTTPStatus の場合のみ設定
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *ClientError) Error() string {
	switch e.Kind {
	case ClientErrorHTTPStatus:
		return fmt.Sprintf("%s: %s returned status %d", e.Kind, e.Endpoint, e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Endpoint, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Endpoint)
	}
}

// Unwrap は元のエラーを返す。
func (e *ClientError) Unwrap() error {
	return e.Err
}

// ClientErrorKindOf はerrからClientErrorの分類を取り出す。
// ClientErrorでない場合はfalseを返す。
func ClientErrorKindOf(err error) (ClientErrorKind, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
