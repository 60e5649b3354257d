// Package handler はダッシュボードのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/guildboard/internal/auth"
	"github.com/hitoshi/guildboard/internal/middleware"
	"github.com/hitoshi/guildboard/internal/model"
	"github.com/hitoshi/guildboard/internal/security"
)

// avatarSize はプロキシするアバター画像のサイズ。
const avatarSize = 256

// AuthStoreInterface は認証ハンドラーが必要とするストアのインターフェース。
type AuthStoreInterface interface {
	Snapshot() auth.State
	SignIn(ctx context.Context, nav auth.Navigator) error
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) error
}

// AvatarFetcher はアバター画像の取得インターフェース。
type AvatarFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*security.Avatar, error)
}

// AuthStateResponse は認証状態のレスポンス。
// DisplayName はglobal_name、未設定ならusernameを表示用に返す。
type AuthStateResponse struct {
	Status      model.SessionStatus `json:"status"`
	Session     *model.User         `json:"session"`
	DisplayName string              `json:"displayName,omitempty"`
	LastError   string              `json:"lastError,omitempty"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// AuthHandler は認証状態関連のHTTPハンドラー。
type AuthHandler struct {
	store     AuthStoreInterface
	avatars   AvatarFetcher
	sanitizer *security.DisplaySanitizer
	logger    *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(store AuthStoreInterface, avatars AvatarFetcher, sanitizer *security.DisplaySanitizer, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		store:     store,
		avatars:   avatars,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// State は現在の認証状態を返す。
// GET /api/auth/state
func (h *AuthHandler) State(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.stateResponse())
}

// SignIn はバックエンドのログインURLへリダイレクトする。
// ストアの状態を変更するため、Originチェックの対象となるPOSTで受け付ける。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	nav := auth.NavigatorFunc(func(_ context.Context, target string) error {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return nil
	})

	if err := h.store.SignIn(r.Context(), nav); err != nil {
		h.logger.Error("failed to start sign in", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewNavigationFailedError())
	}
}

// SignOut はバックエンドでログアウトし、更新後の状態を返す。
// ログアウトに失敗した場合は状態を変更せず502を返す。
// POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SignOut(r.Context()); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewBackendFailedError("logout"))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.stateResponse())
}

// Refresh はセッションを再取得し、更新後の状態を返す。
// 取得失敗は未認証状態として返す（エラーはlastErrorに含める）。
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	// 失敗時もストアの状態は確定済み
	_ = h.store.GetSession(r.Context())
	middleware.WriteJSON(w, http.StatusOK, h.stateResponse())
}

// Avatar はセッションユーザーのアバター画像をプロキシする。
// GET /api/auth/avatar
func (h *AuthHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	state := h.store.Snapshot()
	if state.Status != model.SessionStatusAuthorized || state.Session == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoSessionError())
		return
	}

	avatarURL := state.Session.AvatarURL(avatarSize)
	if avatarURL == "" {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewAvatarNotFoundError())
		return
	}

	avatar, err := h.avatars.Fetch(r.Context(), avatarURL)
	if err != nil {
		h.logger.Warn("failed to proxy avatar",
			slog.String("user_id", state.Session.ID),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewAvatarFetchError())
		return
	}

	w.Header().Set("Content-Type", avatar.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(avatar.Data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(avatar.Data)
}

// stateResponse はストアのスナップショットから表示用のレスポンスを組み立てる。
// 表示文字列はサニタイズしたコピーに対して適用し、ストアの値は変更しない。
func (h *AuthHandler) stateResponse() AuthStateResponse {
	state := h.store.Snapshot()

	resp := AuthStateResponse{
		Status:    state.Status,
		UpdatedAt: state.UpdatedAt,
	}
	if state.LastError != nil {
		resp.LastError = state.LastError.Error()
	}
	if state.Session != nil {
		user := *state.Session
		user.Username = h.sanitizer.Sanitize(user.Username)
		user.GlobalName = h.sanitizer.Sanitize(user.GlobalName)
		resp.Session = &user
		resp.DisplayName = user.DisplayName()
	}
	return resp
}
