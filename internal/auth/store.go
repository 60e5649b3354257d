// Package auth はクライアント側の認証セッション状態を管理する。
// バックエンドのOAuthセッションCookieを前提とし、サインイン・サインアウト・
// セッション再取得の3操作でステータスを遷移させる。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/guildboard/internal/metrics"
	"github.com/hitoshi/guildboard/internal/model"
)

// SessionClient はAuthStoreが必要とするバックエンドクライアントのインターフェース。
type SessionClient interface {
	// LoginURL はOAuthログインを開始するURLを返す。
	LoginURL() string
	// Logout はバックエンドのセッションを破棄する。
	Logout(ctx context.Context) error
	// Session は現在のセッション情報を取得する。
	Session(ctx context.Context) (*model.SessionData, error)
}

// StoreConfig はAuthStoreの設定。
type StoreConfig struct {
	// OptimisticSignIn がtrueの場合、SignInは遷移前にステータスを
	// authorizationへ変更する。確認前に認証済みとみなす旧来の挙動で、
	// セッションがnilのままauthorizationになる。
	OptimisticSignIn bool
}

// State はAuthStoreの状態のスナップショット。
type State struct {
	Status    model.SessionStatus
	Session   *model.User
	LastError error
	UpdatedAt time.Time
}

// Store は現在のユーザーセッションとステータスを保持する。
// 並行に呼び出されても安全。
type Store struct {
	client  SessionClient
	config  StoreConfig
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	status    model.SessionStatus
	session   *model.User
	lastErr   error
	updatedAt time.Time
	// seq は最後に発行したセッション再取得の番号。
	// 古い再取得の結果で状態を上書きしないために使う。
	seq uint64
}

// NewStore はStoreを生成する。初期ステータスはloading。
func NewStore(client SessionClient, config StoreConfig, collector metrics.MetricsCollector, logger *slog.Logger) *Store {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		client:  client,
		config:  config,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
		status:  model.SessionStatusLoading,
	}
	s.updatedAt = s.now()
	return s
}

// Snapshot は現在の状態のコピーを返す。
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var user *model.User
	if s.session != nil {
		u := *s.session
		user = &u
	}
	return State{
		Status:    s.status,
		Session:   user,
		LastError: s.lastErr,
		UpdatedAt: s.updatedAt,
	}
}

// SignIn はブラウザ等をバックエンドのログインURLへ遷移させる。
// 遷移の結果は待たない。ログイン完了後にGetSessionで状態を確定させること。
//
// 既定ではステータスをloadingにして確認待ちとする（認証済みの場合は変更しない）。
// StoreConfig.OptimisticSignIn がtrueの場合は遷移前にauthorizationへ変更する。
func (s *Store) SignIn(ctx context.Context, nav Navigator) error {
	target := s.client.LoginURL()

	s.mu.Lock()
	switch {
	case s.config.OptimisticSignIn:
		s.setStatusLocked(model.SessionStatusAuthorized)
	case s.status != model.SessionStatusAuthorized:
		s.setStatusLocked(model.SessionStatusLoading)
	}
	s.mu.Unlock()

	s.logger.Info("sign in", slog.String("login_url", target))

	if err := nav.Navigate(ctx, target); err != nil {
		s.logger.Error("failed to navigate to login page",
			slog.String("login_url", target),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}
	return nil
}

// SignOut はバックエンドにログアウトを要求する。
// 成功した場合はセッションを破棄してunauthorizationに遷移する。
// 失敗した場合はエラーをログに記録し、セッションとステータスは変更しない。
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.client.Logout(ctx); err != nil {
		s.logger.Error("failed to sign out", slog.String("error", err.Error()))
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return fmt.Errorf("failed to sign out: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 実行中のセッション再取得がセッションを復活させないよう番号を進める
	s.seq++
	s.session = nil
	s.lastErr = nil
	s.setStatusLocked(model.SessionStatusUnauthorized)

	s.logger.Info("signed out")
	return nil
}

// GetSession はバックエンドからセッション情報を再取得する。
// 呼び出し直後にloadingへ遷移し、ユーザー情報があればauthorization、
// それ以外（ユーザーなし、2xx以外、通信エラー、不正なレスポンス）は
// セッションを破棄してunauthorizationへ遷移する。
//
// 複数の呼び出しが並行した場合は、最後に発行した呼び出しの結果のみを反映する。
// 返すエラーは診断用で、状態は既に確定している。
func (s *Store) GetSession(ctx context.Context) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.setStatusLocked(model.SessionStatusLoading)
	s.mu.Unlock()

	s.logger.Debug("fetching session data")

	data, err := s.client.Session(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq {
		s.logger.Debug("discarding stale session response",
			slog.Uint64("seq", seq),
			slog.Uint64("latest_seq", s.seq),
		)
		if err != nil {
			return fmt.Errorf("failed to fetch session: %w", err)
		}
		return nil
	}

	if err != nil {
		s.logger.Error("failed to fetch session", slog.String("error", err.Error()))
		s.session = nil
		s.lastErr = err
		s.setStatusLocked(model.SessionStatusUnauthorized)
		return fmt.Errorf("failed to fetch session: %w", err)
	}

	s.lastErr = nil
	if data.User == nil {
		s.logger.Info("session data received without user")
		s.session = nil
		s.setStatusLocked(model.SessionStatusUnauthorized)
		return nil
	}

	s.logger.Info("session data received", slog.String("user_id", data.User.ID))
	s.session = data.User
	s.setStatusLocked(model.SessionStatusAuthorized)
	return nil
}

// setStatusLocked はステータスを変更する。s.muを保持した状態で呼び出すこと。
func (s *Store) setStatusLocked(status model.SessionStatus) {
	s.status = status
	s.updatedAt = s.now()
	s.metrics.RecordSessionTransition(string(status))
}
