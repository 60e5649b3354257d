// Package app はCLIのエントリーポイントとコンポーネントのワイヤリングを提供する。
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/guildboard/internal/auth"
	"github.com/hitoshi/guildboard/internal/community"
	"github.com/hitoshi/guildboard/internal/config"
	"github.com/hitoshi/guildboard/internal/handler"
	"github.com/hitoshi/guildboard/internal/logger"
	"github.com/hitoshi/guildboard/internal/metrics"
	"github.com/hitoshi/guildboard/internal/middleware"
	"github.com/hitoshi/guildboard/internal/model"
	"github.com/hitoshi/guildboard/internal/security"
	"github.com/hitoshi/guildboard/internal/worker/refresh"
)

// shutdownTimeout はダッシュボードサーバーのグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, logger.SetupDefault(w, cfg.SlogLevel()), nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。結果はstdout、ログはstderrに出力する。
// SIGINTまたはSIGTERMを受信すると実行中の処理をキャンセルする。
func Run(stdout, stderr io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, stdout, stderr, args)
}

// RunContext は指定コンテキストでRunを実行する。
func RunContext(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, port)
	}

	cfg, log, err := Init(stderr)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	portal, err := NewPortal(cfg, log)
	if err != nil {
		return err
	}
	defer portal.Close()

	log.Debug("starting application",
		slog.String("command", string(cmd)),
		slog.String("backend_origin", cfg.BackendOrigin),
	)

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	switch cmd {
	case CommandServe:
		return runServe(ctx, cfg, portal)
	case CommandSession:
		return runSession(ctx, stdout, portal)
	case CommandLogin:
		return portal.Auth.SignIn(ctx, auth.WriterNavigator{W: stdout})
	case CommandLogout:
		return runLogout(ctx, stdout, portal)
	case CommandMembers:
		if err := portal.Community.GetMembers(ctx); err != nil {
			return err
		}
		return writeJSON(stdout, nonNil(portal.Community.Snapshot().Members))
	case CommandOnline:
		if err := portal.Community.GetOnlineCount(ctx); err != nil {
			return err
		}
		return writeJSON(stdout, map[string]int{"onlineCount": portal.Community.Snapshot().OnlineCount})
	case CommandDiscordUsers:
		if err := portal.Community.GetDiscordUsers(ctx); err != nil {
			return err
		}
		return writeJSON(stdout, nonNil(portal.Community.Snapshot().DiscordUsers))
	case CommandInit:
		opts, err := parseInitOptions(rest, stderr)
		if err != nil {
			return err
		}
		return runInit(ctx, stdout, portal, opts)
	default:
		return fmt.Errorf("unsupported command: %q", cmd)
	}
}

// runServe はダッシュボードサーバーを起動する。
// REFRESH_INTERVALが正の場合は定期再取得ワーカーも起動する。
// コンテキストがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, portal *Portal) error {
	log := portal.Logger

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), log)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            logger.Component(log, "dashboard"),
		AuthStore:         portal.Auth,
		DataStore:         portal.Community,
		AvatarFetcher:     security.NewAvatarFetcher(cfg.RequestTimeout, cfg.MaxResponseSize, log),
		MetricsHandler:    metrics.Handler(portal.Registry),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.RefreshInterval > 0 {
		refresher := refresh.NewRefresher(portal.Auth, portal.Community, logger.Component(log, "refresh"))
		go refresher.Start(ctx, cfg.RefreshInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("dashboard server starting",
			slog.String("addr", server.Addr),
			slog.String("backend_origin", cfg.BackendOrigin),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down dashboard server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("dashboard server stopped gracefully")
	return nil
}

// runSession はセッションを取得して認証状態を出力する。
// 取得失敗は未認証状態として出力し、エラーはlastErrorに含める。
func runSession(ctx context.Context, stdout io.Writer, portal *Portal) error {
	// 失敗時もストアの状態は確定済み
	_ = portal.Auth.GetSession(ctx)
	return writeJSON(stdout, newStateOutput(portal.Auth.Snapshot()))
}

// runLogout はバックエンドでログアウトし、更新後の認証状態を出力する。
func runLogout(ctx context.Context, stdout io.Writer, portal *Portal) error {
	if err := portal.Auth.SignOut(ctx); err != nil {
		return err
	}
	return writeJSON(stdout, newStateOutput(portal.Auth.Snapshot()))
}

// runInit はコレクションを一括取得し、結果を出力する。
// 並行取得では1つでも失敗した場合、レポートを出力したうえでエラーを返す。
func runInit(ctx context.Context, stdout io.Writer, portal *Portal, opts initOptions) error {
	if opts.sequential {
		if err := portal.Community.InitSequential(ctx); err != nil {
			return err
		}
		return writeJSON(stdout, newDataOutput(portal.Community.Snapshot()))
	}

	report := portal.Community.Init(ctx)
	if err := writeJSON(stdout, newInitOutput(report)); err != nil {
		return err
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("init: %d of %d collections failed", len(failed), len(report.Outcomes))
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// stateOutput はCLIが出力する認証状態。
type stateOutput struct {
	Status    model.SessionStatus `json:"status"`
	Session   *model.User         `json:"session"`
	LastError string              `json:"lastError,omitempty"`
}

func newStateOutput(state auth.State) stateOutput {
	out := stateOutput{Status: state.Status, Session: state.Session}
	if state.LastError != nil {
		out.LastError = state.LastError.Error()
	}
	return out
}

// dataOutput はCLIが出力するコミュニティデータ。
type dataOutput struct {
	Members      []model.Member      `json:"members"`
	OnlineCount  int                 `json:"onlineCount"`
	DiscordUsers []model.DiscordUser `json:"discordUsers"`
}

func newDataOutput(snap community.Snapshot) dataOutput {
	return dataOutput{
		Members:      nonNil(snap.Members),
		OnlineCount:  snap.OnlineCount,
		DiscordUsers: nonNil(snap.DiscordUsers),
	}
}

// initOutput はCLIが出力する一括取得の結果。
type initOutput struct {
	OK       bool            `json:"ok"`
	Outcomes []outcomeOutput `json:"outcomes"`
}

type outcomeOutput struct {
	Collection string `json:"collection"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}

func newInitOutput(report community.InitReport) initOutput {
	out := initOutput{
		OK:       report.OK(),
		Outcomes: make([]outcomeOutput, 0, len(report.Outcomes)),
	}
	for _, o := range report.Outcomes {
		oo := outcomeOutput{Collection: o.Collection, OK: o.OK()}
		if o.Err != nil {
			oo.Error = o.Err.Error()
		}
		out.Outcomes = append(out.Outcomes, oo)
	}
	return out
}

// writeJSON はインデント付きJSONを出力する。
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// nonNil はnilスライスを空スライスに置き換える。
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
