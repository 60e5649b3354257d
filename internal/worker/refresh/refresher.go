// Package refresh はセッションとコミュニティデータの定期再取得を提供する。
package refresh

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/guildboard/internal/community"
)

// SessionRefresher はセッションの再取得インターフェース。
type SessionRefresher interface {
	GetSession(ctx context.Context) error
}

// DataInitializer はコミュニティデータの一括取得インターフェース。
type DataInitializer interface {
	Init(ctx context.Context) community.InitReport
}

// Refresher は一定間隔でセッションとコミュニティデータを再取得する。
// 各サイクルではセッションの再取得とデータの一括取得を並行して実行し、
// 失敗はログに記録して次のサイクルを待つ。
type Refresher struct {
	session SessionRefresher
	data    DataInitializer
	logger  *slog.Logger
}

// NewRefresher はRefresherの新しいインスタンスを生成する。
func NewRefresher(session SessionRefresher, data DataInitializer, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		session: session,
		data:    data,
		logger:  logger,
	}
}

// Start は指定間隔のティッカーで再取得を開始する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("定期再取得を開始しました",
		slog.Duration("interval", interval),
	)

	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("定期再取得を停止しました")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce はセッションとコミュニティデータを1回再取得する。
// どちらの失敗も他方の実行を妨げない。
func (r *Refresher) RunOnce(ctx context.Context) {
	start := time.Now()

	var (
		g      errgroup.Group
		report community.InitReport
	)

	g.Go(func() error {
		if err := r.session.GetSession(ctx); err != nil {
			r.logger.Warn("セッションの再取得に失敗しました",
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
	g.Go(func() error {
		report = r.data.Init(ctx)
		return nil
	})
	g.Wait()

	failed := make([]string, 0, len(report.Failed()))
	for _, o := range report.Failed() {
		failed = append(failed, o.Collection)
	}

	r.logger.Info("再取得サイクルが完了しました",
		slog.Int("collection_count", len(report.Outcomes)),
		slog.Any("failed_collections", failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}
