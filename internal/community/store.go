// Package community はメンバー・オンライン人数・Discordユーザーの
// 3つのコレクションを保持するデータストアを提供する。
// 認証状態には依存せず、いずれも認証不要のエンドポイントから取得する。
package community

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/guildboard/internal/metrics"
	"github.com/hitoshi/guildboard/internal/model"
)

// コレクション名
const (
	CollectionMembers      = "members"
	CollectionOnlineCount  = "online_count"
	CollectionDiscordUsers = "discord_users"
)

// DataClient はDataStoreが必要とするバックエンドクライアントのインターフェース。
type DataClient interface {
	Members(ctx context.Context) ([]model.Member, error)
	OnlineCount(ctx context.Context) (int, error)
	DiscordUsers(ctx context.Context) ([]model.DiscordUser, error)
}

// Snapshot はDataStoreの状態のコピー。
type Snapshot struct {
	Members      []model.Member
	OnlineCount  int
	DiscordUsers []model.DiscordUser
	UpdatedAt    time.Time
}

// Outcome は1コレクションの取得結果。
type Outcome struct {
	Collection string
	Err        error
}

// OK は取得に成功したかを返す。
func (o Outcome) OK() bool {
	return o.Err == nil
}

// InitReport はInitの結果。各コレクションの結果を固定順で保持する。
type InitReport struct {
	Outcomes []Outcome
}

// OK はすべてのコレクションの取得に成功したかを返す。
func (r InitReport) OK() bool {
	for _, o := range r.Outcomes {
		if !o.OK() {
			return false
		}
	}
	return true
}

// Failed は失敗したコレクションの結果のみを返す。
func (r InitReport) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Store はコミュニティデータのコレクションを保持する。
// 各コレクションは取得のたびに丸ごと置き換え、マージはしない。
type Store struct {
	client  DataClient
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time

	mu           sync.RWMutex
	members      []model.Member
	onlineCount  int
	discordUsers []model.DiscordUser
	updatedAt    time.Time
}

// NewStore はStoreを生成する。コレクションは空、オンライン人数は0で始まる。
func NewStore(client DataClient, collector metrics.MetricsCollector, logger *slog.Logger) *Store {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:       client,
		metrics:      collector,
		logger:       logger,
		now:          time.Now,
		members:      []model.Member{},
		discordUsers: []model.DiscordUser{},
	}
}

// Snapshot は現在のコレクションのコピーを返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]model.Member, len(s.members))
	copy(members, s.members)
	users := make([]model.DiscordUser, len(s.discordUsers))
	copy(users, s.discordUsers)

	return Snapshot{
		Members:      members,
		OnlineCount:  s.onlineCount,
		DiscordUsers: users,
		UpdatedAt:    s.updatedAt,
	}
}

// GetMembers はメンバー一覧を取得して置き換える。
// 失敗した場合は状態を変更せずにエラーを返す。
func (s *Store) GetMembers(ctx context.Context) error {
	members, err := s.client.Members(ctx)
	if err != nil {
		return fmt.Errorf("failed to get members: %w", err)
	}

	s.mu.Lock()
	s.members = members
	s.updatedAt = s.now()
	s.mu.Unlock()

	s.metrics.RecordCollectionSize(CollectionMembers, len(members))
	return nil
}

// GetOnlineCount はオンライン人数を取得して置き換える。
func (s *Store) GetOnlineCount(ctx context.Context) error {
	count, err := s.client.OnlineCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to get online count: %w", err)
	}

	s.mu.Lock()
	s.onlineCount = count
	s.updatedAt = s.now()
	s.mu.Unlock()

	s.metrics.RecordCollectionSize(CollectionOnlineCount, count)
	return nil
}

// GetDiscordUsers はDiscordユーザー一覧を取得して置き換える。
func (s *Store) GetDiscordUsers(ctx context.Context) error {
	users, err := s.client.DiscordUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to get discord users: %w", err)
	}

	s.mu.Lock()
	s.discordUsers = users
	s.updatedAt = s.now()
	s.mu.Unlock()

	s.metrics.RecordCollectionSize(CollectionDiscordUsers, len(users))
	return nil
}

// InitSequential はメンバー、オンライン人数、Discordユーザーの順に取得する。
// いずれかが失敗した時点で中断し、以降の取得は行わずにエラーを返す。
func (s *Store) InitSequential(ctx context.Context) error {
	if err := s.GetMembers(ctx); err != nil {
		return err
	}
	if err := s.GetOnlineCount(ctx); err != nil {
		return err
	}
	return s.GetDiscordUsers(ctx)
}

// Init は3つのコレクションを並行に取得し、コレクションごとの結果を返す。
// 1つの失敗は他の取得を中断しない。失敗はログに記録する。
func (s *Store) Init(ctx context.Context) InitReport {
	tasks := []struct {
		name  string
		fetch func(context.Context) error
	}{
		{CollectionMembers, s.GetMembers},
		{CollectionOnlineCount, s.GetOnlineCount},
		{CollectionDiscordUsers, s.GetDiscordUsers},
	}

	report := InitReport{Outcomes: make([]Outcome, len(tasks))}

	// 各タスクは失敗をOutcomeに記録してnilを返すため、他のタスクは取り消されない
	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			err := task.fetch(ctx)
			report.Outcomes[i] = Outcome{Collection: task.name, Err: err}
			if err != nil {
				s.logger.Error("failed to initialize collection",
					slog.String("collection", task.name),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("community data initialized",
		slog.Int("failed", len(report.Failed())),
		slog.Int("total", len(report.Outcomes)),
	)
	return report
}
