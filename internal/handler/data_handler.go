package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/guildboard/internal/community"
	"github.com/hitoshi/guildboard/internal/middleware"
	"github.com/hitoshi/guildboard/internal/model"
	"github.com/hitoshi/guildboard/internal/security"
)

// DataStoreInterface はデータハンドラーが必要とするストアのインターフェース。
type DataStoreInterface interface {
	Snapshot() community.Snapshot
	Init(ctx context.Context) community.InitReport
}

// DataResponse はコミュニティデータのスナップショット。
// LinkedMembers はDiscordアカウントが紐付いたメンバー数。
type DataResponse struct {
	Members       []model.Member      `json:"members"`
	LinkedMembers int                 `json:"linkedMembers"`
	OnlineCount   int                 `json:"onlineCount"`
	DiscordUsers  []model.DiscordUser `json:"discordUsers"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// OutcomeResponse はコレクションごとの取得結果。
// Kind はバックエンドエラーの分類（transport, http_status, malformed_payload）。
type OutcomeResponse struct {
	Collection string `json:"collection"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// InitResponse は一括取得の結果。
type InitResponse struct {
	OK       bool              `json:"ok"`
	Outcomes []OutcomeResponse `json:"outcomes"`
}

// DataHandler はコミュニティデータのHTTPハンドラー。
type DataHandler struct {
	store     DataStoreInterface
	sanitizer *security.DisplaySanitizer
}

// NewDataHandler はDataHandlerを生成する。
func NewDataHandler(store DataStoreInterface, sanitizer *security.DisplaySanitizer) *DataHandler {
	return &DataHandler{
		store:     store,
		sanitizer: sanitizer,
	}
}

// Snapshot は現在保持しているデータを返す。
// GET /api/data
func (h *DataHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()

	members := make([]model.Member, len(snap.Members))
	linked := 0
	for i, m := range snap.Members {
		if m.HasDiscord() {
			linked++
		}
		members[i] = model.Member{
			ID:          m.ID,
			DiscordID:   m.DiscordID,
			DiscordName: h.sanitizer.SanitizePtr(m.DiscordName),
			Nickname:    h.sanitizer.Sanitize(m.Nickname),
		}
	}

	discordUsers := snap.DiscordUsers
	if discordUsers == nil {
		discordUsers = []model.DiscordUser{}
	}

	middleware.WriteJSON(w, http.StatusOK, DataResponse{
		Members:       members,
		LinkedMembers: linked,
		OnlineCount:  snap.OnlineCount,
		DiscordUsers: discordUsers,
		UpdatedAt:    snap.UpdatedAt,
	})
}

// Init は3つのコレクションを並行して取得し、コレクションごとの結果を返す。
// 一部が失敗しても成功したコレクションは反映されるため、常に200を返す。
// POST /api/data/init
func (h *DataHandler) Init(w http.ResponseWriter, r *http.Request) {
	report := h.store.Init(r.Context())

	resp := InitResponse{
		OK:       report.OK(),
		Outcomes: make([]OutcomeResponse, 0, len(report.Outcomes)),
	}
	for _, o := range report.Outcomes {
		out := OutcomeResponse{Collection: o.Collection, OK: o.OK()}
		if o.Err != nil {
			out.Error = o.Err.Error()
			if kind, ok := model.ClientErrorKindOf(o.Err); ok {
				out.Kind = string(kind)
			}
		}
		resp.Outcomes = append(resp.Outcomes, out)
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}
