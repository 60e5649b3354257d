package model

import "encoding/json"

// Member はコミュニティのメンバーレコードを表す。
// Discordアカウントとの紐付けは任意。
type Member struct {
	ID          int64   `json:"id"`
	DiscordID   *string `json:"discordId,omitempty"`
	DiscordName *string `json:"discordName,omitempty"`
	Nickname    string  `json:"nickname"`
}

// HasDiscord はDiscordアカウントが紐付いているかを返す。
func (m *Member) HasDiscord() bool {
	return m.DiscordID != nil && *m.DiscordID != ""
}

// DiscordUser はバックエンドが返す外部プラットフォームのユーザーレコード。
// 中身は解釈せず、受け取ったJSONオブジェクトをそのまま保持する。
type DiscordUser json.RawMessage

// MarshalJSON は保持しているJSONをそのまま出力する。
func (d DiscordUser) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return []byte(d), nil
}

// UnmarshalJSON は受け取ったJSONをコピーして保持する。
func (d *DiscordUser) UnmarshalJSON(data []byte) error {
	*d = append((*d)[:0], data...)
	return nil
}

// OnlineCountResponse は /api/getOnlineCount のレスポンスボディ。
type OnlineCountResponse struct {
	OnlineCount *int `json:"onlineCount"`
}
