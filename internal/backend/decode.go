package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/guildboard/internal/model"
)

var (
	errNotArray  = errors.New("expected a JSON array")
	errNotObject = errors.New("expected a JSON object")
)

// decodeSession は /api/auth/session のレスポンスを検証付きでデコードする。
// sessionフィールドの欠落は不正とみなす。userの欠落・nullは未ログインとして扱う。
func decodeSession(body []byte) (*model.SessionData, error) {
	if !isJSONObject(body) {
		return nil, errNotObject
	}

	var env model.SessionEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	if env.Session == nil {
		return nil, fmt.Errorf("missing session field")
	}
	if env.Session.User != nil && env.Session.User.ID == "" {
		return nil, fmt.Errorf("session user has empty id")
	}
	return env.Session, nil
}

// memberRecord は必須フィールドの有無を検査するためのデコード用構造体。
type memberRecord struct {
	ID          *int64  `json:"id"`
	DiscordID   *string `json:"discordId"`
	DiscordName *string `json:"discordName"`
	Nickname    *string `json:"nickname"`
}

// decodeMembers は /api/members のレスポンスを検証付きでデコードする。
// 各要素はidを必須とし、nicknameの欠落は空文字列として扱う。
func decodeMembers(body []byte) ([]model.Member, error) {
	if !isJSONArray(body) {
		return nil, errNotArray
	}

	var records []memberRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to parse members response: %w", err)
	}

	members := make([]model.Member, 0, len(records))
	for i, r := range records {
		if r.ID == nil {
			return nil, fmt.Errorf("member[%d] has no id", i)
		}
		m := model.Member{
			ID:          *r.ID,
			DiscordID:   r.DiscordID,
			DiscordName: r.DiscordName,
		}
		if r.Nickname != nil {
			m.Nickname = *r.Nickname
		}
		members = append(members, m)
	}
	return members, nil
}

// decodeOnlineCount は /api/getOnlineCount のレスポンスを検証付きでデコードする。
func decodeOnlineCount(body []byte) (int, error) {
	if !isJSONObject(body) {
		return 0, errNotObject
	}

	var resp model.OnlineCountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to parse online count response: %w", err)
	}
	if resp.OnlineCount == nil {
		return 0, fmt.Errorf("missing onlineCount field")
	}
	if *resp.OnlineCount < 0 {
		return 0, fmt.Errorf("negative onlineCount: %d", *resp.OnlineCount)
	}
	return *resp.OnlineCount, nil
}

// decodeDiscordUsers は /api/discordUsers のレスポンスをデコードする。
// 各要素の中身は解釈せず、JSONオブジェクトであることのみ検証する。
func decodeDiscordUsers(body []byte) ([]model.DiscordUser, error) {
	if !isJSONArray(body) {
		return nil, errNotArray
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("failed to parse discord users response: %w", err)
	}

	users := make([]model.DiscordUser, 0, len(raws))
	for i, raw := range raws {
		if !isJSONObject(raw) {
			return nil, fmt.Errorf("discordUsers[%d]: %w", i, errNotObject)
		}
		users = append(users, model.DiscordUser(raw))
	}
	return users, nil
}

func isJSONArray(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func isJSONObject(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
