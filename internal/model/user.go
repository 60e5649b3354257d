// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// avatarCDNBaseURL はDiscordアバター画像のCDNベースURL。
const avatarCDNBaseURL = "https://cdn.discordapp.com/avatars"

// User はバックエンドのセッションエンドポイントから取得するDiscordプロフィールを表す。
// セッション期間中はAuthStoreが保持し、変更しないスナップショットとして扱う。
type User struct {
	ID                   string          `json:"id"`
	Username             string          `json:"username"`
	Avatar               string          `json:"avatar"`
	Discriminator        string          `json:"discriminator"`
	PublicFlags          int64           `json:"public_flags"`
	Flags                int64           `json:"flags"`
	Banner               *string         `json:"banner"`
	AccentColor          *int            `json:"accent_color"`
	GlobalName           string          `json:"global_name"`
	AvatarDecorationData json.RawMessage `json:"avatar_decoration_data,omitempty"`
	BannerColor          *string         `json:"banner_color"`
	Clan                 json.RawMessage `json:"clan,omitempty"`
	PrimaryGuild         json.RawMessage `json:"primary_guild,omitempty"`
	MFAEnabled           bool            `json:"mfa_enabled"`
	Locale               string          `json:"locale"`
	PremiumType          int             `json:"premium_type"`
	Email                string          `json:"email"`
	Verified             bool            `json:"verified"`
}

// DisplayName はUI表示用の名前を返す。
// global_nameが未設定の場合はusernameを使用する。
func (u *User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// AvatarURL はDiscord CDN上のアバター画像URLを返す。
// アバター未設定の場合は空文字列を返す。
func (u *User) AvatarURL(size int) string {
	if u.ID == "" || u.Avatar == "" {
		return ""
	}
	if size <= 0 {
		size = 512
	}
	return fmt.Sprintf("%s/%s/%s.png?size=%d",
		avatarCDNBaseURL, url.PathEscape(u.ID), url.PathEscape(u.Avatar), size)
}

// SessionData はセッションエンドポイントが返すセッション情報。
// 未ログインの場合はUserがnilになる。
type SessionData struct {
	User *User `json:"user"`
}

// SessionEnvelope は /api/auth/session のレスポンスボディ。
type SessionEnvelope struct {
	Session *SessionData `json:"session"`
}
