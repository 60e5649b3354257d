package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// DisplaySanitizer はユーザー由来の表示文字列（ニックネーム、ユーザー名等）から
// HTMLを除去する。ダッシュボードのJSONレスポンスに載せる前に使用する。
// ストアが保持する値は変更しない。
type DisplaySanitizer struct {
	policy *bluemonday.Policy
}

// NewDisplaySanitizer はすべてのタグを除去するポリシーでDisplaySanitizerを生成する。
func NewDisplaySanitizer() *DisplaySanitizer {
	return &DisplaySanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
// 結果はJSONのテキストとして扱われるため、bluemondayが付与した
// エンティティは元の文字に戻す。
func (s *DisplaySanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	return html.UnescapeString(s.policy.Sanitize(text))
}

// SanitizePtr はnilを保ったままSanitizeを適用する。
func (s *DisplaySanitizer) SanitizePtr(text *string) *string {
	if text == nil {
		return nil
	}
	v := s.Sanitize(*text)
	return &v
}
