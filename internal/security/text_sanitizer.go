package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は外部ページから切り出したHTML断片をプレーンテキストに変換する。
// タグはすべて除去し、文字参照を展開したうえで空白を1つにまとめる。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使うTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Text はHTML断片からテキストのみを取り出す。空文字列の入力には空文字列を返す。
func (s *TextSanitizer) Text(fragment string) string {
	if fragment == "" {
		return ""
	}
	cleaned := html.UnescapeString(s.policy.Sanitize(fragment))
	return strings.Join(strings.Fields(cleaned), " ")
}
