// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザーが入力したタスクやプロフィールの文字列から
// HTMLを除去し、プレーンテキストとして保存できる形にする。
// IdP接続用のHTTPクライアントは idp_client.go を参照。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化のインターフェース。
type TextSanitizer interface {
	// Clean はHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	// script・styleなどの要素は中身ごと除去する。
	// 同一入力に対して常に同一出力を返す。
	Clean(s string) string
}

// textSanitizer はbluemondayのStrictPolicyによるTextSanitizerの実装。
// bluemonday.Policyは生成後は並行に使用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はHTMLタグを除去したプレーンテキストを返す。
// StrictPolicyは出力をHTMLエスケープするため、保存用にエスケープを戻す。
func (s *textSanitizer) Clean(in string) string {
	if in == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(in)))
}
