// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はユーザーが入力したノートのテキストからマークアップを除去し、
// 保存された内容が表示時にXSSとして解釈されないようにする。
// bluemondayのStrictPolicyを使用し、全てのタグを除去した上で
// 残ったテキストをHTMLエスケープする。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はテキスト入力のサニタイズ機能のインターフェースを定義する。
// ノートの保存前に使用される。
type ContentSanitizerService interface {
	// Sanitize は前後の空白を除去し、全てのHTMLタグを取り除いたテキストを返す。
	// script, styleタグは内容ごと除去される。
	// &, <, >, ", ' はHTMLエンティティにエスケープされる。
	// 空文字列の入力には空文字列を返す。
	Sanitize(raw string) string
}

// noteSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフで、複数のリクエストから共有できる。
type noteSanitizer struct {
	policy *bluemonday.Policy
}

// NewNoteSanitizer はノート用のContentSanitizerServiceを生成する。
func NewNoteSanitizer() ContentSanitizerService {
	return &noteSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストをサニタイズする。
func (s *noteSanitizer) Sanitize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	// タグ除去後に空白だけが残る場合があるため再度トリムする
	return strings.TrimSpace(s.policy.Sanitize(trimmed))
}
