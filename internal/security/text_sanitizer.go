// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は顧客レコードやプロフィールのプレーンテキスト入力から
// HTMLマークアップを除去する。PasswordHasher はbcryptによるパスワードの
// ハッシュ化と照合を行う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプレーンテキスト入力のサニタイズ機能のインターフェースを定義する。
// 顧客レコードおよびプロフィールの保存前に使用される。
type TextSanitizerService interface {
	// Clean は入力からすべてのHTMLタグを除去し、前後の空白を取り除いたテキストを返す。
	// script, styleタグはその中身ごと除去される。
	// エンティティはテンプレート描画時に改めてエスケープされるためデコードした状態で返す。
	Clean(input string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Clean は入力からHTMLマークアップを除去したテキストを返す。
func (s *textSanitizer) Clean(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(input)))
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
