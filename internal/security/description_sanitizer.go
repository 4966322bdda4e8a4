// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DescriptionSanitizer は掲載者が入力した物件説明文をサニタイズする。
// bluemondayの許可リストポリシーで、段落・改行・強調・箇条書きのみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizer は物件説明文のサニタイズ機能のインターフェース。
// 詳細画面の描画時に使用される。
type DescriptionSanitizer interface {
	// Sanitize は説明文をサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, strong, em, ul, ol, li）以外とその属性は除去する。
	// 空文字列の入力には空文字列を返す。
	Sanitize(raw string) string
}

// descriptionSanitizer はDescriptionSanitizerの実装。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerの新しいインスタンスを生成する。
// リンク・画像・スクリプトは説明文として不要なため許可しない。
func NewDescriptionSanitizer() *descriptionSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em",
	)

	return &descriptionSanitizer{
		policy: p,
	}
}

// Sanitize は説明文をサニタイズして安全なHTMLを返す。
func (s *descriptionSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
