// Package validation はフォーム入力の検証ヘルパーを提供する。
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hitoshi/infomate/internal/model"
	"github.com/hitoshi/infomate/internal/security"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// IsEmail はメールアドレスの形式として妥当かを返す。
func IsEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// NormalizeEmail は前後の空白を除去し小文字化したメールアドレスを返す。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Collector は項目ごとの検証エラーを集約する。
type Collector struct {
	details []string
}

// Require は値が空でないことを検証する。
func (c *Collector) Require(label, value string) {
	if strings.TrimSpace(value) == "" {
		c.details = append(c.details, fmt.Sprintf("%sを入力してください", label))
	}
}

// Email はメールアドレスが入力済みかつ形式が正しいことを検証する。
func (c *Collector) Email(value string) {
	switch {
	case value == "":
		c.details = append(c.details, "メールアドレスを入力してください")
	case !IsEmail(value):
		c.details = append(c.details, "メールアドレスの形式が正しくありません")
	}
}

// Password はパスワードの長さを検証する。
func (c *Collector) Password(label, value string) {
	switch {
	case len([]rune(value)) < MinPasswordLength:
		c.details = append(c.details, fmt.Sprintf("%sは%d文字以上で入力してください", label, MinPasswordLength))
	case len(value) > security.MaxPasswordBytes:
		c.details = append(c.details, fmt.Sprintf("%sが長すぎます", label))
	}
}

// Check は条件が偽の場合にmsgを追加する。
func (c *Collector) Check(ok bool, msg string) {
	if !ok {
		c.details = append(c.details, msg)
	}
}

// Err は検証エラーがあればValidationErrorを返す。
func (c *Collector) Err() error {
	if len(c.details) == 0 {
		return nil
	}
	return model.NewValidationError(c.details...)
}
