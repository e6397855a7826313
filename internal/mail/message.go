package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// PasswordResetSubject はパスワードリセットメールの件名。
const PasswordResetSubject = "【InfoMate】パスワード再設定のご案内"

var passwordResetTemplate = template.Must(template.New("password_reset").Parse(`<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="UTF-8">
<title>パスワード再設定</title>
</head>
<body>
<p>InfoMateをご利用いただきありがとうございます。</p>
<p>パスワード再設定のリクエストを受け付けました。以下のリンクから新しいパスワードを設定してください。</p>
<p><a href="{{.ResetURL}}">パスワードを再設定する</a></p>
<p>リンクを開けない場合は、次のURLをブラウザに貼り付けてください。</p>
<p>{{.ResetURL}}</p>
<p>このリンクの有効期限は{{.TTL}}です。</p>
<p>お心当たりがない場合は、このメールを破棄してください。パスワードは変更されません。</p>
</body>
</html>
`))

// PasswordResetMessage はパスワードリセットメールの件名とHTML本文を生成する。
func PasswordResetMessage(resetURL string, ttl time.Duration) (string, string, error) {
	var buf bytes.Buffer
	err := passwordResetTemplate.Execute(&buf, struct {
		ResetURL string
		TTL      string
	}{
		ResetURL: resetURL,
		TTL:      formatTTL(ttl),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to render password reset mail: %w", err)
	}
	return PasswordResetSubject, buf.String(), nil
}

// formatTTL は有効期間を「1時間」「30分」の形式で返す。
func formatTTL(ttl time.Duration) string {
	if ttl >= time.Hour && ttl%time.Hour == 0 {
		return fmt.Sprintf("%d時間", int(ttl/time.Hour))
	}
	minutes := int(ttl / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%d分", minutes)
}
