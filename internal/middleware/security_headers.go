package middleware

import (
	"net/http"
	"strings"
)

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// imgSourcesにはプロフィール写真を配信する外部オリジン（S3公開URLなど）を指定する。
func NewSecurityHeadersMiddleware(imgSources ...string) func(next http.Handler) http.Handler {
	csp := "default-src 'self'; img-src " + strings.Join(append([]string{"'self'", "data:"}, imgSources...), " ") +
		"; style-src 'self' 'unsafe-inline'; frame-ancestors 'none'; form-action 'self'"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			w.Header().Set("Content-Security-Policy", csp)
			next.ServeHTTP(w, r)
		})
	}
}
