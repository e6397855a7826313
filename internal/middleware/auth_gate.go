package middleware

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/hitoshi/infomate/internal/auth"
	"github.com/hitoshi/infomate/internal/metrics"
	"github.com/hitoshi/infomate/internal/model"
)

// DefaultSignInPath は未認証時のリダイレクト先。
const DefaultSignInPath = "/signin"

// CallerResolver はセッションIDとBearerトークンから呼び出し元を解決するインターフェース。
type CallerResolver interface {
	Resolve(ctx context.Context, sessionID, bearerToken string) (*auth.Resolution, error)
}

// AuthGateConfig は認証ゲートミドルウェアの設定。
type AuthGateConfig struct {
	Cookie     auth.CookieConfig
	SignInPath string
	Metrics    metrics.MetricsCollector // nilの場合は記録しない
}

// NewAuthGateMiddleware は保護されたルートの前段で呼び出し元を解決するミドルウェアを返す。
// 通過したリクエストのコンテキストにはmodel.Callerが格納される。
// 拒否した場合、HTMLリクエストはフラッシュメッセージ付きでサインイン画面へ、
// JSONリクエストは401で応答する。
// コンテキストに呼び出し元が既にある場合は何もせずに通過させる。
func NewAuthGateMiddleware(gate CallerResolver, config AuthGateConfig) func(next http.Handler) http.Handler {
	signInPath := config.SignInPath
	if signInPath == "" {
		signInPath = DefaultSignInPath
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := CallerFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			res, err := gate.Resolve(r.Context(), auth.SessionIDFromRequest(r), BearerToken(r))
			if err != nil {
				slog.Error("failed to resolve caller",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				if WantsJSON(r) {
					WriteErrorResponse(w, http.StatusInternalServerError, model.NewUpstreamFailureError())
					return
				}
				SetFlash(w, FlashError, model.NewUpstreamFailureError().Message)
				http.Redirect(w, r, signInPath, http.StatusFound)
				return
			}

			if res.ClearCookie {
				auth.ClearSessionCookie(w, config.Cookie)
			}
			if res.SessionStarted {
				auth.SetSessionCookie(w, config.Cookie, res.Session.ID)
			}

			if res.Rejected() {
				if config.Metrics != nil {
					config.Metrics.RecordAuthGateRejection(res.Reason)
				}
				apiErr := res.Err()
				if WantsJSON(r) {
					WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
					return
				}
				SetFlash(w, FlashError, apiErr.Message)
				http.Redirect(w, r, signInPath, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), res.Caller)))
		})
	}
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// WantsJSON はJSONでの応答を期待するリクエストかを判定する。
// AcceptまたはContent-Typeがapplication/jsonの場合、
// あるいはCookieを持たずBearerトークンのみで認証する場合にtrueを返す。
func WantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mediaType == "application/json" {
		return true
	}
	return isBearerOnly(r)
}
