package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/infomate/internal/auth"
	"github.com/hitoshi/infomate/internal/middleware"
	"github.com/hitoshi/infomate/internal/model"
)

// signUpRequest はユーザー登録のリクエスト。
type signUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signInRequest はログインのリクエスト。
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// resetPasswordRequest はパスワード再設定のリクエスト。
type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// signUpResponse はJSONでの登録成功レスポンス。
type signUpResponse struct {
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// tokenResponse はベアラートークン発行のレスポンス。
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// resetPasswordPage はパスワード再設定画面のデータ。
type resetPasswordPage struct {
	Token string
}

// AuthHandler は登録・ログイン・パスワード再設定のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	renderer *Renderer
	cookie   auth.CookieConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, renderer *Renderer, cookie auth.CookieConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		renderer: renderer,
		cookie:   cookie,
	}
}

// SignUpForm はユーザー登録画面を表示する。
// GET /signup
func (h *AuthHandler) SignUpForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageSignUp, "新規登録", nil)
}

// SignInForm はログイン画面を表示する。
// GET /signin
func (h *AuthHandler) SignInForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageSignIn, "ログイン", nil)
}

// ForgotPasswordForm はパスワード再設定メールの送信画面を表示する。
// GET /forgot-password
func (h *AuthHandler) ForgotPasswordForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageForgotPassword, "パスワードの再設定", nil)
}

// ResetPasswordForm はトークンを埋め込んだ新パスワード入力画面を表示する。
// 無効または期限切れのトークンは再設定メールの送信画面へ戻す。
// GET /reset-password/{token}
func (h *AuthHandler) ResetPasswordForm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.service.ValidateResetToken(r.Context(), token); err != nil {
		handleServiceError(w, r, err, "/forgot-password")
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageResetPassword, "新しいパスワードの設定", resetPasswordPage{Token: token})
}

// SignUp はユーザーを登録しセッションを開始する。
// JSONを要求するクライアントには201とベアラートークンを返す。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if isJSONBody(r) {
		if err := decodeJSONBody(r, &req); err != nil {
			handleServiceError(w, r, err, "/signup")
			return
		}
	} else {
		req = signUpRequest{
			Name:     r.PostFormValue("name"),
			Email:    r.PostFormValue("email"),
			Password: r.PostFormValue("password"),
		}
	}

	result, err := h.service.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	}, auth.SessionIDFromRequest(r))
	if err != nil {
		handleServiceError(w, r, err, "/signup")
		return
	}

	auth.SetSessionCookie(w, h.cookie, result.Session.ID)

	if middleware.WantsJSON(r) {
		writeJSON(w, http.StatusCreated, signUpResponse{
			User:      toUserResponse(result.User),
			Token:     result.BearerToken,
			ExpiresAt: result.BearerExpiresAt,
		})
		return
	}
	redirectWithFlash(w, r, "登録が完了しました。ようこそ、"+result.User.Name+"さん。", "/")
}

// SignIn は認証情報を検証しセッションを開始する。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if isJSONBody(r) {
		if err := decodeJSONBody(r, &req); err != nil {
			handleServiceError(w, r, err, middleware.DefaultSignInPath)
			return
		}
	} else {
		req = signInRequest{
			Email:    r.PostFormValue("email"),
			Password: r.PostFormValue("password"),
		}
	}

	result, err := h.service.SignIn(r.Context(), req.Email, req.Password, auth.SessionIDFromRequest(r))
	if err != nil {
		handleServiceError(w, r, err, middleware.DefaultSignInPath)
		return
	}

	auth.SetSessionCookie(w, h.cookie, result.Session.ID)

	if middleware.WantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]userResponse{"user": toUserResponse(result.User)})
		return
	}
	redirectWithFlash(w, r, "ログインしました。", "/")
}

// Logout はセッションを破棄してサインイン画面へ戻す。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), caller.SessionID); err != nil {
		// ログアウト失敗してもCookieはクリアする
		slog.Error("failed to logout",
			slog.String("user_id", caller.UserID),
			slog.String("error", err.Error()),
		)
	}
	auth.ClearSessionCookie(w, h.cookie)

	if middleware.WantsJSON(r) {
		writeJSON(w, http.StatusOK, messageResponse{Message: "ログアウトしました。"})
		return
	}
	redirectWithFlash(w, r, "ログアウトしました。", middleware.DefaultSignInPath)
}

// ForgotPassword は再設定メールを送信する。
// 未登録のアドレスでも同じ応答を返す。
// POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	if isJSONBody(r) {
		var req struct {
			Email string `json:"email"`
		}
		if err := decodeJSONBody(r, &req); err != nil {
			handleServiceError(w, r, err, "/forgot-password")
			return
		}
		email = req.Email
	}

	if err := h.service.RequestPasswordReset(r.Context(), email); err != nil {
		handleServiceError(w, r, err, "/forgot-password")
		return
	}

	const msg = "パスワード再設定用のメールを送信しました。登録済みのアドレスであれば数分以内に届きます。"
	if middleware.WantsJSON(r) {
		writeJSON(w, http.StatusAccepted, messageResponse{Message: msg})
		return
	}
	middleware.SetFlash(w, middleware.FlashInfo, msg)
	http.Redirect(w, r, middleware.DefaultSignInPath, http.StatusSeeOther)
}

// ResetPassword はリセットトークンを消費して新しいパスワードを設定する。
// POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if isJSONBody(r) {
		if err := decodeJSONBody(r, &req); err != nil {
			handleServiceError(w, r, err, "/forgot-password")
			return
		}
	} else {
		req = resetPasswordRequest{
			Token:    r.PostFormValue("token"),
			Password: r.PostFormValue("password"),
		}
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		handleServiceError(w, r, err, resetFailureRedirect(err, req.Token))
		return
	}

	const msg = "パスワードを再設定しました。新しいパスワードでログインしてください。"
	if middleware.WantsJSON(r) {
		writeJSON(w, http.StatusOK, messageResponse{Message: msg})
		return
	}
	redirectWithFlash(w, r, msg, middleware.DefaultSignInPath)
}

// Token はAPIクライアント向けのベアラートークンを発行する。
// GET /auth/token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}

	token, expiresAt, err := h.service.IssueBearerToken(r.Context(), caller.UserID)
	if err != nil {
		apiErr := toAPIError(r, err)
		middleware.WriteErrorResponse(w, middleware.StatusCodeFor(apiErr), apiErr)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}

// resetFailureRedirect はパスワード再設定失敗時の戻り先を返す。
// 入力エラーであれば同じトークンの画面へ、それ以外は送信画面へ戻す。
func resetFailureRedirect(err error, token string) string {
	var apiErr *model.APIError
	if token != "" && errors.As(err, &apiErr) && apiErr.Category == model.CategoryValidation {
		return "/reset-password/" + token
	}
	return "/forgot-password"
}
