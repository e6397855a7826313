// Package handler はHTTPハンドラーとルーティングを提供する。
// 画面遷移のリクエストはリダイレクトとフラッシュメッセージで、
// JSONを要求するリクエストは統一エラーフォーマットで結果を返す。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/hitoshi/infomate/internal/auth"
	"github.com/hitoshi/infomate/internal/customer"
	"github.com/hitoshi/infomate/internal/middleware"
	"github.com/hitoshi/infomate/internal/model"
	"github.com/hitoshi/infomate/internal/profile"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput, previousSessionID string) (*auth.AuthResult, error)
	SignIn(ctx context.Context, email, password, previousSessionID string) (*auth.AuthResult, error)
	Logout(ctx context.Context, sessionID string) error
	IssueBearerToken(ctx context.Context, userID string) (string, time.Time, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ValidateResetToken(ctx context.Context, secret string) error
	ResetPassword(ctx context.Context, secret, newPassword string) error
}

// CustomerServiceInterface は顧客ハンドラーが必要とするサービスインターフェース。
// すべての操作は呼び出し元のユーザーIDで絞り込まれる。
type CustomerServiceInterface interface {
	List(ctx context.Context, ownerID string) ([]*model.Customer, error)
	Create(ctx context.Context, ownerID string, in customer.Input) (*model.Customer, error)
	Get(ctx context.Context, ownerID, id string) (*model.Customer, error)
	Update(ctx context.Context, ownerID, id string, in customer.Input) (*model.Customer, error)
	Delete(ctx context.Context, ownerID, id string) error
	Search(ctx context.Context, ownerID, text string) ([]*model.Customer, error)
}

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.User, error)
	UpdatePhoto(ctx context.Context, userID, sessionID string, upload profile.PhotoUpload) (*model.User, error)
	UpdateProfile(ctx context.Context, userID, sessionID string, in profile.ProfileInput) (*model.User, error)
	MaxPhotoSize() int64
}

// HealthChecker はデータベースの疎通確認インターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// userResponse はAPIクライアント向けのユーザー表現。
type userResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	ProfilePhoto string `json:"profile_photo"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         u.Role,
		ProfilePhoto: u.PhotoOrDefault(),
	}
}

// messageResponse は本文のない操作の結果メッセージ。
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// toAPIError はサービス層のエラーをAPIErrorに変換する。
// APIError以外のエラーはログに記録し、内部エラーとして扱う。
func toAPIError(r *http.Request, err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	userID, _ := middleware.UserIDFromContext(r.Context())
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
	return model.NewUpstreamFailureError()
}

// handleServiceError はエラーをJSONレスポンス、またはフラッシュ付きリダイレクトに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error, redirectTo string) {
	apiErr := toAPIError(r, err)
	if middleware.WantsJSON(r) {
		middleware.WriteErrorResponse(w, middleware.StatusCodeFor(apiErr), apiErr)
		return
	}
	middleware.SetFlash(w, middleware.FlashError, apiErr.Message)
	http.Redirect(w, r, redirectTo, http.StatusSeeOther)
}

// redirectWithFlash は成功メッセージを設定してリダイレクトする。
func redirectWithFlash(w http.ResponseWriter, r *http.Request, message, redirectTo string) {
	middleware.SetFlash(w, middleware.FlashSuccess, message)
	http.Redirect(w, r, redirectTo, http.StatusSeeOther)
}

// callerOrReject は認証ゲートが設定した呼び出し元を返す。
// 存在しない場合はサインイン要求のレスポンスを書き込みfalseを返す。
func callerOrReject(w http.ResponseWriter, r *http.Request) (*model.Caller, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		handleServiceError(w, r, model.NewSignInRequiredError(), middleware.DefaultSignInPath)
		return nil, false
	}
	return caller, true
}

// decodeJSONBody はJSONリクエストボディをdstに読み込む。
func decodeJSONBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.NewValidationError("リクエストボディの形式が正しくありません。")
	}
	return nil
}

// isJSONBody はリクエストボディがJSONかを判定する。
func isJSONBody(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
