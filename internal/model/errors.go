package model

import (
	"errors"
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string   // エラーコード
	Message  string   // エラーメッセージ
	Category string   // カテゴリ: validation, auth, record, conflict, system
	Action   string   // ユーザー向け対処方法
	Details  []string // 入力検証エラーの個別メッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryValidation = "validation"
	CategoryAuth       = "auth"
	CategoryRecord     = "record"
	CategoryConflict   = "conflict"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeValidationFailed        = "VALIDATION_FAILED"
	ErrCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	ErrCodeSignInRequired          = "SIGN_IN_REQUIRED"
	ErrCodeAccountInactive         = "ACCOUNT_INACTIVE"
	ErrCodeAuthFailed              = "AUTH_FAILED"
	ErrCodeInvalidResetToken       = "INVALID_RESET_TOKEN"
	ErrCodeRecordNotFound          = "RECORD_NOT_FOUND"
	ErrCodeUserNotFound            = "USER_NOT_FOUND"
	ErrCodeEmailAlreadyRegistered  = "EMAIL_ALREADY_REGISTERED"
	ErrCodeCurrentPasswordMismatch = "CURRENT_PASSWORD_MISMATCH"
	ErrCodeInvalidPhoto            = "INVALID_PHOTO"
	ErrCodeUpstreamFailure         = "UPSTREAM_FAILURE"
	ErrCodeInternal                = "INTERNAL_ERROR"
)

// AsAPIError はエラーチェーンからAPIErrorを取り出す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// NewValidationError は入力検証エラーを生成する。
// detailsには項目ごとのエラーメッセージを渡す。
func NewValidationError(details ...string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "入力内容に誤りがあります: " + strings.Join(details, "、"),
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
		Details:  details,
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレス未登録とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: CategoryAuth,
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewSignInRequiredError は未ログインエラーを生成する。
func NewSignInRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSignInRequired,
		Message:  "ログインしてください。",
		Category: CategoryAuth,
		Action:   "このページを表示するにはログインが必要です。",
	}
}

// NewAccountInactiveError はアカウントが無効または削除済みの場合のエラーを生成する。
func NewAccountInactiveError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountInactive,
		Message:  "アカウントが無効または削除されています。",
		Category: CategoryAuth,
		Action:   "管理者にお問い合わせください。",
	}
}

// NewAuthFailedError はベアラートークンの検証失敗エラーを生成する。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "認証に失敗しました。再度ログインしてください。",
		Category: CategoryAuth,
		Action:   "再度ログインしてください。",
	}
}

// NewInvalidResetTokenError はリセットトークンが無効または期限切れの場合のエラーを生成する。
func NewInvalidResetTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidResetToken,
		Message:  "リセットトークンが無効か、有効期限が切れています。",
		Category: CategoryAuth,
		Action:   "パスワードリセットをもう一度申請してください。",
	}
}

// NewRecordNotFoundError はレコードが見つからない場合のエラーを生成する。
// 他ユーザーが所有するレコードに対しても同じエラーを返し、存在有無を漏らさない。
func NewRecordNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeRecordNotFound,
		Message:  "指定されたデータが見つかりません。",
		Category: CategoryRecord,
		Action:   "一覧から対象のデータを選択し直してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: CategoryAuth,
		Action:   "ログインし直してください。",
	}
}

// NewEmailAlreadyRegisteredError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "このメールアドレスは既に登録されています。",
		Category: CategoryConflict,
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewCurrentPasswordMismatchError は現在のパスワードが一致しない場合のエラーを生成する。
func NewCurrentPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeCurrentPasswordMismatch,
		Message:  "現在のパスワードが正しくありません。",
		Category: CategoryValidation,
		Action:   "現在のパスワードを確認してください。",
	}
}

// NewInvalidPhotoError はプロフィール写真のアップロード不可エラーを生成する。
func NewInvalidPhotoError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPhoto,
		Message:  reason,
		Category: CategoryValidation,
		Action:   "5MB以下のjpg、jpeg、png、gif画像を選択してください。",
	}
}

// NewUpstreamFailureError はDBやメール送信など外部依存の失敗エラーを生成する。
func NewUpstreamFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailure,
		Message:  "サーバーエラーが発生しました。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}
