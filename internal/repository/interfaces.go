// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/infomate/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。大文字小文字は区別しない。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが既に登録済みの場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateLastLogin は最終ログイン日時を更新する。
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// UpdateProfile は表示名とメールアドレスを更新する。
	// メールアドレスが他ユーザーと重複する場合はErrDuplicateEmailを返す。
	UpdateProfile(ctx context.Context, id, name, email string) error

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error

	// UpdateProfilePhoto はプロフィール写真のパスを更新する。
	UpdateProfilePhoto(ctx context.Context, id, photoPath string) error

	// SetResetToken はリセットトークンのハッシュと有効期限を保存する。
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error

	// FindByResetTokenHash は有効期限内のリセットトークンを持つユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByResetTokenHash(ctx context.Context, tokenHash string) (*model.User, error)

	// ConsumeResetToken は有効なリセットトークンを消費し、パスワードハッシュを更新する。
	// トークンの消去とパスワード更新は単一のUPDATEで行う。
	// 一致するトークンがない場合は空文字列を返す。
	ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string) (string, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateSnapshot はセッションのユーザースナップショットを上書きする。有効期限は変更しない。
	UpdateSnapshot(ctx context.Context, id string, snapshot model.SessionSnapshot) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// CustomerRepository は顧客レコードの永続化インターフェース。
// 参照・更新・削除はすべてレコードIDと所有ユーザーIDの複合条件で行う。
type CustomerRepository interface {
	// ListByOwner は所有ユーザーの顧客レコードを新しい順に取得する。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Customer, error)

	// Create は顧客レコードを作成する。
	Create(ctx context.Context, customer *model.Customer) error

	// FindByIDAndOwner はIDと所有ユーザーIDが一致するレコードを取得する。
	// 見つからない場合はnilを返す。
	FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Customer, error)

	// UpdateByIDAndOwner はIDと所有ユーザーIDが一致するレコードを更新する。
	// 更新対象が存在した場合はtrueを返す。
	UpdateByIDAndOwner(ctx context.Context, customer *model.Customer) (bool, error)

	// DeleteByIDAndOwner はIDと所有ユーザーIDが一致するレコードを削除する。
	// 削除対象が存在した場合はtrueを返す。
	DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error)

	// SearchByName は姓または名に検索文字列を含むレコードを取得する。
	// 大文字小文字は区別せず、所有ユーザーのレコードのみを対象とする。
	SearchByName(ctx context.Context, ownerID, text string) ([]*model.Customer, error)
}
