package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/infomate/internal/model"
)

// userColumns はusersテーブルのSELECT対象カラム。scanUserと順序を合わせる。
const userColumns = `id, name, email, password_hash, role, is_active, last_login_at,
	reset_token_hash, reset_token_expires_at, profile_photo, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, is_active, profile_photo, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.IsActive,
		user.ProfilePhoto, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateLastLogin は最終ログイン日時を更新する。
func (r *PostgresUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// UpdateProfile は表示名とメールアドレスを更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id, name, email string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $2, email = $3, updated_at = now() WHERE id = $1`,
		id, name, email,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// UpdatePasswordHash はパスワードハッシュを更新する。
func (r *PostgresUserRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// UpdateProfilePhoto はプロフィール写真のパスを更新する。
func (r *PostgresUserRepo) UpdateProfilePhoto(ctx context.Context, id, photoPath string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET profile_photo = $2, updated_at = now() WHERE id = $1`,
		id, photoPath,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile photo: %w", err)
	}
	return nil
}

// SetResetToken はリセットトークンのハッシュと有効期限を保存する。
// 既存のトークンは上書きされ、無効になる。
func (r *PostgresUserRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET reset_token_hash = $2, reset_token_expires_at = $3 WHERE id = $1`,
		id, tokenHash, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	return nil
}

// FindByResetTokenHash は有効期限内のリセットトークンを持つユーザーを取得する。
func (r *PostgresUserRepo) FindByResetTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE reset_token_hash = $1 AND reset_token_expires_at > now()`,
		tokenHash,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by reset token: %w", err)
	}
	return user, nil
}

// ConsumeResetToken は有効なリセットトークンを消費し、パスワードハッシュを更新する。
// 同じトークンでの2回目の呼び出しは一致行がなく空文字列を返す。
func (r *PostgresUserRepo) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET password_hash = $2, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = now()
		 WHERE reset_token_hash = $1 AND reset_token_expires_at > now()
		 RETURNING id`,
		tokenHash, newPasswordHash,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume reset token: %w", err)
	}
	return userID, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通メソッド。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUser はuserColumnsの順序で1行を読み取る。
func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var (
		lastLogin    sql.NullTime
		resetHash    sql.NullString
		resetExpires sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.IsActive, &lastLogin,
		&resetHash, &resetExpires, &user.ProfilePhoto, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	if resetHash.Valid {
		h := resetHash.String
		user.ResetTokenHash = &h
	}
	if resetExpires.Valid {
		t := resetExpires.Time
		user.ResetTokenExpiresAt = &t
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
