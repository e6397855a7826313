// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultProfilePhoto はプロフィール写真未設定時に表示する組み込み画像のパス。
const DefaultProfilePhoto = "/img/default-avatar.png"

// RoleUser は新規登録ユーザーに付与されるロール。
const RoleUser = "user"

// User はサービスに登録されたアカウントを表す。
// PasswordHashはbcryptハッシュのみを保持し、平文のパスワードは保持しない。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	LastLoginAt  *time.Time

	// パスワードリセット用トークンのSHA-256ハッシュと有効期限。
	// リセット未要求または消費済みの場合はnil。
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time

	ProfilePhoto string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasValidResetToken はリセットトークンが保存済みかつ期限内かを判定する。
func (u *User) HasValidResetToken(now time.Time) bool {
	if u.ResetTokenHash == nil || u.ResetTokenExpiresAt == nil {
		return false
	}
	return now.Before(*u.ResetTokenExpiresAt)
}

// PhotoOrDefault は表示用のプロフィール写真パスを返す。
func (u *User) PhotoOrDefault() string {
	if u.ProfilePhoto == "" {
		return DefaultProfilePhoto
	}
	return u.ProfilePhoto
}

// SessionSnapshot はセッションに保持するユーザー情報の非正規化コピー。
// 画面描画のたびにusersを参照しないために使う。
type SessionSnapshot struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	ProfilePhoto string `json:"profile_photo"`
}

// SnapshotOf はユーザーの現在値からスナップショットを生成する。
func SnapshotOf(u *User) SessionSnapshot {
	return SessionSnapshot{
		Name:         u.Name,
		Email:        u.Email,
		ProfilePhoto: u.PhotoOrDefault(),
	}
}

// Session はユーザーのログインセッションを表す。
// 有効期限は作成時刻からの絶対期限で、アクセスによって延長されない。
type Session struct {
	ID        string
	UserID    string
	Snapshot  SessionSnapshot
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Caller は認証ゲートを通過したリクエストの呼び出し元を表す。
type Caller struct {
	UserID       string
	Name         string
	Email        string
	ProfilePhoto string
	Role         string
	SessionID    string
}
