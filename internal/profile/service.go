// Package profile はログインユーザー自身のプロフィール編集を提供する。
// 表示名・メールアドレス・写真を変更した場合は同じリクエスト内で
// セッションのスナップショットを更新する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hitoshi/infomate/internal/model"
	"github.com/hitoshi/infomate/internal/repository"
	"github.com/hitoshi/infomate/internal/security"
	"github.com/hitoshi/infomate/internal/storage"
	"github.com/hitoshi/infomate/internal/validation"
)

// DefaultMaxPhotoSize はプロフィール写真の最大サイズ（5MB）。
const DefaultMaxPhotoSize int64 = 5 * 1024 * 1024

// allowedPhotoTypes は受け付ける拡張子とContent-Typeの対応。
var allowedPhotoTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// SessionRefresher はセッションのスナップショットを更新するインターフェース。
type SessionRefresher interface {
	Refresh(ctx context.Context, sessionID string, user *model.User) error
}

// PhotoUpload はアップロードされた写真ファイル。
type PhotoUpload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// ProfileInput はプロフィール更新フォームの入力値。
// NewPasswordが空の場合はパスワードを変更しない。
type ProfileInput struct {
	Name            string
	Email           string
	CurrentPassword string
	NewPassword     string
}

// Service はプロフィールのサービス層。
type Service struct {
	users        repository.UserRepository
	photos       storage.PhotoStore
	sessions     SessionRefresher
	hasher       security.PasswordHasherService
	sanitizer    security.TextSanitizerService
	maxPhotoSize int64
}

// NewService はServiceの新しいインスタンスを生成する。
// maxPhotoSizeが0以下の場合はDefaultMaxPhotoSizeを使う。
func NewService(
	users repository.UserRepository,
	photos storage.PhotoStore,
	sessions SessionRefresher,
	hasher security.PasswordHasherService,
	sanitizer security.TextSanitizerService,
	maxPhotoSize int64,
) *Service {
	if maxPhotoSize <= 0 {
		maxPhotoSize = DefaultMaxPhotoSize
	}
	return &Service{
		users:        users,
		photos:       photos,
		sessions:     sessions,
		hasher:       hasher,
		sanitizer:    sanitizer,
		maxPhotoSize: maxPhotoSize,
	}
}

// MaxPhotoSize はアップロードを許可する写真の最大バイト数を返す。
func (s *Service) MaxPhotoSize() int64 {
	return s.maxPhotoSize
}

// Get はユーザーのプロフィールを返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdatePhoto はプロフィール写真を差し替える。
// サイズと拡張子の検証は保存前に行い、不正な場合は既存の写真を変更しない。
func (s *Service) UpdatePhoto(ctx context.Context, userID, sessionID string, upload PhotoUpload) (*model.User, error) {
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	contentType, ok := allowedPhotoTypes[ext]
	switch {
	case upload.Body == nil || upload.Size <= 0:
		return nil, model.NewInvalidPhotoError("画像ファイルを選択してください。")
	case upload.Size > s.maxPhotoSize:
		return nil, model.NewInvalidPhotoError(
			fmt.Sprintf("ファイルサイズは%dMB以下にしてください。", s.maxPhotoSize/(1024*1024)))
	case !ok:
		return nil, model.NewInvalidPhotoError("jpg、jpeg、png、gif形式の画像のみアップロードできます。")
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	path, err := s.photos.Save(ctx, storage.NewPhotoName(ext), contentType, io.LimitReader(upload.Body, s.maxPhotoSize))
	if err != nil {
		return nil, fmt.Errorf("プロフィール写真の保存に失敗しました: %w", err)
	}

	if err := s.users.UpdateProfilePhoto(ctx, user.ID, path); err != nil {
		s.deletePhoto(ctx, user.ID, path)
		return nil, fmt.Errorf("プロフィール写真の更新に失敗しました: %w", err)
	}

	previous := user.ProfilePhoto
	user.ProfilePhoto = path
	if previous != "" && previous != model.DefaultProfilePhoto {
		s.deletePhoto(ctx, user.ID, previous)
	}

	if err := s.refresh(ctx, sessionID, user); err != nil {
		return nil, err
	}

	slog.Info("profile photo updated", slog.String("user_id", user.ID))
	return user, nil
}

// UpdateProfile は表示名・メールアドレス・パスワードを更新する。
// パスワードを変更する場合は現在のパスワードの一致を必須とする。
func (s *Service) UpdateProfile(ctx context.Context, userID, sessionID string, in ProfileInput) (*model.User, error) {
	name := s.sanitizer.Clean(in.Name)
	email := validation.NormalizeEmail(in.Email)
	changePassword := in.NewPassword != ""

	var v validation.Collector
	v.Require("名前", name)
	v.Email(email)
	if changePassword {
		v.Require("現在のパスワード", in.CurrentPassword)
		v.Password("新しいパスワード", in.NewPassword)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	var newHash string
	if changePassword {
		if !s.hasher.Verify(in.CurrentPassword, user.PasswordHash) {
			return nil, model.NewCurrentPasswordMismatchError()
		}
		newHash, err = s.hasher.Hash(in.NewPassword)
		if err != nil {
			return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
		}
	}

	if name != user.Name || email != user.Email {
		if err := s.users.UpdateProfile(ctx, user.ID, name, email); err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				return nil, model.NewEmailAlreadyRegisteredError()
			}
			return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
		}
		user.Name = name
		user.Email = email
	}

	if changePassword {
		if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
			return nil, fmt.Errorf("パスワードの更新に失敗しました: %w", err)
		}
		user.PasswordHash = newHash
	}

	if err := s.refresh(ctx, sessionID, user); err != nil {
		return nil, err
	}

	slog.Info("profile updated",
		slog.String("user_id", user.ID),
		slog.Bool("password_changed", changePassword),
	)
	return user, nil
}

func (s *Service) refresh(ctx context.Context, sessionID string, user *model.User) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Refresh(ctx, sessionID, user); err != nil {
		return fmt.Errorf("セッションの更新に失敗しました: %w", err)
	}
	return nil
}

// deletePhoto は不要になった写真を削除する。失敗はログに残すのみ。
func (s *Service) deletePhoto(ctx context.Context, userID, path string) {
	if err := s.photos.Delete(ctx, path); err != nil {
		slog.Warn("failed to delete profile photo",
			slog.String("user_id", userID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
