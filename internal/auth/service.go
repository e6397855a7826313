// Package auth はユーザー登録、ログイン、パスワードリセット、セッション管理、
// リクエストの認証ゲートを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/infomate/internal/mail"
	"github.com/hitoshi/infomate/internal/metrics"
	"github.com/hitoshi/infomate/internal/model"
	"github.com/hitoshi/infomate/internal/repository"
	"github.com/hitoshi/infomate/internal/security"
	"github.com/hitoshi/infomate/internal/validation"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	BaseURL       string        // リセットURLの生成に使用する
	ResetTokenTTL time.Duration // リセットトークンの有効期間
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AuthResult は登録・ログイン成功時の結果。
// BearerTokenは登録時のみ設定される。
type AuthResult struct {
	User            *model.User
	Session         *model.Session
	BearerToken     string
	BearerExpiresAt time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	sessions *SessionManager
	tokens   *TokenIssuer
	hasher   security.PasswordHasherService
	mailer   mail.Dispatcher
	metrics  metrics.MetricsCollector
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	sessions *SessionManager,
	tokens *TokenIssuer,
	hasher security.PasswordHasherService,
	mailer mail.Dispatcher,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo: userRepo,
		sessions: sessions,
		tokens:   tokens,
		hasher:   hasher,
		mailer:   mailer,
		metrics:  collector,
		config:   config,
		now:      time.Now,
	}
}

// Register はユーザーを作成し、セッションとベアラートークンを発行する。
// メールアドレスは大文字小文字を区別せず一意で、重複時はEMAIL_ALREADY_REGISTEREDを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput, previousSessionID string) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := validation.NormalizeEmail(in.Email)

	var v validation.Collector
	v.Require("名前", name)
	v.Email(email)
	v.Password("パスワード", in.Password)
	if err := v.Err(); err != nil {
		s.recordSignUp(metrics.ResultFailure)
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		IsActive:     true,
		ProfilePhoto: model.DefaultProfilePhoto,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.recordSignUp(metrics.ResultConflict)
			return nil, model.NewEmailAlreadyRegisteredError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	session, err := s.sessions.Start(ctx, user, previousSessionID)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Mint(user.ID)
	if err != nil {
		return nil, err
	}

	s.recordSignUp(metrics.ResultSuccess)
	slog.Info("user registered", slog.String("user_id", user.ID))

	return &AuthResult{
		User:            user,
		Session:         session,
		BearerToken:     token,
		BearerExpiresAt: expiresAt,
	}, nil
}

// SignIn はメールアドレスとパスワードを照合し、新しいセッションを開始する。
// 未登録、無効アカウント、パスワード不一致はすべて同じINVALID_CREDENTIALSとして返す。
func (s *Service) SignIn(ctx context.Context, email, password, previousSessionID string) (*AuthResult, error) {
	email = validation.NormalizeEmail(email)
	if email == "" || password == "" {
		s.recordSignIn(metrics.ResultFailure)
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.hasher.VerifyDummy(password)
		s.recordSignIn(metrics.ResultFailure)
		return nil, model.NewInvalidCredentialsError()
	}

	ok := s.hasher.Verify(password, user.PasswordHash)
	if !ok || !user.IsActive {
		s.recordSignIn(metrics.ResultFailure)
		return nil, model.NewInvalidCredentialsError()
	}

	now := s.now()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLoginAt = &now

	session, err := s.sessions.Start(ctx, user, previousSessionID)
	if err != nil {
		return nil, err
	}

	s.recordSignIn(metrics.ResultSuccess)
	slog.Info("user signed in", slog.String("user_id", user.ID))

	return &AuthResult{User: user, Session: session}, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.Destroy(ctx, sessionID)
}

// IssueBearerToken はAPIクライアント向けのベアラートークンを発行する。
func (s *Service) IssueBearerToken(ctx context.Context, userID string) (string, time.Time, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive {
		return "", time.Time{}, model.NewAccountInactiveError()
	}
	return s.tokens.Mint(user.ID)
}

// RequestPasswordReset はリセットトークンを発行してメールで送信する。
// 未登録または無効なアカウントの場合も何もせずnilを返し、登録有無を漏らさない。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = validation.NormalizeEmail(email)

	var v validation.Collector
	v.Email(email)
	if err := v.Err(); err != nil {
		return err
	}

	s.recordPasswordReset(metrics.StageRequested)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive {
		slog.Info("password reset requested for unknown or inactive account")
		return nil
	}

	secret, hash, err := NewResetSecret()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.config.ResetTokenTTL)
	if err := s.userRepo.SetResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}

	resetURL := strings.TrimRight(s.config.BaseURL, "/") + "/reset-password/" + secret
	subject, body, err := mail.PasswordResetMessage(resetURL, s.config.ResetTokenTTL)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		slog.Error("failed to send password reset mail",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return model.NewUpstreamFailureError()
	}

	s.recordPasswordReset(metrics.StageMailed)
	slog.Info("password reset mail sent", slog.String("user_id", user.ID))
	return nil
}

// ValidateResetToken はリセットトークンが有効かを確認する。
// 無効または期限切れの場合はINVALID_RESET_TOKENを返す。
func (s *Service) ValidateResetToken(ctx context.Context, secret string) error {
	if secret == "" {
		return model.NewInvalidResetTokenError()
	}
	user, err := s.userRepo.FindByResetTokenHash(ctx, HashResetSecret(secret))
	if err != nil {
		return fmt.Errorf("failed to find reset token: %w", err)
	}
	if user == nil || !user.HasValidResetToken(s.now()) {
		return model.NewInvalidResetTokenError()
	}
	return nil
}

// ResetPassword はリセットトークンを消費して新しいパスワードを設定する。
// トークンの消去とパスワード更新は単一の更新で行い、同じトークンは再利用できない。
// 成功後はそのユーザーの全セッションを破棄する。
func (s *Service) ResetPassword(ctx context.Context, secret, newPassword string) error {
	var v validation.Collector
	v.Password("新しいパスワード", newPassword)
	if err := v.Err(); err != nil {
		return err
	}
	if secret == "" {
		s.recordPasswordReset(metrics.StageRejected)
		return model.NewInvalidResetTokenError()
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	userID, err := s.userRepo.ConsumeResetToken(ctx, HashResetSecret(secret), hash)
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	if userID == "" {
		s.recordPasswordReset(metrics.StageRejected)
		return model.NewInvalidResetTokenError()
	}

	if err := s.sessions.DestroyAll(ctx, userID); err != nil {
		slog.Error("failed to destroy sessions after password reset",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.recordPasswordReset(metrics.StageCompleted)
	slog.Info("password reset completed", slog.String("user_id", userID))
	return nil
}

func (s *Service) recordSignIn(result string) {
	if s.metrics != nil {
		s.metrics.RecordSignIn(result)
	}
}

func (s *Service) recordSignUp(result string) {
	if s.metrics != nil {
		s.metrics.RecordSignUp(result)
	}
}

func (s *Service) recordPasswordReset(stage string) {
	if s.metrics != nil {
		s.metrics.RecordPasswordReset(stage)
	}
}
