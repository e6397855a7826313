package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/infomate/internal/model"
)

// 認証ゲートの拒否理由
const (
	ReasonSignInRequired = "sign_in_required"
	ReasonInactive       = "inactive"
	ReasonAuthFailed     = "auth_failed"
)

// UserFinder はユーザーの検索に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// TokenVerifier はベアラートークンの検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// Resolution は認証ゲートの判定結果を表す。
// Callerがnilの場合はReasonに拒否理由が入る。
type Resolution struct {
	Caller  *model.Caller
	Session *model.Session

	// SessionStarted はベアラートークンから新しいセッションを開始したことを示す。
	SessionStarted bool
	// ClearCookie はリクエストのセッションCookieが無効になったことを示す。
	ClearCookie bool

	Reason string
}

// Rejected は呼び出し元を特定できなかったかを返す。
func (r *Resolution) Rejected() bool {
	return r.Caller == nil
}

// Err は拒否理由に対応するAPIErrorを返す。通過した場合はnilを返す。
func (r *Resolution) Err() *model.APIError {
	if !r.Rejected() {
		return nil
	}
	switch r.Reason {
	case ReasonInactive:
		return model.NewAccountInactiveError()
	case ReasonAuthFailed:
		return model.NewAuthFailedError()
	default:
		return model.NewSignInRequiredError()
	}
}

// Gate はセッションまたはベアラートークンからリクエストの呼び出し元を解決する。
type Gate struct {
	users    UserFinder
	sessions *SessionManager
	tokens   TokenVerifier
}

// NewGate はGateを生成する。
func NewGate(users UserFinder, sessions *SessionManager, tokens TokenVerifier) *Gate {
	return &Gate{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
	}
}

// Resolve はセッションID、ベアラートークンの順に呼び出し元を解決する。
// 返すerrorはストレージ障害のみで、認証失敗はResolution.Reasonで表す。
func (g *Gate) Resolve(ctx context.Context, sessionID, bearerToken string) (*Resolution, error) {
	res := &Resolution{}

	if sessionID != "" {
		session, err := g.sessions.Lookup(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session != nil {
			return g.resolveSession(ctx, res, session)
		}
		// 期限切れや破棄済みのCookieは未認証として扱う
		res.ClearCookie = true
	}

	if bearerToken != "" {
		return g.resolveBearer(ctx, res, sessionID, bearerToken)
	}

	res.Reason = ReasonSignInRequired
	return res, nil
}

func (g *Gate) resolveSession(ctx context.Context, res *Resolution, session *model.Session) (*Resolution, error) {
	user, err := g.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session user: %w", err)
	}
	if user == nil || !user.IsActive {
		if err := g.sessions.Destroy(ctx, session.ID); err != nil {
			slog.Error("failed to destroy session of inactive user",
				slog.String("user_id", session.UserID),
				slog.String("error", err.Error()),
			)
		}
		res.ClearCookie = true
		res.Reason = ReasonInactive
		return res, nil
	}

	snapshot := model.SnapshotOf(user)
	if session.Snapshot != snapshot {
		if err := g.sessions.Refresh(ctx, session.ID, user); err != nil {
			return nil, err
		}
		session.Snapshot = snapshot
	}

	res.Session = session
	res.Caller = callerOf(user, session.ID)
	return res, nil
}

func (g *Gate) resolveBearer(ctx context.Context, res *Resolution, staleSessionID, bearerToken string) (*Resolution, error) {
	claims, err := g.tokens.Verify(bearerToken)
	if err != nil {
		if !errors.Is(err, ErrInvalidToken) {
			return nil, err
		}
		res.Reason = ReasonAuthFailed
		return res, nil
	}

	user, err := g.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find token user: %w", err)
	}
	if user == nil || !user.IsActive {
		res.Reason = ReasonInactive
		return res, nil
	}

	session, err := g.sessions.Start(ctx, user, staleSessionID)
	if err != nil {
		return nil, err
	}

	res.Session = session
	res.SessionStarted = true
	res.ClearCookie = false
	res.Caller = callerOf(user, session.ID)
	return res, nil
}

func callerOf(user *model.User, sessionID string) *model.Caller {
	return &model.Caller{
		UserID:       user.ID,
		Name:         user.Name,
		Email:        user.Email,
		ProfilePhoto: user.PhotoOrDefault(),
		Role:         user.Role,
		SessionID:    sessionID,
	}
}
