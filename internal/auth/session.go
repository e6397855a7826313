package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/infomate/internal/model"
	"github.com/hitoshi/infomate/internal/repository"
)

// SessionCookieName はセッションIDを保持するCookie名。
const SessionCookieName = "session_id"

// SessionManager はサーバー側セッションのライフサイクルを管理する。
// 有効期限は作成時刻からの絶対期限で、Refreshでは延長しない。
type SessionManager struct {
	repo   repository.SessionRepository
	maxAge time.Duration
	now    func() time.Time
}

// NewSessionManager はSessionManagerを生成する。
func NewSessionManager(repo repository.SessionRepository, maxAge time.Duration) *SessionManager {
	return &SessionManager{
		repo:   repo,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// MaxAge はセッションの有効期間を返す。
func (m *SessionManager) MaxAge() time.Duration {
	return m.maxAge
}

// Start はユーザーの新しいセッションを作成する。
// previousIDが指定された場合、そのセッションの状態を先に破棄する。
func (m *SessionManager) Start(ctx context.Context, user *model.User, previousID string) (*model.Session, error) {
	if previousID != "" {
		if err := m.repo.DeleteByID(ctx, previousID); err != nil {
			return nil, fmt.Errorf("failed to discard previous session: %w", err)
		}
	}

	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := m.now()
	session := &model.Session{
		ID:        id,
		UserID:    user.ID,
		Snapshot:  model.SnapshotOf(user),
		ExpiresAt: now.Add(m.maxAge),
		CreatedAt: now,
	}
	if err := m.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// Refresh はセッションのスナップショットをユーザーの現在値で上書きする。
func (m *SessionManager) Refresh(ctx context.Context, sessionID string, user *model.User) error {
	if sessionID == "" {
		return nil
	}
	if err := m.repo.UpdateSnapshot(ctx, sessionID, model.SnapshotOf(user)); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	return nil
}

// Destroy はセッションを破棄する。存在しないセッションでもエラーにしない。
func (m *SessionManager) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := m.repo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// DestroyAll は指定ユーザーの全セッションを破棄する。
func (m *SessionManager) DestroyAll(ctx context.Context, userID string) error {
	if err := m.repo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to destroy user sessions: %w", err)
	}
	return nil
}

// Lookup は有効なセッションを返す。未登録または期限切れの場合はnilを返す。
func (m *SessionManager) Lookup(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	session, err := m.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || !session.ExpiresAt.After(m.now()) {
		return nil, nil
	}
	return session, nil
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Domain string
	Secure bool
	MaxAge int // 秒
}

// SetSessionCookie はセッションIDをHTTP Only Cookieに設定する。
func SetSessionCookie(w http.ResponseWriter, cfg CookieConfig, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを破棄させる。
func ClearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionIDFromRequest はリクエストのCookieからセッションIDを取得する。
func SessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
