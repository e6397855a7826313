package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/infomate/internal/mail"
	"github.com/hitoshi/infomate/internal/metrics"
	"github.com/hitoshi/infomate/internal/model"
	"github.com/hitoshi/infomate/internal/repository"
	"github.com/hitoshi/infomate/internal/security"
	"golang.org/x/crypto/bcrypt"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn             func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn          func(ctx context.Context, email string) (*model.User, error)
	createFn               func(ctx context.Context, user *model.User) error
	updateLastLoginFn      func(ctx context.Context, id string, at time.Time) error
	setResetTokenFn        func(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	findByResetTokenHashFn func(ctx context.Context, tokenHash string) (*model.User, error)
	consumeResetTokenFn    func(ctx context.Context, tokenHash, newPasswordHash string) (string, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.updateLastLoginFn != nil {
		return m.updateLastLoginFn(ctx, id, at)
	}
	return nil
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, _, _, _ string) error {
	return nil
}

func (m *mockUserRepo) UpdatePasswordHash(_ context.Context, _, _ string) error {
	return nil
}

func (m *mockUserRepo) UpdateProfilePhoto(_ context.Context, _, _ string) error {
	return nil
}

func (m *mockUserRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	if m.setResetTokenFn != nil {
		return m.setResetTokenFn(ctx, id, tokenHash, expiresAt)
	}
	return nil
}

func (m *mockUserRepo) FindByResetTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	if m.findByResetTokenHashFn != nil {
		return m.findByResetTokenHashFn(ctx, tokenHash)
	}
	return nil, nil
}

func (m *mockUserRepo) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string) (string, error) {
	if m.consumeResetTokenFn != nil {
		return m.consumeResetTokenFn(ctx, tokenHash, newPasswordHash)
	}
	return "", nil
}

// memSessionRepo はマップで状態を保持するセッションリポジトリ。
// 個別の振る舞いを差し替える場合は関数フィールドを設定する。
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session

	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByUserIDFn func(ctx context.Context, userID string) error

	updateCalls int
	deleteCalls int
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*model.Session)}
}

func (m *memSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *memSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (m *memSessionRepo) UpdateSnapshot(_ context.Context, id string, snapshot model.SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if s, ok := m.sessions[id]; ok {
		s.Snapshot = snapshot
	}
	return nil
}

func (m *memSessionRepo) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	delete(m.sessions, id)
	return nil
}

func (m *memSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memSessionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type sentMail struct {
	to, subject, body string
}

type mockMailer struct {
	sendFn func(ctx context.Context, to, subject, htmlBody string) error
	sent   []sentMail
}

func (m *mockMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: htmlBody})
	if m.sendFn != nil {
		return m.sendFn(ctx, to, subject, htmlBody)
	}
	return nil
}

type mockMetrics struct {
	mu             sync.Mutex
	signIn         []string
	signUp         []string
	passwordReset  []string
	gateRejections []string
}

func (m *mockMetrics) RecordSignIn(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signIn = append(m.signIn, result)
}

func (m *mockMetrics) RecordSignUp(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signUp = append(m.signUp, result)
}

func (m *mockMetrics) RecordPasswordReset(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passwordReset = append(m.passwordReset, stage)
}

func (m *mockMetrics) RecordAuthGateRejection(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateRejections = append(m.gateRejections, reason)
}

func (m *mockMetrics) RecordHTTPStatus(_ int)                {}
func (m *mockMetrics) RecordRequestDuration(_ time.Duration) {}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*memSessionRepo)(nil)
var _ mail.Dispatcher = (*mockMailer)(nil)
var _ metrics.MetricsCollector = (*mockMetrics)(nil)

// --- ヘルパー ---

const testJWTSecret = "test-jwt-secret-32bytes-long!!!!"

func newTestHasher(t *testing.T) *security.PasswordHasher {
	t.Helper()
	h, err := security.NewPasswordHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewPasswordHasher() error = %v", err)
	}
	return h
}

func activeUser(id, name, email string) *model.User {
	return &model.User{
		ID:           id,
		Name:         name,
		Email:        email,
		Role:         model.RoleUser,
		IsActive:     true,
		ProfilePhoto: model.DefaultProfilePhoto,
	}
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	apiErr, ok := model.AsAPIError(err)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
}
