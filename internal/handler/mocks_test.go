package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/infomate/internal/auth"
	"github.com/hitoshi/infomate/internal/customer"
	"github.com/hitoshi/infomate/internal/middleware"
	"github.com/hitoshi/infomate/internal/model"
	"github.com/hitoshi/infomate/internal/profile"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn             func(ctx context.Context, in auth.RegisterInput, previousSessionID string) (*auth.AuthResult, error)
	signInFn               func(ctx context.Context, email, password, previousSessionID string) (*auth.AuthResult, error)
	logoutFn               func(ctx context.Context, sessionID string) error
	issueBearerTokenFn     func(ctx context.Context, userID string) (string, time.Time, error)
	requestPasswordResetFn func(ctx context.Context, email string) error
	validateResetTokenFn   func(ctx context.Context, secret string) error
	resetPasswordFn        func(ctx context.Context, secret, newPassword string) error
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput, previousSessionID string) (*auth.AuthResult, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in, previousSessionID)
	}
	return nil, nil
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password, previousSessionID string) (*auth.AuthResult, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password, previousSessionID)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) IssueBearerToken(ctx context.Context, userID string) (string, time.Time, error) {
	if m.issueBearerTokenFn != nil {
		return m.issueBearerTokenFn(ctx, userID)
	}
	return "", time.Time{}, nil
}

func (m *mockAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if m.requestPasswordResetFn != nil {
		return m.requestPasswordResetFn(ctx, email)
	}
	return nil
}

func (m *mockAuthService) ValidateResetToken(ctx context.Context, secret string) error {
	if m.validateResetTokenFn != nil {
		return m.validateResetTokenFn(ctx, secret)
	}
	return nil
}

func (m *mockAuthService) ResetPassword(ctx context.Context, secret, newPassword string) error {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, secret, newPassword)
	}
	return nil
}

// mockCustomerService はCustomerServiceInterfaceのモック実装。
type mockCustomerService struct {
	listFn   func(ctx context.Context, ownerID string) ([]*model.Customer, error)
	createFn func(ctx context.Context, ownerID string, in customer.Input) (*model.Customer, error)
	getFn    func(ctx context.Context, ownerID, id string) (*model.Customer, error)
	updateFn func(ctx context.Context, ownerID, id string, in customer.Input) (*model.Customer, error)
	deleteFn func(ctx context.Context, ownerID, id string) error
	searchFn func(ctx context.Context, ownerID, text string) ([]*model.Customer, error)
}

var _ CustomerServiceInterface = (*mockCustomerService)(nil)

func (m *mockCustomerService) List(ctx context.Context, ownerID string) ([]*model.Customer, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID)
	}
	return []*model.Customer{}, nil
}

func (m *mockCustomerService) Create(ctx context.Context, ownerID string, in customer.Input) (*model.Customer, error) {
	if m.createFn != nil {
		return m.createFn(ctx, ownerID, in)
	}
	return nil, nil
}

func (m *mockCustomerService) Get(ctx context.Context, ownerID, id string) (*model.Customer, error) {
	if m.getFn != nil {
		return m.getFn(ctx, ownerID, id)
	}
	return nil, model.NewRecordNotFoundError()
}

func (m *mockCustomerService) Update(ctx context.Context, ownerID, id string, in customer.Input) (*model.Customer, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, ownerID, id, in)
	}
	return nil, nil
}

func (m *mockCustomerService) Delete(ctx context.Context, ownerID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ownerID, id)
	}
	return nil
}

func (m *mockCustomerService) Search(ctx context.Context, ownerID, text string) ([]*model.Customer, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, ownerID, text)
	}
	return []*model.Customer{}, nil
}

// mockProfileService はProfileServiceInterfaceのモック実装。
type mockProfileService struct {
	getFn           func(ctx context.Context, userID string) (*model.User, error)
	updatePhotoFn   func(ctx context.Context, userID, sessionID string, upload profile.PhotoUpload) (*model.User, error)
	updateProfileFn func(ctx context.Context, userID, sessionID string, in profile.ProfileInput) (*model.User, error)
	maxPhotoSize    int64
}

var _ ProfileServiceInterface = (*mockProfileService)(nil)

func (m *mockProfileService) Get(ctx context.Context, userID string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockProfileService) UpdatePhoto(ctx context.Context, userID, sessionID string, upload profile.PhotoUpload) (*model.User, error) {
	if m.updatePhotoFn != nil {
		return m.updatePhotoFn(ctx, userID, sessionID, upload)
	}
	return nil, nil
}

func (m *mockProfileService) UpdateProfile(ctx context.Context, userID, sessionID string, in profile.ProfileInput) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, sessionID, in)
	}
	return nil, nil
}

func (m *mockProfileService) MaxPhotoSize() int64 {
	if m.maxPhotoSize > 0 {
		return m.maxPhotoSize
	}
	return profile.DefaultMaxPhotoSize
}

// mockResolver はmiddleware.CallerResolverのモック実装。
// sessionsに登録されたセッションIDのみ通過させる。
type mockResolver struct {
	sessions map[string]*model.Caller
}

var _ middleware.CallerResolver = (*mockResolver)(nil)

func (m *mockResolver) Resolve(_ context.Context, sessionID, _ string) (*auth.Resolution, error) {
	if caller, ok := m.sessions[sessionID]; ok {
		return &auth.Resolution{Caller: caller}, nil
	}
	if sessionID != "" {
		return &auth.Resolution{Reason: auth.ReasonSignInRequired, ClearCookie: true}, nil
	}
	return &auth.Resolution{Reason: auth.ReasonSignInRequired}, nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(context.Context) error {
	return m.err
}

// --- テストヘルパー ---

var (
	alice = &model.Caller{UserID: "user-alice", Name: "Alice", Email: "alice@x.com", ProfilePhoto: model.DefaultProfilePhoto, Role: model.RoleUser, SessionID: "sess-alice"}
	bob   = &model.Caller{UserID: "user-bob", Name: "Bob", Email: "bob@x.com", ProfilePhoto: model.DefaultProfilePhoto, Role: model.RoleUser, SessionID: "sess-bob"}
)

// newTestRenderer はテスト用のRendererを生成するヘルパー。
func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	rd, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return rd
}

// withCaller はテスト用にリクエストコンテキストに呼び出し元を注入するヘルパー。
func withCaller(r *http.Request, caller *model.Caller) *http.Request {
	return r.WithContext(middleware.ContextWithCaller(r.Context(), caller))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// findCookie はレスポンスから指定名のCookieを探すヘルパー。
func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// flashOf はレスポンスに設定されたフラッシュメッセージを取り出すヘルパー。
func flashOf(t *testing.T, w *httptest.ResponseRecorder) middleware.Flash {
	t.Helper()
	c := findCookie(w.Result(), "flash")
	if c == nil {
		t.Fatal("expected flash cookie")
	}
	data, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		t.Fatalf("failed to decode flash cookie: %v", err)
	}
	var f middleware.Flash
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("failed to parse flash cookie: %v", err)
	}
	return f
}

// assertRedirect はリダイレクト先を検証するヘルパー。
func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, wantLocation string) {
	t.Helper()
	if w.Code != http.StatusSeeOther && w.Code != http.StatusFound {
		t.Fatalf("status = %d, want redirect", w.Code)
	}
	if got := w.Header().Get("Location"); got != wantLocation {
		t.Errorf("Location = %q, want %q", got, wantLocation)
	}
}
