package handler

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/infomate/internal/auth"
	"github.com/hitoshi/infomate/internal/metrics"
	"github.com/hitoshi/infomate/internal/middleware"
	"github.com/hitoshi/infomate/internal/storage"
)

//go:embed static
var staticFS embed.FS

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	Cookie            auth.CookieConfig
	Gate              middleware.CallerResolver

	// 外部ストアの画像を表示するためにCSPのimg-srcへ追加するオリジン
	ImageSources []string

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ハンドラー
	Renderer        *Renderer
	AuthService     AuthServiceInterface
	CustomerService CustomerServiceInterface
	ProfileService  ProfileServiceInterface

	// ローカル保存時のプロフィール写真ディレクトリ。空の場合は配信しない。
	UploadDir string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → CORS → MethodOverride → CSRF
//
// 保護されたルートはさらにAuthGateを通過する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.ImageSources...))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	if deps.CORSAllowedOrigin != "" {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	}
	r.Use(middleware.NewMethodOverrideMiddleware())
	r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

	authHandler := NewAuthHandler(deps.AuthService, deps.Renderer, deps.Cookie)
	customerHandler := NewCustomerHandler(deps.CustomerService, deps.Renderer)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.Renderer)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF).ServeHTTP)

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	r.Handle("/img/*", noDirectoryListing(http.FileServerFS(static)))
	if deps.UploadDir != "" {
		r.Handle(storage.DefaultLocalURLPrefix+"*", http.StripPrefix(storage.DefaultLocalURLPrefix,
			noDirectoryListing(http.FileServer(http.Dir(deps.UploadDir)))))
	}

	r.Get("/signup", authHandler.SignUpForm)
	r.Get("/signin", authHandler.SignInForm)
	r.Get("/forgot-password", authHandler.ForgotPasswordForm)
	r.Get("/reset-password/{token}", authHandler.ResetPasswordForm)

	r.Post("/auth/signup", authHandler.SignUp)
	r.Post("/auth/signin", authHandler.SignIn)
	r.Post("/auth/forgot-password", authHandler.ForgotPassword)
	r.Post("/auth/reset-password", authHandler.ResetPassword)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthGateMiddleware(deps.Gate, middleware.AuthGateConfig{
			Cookie:  deps.Cookie,
			Metrics: deps.Metrics,
		}))

		r.Get("/logout", authHandler.Logout)
		r.Get("/auth/token", authHandler.Token)

		// 顧客管理
		r.Get("/", customerHandler.List)
		r.Get("/user/add.html", customerHandler.New)
		r.Post("/user/add.html", customerHandler.Create)
		r.Get("/view/{id}", customerHandler.View)
		r.Route("/edit/{id}", func(r chi.Router) {
			r.Get("/", customerHandler.Edit)
			r.Put("/", customerHandler.Update)
			r.Delete("/", customerHandler.Delete)
		})
		r.Post("/search", customerHandler.Search)
		// 旧ダッシュボードのURLは一覧画面へ
		r.Get("/dashboard", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/", http.StatusFound)
		})

		// プロフィール
		r.Get("/profile", profileHandler.Show)
		r.Post("/profile/picture", profileHandler.UpdatePicture)
		r.Post("/profile/update", profileHandler.UpdateProfile)
	})

	return r
}

// noDirectoryListing はディレクトリへのリクエストを404にする。
func noDirectoryListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
