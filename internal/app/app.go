package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/infomate/internal/auth"
	"github.com/hitoshi/infomate/internal/config"
	"github.com/hitoshi/infomate/internal/customer"
	"github.com/hitoshi/infomate/internal/database"
	"github.com/hitoshi/infomate/internal/handler"
	"github.com/hitoshi/infomate/internal/logger"
	"github.com/hitoshi/infomate/internal/mail"
	"github.com/hitoshi/infomate/internal/metrics"
	"github.com/hitoshi/infomate/internal/middleware"
	"github.com/hitoshi/infomate/internal/profile"
	"github.com/hitoshi/infomate/internal/repository"
	"github.com/hitoshi/infomate/internal/security"
	"github.com/hitoshi/infomate/internal/storage"
	"github.com/hitoshi/infomate/internal/worker/cleanup"
)

// dbConnectTimeout は起動時のデータベース疎通確認の待ち時間。
const dbConnectTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数を読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	if w == nil {
		w = os.Stdout
	}
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if !cmd.NeedsConfig() {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("session_store", cfg.SessionStore),
		slog.String("photo_store", cfg.PhotoStore),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg, w)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg, w)
	}
}

// server はserveモードで組み立てた依存関係。
type server struct {
	handler http.Handler
	closers []func() error
}

// Close は組み立て時に開いた外部接続を閉じる。
func (s *server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildServer は設定からリポジトリ、サービス、ルーターを組み立てる。
// dbへの接続確認は呼び出し側で行う。
func buildServer(ctx context.Context, cfg *config.Config, db *sql.DB, w io.Writer) (*server, error) {
	srv := &server{}

	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	customerRepo := repository.NewPostgresCustomerRepo(db)
	sessionRepo, closeSessions, err := newSessionRepo(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	if closeSessions != nil {
		srv.closers = append(srv.closers, closeSessions)
	}

	// 2. セキュリティサービスの初期化
	hasher, err := security.NewPasswordHasher(security.DefaultPasswordCost)
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("failed to create password hasher: %w", err)
	}
	sanitizer := security.NewTextSanitizer()

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. 外部サービス
	mailer, err := newMailDispatcher(ctx, cfg)
	if err != nil {
		srv.Close()
		return nil, err
	}
	photos, imageSources, err := newPhotoStore(ctx, cfg)
	if err != nil {
		srv.Close()
		return nil, err
	}

	// 5. ドメインサービスの初期化
	sessions := auth.NewSessionManager(sessionRepo, cfg.SessionMaxAgeDuration())
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.BearerTokenTTL)
	gate := auth.NewGate(userRepo, sessions, tokens)

	authService := auth.NewService(userRepo, sessions, tokens, hasher, mailer, collector, auth.ServiceConfig{
		BaseURL:       cfg.BaseURL,
		ResetTokenTTL: cfg.ResetTokenTTL,
	})
	customerService := customer.NewService(customerRepo, sanitizer)
	profileService := profile.NewService(userRepo, photos, sessions, hasher, sanitizer, cfg.UploadMaxSize)

	// 6. ルーターの構築
	renderer, err := handler.NewRenderer()
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	deps := &handler.RouterDeps{
		Logger:            logger.Setup(w),
		Metrics:           collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Cookie: auth.CookieConfig{
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
			MaxAge: cfg.SessionMaxAge,
		},
		Gate:         gate,
		ImageSources: imageSources,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),

		Renderer:        renderer,
		AuthService:     authService,
		CustomerService: customerService,
		ProfileService:  profileService,
	}
	if local, ok := photos.(*storage.LocalPhotoStore); ok {
		deps.UploadDir = local.Dir()
	}

	srv.handler = handler.NewRouter(deps)
	return srv, nil
}

// newSessionRepo は設定に応じたセッションストアを返す。
// Redisを使う場合は接続を確認し、クライアントを閉じる関数も返す。
func newSessionRepo(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.SessionRepository, func() error, error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return repository.NewPostgresSessionRepo(db), nil, nil
	}

	client, err := repository.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pingRedis(ctx, client); err != nil {
		client.Close()
		return nil, nil, err
	}
	slog.Info("redis session store enabled")
	return repository.NewRedisSessionRepo(client), client.Close, nil
}

func pingRedis(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

// newMailDispatcher はMAIL_FROMが設定されていればSES、未設定ならログ出力のDispatcherを返す。
func newMailDispatcher(ctx context.Context, cfg *config.Config) (mail.Dispatcher, error) {
	if cfg.MailFrom == "" {
		slog.Warn("MAIL_FROM is not set; outgoing mail will be logged instead of sent")
		return mail.NewLogDispatcher(slog.Default()), nil
	}
	dispatcher, err := mail.NewSESDispatcher(ctx, mail.SESConfig{
		Region:       cfg.AWSRegion,
		FromEmail:    cfg.MailFrom,
		FromName:     cfg.MailFromName,
		MaxPerSecond: cfg.MailMaxPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mail dispatcher: %w", err)
	}
	return dispatcher, nil
}

// newPhotoStore は設定に応じた写真ストアと、CSPのimg-srcに追加するオリジンを返す。
func newPhotoStore(ctx context.Context, cfg *config.Config) (storage.PhotoStore, []string, error) {
	if cfg.PhotoStore != config.PhotoStoreS3 {
		return storage.NewLocalPhotoStore(cfg.UploadDir, storage.DefaultLocalURLPrefix), nil, nil
	}

	store, err := storage.NewS3PhotoStore(ctx, storage.S3Config{
		Region:    cfg.AWSRegion,
		Bucket:    cfg.S3Bucket,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		PublicURL: cfg.S3PublicURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create photo store: %w", err)
	}

	var sources []string
	if origin := originOf(cfg.S3PublicURL); origin != "" {
		sources = append(sources, origin)
	}
	return store, sources, nil
}

// originOf はURLのスキームとホストを返す。解釈できない場合は空文字列。
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config, w io.Writer) error {
	ctx := context.Background()

	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. 依存関係の組み立て
	srv, err := buildServer(ctx, cfg, db, w)
	if err != nil {
		return err
	}
	defer srv.Close()

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down web server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れのセッションと再設定トークンをCLEANUP_INTERVAL毎に掃除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config, w io.Writer) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	job := cleanup.NewCleanupJob(db, logger.Setup(w))
	job.SweepSessions = cfg.SessionStore == config.SessionStorePostgres

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// メインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	if u.User == nil {
		return u.String()
	}
	// url.Userはユーザー名をエスケープするため、認証情報を外してから差し込む
	u.User = nil
	return strings.Replace(u.String(), "://", "://***@", 1)
}
