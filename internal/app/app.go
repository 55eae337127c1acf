// Package app はtaskboardの起動処理と依存関係のワイヤリングを提供する。
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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/client"
	"github.com/hitoshi/taskboard/internal/config"
	"github.com/hitoshi/taskboard/internal/database"
	"github.com/hitoshi/taskboard/internal/handler"
	"github.com/hitoshi/taskboard/internal/logger"
	"github.com/hitoshi/taskboard/internal/metrics"
	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/repository"
	"github.com/hitoshi/taskboard/internal/security"
	"github.com/hitoshi/taskboard/internal/task"
	"github.com/hitoshi/taskboard/internal/user"
)

const (
	shutdownTimeout    = 30 * time.Second
	healthPingTimeout  = 2 * time.Second
	healthcheckTimeout = 5 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込みの失敗もJSONで出力できるよう、先にInfoレベルで初期化する
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "5000"
		}
		return runHealthcheck(context.Background(), "http://localhost:"+port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.Port),
		slog.String("env", cfg.AppEnv),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// Server はワイヤリング済みのHTTPハンドラーと、停止時に解放するリソース。
type Server struct {
	Handler  http.Handler
	Registry *prometheus.Registry
	KeyCache *auth.KeyCache

	rateLimiter *middleware.RateLimiter
}

// Close はバックグラウンドで動作するリソースを停止する。DB接続は閉じない。
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// NewServer は設定とDB接続から全依存関係を組み立てる。
//
//	IdPクライアント → RealmKeyFetcher → KeyCache → Verifier
//	リポジトリ → サービス → ハンドラー → ルーター
func NewServer(cfg *config.Config, db *sql.DB) (*Server, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. トークン検証
	idpClient, err := security.NewIdPClient(security.IdPClientConfig{
		BaseURL:        cfg.KeycloakURL,
		Timeout:        cfg.FetchTimeout,
		AllowPrivateIP: cfg.AllowPrivateIP,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid KEYCLOAK_URL: %w", err)
	}
	keyCache := auth.NewKeyCache(
		auth.NewRealmKeyFetcher(idpClient, cfg.RealmURL()),
		auth.WithKeyTTL(cfg.KeyTTL),
		auth.WithCacheObserver(collector),
	)
	verifier := auth.NewVerifier(keyCache, cfg.KeycloakClientID,
		auth.WithAudienceCheck(cfg.VerifyAudience),
		auth.WithObserver(collector),
	)

	// 3. リポジトリとサービス
	userRepo := repository.NewPostgresUserRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)
	sanitizer := security.NewTextSanitizer()

	taskService := task.NewService(taskRepo, sanitizer, collector)
	userService := user.NewService(userRepo, taskRepo, sanitizer, collector)

	// 4. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitGeneral))

	router := handler.NewRouter(&handler.RouterDeps{
		Verifier:          verifier,
		CORSAllowedOrigin: cfg.FrontendURL,
		HSTS:              cfg.IsProduction(),
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		MetricsHandler:    metrics.Handler(registry),

		TaskService: taskService,
		UserService: userService,

		KeyInvalidator: keyCache,
		HealthChecker: handler.HealthCheckFunc(func(ctx context.Context) error {
			return database.Ping(ctx, db, healthPingTimeout)
		}),
		StartedAt: time.Now(),
	})

	slog.Info("token verifier configured",
		slog.String("realm_url", cfg.RealmURL()),
		slog.String("client_id", cfg.KeycloakClientID),
		slog.Bool("verify_audience", verifier.AudienceCheckEnabled()),
		slog.Duration("key_ttl", cfg.KeyTTL),
		slog.Bool("rate_limit", rateLimiter.Enabled()),
	)

	return &Server{
		Handler:     router,
		Registry:    registry,
		KeyCache:    keyCache,
		rateLimiter: rateLimiter,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、未適用のマイグレーションを適用してからHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, 10*time.Second); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	// 2. マイグレーション
	if _, err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// 3. ワイヤリング
	srv, err := NewServer(cfg, db)
	if err != nil {
		return err
	}
	defer srv.Close()

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-stop:
	}

	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
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

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /api/public/health を呼び出し、DBに到達できない場合もエラーとする。
func runHealthcheck(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, healthcheckTimeout)
	defer cancel()

	api := client.NewAPI(baseURL, &http.Client{Timeout: healthcheckTimeout}, nil)
	status, err := api.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if status.Status != "OK" {
		return fmt.Errorf("health check returned status %q", status.Status)
	}
	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
