package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
)

// AdminRole は管理者エンドポイントに必要なロール名。
const AdminRole = "admin"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Verifier          middleware.TokenVerifier
	CORSAllowedOrigin string // カンマ区切りで複数指定可
	HSTS              bool
	RateLimiter       *middleware.RateLimiter       // nilの場合はレート制限なし
	Logger            *slog.Logger                  // nilの場合はslog.Default()
	StatusRecorder    middleware.HTTPStatusRecorder // nilの場合は記録しない
	MetricsHandler    http.Handler                  // nilの場合は /metrics を公開しない

	// サービス
	TaskService TaskServiceInterface
	UserService UserServiceInterface

	// 運用
	KeyInvalidator KeyInvalidator
	HealthChecker  HealthChecker
	StartedAt      time.Time
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェア:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS
//
// /api/secure 以下は RequireAuthenticated → RateLimit を通り、
// /api/secure/admin 以下はさらに RequireRole("admin") を通る。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	startedAt := deps.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	publicHandler := NewPublicHandler(deps.HealthChecker, startedAt)
	profileHandler := NewProfileHandler(deps.UserService)
	taskHandler := NewTaskHandler(deps.TaskService)
	adminHandler := NewAdminHandler(deps.UserService, deps.TaskService, deps.KeyInvalidator)

	// --- 認証不要のルート ---
	r.Get("/", publicHandler.Root)
	r.Get("/api/public", publicHandler.Public)
	r.Get("/api/public/health", publicHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	r.Route("/api/secure", func(r chi.Router) {
		r.Use(middleware.RequireAuthenticated(deps.Verifier))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Get("/", profileHandler.Secure)

		r.Get("/profile", profileHandler.GetProfile)
		r.Put("/profile", profileHandler.UpdateProfile)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.ListTasks)
			r.Post("/", taskHandler.CreateTask)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskHandler.GetTask)
				r.Put("/", taskHandler.UpdateTask)
				r.Delete("/", taskHandler.DeleteTask)
			})
		})

		// --- 管理者ルート ---
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(AdminRole))

			r.Get("/users", adminHandler.ListUsers)
			r.Delete("/users/{id}", adminHandler.DeleteUser)
			r.Get("/tasks", adminHandler.ListTasks)
			r.Get("/stats", adminHandler.Stats)
			r.Post("/keys/invalidate", adminHandler.InvalidateKeys)
		})
	})

	return r
}

// notFound は未定義のルートに統一フォーマットの404を返す。
func notFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteErrorResponse(w, &model.APIError{
		Kind:    model.KindNotFound,
		Message: fmt.Sprintf("Route %s not found", r.URL.Path),
	})
}
