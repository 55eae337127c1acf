package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker は依存先の疎通確認を行うインターフェース。
type HealthChecker interface {
	Check(ctx context.Context) error
}

// HealthCheckFunc は関数をHealthCheckerとして扱うためのアダプター。
type HealthCheckFunc func(ctx context.Context) error

// Check はf(ctx)を呼び出す。
func (f HealthCheckFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// PublicHandler は認証不要のエンドポイントを扱うHTTPハンドラー。
type PublicHandler struct {
	db        HealthChecker
	startedAt time.Time
	now       func() time.Time
}

// NewPublicHandler はPublicHandlerを生成する。dbがnilの場合はDB確認を省略する。
func NewPublicHandler(db HealthChecker, startedAt time.Time) *PublicHandler {
	return &PublicHandler{db: db, startedAt: startedAt, now: time.Now}
}

// Root はサービス情報を返す。
// GET /
func (h *PublicHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Taskboard API",
		"status":  "running",
		"endpoints": map[string]string{
			"public": "/api/public",
			"health": "/api/public/health",
			"secure": "/api/secure",
			"admin":  "/api/secure/admin",
		},
	})
}

// Public は公開エンドポイントの案内を返す。
// GET /api/public
func (h *PublicHandler) Public(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "This is a public endpoint - no authentication required",
		"timestamp": timestamp(h.now()),
		"endpoints": map[string]string{
			"public":  "/api/public",
			"secure":  "/api/secure (requires authentication)",
			"profile": "/api/secure/profile (requires authentication)",
			"tasks":   "/api/secure/tasks (requires authentication)",
			"admin":   "/api/secure/admin (requires admin role)",
		},
	})
}

// Health は稼働状況を返す。DBに到達できない場合は503を返す。
// GET /api/public/health
func (h *PublicHandler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	status := http.StatusOK
	body := map[string]any{
		"status":    "OK",
		"timestamp": timestamp(now),
		"uptime":    now.Sub(h.startedAt).Seconds(),
	}

	if h.db != nil {
		if err := h.db.Check(r.Context()); err != nil {
			slog.Warn("health check failed", slog.String("error", err.Error()))
			status = http.StatusServiceUnavailable
			body["status"] = "DEGRADED"
			body["database"] = "unreachable"
		} else {
			body["database"] = "ok"
		}
	}

	writeJSON(w, status, body)
}
