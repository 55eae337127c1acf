package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskboard/internal/model"
)

// KeyInvalidator はキャッシュ済みのレルム公開鍵を破棄するインターフェース。
// auth.KeyCacheが実装する。
type KeyInvalidator interface {
	Invalidate()
	FetchedAt() (time.Time, bool)
}

// AdminHandler はadminロールを要求するHTTPハンドラー。
// ロールの確認はルーター側のRequireRoleで行う。
type AdminHandler struct {
	users UserServiceInterface
	tasks TaskServiceInterface
	keys  KeyInvalidator
}

// NewAdminHandler はAdminHandlerを生成する。keysはnilでもよい。
func NewAdminHandler(users UserServiceInterface, tasks TaskServiceInterface, keys KeyInvalidator) *AdminHandler {
	return &AdminHandler{users: users, tasks: tasks, keys: keys}
}

// ListUsers は全ユーザーを返す。
// GET /api/secure/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(users),
		"users": users,
	})
}

// ListTasks は全ユーザーのタスクを返す。
// GET /api/secure/admin/tasks?status=&owner=
func (h *AdminHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.TaskFilter{Status: model.TaskStatus(q.Get("status"))}

	tasks, err := h.tasks.ListAll(r.Context(), filter, q.Get("owner"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(tasks),
		"tasks": tasks,
	})
}

// Stats は集計結果を返す。
// GET /api/secure/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// DeleteUser はユーザーとそのタスクを削除する。
// DELETE /api/secure/admin/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.DeleteUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User and associated tasks deleted successfully",
		"user":    user,
	})
}

// InvalidateKeys はキャッシュ済みのレルム公開鍵を破棄する。
// 次のトークン検証で公開鍵を再取得する。IdP側の鍵ローテーション後に使用する。
// POST /api/secure/admin/keys/invalidate
func (h *AdminHandler) InvalidateKeys(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	resp := map[string]any{
		"message": "Realm public key cache invalidated",
	}
	attrs := []any{slog.String("user_id", claims.Subject)}
	if h.keys != nil {
		// 破棄した鍵がいつ取得されたものかを残す
		if fetchedAt, ok := h.keys.FetchedAt(); ok {
			resp["previousKeyFetchedAt"] = fetchedAt.UTC()
			attrs = append(attrs, slog.Time("key_fetched_at", fetchedAt))
		}
		h.keys.Invalidate()
	}
	slog.Info("realm key cache invalidated", attrs...)

	writeJSON(w, http.StatusOK, resp)
}
