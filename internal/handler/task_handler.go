package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskboard/internal/model"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	Create(ctx context.Context, owner string, in model.TaskInput) (*model.Task, error)
	List(ctx context.Context, owner string, filter model.TaskFilter) ([]*model.Task, error)
	ListAll(ctx context.Context, filter model.TaskFilter, owner string) ([]*model.Task, error)
	Get(ctx context.Context, owner, id string) (*model.Task, error)
	Update(ctx context.Context, owner, id string, in model.TaskInput) (*model.Task, error)
	Delete(ctx context.Context, owner, id string) (*model.Task, error)
}

// TaskHandler は呼び出し元自身のタスクを扱うHTTPハンドラー。
// 所有者は常にClaimsのsubjectであり、リクエストボディからは受け付けない。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// taskRequest はタスク作成・更新リクエストのボディ。
// createdBy が含まれていても無視する。
type taskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	AssignedTo  string  `json:"assignedTo"`
	Priority    string  `json:"priority"`
	DueDate     *string `json:"dueDate"`
}

// toInput はリクエストをサービスの入力に変換する。
// dueDateはRFC3339または YYYY-MM-DD を受け付ける。
func (req taskRequest) toInput() (model.TaskInput, *model.APIError) {
	in := model.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      model.TaskStatus(req.Status),
		AssignedTo:  req.AssignedTo,
		Priority:    model.TaskPriority(req.Priority),
	}
	if req.DueDate != nil && *req.DueDate != "" {
		due, err := parseDueDate(*req.DueDate)
		if err != nil {
			return in, model.NewValidationError("dueDate must be RFC3339 or YYYY-MM-DD")
		}
		in.DueDate = &due
	}
	return in, nil
}

func parseDueDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

// ListTasks は呼び出し元のタスク一覧を返す。
// GET /api/secure/tasks?status=
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	filter := model.TaskFilter{Status: model.TaskStatus(r.URL.Query().Get("status"))}
	tasks, err := h.service.List(r.Context(), claims.Subject, filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// CreateTask はタスクを作成する。
// POST /api/secure/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, r, apiErr)
		return
	}
	in, apiErr := req.toInput()
	if apiErr != nil {
		handleServiceError(w, r, apiErr)
		return
	}

	task, err := h.service.Create(r.Context(), claims.Subject, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Task created successfully",
		"task":    task,
	})
}

// GetTask は呼び出し元のタスクを1件返す。
// GET /api/secure/tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	task, err := h.service.Get(r.Context(), claims.Subject, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

// UpdateTask は呼び出し元のタスクを部分更新する。
// PUT /api/secure/tasks/{id}
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, r, apiErr)
		return
	}
	in, apiErr := req.toInput()
	if apiErr != nil {
		handleServiceError(w, r, apiErr)
		return
	}

	task, err := h.service.Update(r.Context(), claims.Subject, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Task updated successfully",
		"task":    task,
	})
}

// DeleteTask は呼び出し元のタスクを削除する。
// DELETE /api/secure/tasks/{id}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	task, err := h.service.Delete(r.Context(), claims.Subject, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Task deleted successfully",
		"task":    task,
	})
}
