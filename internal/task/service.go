// Package task はタスク管理のドメインロジックを提供する。
//
// 一般ユーザーの操作はすべて呼び出し元のsubjectによる所有者スコープで実行する。
// 他人のタスクは存在しないものとして扱い、NotFoundを返す。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
	"github.com/hitoshi/taskboard/internal/security"
)

// OperationRecorder は成功したタスク操作を記録するインターフェース。
// metrics.Collectorが実装する。
type OperationRecorder interface {
	RecordTaskOperation(operation string)
}

// Service はタスク管理のサービス層。
type Service struct {
	repo      repository.TaskRepository
	sanitizer security.TextSanitizer
	recorder  OperationRecorder
	now       func() time.Time
	newID     func() string
}

// NewService はServiceの新しいインスタンスを生成する。
// recorderはnilでもよい。
func NewService(repo repository.TaskRepository, sanitizer security.TextSanitizer, recorder OperationRecorder) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		recorder:  recorder,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Create は所有者を呼び出し元としてタスクを作成する。
// タイトルは必須。ステータスと優先度は省略時にpending・mediumとなる。
func (s *Service) Create(ctx context.Context, owner string, in model.TaskInput) (*model.Task, error) {
	title := s.sanitizer.Clean(in.Title)
	if title == "" {
		return nil, model.NewValidationError("Title is required")
	}
	assignee := s.optionalText(in.AssignedTo)
	if err := checkLengths(title, assignee); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = model.TaskStatusPending
	}
	if !status.Valid() {
		return nil, invalidStatusError(status)
	}

	priority := in.Priority
	if priority == "" {
		priority = model.TaskPriorityMedium
	}
	if !priority.Valid() {
		return nil, invalidPriorityError(priority)
	}

	now := s.now().UTC()
	t := &model.Task{
		ID:          s.newID(),
		Title:       title,
		Description: s.optionalText(in.Description),
		Status:      status,
		CreatedBy:   owner,
		AssignedTo:  assignee,
		Priority:    priority,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}

	slog.Info("task created",
		slog.String("task_id", t.ID),
		slog.String("user_id", owner),
	)
	s.record("create")
	return t, nil
}

// List は呼び出し元が作成したタスクを作成日時の降順で返す。
func (s *Service) List(ctx context.Context, owner string, filter model.TaskFilter) ([]*model.Task, error) {
	return s.list(ctx, repository.OwnerScope(owner), filter)
}

// ListAll は管理者向けに全タスクを返す。ownerを指定した場合はその所有者のタスクのみを返す。
func (s *Service) ListAll(ctx context.Context, filter model.TaskFilter, owner string) ([]*model.Task, error) {
	scope := repository.AdminScope()
	if owner != "" {
		scope = repository.OwnerScope(owner)
	}
	return s.list(ctx, scope, filter)
}

func (s *Service) list(ctx context.Context, scope repository.TaskScope, filter model.TaskFilter) ([]*model.Task, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalidStatusError(filter.Status)
	}

	tasks, err := s.repo.List(ctx, scope, filter)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return tasks, nil
}

// Get は呼び出し元が作成したタスクを1件返す。
func (s *Service) Get(ctx context.Context, owner, id string) (*model.Task, error) {
	if !validID(id) {
		return nil, model.NewTaskNotFoundError(id)
	}

	t, err := s.repo.Find(ctx, repository.OwnerScope(owner), id)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if t == nil {
		return nil, model.NewTaskNotFoundError(id)
	}
	return t, nil
}

// Update は呼び出し元が作成したタスクを部分更新する。
// 空のフィールドは変更しない。所有者は変更できない。
func (s *Service) Update(ctx context.Context, owner, id string, in model.TaskInput) (*model.Task, error) {
	if in.Status != "" && !in.Status.Valid() {
		return nil, invalidStatusError(in.Status)
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return nil, invalidPriorityError(in.Priority)
	}
	title := s.sanitizer.Clean(in.Title)
	assignee := s.optionalText(in.AssignedTo)
	if err := checkLengths(title, assignee); err != nil {
		return nil, err
	}

	t, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	if title != "" {
		t.Title = title
	}
	if desc := s.optionalText(in.Description); desc != nil {
		t.Description = desc
	}
	if assignee != nil {
		t.AssignedTo = assignee
	}
	if in.Status != "" {
		t.Status = in.Status
	}
	if in.Priority != "" {
		t.Priority = in.Priority
	}
	if in.DueDate != nil {
		t.DueDate = in.DueDate
	}
	t.UpdatedAt = s.now().UTC()

	updated, err := s.repo.Update(ctx, repository.OwnerScope(owner), t)
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	// 取得後に削除された場合
	if !updated {
		return nil, model.NewTaskNotFoundError(id)
	}

	s.record("update")
	return t, nil
}

// Delete は呼び出し元が作成したタスクを削除し、削除したタスクを返す。
func (s *Service) Delete(ctx context.Context, owner, id string) (*model.Task, error) {
	if !validID(id) {
		return nil, model.NewTaskNotFoundError(id)
	}

	t, err := s.repo.Delete(ctx, repository.OwnerScope(owner), id)
	if err != nil {
		return nil, fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	if t == nil {
		return nil, model.NewTaskNotFoundError(id)
	}

	slog.Info("task deleted",
		slog.String("task_id", id),
		slog.String("user_id", owner),
	)
	s.record("delete")
	return t, nil
}

// optionalText はサニタイズ後に空となる値をnilとして返す。
func (s *Service) optionalText(v string) *string {
	cleaned := s.sanitizer.Clean(v)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

func (s *Service) record(op string) {
	if s.recorder != nil {
		s.recorder.RecordTaskOperation(op)
	}
}

// validID はUUID形式かどうかを返す。
// 形式が不正なIDは該当タスクなしとして扱う。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// checkLengths はカラム長を超える値をValidationErrorとして返す。
// VARCHARは文字数で数えるため、バイト数ではなくルーン数で比較する。
func checkLengths(title string, assignee *string) error {
	if utf8.RuneCountInString(title) > model.MaxTaskTitleLength {
		return model.NewValidationError(fmt.Sprintf("Title must be at most %d characters", model.MaxTaskTitleLength))
	}
	if assignee != nil && utf8.RuneCountInString(*assignee) > model.MaxTaskAssigneeLength {
		return model.NewValidationError(fmt.Sprintf("AssignedTo must be at most %d characters", model.MaxTaskAssigneeLength))
	}
	return nil
}

func invalidStatusError(s model.TaskStatus) *model.APIError {
	return model.NewValidationError(fmt.Sprintf("Invalid status: %s (allowed: pending, in-progress, completed)", s))
}

func invalidPriorityError(p model.TaskPriority) *model.APIError {
	return model.NewValidationError(fmt.Sprintf("Invalid priority: %s (allowed: low, medium, high)", p))
}
