package task

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
	"github.com/hitoshi/taskboard/internal/security"
)

// --- モック ---

type mockTaskRepo struct {
	createFn func(ctx context.Context, task *model.Task) error
	listFn   func(ctx context.Context, scope repository.TaskScope, filter model.TaskFilter) ([]*model.Task, error)
	findFn   func(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error)
	updateFn func(ctx context.Context, scope repository.TaskScope, task *model.Task) (bool, error)
	deleteFn func(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error)
}

func (m *mockTaskRepo) Create(ctx context.Context, task *model.Task) error {
	if m.createFn != nil {
		return m.createFn(ctx, task)
	}
	return nil
}
func (m *mockTaskRepo) List(ctx context.Context, scope repository.TaskScope, filter model.TaskFilter) ([]*model.Task, error) {
	if m.listFn != nil {
		return m.listFn(ctx, scope, filter)
	}
	return []*model.Task{}, nil
}
func (m *mockTaskRepo) Find(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error) {
	if m.findFn != nil {
		return m.findFn(ctx, scope, id)
	}
	return nil, nil
}
func (m *mockTaskRepo) Update(ctx context.Context, scope repository.TaskScope, task *model.Task) (bool, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, scope, task)
	}
	return true, nil
}
func (m *mockTaskRepo) Delete(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, scope, id)
	}
	return nil, nil
}
func (m *mockTaskRepo) Count(ctx context.Context) (int, error) { return 0, nil }
func (m *mockTaskRepo) CountByStatus(ctx context.Context) ([]model.StatusCount, error) {
	return nil, nil
}

type mockRecorder struct {
	ops []string
}

func (m *mockRecorder) RecordTaskOperation(op string) {
	m.ops = append(m.ops, op)
}

const (
	ownerA = "kc-owner-a"
	ownerB = "kc-owner-b"
	taskID = "6f1c2a7e-3b4d-4e5f-8a9b-0c1d2e3f4a5b"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(repo *mockTaskRepo, rec *mockRecorder) *Service {
	var r OperationRecorder
	if rec != nil {
		r = rec
	}
	s := NewService(repo, security.NewTextSanitizer(), r)
	s.now = func() time.Time { return fixedNow }
	s.newID = func() string { return taskID }
	return s
}

func assertAPIErrorKind(t *testing.T, err error, kind model.ErrorKind) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Kind != kind {
		t.Errorf("Kind = %q, want %q", apiErr.Kind, kind)
	}
}

func existingTask(owner string) *model.Task {
	desc := "original description"
	return &model.Task{
		ID:          taskID,
		Title:       "Original",
		Description: &desc,
		Status:      model.TaskStatusPending,
		CreatedBy:   owner,
		Priority:    model.TaskPriorityMedium,
		CreatedAt:   fixedNow.Add(-time.Hour),
		UpdatedAt:   fixedNow.Add(-time.Hour),
	}
}

// --- Create ---

func TestCreate_AppliesDefaultsAndOwner(t *testing.T) {
	var saved *model.Task
	repo := &mockTaskRepo{
		createFn: func(ctx context.Context, task *model.Task) error {
			saved = task
			return nil
		},
	}
	rec := &mockRecorder{}
	s := newTestService(repo, rec)

	got, err := s.Create(context.Background(), ownerA, model.TaskInput{Title: "  Write report  "})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if saved == nil {
		t.Fatal("repository Create was not called")
	}
	if got.ID != taskID || got.CreatedBy != ownerA {
		t.Errorf("ID/CreatedBy = %q/%q", got.ID, got.CreatedBy)
	}
	if got.Title != "Write report" {
		t.Errorf("Title = %q, want trimmed", got.Title)
	}
	if got.Status != model.TaskStatusPending || got.Priority != model.TaskPriorityMedium {
		t.Errorf("defaults = %s/%s, want pending/medium", got.Status, got.Priority)
	}
	if got.Description != nil || got.AssignedTo != nil {
		t.Error("empty optional fields should be nil")
	}
	if !got.CreatedAt.Equal(fixedNow) || !got.UpdatedAt.Equal(fixedNow) {
		t.Errorf("timestamps = %v/%v, want %v", got.CreatedAt, got.UpdatedAt, fixedNow)
	}
	if len(rec.ops) != 1 || rec.ops[0] != "create" {
		t.Errorf("recorded ops = %v, want [create]", rec.ops)
	}
}

func TestCreate_SanitizesText(t *testing.T) {
	s := newTestService(&mockTaskRepo{}, nil)

	got, err := s.Create(context.Background(), ownerA, model.TaskInput{
		Title:       "<b>Ship</b> it<script>alert(1)</script>",
		Description: "<p>details</p>",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if got.Title != "Ship it" {
		t.Errorf("Title = %q, want %q", got.Title, "Ship it")
	}
	if got.Description == nil || *got.Description != "details" {
		t.Errorf("Description = %v, want details", got.Description)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		in   model.TaskInput
	}{
		{"タイトルなし", model.TaskInput{}},
		{"空白のみのタイトル", model.TaskInput{Title: "   "}},
		{"タグのみのタイトル", model.TaskInput{Title: "<br>"}},
		{"不正なステータス", model.TaskInput{Title: "x", Status: "done"}},
		{"不正な優先度", model.TaskInput{Title: "x", Priority: "urgent"}},
		{"長すぎるタイトル", model.TaskInput{Title: strings.Repeat("x", model.MaxTaskTitleLength+1)}},
		{"長すぎる担当者", model.TaskInput{Title: "x", AssignedTo: strings.Repeat("y", model.MaxTaskAssigneeLength+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockTaskRepo{
				createFn: func(ctx context.Context, task *model.Task) error {
					t.Fatal("repository should not be called")
					return nil
				},
			}
			s := newTestService(repo, nil)

			_, err := s.Create(context.Background(), ownerA, tt.in)
			assertAPIErrorKind(t, err, model.KindValidation)
		})
	}
}

func TestCreate_RepositoryError_IsWrapped(t *testing.T) {
	dbErr := errors.New("connection reset")
	repo := &mockTaskRepo{
		createFn: func(ctx context.Context, task *model.Task) error { return dbErr },
	}
	rec := &mockRecorder{}
	s := newTestService(repo, rec)

	_, err := s.Create(context.Background(), ownerA, model.TaskInput{Title: "x"})
	if !errors.Is(err, dbErr) {
		t.Errorf("error = %v, want wrapping %v", err, dbErr)
	}
	if len(rec.ops) != 0 {
		t.Errorf("failed create should not be recorded: %v", rec.ops)
	}
}

// --- List ---

func TestList_UsesOwnerScope(t *testing.T) {
	var gotScope repository.TaskScope
	var gotFilter model.TaskFilter
	repo := &mockTaskRepo{
		listFn: func(ctx context.Context, scope repository.TaskScope, filter model.TaskFilter) ([]*model.Task, error) {
			gotScope = scope
			gotFilter = filter
			return []*model.Task{existingTask(ownerA)}, nil
		},
	}
	s := newTestService(repo, nil)

	tasks, err := s.List(context.Background(), ownerA, model.TaskFilter{Status: model.TaskStatusCompleted})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("len(tasks) = %d, want 1", len(tasks))
	}
	if gotScope.IsAdmin() || gotScope.Owner() != ownerA {
		t.Errorf("scope = %+v, want owner scope for %s", gotScope, ownerA)
	}
	if gotFilter.Status != model.TaskStatusCompleted {
		t.Errorf("filter = %+v", gotFilter)
	}
}

func TestList_InvalidStatusFilter(t *testing.T) {
	s := newTestService(&mockTaskRepo{}, nil)

	_, err := s.List(context.Background(), ownerA, model.TaskFilter{Status: "archived"})
	assertAPIErrorKind(t, err, model.KindValidation)
}

func TestListAll_Scopes(t *testing.T) {
	var scopes []repository.TaskScope
	repo := &mockTaskRepo{
		listFn: func(ctx context.Context, scope repository.TaskScope, filter model.TaskFilter) ([]*model.Task, error) {
			scopes = append(scopes, scope)
			return []*model.Task{}, nil
		},
	}
	s := newTestService(repo, nil)

	if _, err := s.ListAll(context.Background(), model.TaskFilter{}, ""); err != nil {
		t.Fatalf("ListAll() error: %v", err)
	}
	if _, err := s.ListAll(context.Background(), model.TaskFilter{}, ownerB); err != nil {
		t.Fatalf("ListAll(owner) error: %v", err)
	}

	if !scopes[0].IsAdmin() {
		t.Error("ListAll without owner should use admin scope")
	}
	if scopes[1].IsAdmin() || scopes[1].Owner() != ownerB {
		t.Errorf("ListAll with owner scope = %+v", scopes[1])
	}
}

// --- Get ---

func TestGet_NonOwner_IsNotFound(t *testing.T) {
	repo := &mockTaskRepo{
		findFn: func(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error) {
			// 所有者スコープで絞り込まれるため、他人のタスクは見つからない
			if scope.Owner() == ownerA {
				return existingTask(ownerA), nil
			}
			return nil, nil
		},
	}
	s := newTestService(repo, nil)

	if _, err := s.Get(context.Background(), ownerA, taskID); err != nil {
		t.Fatalf("owner Get() error: %v", err)
	}

	_, err := s.Get(context.Background(), ownerB, taskID)
	assertAPIErrorKind(t, err, model.KindNotFound)
}

func TestGet_InvalidID_IsNotFoundWithoutQuery(t *testing.T) {
	repo := &mockTaskRepo{
		findFn: func(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error) {
			t.Fatal("repository should not be called for malformed id")
			return nil, nil
		},
	}
	s := newTestService(repo, nil)

	_, err := s.Get(context.Background(), ownerA, "not-a-uuid")
	assertAPIErrorKind(t, err, model.KindNotFound)
}

// --- Update ---

func TestUpdate_PartialFieldsOnly(t *testing.T) {
	var saved *model.Task
	repo := &mockTaskRepo{
		findFn: func(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error) {
			return existingTask(ownerA), nil
		},
		updateFn: func(ctx context.Context, scope repository.TaskScope, task *model.Task) (bool, error) {
			if scope.Owner() != ownerA {
				t.Errorf("update scope owner = %q", scope.Owner())
			}
			saved = task
			return true, nil
		},
	}
	rec := &mockRecorder{}
	s := newTestService(repo, rec)

	got, err := s.Update(context.Background(), ownerA, taskID, model.TaskInput{Status: model.TaskStatusCompleted})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	if saved != got {
		t.Error("returned task should be the saved task")
	}
	if got.Status != model.TaskStatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	if got.Title != "Original" || got.Description == nil || *got.Description != "original description" {
		t.Errorf("unchanged fields were modified: %+v", got)
	}
	if got.Priority != model.TaskPriorityMedium {
		t.Errorf("Priority = %s, want medium", got.Priority)
	}
	if got.CreatedBy != ownerA {
		t.Errorf("CreatedBy = %q, want %q", got.CreatedBy, ownerA)
	}
	if !got.UpdatedAt.Equal(fixedNow) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, fixedNow)
	}
	if len(rec.ops) != 1 || rec.ops[0] != "update" {
		t.Errorf("recorded ops = %v, want [update]", rec.ops)
	}
}

func TestUpdate_AllFields(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockTaskRepo{
		findFn: func(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error) {
			return existingTask(ownerA), nil
		},
	}
	s := newTestService(repo, nil)

	got, err := s.Update(context.Background(), ownerA, taskID, model.TaskInput{
		Title:       "New title",
		Description: "New description",
		Status:      model.TaskStatusInProgress,
		AssignedTo:  "kc-helper",
		Priority:    model.TaskPriorityHigh,
		DueDate:     &due,
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if got.Title != "New title" || *got.Description != "New description" {
		t.Errorf("text fields = %q/%q", got.Title, *got.Description)
	}
	if got.AssignedTo == nil || *got.AssignedTo != "kc-helper" {
		t.Errorf("AssignedTo = %v", got.AssignedTo)
	}
	if got.Status != model.TaskStatusInProgress || got.Priority != model.TaskPriorityHigh {
		t.Errorf("status/priority = %s/%s", got.Status, got.Priority)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, due)
	}
}

func TestUpdate_NonOwner_IsNotFound(t *testing.T) {
	repo := &mockTaskRepo{
		findFn: func(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error) {
			return nil, nil
		},
		updateFn: func(ctx context.Context, scope repository.TaskScope, task *model.Task) (bool, error) {
			t.Fatal("update should not be called")
			return false, nil
		},
	}
	s := newTestService(repo, nil)

	_, err := s.Update(context.Background(), ownerB, taskID, model.TaskInput{Title: "hijack"})
	assertAPIErrorKind(t, err, model.KindNotFound)
}

func TestUpdate_InvalidEnum_IsValidationError(t *testing.T) {
	s := newTestService(&mockTaskRepo{}, nil)

	_, err := s.Update(context.Background(), ownerA, taskID, model.TaskInput{Priority: "critical"})
	assertAPIErrorKind(t, err, model.KindValidation)
}

func TestUpdate_DeletedConcurrently_IsNotFound(t *testing.T) {
	repo := &mockTaskRepo{
		findFn: func(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error) {
			return existingTask(ownerA), nil
		},
		updateFn: func(ctx context.Context, scope repository.TaskScope, task *model.Task) (bool, error) {
			return false, nil
		},
	}
	s := newTestService(repo, nil)

	_, err := s.Update(context.Background(), ownerA, taskID, model.TaskInput{Title: "x"})
	assertAPIErrorKind(t, err, model.KindNotFound)
}

// --- Delete ---

func TestDelete_Owner(t *testing.T) {
	repo := &mockTaskRepo{
		deleteFn: func(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error) {
			if scope.Owner() != ownerA {
				return nil, nil
			}
			return existingTask(ownerA), nil
		},
	}
	rec := &mockRecorder{}
	s := newTestService(repo, rec)

	got, err := s.Delete(context.Background(), ownerA, taskID)
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if got.ID != taskID {
		t.Errorf("deleted ID = %q", got.ID)
	}
	if len(rec.ops) != 1 || rec.ops[0] != "delete" {
		t.Errorf("recorded ops = %v, want [delete]", rec.ops)
	}

	_, err = s.Delete(context.Background(), ownerB, taskID)
	assertAPIErrorKind(t, err, model.KindNotFound)
}

func TestDelete_RepositoryError_IsWrapped(t *testing.T) {
	repo := &mockTaskRepo{
		deleteFn: func(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error) {
			return nil, repository.ErrUnscopedQuery
		},
	}
	s := newTestService(repo, nil)

	_, err := s.Delete(context.Background(), "", taskID)
	if !errors.Is(err, repository.ErrUnscopedQuery) {
		t.Errorf("error = %v, want ErrUnscopedQuery", err)
	}
}

func TestCreate_LengthCountsCharacters(t *testing.T) {
	var saved *model.Task
	repo := &mockTaskRepo{
		createFn: func(ctx context.Context, task *model.Task) error {
			saved = task
			return nil
		},
	}
	s := newTestService(repo, nil)

	// マルチバイト文字でも文字数が上限以内なら受け付ける
	title := strings.Repeat("あ", model.MaxTaskTitleLength)
	if _, err := s.Create(context.Background(), ownerA, model.TaskInput{Title: title}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if saved == nil || saved.Title != title {
		t.Error("title at the limit should be stored unchanged")
	}
}

func TestUpdate_TooLongFields_AreValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		in   model.TaskInput
	}{
		{"タイトル", model.TaskInput{Title: strings.Repeat("x", model.MaxTaskTitleLength+1)}},
		{"担当者", model.TaskInput{AssignedTo: strings.Repeat("y", model.MaxTaskAssigneeLength+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockTaskRepo{
				findFn: func(ctx context.Context, scope repository.TaskScope, id string) (*model.Task, error) {
					return existingTask(ownerA), nil
				},
				updateFn: func(ctx context.Context, scope repository.TaskScope, task *model.Task) (bool, error) {
					t.Fatal("repository update should not be called")
					return false, nil
				},
			}
			s := newTestService(repo, nil)

			_, err := s.Update(context.Background(), ownerA, taskID, tt.in)
			assertAPIErrorKind(t, err, model.KindValidation)
		})
	}
}
