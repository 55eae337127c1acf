// Package user はユーザープロフィールと管理者向け操作のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
	"github.com/hitoshi/taskboard/internal/security"
)

// DeletionRecorder はユーザーの連鎖削除を記録するインターフェース。
// metrics.Collectorが実装する。
type DeletionRecorder interface {
	RecordCascadeDelete(tasks int64)
}

// Service はユーザー管理のサービス層。
type Service struct {
	users     repository.UserRepository
	tasks     repository.TaskRepository
	sanitizer security.TextSanitizer
	recorder  DeletionRecorder
	now       func() time.Time
	newID     func() string
}

// NewService はServiceの新しいインスタンスを生成する。
// recorderはnilでもよい。
func NewService(
	users repository.UserRepository,
	tasks repository.TaskRepository,
	sanitizer security.TextSanitizer,
	recorder DeletionRecorder,
) *Service {
	return &Service{
		users:     users,
		tasks:     tasks,
		sanitizer: sanitizer,
		recorder:  recorder,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// GetProfile は呼び出し元のプロフィールを返す。
// 初回アクセス時はClaimsからユーザーを作成し、既存ユーザーはlast_loginのみ更新する。
func (s *Service) GetProfile(ctx context.Context, claims *auth.Claims) (*model.User, error) {
	u, err := s.users.RecordLogin(ctx, s.newUser(claims))
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return u, nil
}

// UpdateProfile は呼び出し元のプロフィールを部分更新する。
// ユーザーが存在しない場合は先に作成する。空の名前は変更しない。
func (s *Service) UpdateProfile(ctx context.Context, claims *auth.Claims, update model.ProfileUpdate) (*model.User, error) {
	cleaned := model.ProfileUpdate{
		FirstName: s.optionalText(update.FirstName),
		LastName:  s.optionalText(update.LastName),
	}
	for field, v := range map[string]*string{"FirstName": cleaned.FirstName, "LastName": cleaned.LastName} {
		if v != nil && utf8.RuneCountInString(*v) > model.MaxNameLength {
			return nil, model.NewValidationError(fmt.Sprintf("%s must be at most %d characters", field, model.MaxNameLength))
		}
	}
	if update.Preferences != nil {
		cleaned.Preferences = make(map[string]string, len(update.Preferences))
		for k, v := range update.Preferences {
			key := s.sanitizer.Clean(k)
			if key == "" {
				continue
			}
			cleaned.Preferences[key] = s.sanitizer.Clean(v)
		}
	}

	if err := s.users.CreateIfAbsent(ctx, s.newUser(claims)); err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	u, err := s.users.UpdateProfile(ctx, claims.Subject, cleaned, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	// 作成直後に管理者が削除した場合
	if u == nil {
		return nil, model.NewUserNotFoundError(claims.Subject)
	}
	return u, nil
}

// ListUsers は全ユーザーを作成日時の降順で返す。
func (s *Service) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// DeleteUser はユーザーと、そのユーザーが作成した全タスクを削除する。
// 削除は1トランザクションで行い、削除したユーザーを返す。
func (s *Service) DeleteUser(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewUserNotFoundError(id)
	}

	u, deletedTasks, err := s.users.DeleteWithTasks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError(id)
	}

	slog.Info("user deleted",
		slog.String("user_id", u.ID),
		slog.String("keycloak_id", u.KeycloakID),
		slog.Int64("deleted_tasks", deletedTasks),
	)
	if s.recorder != nil {
		s.recorder.RecordCascadeDelete(deletedTasks)
	}
	return u, nil
}

// Stats はユーザー数、タスク数、ステータス別タスク数を返す。
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	totalUsers, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー数の取得に失敗しました: %w", err)
	}
	totalTasks, err := s.tasks.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("タスク数の取得に失敗しました: %w", err)
	}
	byStatus, err := s.tasks.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("ステータス別タスク数の取得に失敗しました: %w", err)
	}
	if byStatus == nil {
		byStatus = []model.StatusCount{}
	}

	return &model.Stats{
		TotalUsers:    totalUsers,
		TotalTasks:    totalTasks,
		TasksByStatus: byStatus,
	}, nil
}

// newUser はClaimsから新規作成用のユーザーを組み立てる。
func (s *Service) newUser(claims *auth.Claims) *model.User {
	now := s.now().UTC()
	roles := make([]string, len(claims.Roles))
	copy(roles, claims.Roles)
	return &model.User{
		ID:          s.newID(),
		KeycloakID:  claims.Subject,
		Username:    claims.Username,
		Email:       claims.Email,
		Roles:       roles,
		LastLogin:   now,
		Preferences: map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *Service) optionalText(v *string) *string {
	if v == nil {
		return nil
	}
	cleaned := s.sanitizer.Clean(*v)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
