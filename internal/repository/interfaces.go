// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/taskboard/internal/model"
)

// ErrUnscopedQuery は所有者を持たないTaskScopeでタスクを操作しようとした場合のエラー。
// ゼロ値のTaskScopeは常にこのエラーになる。
var ErrUnscopedQuery = errors.New("task query has no owner scope")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByKeycloakID はKeycloakのsubjectでユーザーを取得する。見つからない場合はnilを返す。
	FindByKeycloakID(ctx context.Context, keycloakID string) (*model.User, error)

	// RecordLogin はユーザーが存在しなければ作成し、存在すればlast_loginのみを更新する。
	// 既存ユーザーのusername・email・rolesは上書きしない。
	RecordLogin(ctx context.Context, user *model.User) (*model.User, error)

	// CreateIfAbsent はユーザーが存在しない場合のみ作成する。
	CreateIfAbsent(ctx context.Context, user *model.User) error

	// UpdateProfile はプロフィールを部分更新する。nilのフィールドは変更しない。
	// 対象が存在しない場合はnilを返す。
	UpdateProfile(ctx context.Context, keycloakID string, update model.ProfileUpdate, at time.Time) (*model.User, error)

	// List は全ユーザーを作成日時の降順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// Count はユーザー数を返す。
	Count(ctx context.Context) (int, error)

	// DeleteWithTasks はユーザーと、そのユーザーが作成した全タスクを同一トランザクションで削除する。
	// ユーザーが存在しない場合はnilと0を返す。
	DeleteWithTasks(ctx context.Context, id string) (*model.User, int64, error)
}

// TaskRepository はタスクデータの永続化インターフェース。
// 作成以外の操作は必ずTaskScopeを受け取り、所有者による絞り込みを一箇所に集約する。
type TaskRepository interface {
	// Create はタスクを作成する。CreatedByはここでのみ書き込まれる。
	Create(ctx context.Context, task *model.Task) error

	// List はスコープ内のタスクを作成日時の降順で返す。
	List(ctx context.Context, scope TaskScope, filter model.TaskFilter) ([]*model.Task, error)

	// Find はスコープ内の指定IDのタスクを返す。見つからない場合はnilを返す。
	Find(ctx context.Context, scope TaskScope, id string) (*model.Task, error)

	// Update はスコープ内のタスクの可変フィールドを更新する。
	// 対象が存在しない場合はfalseを返す。created_byは更新しない。
	Update(ctx context.Context, scope TaskScope, task *model.Task) (bool, error)

	// Delete はスコープ内のタスクを削除し、削除したタスクを返す。
	// 対象が存在しない場合はnilを返す。
	Delete(ctx context.Context, scope TaskScope, id string) (*model.Task, error)

	// Count は全タスク数を返す。
	Count(ctx context.Context) (int, error)

	// CountByStatus はステータスごとのタスク数を返す。
	CountByStatus(ctx context.Context) ([]model.StatusCount, error)
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}
