package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/taskboard/internal/model"
)

const taskColumns = `id, title, description, status, created_by, assigned_to, priority, due_date, created_at, updated_at`

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		task.ID, task.Title, task.Description, string(task.Status), task.CreatedBy,
		task.AssignedTo, string(task.Priority), task.DueDate, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// List はスコープ内のタスクを作成日時の降順で返す。
func (r *PostgresTaskRepo) List(ctx context.Context, scope TaskScope, filter model.TaskFilter) ([]*model.Task, error) {
	conds, args, err := scope.conditions(nil)
	if err != nil {
		return nil, err
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks` + whereClause(conds) + ` ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*model.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// Find はスコープ内の指定IDのタスクを返す。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) Find(ctx context.Context, scope TaskScope, id string) (*model.Task, error) {
	conds, args, err := idScoped(scope, id)
	if err != nil {
		return nil, err
	}

	task, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks`+whereClause(conds),
		args...,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

// Update はスコープ内のタスクの可変フィールドを更新する。
// created_byとcreated_atはSET句に含めない。
func (r *PostgresTaskRepo) Update(ctx context.Context, scope TaskScope, task *model.Task) (bool, error) {
	args := []any{
		task.Title, task.Description, string(task.Status), task.AssignedTo,
		string(task.Priority), task.DueDate, task.UpdatedAt, task.ID,
	}
	conds := []string{fmt.Sprintf("id = $%d", len(args))}
	scopeConds, args, err := scope.conditions(args)
	if err != nil {
		return false, err
	}
	conds = append(conds, scopeConds...)

	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET title = $1, description = $2, status = $3, assigned_to = $4,
		 priority = $5, due_date = $6, updated_at = $7`+whereClause(conds),
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete はスコープ内のタスクを削除し、削除したタスクを返す。
// 対象が存在しない場合はnilを返す。
func (r *PostgresTaskRepo) Delete(ctx context.Context, scope TaskScope, id string) (*model.Task, error) {
	conds, args, err := idScoped(scope, id)
	if err != nil {
		return nil, err
	}

	task, err := scanTask(r.db.QueryRowContext(ctx,
		`DELETE FROM tasks`+whereClause(conds)+` RETURNING `+taskColumns,
		args...,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete task: %w", err)
	}
	return task, nil
}

// Count は全タスク数を返す。
func (r *PostgresTaskRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// CountByStatus はステータスごとのタスク数をステータス名の昇順で返す。
func (r *PostgresTaskRepo) CountByStatus(ctx context.Context) ([]model.StatusCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM tasks GROUP BY status ORDER BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by status: %w", err)
	}
	defer rows.Close()

	counts := make([]model.StatusCount, 0)
	for rows.Next() {
		var sc model.StatusCount
		var status string
		if err := rows.Scan(&status, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		sc.Status = model.TaskStatus(status)
		counts = append(counts, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}
	return counts, nil
}

// idScoped は「id = $1」にスコープ条件を加えたWHERE条件を返す。
func idScoped(scope TaskScope, id string) ([]string, []any, error) {
	conds := []string{"id = $1"}
	scopeConds, args, err := scope.conditions([]any{id})
	if err != nil {
		return nil, nil, err
	}
	return append(conds, scopeConds...), args, nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func scanTask(s rowScanner) (*model.Task, error) {
	task := &model.Task{}
	var (
		description sql.NullString
		assignedTo  sql.NullString
		dueDate     sql.NullTime
		status      string
		priority    string
	)
	err := s.Scan(
		&task.ID, &task.Title, &description, &status, &task.CreatedBy,
		&assignedTo, &priority, &dueDate, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = model.TaskStatus(status)
	task.Priority = model.TaskPriority(priority)
	if description.Valid {
		task.Description = &description.String
	}
	if assignedTo.Valid {
		task.AssignedTo = &assignedTo.String
	}
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	return task, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
