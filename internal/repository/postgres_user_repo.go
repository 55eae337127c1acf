package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/taskboard/internal/model"
)

const userColumns = `id, keycloak_id, username, email, first_name, last_name, roles, last_login, preferences, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByKeycloakID はKeycloakのsubjectでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByKeycloakID(ctx context.Context, keycloakID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE keycloak_id = $1`,
		keycloakID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by keycloak ID: %w", err)
	}
	return user, nil
}

// RecordLogin はユーザーが存在しなければ作成し、存在すればlast_loginとupdated_atのみを更新する。
// 同時に初回アクセスが来てもkeycloak_idのユニーク制約で1行に収束する。
func (r *PostgresUserRepo) RecordLogin(ctx context.Context, user *model.User) (*model.User, error) {
	prefs, err := encodePreferences(user.Preferences)
	if err != nil {
		return nil, err
	}

	saved, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (keycloak_id) DO UPDATE
		 SET last_login = EXCLUDED.last_login, updated_at = EXCLUDED.updated_at
		 RETURNING `+userColumns,
		user.ID, user.KeycloakID, user.Username, user.Email, user.FirstName, user.LastName,
		rolesArray(user.Roles), user.LastLogin, prefs, user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	return saved, nil
}

// CreateIfAbsent はユーザーが存在しない場合のみ作成する。
func (r *PostgresUserRepo) CreateIfAbsent(ctx context.Context, user *model.User) error {
	prefs, err := encodePreferences(user.Preferences)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (keycloak_id) DO NOTHING`,
		user.ID, user.KeycloakID, user.Username, user.Email, user.FirstName, user.LastName,
		rolesArray(user.Roles), user.LastLogin, prefs, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateProfile はプロフィールを部分更新する。nilのフィールドは既存の値を維持する。
// preferencesは指定された場合に丸ごと置き換える。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, keycloakID string, update model.ProfileUpdate, at time.Time) (*model.User, error) {
	var prefs any
	if update.Preferences != nil {
		encoded, err := encodePreferences(update.Preferences)
		if err != nil {
			return nil, err
		}
		prefs = encoded
	}

	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET first_name = COALESCE($1, first_name),
		     last_name = COALESCE($2, last_name),
		     preferences = COALESCE($3::jsonb, preferences),
		     updated_at = $4
		 WHERE keycloak_id = $5
		 RETURNING `+userColumns,
		update.FirstName, update.LastName, prefs, at, keycloakID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// List は全ユーザーを作成日時の降順で返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Count はユーザー数を返す。
func (r *PostgresUserRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// DeleteWithTasks はユーザーと、そのユーザーが作成した全タスクを同一トランザクションで削除する。
// tasks.created_byにはusersへの外部キーがないため、連鎖削除はここで行う。
func (r *PostgresUserRepo) DeleteWithTasks(ctx context.Context, id string) (*model.User, int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	user, err := scanUser(tx.QueryRowContext(ctx,
		`DELETE FROM users WHERE id = $1 RETURNING `+userColumns,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to delete user: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM tasks WHERE created_by = $1`,
		user.KeycloakID,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to delete tasks of user: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return user, deleted, nil
}

// rolesArray はrolesをtext[]のパラメータに変換する。nilはNULLではなく空配列として書き込む。
func rolesArray(roles []string) any {
	if roles == nil {
		roles = []string{}
	}
	return pq.Array(roles)
}

func encodePreferences(prefs map[string]string) (string, error) {
	if prefs == nil {
		prefs = map[string]string{}
	}
	b, err := json.Marshal(prefs)
	if err != nil {
		return "", fmt.Errorf("failed to encode preferences: %w", err)
	}
	return string(b), nil
}

func scanUser(s rowScanner) (*model.User, error) {
	user := &model.User{}
	var (
		firstName sql.NullString
		lastName  sql.NullString
		prefs     []byte
	)
	err := s.Scan(
		&user.ID, &user.KeycloakID, &user.Username, &user.Email, &firstName, &lastName,
		pq.Array(&user.Roles), &user.LastLogin, &prefs, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if firstName.Valid {
		user.FirstName = &firstName.String
	}
	if lastName.Valid {
		user.LastName = &lastName.String
	}
	if user.Roles == nil {
		user.Roles = []string{}
	}
	user.Preferences = map[string]string{}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &user.Preferences); err != nil {
			return nil, fmt.Errorf("failed to decode preferences: %w", err)
		}
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
