package repository

import "fmt"

// TaskScope はタスククエリの所有者スコープを表す。
//
// 一般ユーザーのタスク操作では、所有者によるWHERE条件がそのままアクセス制御になる。
// 条件の付け忘れで他人のタスクが見えることのないよう、タスクのSQLは
// 必ずこの型を経由して組み立てる。ゼロ値は無効で、ErrUnscopedQueryになる。
type TaskScope struct {
	owner string
	admin bool
}

// OwnerScope は指定した所有者（Keycloakのsubject）のタスクのみを対象とするスコープを返す。
func OwnerScope(owner string) TaskScope {
	return TaskScope{owner: owner}
}

// AdminScope は全所有者のタスクを対象とするスコープを返す。管理者用の操作でのみ使用する。
func AdminScope() TaskScope {
	return TaskScope{admin: true}
}

// Owner はスコープの所有者を返す。AdminScopeでは空文字を返す。
func (s TaskScope) Owner() string {
	return s.owner
}

// IsAdmin は全所有者を対象とするスコープかどうかを返す。
func (s TaskScope) IsAdmin() bool {
	return s.admin
}

// conditions はスコープに対応するWHERE条件を返し、プレースホルダの値をargsに追加する。
func (s TaskScope) conditions(args []any) ([]string, []any, error) {
	if s.admin {
		return nil, args, nil
	}
	if s.owner == "" {
		return nil, nil, ErrUnscopedQuery
	}
	args = append(args, s.owner)
	return []string{fmt.Sprintf("created_by = $%d", len(args))}, args, nil
}
