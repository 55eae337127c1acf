package model

import "time"

// TaskStatus はタスクの進捗状態を表す。
type TaskStatus string

const (
	// TaskStatusPending は未着手状態。
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress は作業中状態。
	TaskStatusInProgress TaskStatus = "in-progress"
	// TaskStatusCompleted は完了状態。
	TaskStatusCompleted TaskStatus = "completed"
)

// Valid は定義済みのステータスかどうかを返す。
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// TaskPriority はタスクの優先度を表す。
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Valid は定義済みの優先度かどうかを返す。
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// 文字列カラムの最大文字数。tasksテーブルのVARCHAR定義と一致させる。
const (
	MaxTaskTitleLength    = 500
	MaxTaskAssigneeLength = 255
)

// Task はユーザーが作成したタスクを表す。
// CreatedByは作成時に一度だけ設定され、以後変更されない。
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description *string      `json:"description,omitempty"`
	Status      TaskStatus   `json:"status"`
	CreatedBy   string       `json:"createdBy"`
	AssignedTo  *string      `json:"assignedTo,omitempty"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *time.Time   `json:"dueDate,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// TaskInput はタスク作成・更新の入力を表す。
// 更新時は空でないフィールドのみ反映する。
type TaskInput struct {
	Title       string
	Description string
	Status      TaskStatus
	AssignedTo  string
	Priority    TaskPriority
	DueDate     *time.Time
}

// TaskFilter はタスク一覧の絞り込み条件。
// ゼロ値は条件なしを意味する。
type TaskFilter struct {
	Status TaskStatus
}

// StatusCount はステータスごとのタスク件数。
type StatusCount struct {
	Status TaskStatus `json:"status"`
	Count  int        `json:"count"`
}

// Stats は管理者向けの集計結果。
type Stats struct {
	TotalUsers    int           `json:"totalUsers"`
	TotalTasks    int           `json:"totalTasks"`
	TasksByStatus []StatusCount `json:"tasksByStatus"`
}
