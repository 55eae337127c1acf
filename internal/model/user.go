// Package model はドメインモデルを定義する。
package model

import "time"

// User はアプリケーション側に保持するユーザープロフィールを表す。
// KeycloakIDはIdPのsubjectであり、タスクの所有者キーとしても使われる。
type User struct {
	ID          string            `json:"id"`
	KeycloakID  string            `json:"keycloakId"`
	Username    string            `json:"username"`
	Email       string            `json:"email"`
	FirstName   *string           `json:"firstName,omitempty"`
	LastName    *string           `json:"lastName,omitempty"`
	Roles       []string          `json:"roles"`
	LastLogin   time.Time         `json:"lastLogin"`
	Preferences map[string]string `json:"preferences"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// MaxNameLength はfirst_name・last_nameの最大文字数。
const MaxNameLength = 255

// ProfileUpdate はプロフィール更新の入力を表す。
// nilのフィールドは変更しない。
type ProfileUpdate struct {
	FirstName   *string
	LastName    *string
	Preferences map[string]string
}
