// Package model はドメインモデルを定義する。
package model

import "fmt"

// ErrorKind はAPIエラーの分類を表す。
// レスポンスボディの error フィールドにそのまま出力される。
type ErrorKind string

// 定義済みエラー種別
const (
	KindUnauthenticated     ErrorKind = "Unauthenticated"
	KindForbidden           ErrorKind = "Forbidden"
	KindValidation          ErrorKind = "ValidationError"
	KindNotFound            ErrorKind = "NotFound"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindTooManyRequests     ErrorKind = "TooManyRequests"
	KindInternal            ErrorKind = "InternalError"
)

// APIError は統一エラーフォーマットを表す。
// サービス層が想定内の失敗を返す際に使用し、ハンドラーでHTTPステータスに変換される。
type APIError struct {
	Kind    ErrorKind // エラー種別
	Message string    // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError(message string) *APIError {
	return &APIError{
		Kind:    KindUnauthenticated,
		Message: message,
	}
}

// NewForbiddenError は必要なロールを持たない場合のエラーを生成する。
func NewForbiddenError(role string) *APIError {
	return &APIError{
		Kind:    KindForbidden,
		Message: fmt.Sprintf("Required role: %s", role),
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Message: message,
	}
}

// NewTaskNotFoundError はタスクが存在しない、または呼び出し元の所有でない場合のエラーを生成する。
// 所有者以外からのアクセスも存在しない扱いとし、タスクの存在を漏らさない。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("Task not found: %s", taskID),
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("User not found: %s", userID),
	}
}

// NewUpstreamUnavailableError はIdPなど外部依存が利用できない場合のエラーを生成する。
func NewUpstreamUnavailableError(message string) *APIError {
	return &APIError{
		Kind:    KindUpstreamUnavailable,
		Message: message,
	}
}

// NewTooManyRequestsError はレート制限を超えた場合のエラーを生成する。
func NewTooManyRequestsError() *APIError {
	return &APIError{
		Kind:    KindTooManyRequests,
		Message: "Too many requests. Please try again later.",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Kind:    KindInternal,
		Message: "An unexpected error occurred. Please try again later.",
	}
}
