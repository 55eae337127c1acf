package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラー内のpanicを回復し、500の統一エラーレスポンスに変換する。
//
// ロギングミドルウェアの内側に置く。panicはリクエストログにも panic=true として残る。
// レスポンスの書き込みが始まっていた場合はボディを追記せず、接続をそのまま終える。
// http.ErrAbortHandlerはnet/httpに処理を任せるため再度panicさせる。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				attrs := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				}
				if info, ok := r.Context().Value(requestLogInfoKey).(*requestLogInfo); ok {
					info.panicked = true
					if info.userID != "" {
						attrs = append(attrs, slog.String("user_id", info.userID))
					}
				}
				slog.Error("panic recovered", attrs...)

				if sr, ok := w.(*statusRecorder); ok && sr.written {
					return
				}
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
