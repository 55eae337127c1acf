// Package middleware はHTTPミドルウェアを提供する。
//
// 認可ゲートは RequireAuthenticated と RequireRole の2段で構成する。
// RequireAuthenticated はBearerトークンを検証してClaimsをコンテキストに格納し、
// RequireRole はそのClaimsに指定ロールが含まれるかを確認する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey は検証済みClaimsを格納するためのキー。
var claimsContextKey = contextKey("claims")

// TokenVerifier はトークン検証に必要なインターフェース。
// auth.Verifierが実装する。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// RequireAuthenticated はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
//
// ヘッダーがない、Bearer形式でない、トークンが空の場合はverifierを呼ばずに401を返す。
// 検証失敗は401、公開鍵を取得できない場合は503を返す。
// 成功時はClaimsをリクエストコンテキストに格納する。
func RequireAuthenticated(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteErrorResponse(w, model.NewUnauthenticatedError("No token provided"))
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrKeyFetchFailed) {
					slog.Error("realm public key unavailable",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
					WriteErrorResponse(w, model.NewUpstreamUnavailableError("Identity provider is unavailable"))
					return
				}
				slog.Debug("token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, model.NewUnauthenticatedError(rejectionMessage(err)))
				return
			}

			setRequestUser(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole はコンテキストのClaimsに指定ロールが含まれることを要求するミドルウェアを返す。
// レルムロールとクライアントロールのどちらに含まれていてもよい。
// RequireAuthenticatedの後に配置する。
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, model.NewUnauthenticatedError("No user information found"))
				return
			}
			if !claims.HasRole(role) {
				slog.Info("role check failed",
					slog.String("user_id", claims.Subject),
					slog.String("required_role", role),
				)
				WriteErrorResponse(w, model.NewForbiddenError(role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext はリクエストコンテキストから検証済みClaimsを取得する。
// RequireAuthenticatedを通過したリクエストでのみ値を持つ。
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}

// ContextWithClaims はコンテキストにClaimsを格納する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// bearerToken はAuthorizationヘッダーからトークン部分を取り出す。
// スキーム名の大文字小文字は区別しない。
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func rejectionMessage(err error) string {
	if errors.Is(err, auth.ErrMalformedClaims) {
		return "Token claims are malformed"
	}
	return "Invalid or expired token"
}
