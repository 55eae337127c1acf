// Package client はtaskboard APIのGoクライアントと、クライアント側のセッションガードを提供する。
//
// Sessionが保持するClaimsは署名を検証せずに取り出したもので、画面遷移や表示の
// 出し分けにのみ使う。認可の判断は常にサーバー側で行われる。
package client

import (
	"slices"
	"sync"
	"time"

	"github.com/hitoshi/taskboard/internal/auth"
)

// AdminRole は管理者ロール名。
const AdminRole = "admin"

// Session はクライアントが保持するアクセストークンとそのClaims。
// トークンのローテーション時はSetToken、ログアウト時はClearを呼ぶ。
type Session struct {
	clientID string
	now      func() time.Time

	mu        sync.RWMutex
	token     string
	claims    *auth.Claims
	expiresAt time.Time // ゼロ値は期限なし
}

// NewSession は空のSessionを生成する。
// clientIDはresource_accessからクライアントロールを取り出すのに使う。
func NewSession(clientID string) *Session {
	return &Session{clientID: clientID, now: time.Now}
}

// SetToken はトークンを差し替える。
// デコードできないトークンの場合はセッションを破棄してエラーを返す。
// 期限切れのトークンも保持するが、Authenticatedはfalseを返す。
func (s *Session) SetToken(token string) error {
	claims, exp, err := auth.DecodeUnverified(token, s.clientID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.token, s.claims, s.expiresAt = "", nil, time.Time{}
		return err
	}
	s.token, s.claims, s.expiresAt = token, claims, exp
	return nil
}

// Clear はセッションを破棄する。
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.claims, s.expiresAt = "", nil, time.Time{}
}

// Authenticated はトークンを保持しており、かつexpを過ぎていないかを返す。
func (s *Session) Authenticated() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return false
	}
	return s.expiresAt.IsZero() || s.now().Before(s.expiresAt)
}

// ExpiresAt はトークンのexpを返す。expがない場合や未ログインの場合はfalse。
func (s *Session) ExpiresAt() (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt, !s.expiresAt.IsZero()
}

// Token は保持しているトークンを返す。未ログインの場合は空文字列。
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Claims は保持しているClaimsを返す。未ログインの場合はnil。
func (s *Session) Claims() *auth.Claims {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims
}

// HasRole はレルムロールまたはクライアントロールにroleを持つかを返す。
func (s *Session) HasRole(role string) bool {
	return s.Claims().HasRole(role)
}

// HasAnyRole はrolesのいずれかを持つかを返す。rolesが空の場合はfalse。
func (s *Session) HasAnyRole(roles ...string) bool {
	claims := s.Claims()
	return slices.ContainsFunc(roles, claims.HasRole)
}

// HasAllRoles はrolesのすべてを持つかを返す。未ログインの場合はfalse。
func (s *Session) HasAllRoles(roles ...string) bool {
	claims := s.Claims()
	if claims == nil {
		return false
	}
	for _, role := range roles {
		if !claims.HasRole(role) {
			return false
		}
	}
	return true
}

// IsAdmin はadminロールを持つかを返す。
func (s *Session) IsAdmin() bool {
	return s.HasRole(AdminRole)
}

// Roles はレルムロールとクライアントロールを重複なく返す。
func (s *Session) Roles() []string {
	claims := s.Claims()
	if claims == nil {
		return []string{}
	}
	roles := slices.Concat(claims.Roles, claims.ClientRoles)
	slices.Sort(roles)
	return slices.Compact(roles)
}
