package client

import (
	"testing"
	"time"
)

func TestGuard_Check(t *testing.T) {
	g := NewGuard()

	anonymous := NewSession(testClientID)
	user := NewSession(testClientID)
	user.SetToken(makeToken(t, "alice", []string{"user"}, nil))
	clientAdmin := NewSession(testClientID)
	clientAdmin.SetToken(makeToken(t, "ops", nil, []string{"admin"}))
	expired := NewSession(testClientID)
	expired.SetToken(makeToken(t, "admin", []string{"admin"}, nil))
	expired.now = func() time.Time { return time.Now().Add(time.Hour) }

	tests := []struct {
		name    string
		session *Session
		roles   []string
		want    Decision
	}{
		{"未ログイン", anonymous, nil, RedirectUnauthenticated},
		{"未ログイン・ロール指定", anonymous, []string{"admin"}, RedirectUnauthenticated},
		{"nilセッション", nil, nil, RedirectUnauthenticated},
		{"ログイン済み・ロール指定なし", user, nil, Allow},
		{"ロールあり", user, []string{"user"}, Allow},
		{"ロールなし", user, []string{"admin"}, RedirectForbidden},
		{"いずれかのロールあり", user, []string{"admin", "user"}, Allow},
		{"クライアントロールで許可", clientAdmin, []string{"admin"}, Allow},
		{"期限切れ", expired, []string{"admin"}, RedirectUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Check(tt.session, tt.roles...); got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGuard_RedirectPath(t *testing.T) {
	g := NewGuard()

	if got := g.RedirectPath(Allow); got != "" {
		t.Errorf("Allow = %q, want empty", got)
	}
	if got := g.RedirectPath(RedirectUnauthenticated); got != "/unauthorized" {
		t.Errorf("RedirectUnauthenticated = %q", got)
	}
	if got := g.RedirectPath(RedirectForbidden); got != "/forbidden" {
		t.Errorf("RedirectForbidden = %q", got)
	}

	custom := &Guard{UnauthenticatedPath: "/login", ForbiddenPath: "/403"}
	if got := custom.RedirectPath(RedirectUnauthenticated); got != "/login" {
		t.Errorf("custom path = %q", got)
	}
}

func TestDecision_String(t *testing.T) {
	for d, want := range map[Decision]string{
		Allow:                   "allow",
		RedirectUnauthenticated: "unauthenticated",
		RedirectForbidden:       "forbidden",
		Decision(99):            "unknown",
	} {
		if got := d.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", d, got, want)
		}
	}
}
