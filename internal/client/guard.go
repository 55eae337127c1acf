package client

// Decision はGuard.Checkの判定結果。
type Decision int

const (
	// Allow は画面の表示を許可する。
	Allow Decision = iota
	// RedirectUnauthenticated はセッションがないため未認証画面へ遷移させる。
	RedirectUnauthenticated
	// RedirectForbidden は必要なロールがないため権限エラー画面へ遷移させる。
	RedirectForbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectUnauthenticated:
		return "unauthenticated"
	case RedirectForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// 遷移先のデフォルト
const (
	DefaultUnauthenticatedPath = "/unauthorized"
	DefaultForbiddenPath       = "/forbidden"
)

// Guard は保護された画面への遷移可否をセッションから判定する。
// サーバー側のRequireAuthenticated・RequireRoleと同じ規則で判定するが、
// 表示の出し分けのためのもので、アクセス制御の役割は持たない。
type Guard struct {
	UnauthenticatedPath string
	ForbiddenPath       string
}

// NewGuard はデフォルトの遷移先を持つGuardを生成する。
func NewGuard() *Guard {
	return &Guard{
		UnauthenticatedPath: DefaultUnauthenticatedPath,
		ForbiddenPath:       DefaultForbiddenPath,
	}
}

// Check はセッションで画面を表示してよいかを判定する。
// rolesを指定した場合は、そのいずれかをレルムロールまたはクライアントロールに持つ必要がある。
func (g *Guard) Check(session *Session, roles ...string) Decision {
	if !session.Authenticated() {
		return RedirectUnauthenticated
	}
	if len(roles) > 0 && !session.HasAnyRole(roles...) {
		return RedirectForbidden
	}
	return Allow
}

// RedirectPath は判定結果に対応する遷移先を返す。Allowの場合は空文字列。
func (g *Guard) RedirectPath(d Decision) string {
	switch d {
	case RedirectUnauthenticated:
		return g.UnauthenticatedPath
	case RedirectForbidden:
		return g.ForbiddenPath
	default:
		return ""
	}
}
