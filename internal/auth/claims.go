package auth

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Claims は検証済みトークンから取り出したセッション情報。
// 1リクエストの間だけ保持し、生成後は変更しない。
type Claims struct {
	Subject     string   `json:"sub"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	ClientRoles []string `json:"clientRoles"`
}

// HasRole はレルムロールまたはクライアントロールのいずれかにroleが含まれるかを返す。
func (c *Claims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Roles, role) || slices.Contains(c.ClientRoles, role)
}

// keycloakClaims はKeycloakのアクセストークンのペイロードのうち、使用する部分。
type keycloakClaims struct {
	Subject           string                     `json:"sub"`
	Email             string                     `json:"email"`
	Name              string                     `json:"name"`
	PreferredUsername string                     `json:"preferred_username"`
	RealmAccess       *roleSet                   `json:"realm_access"`
	ResourceAccess    map[string]json.RawMessage `json:"resource_access"`
}

type roleSet struct {
	Roles []string `json:"roles"`
}

// decodeClaims はトークンのペイロードをClaimsに変換する。
// subは必須。realm_access・resource_access[clientID]は省略可能だが、存在する場合は形式を検証する。
// clientRolesはresource_access[clientID].rolesから取り出し、他のクライアントのエントリは読まない。
func decodeClaims(payload map[string]any, clientID string) (*Claims, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedClaims, err)
	}

	var kc keycloakClaims
	if err := json.Unmarshal(raw, &kc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedClaims, err)
	}
	if kc.Subject == "" {
		return nil, fmt.Errorf("%w: sub claim is missing", ErrMalformedClaims)
	}

	claims := &Claims{
		Subject:     kc.Subject,
		Email:       kc.Email,
		Name:        kc.Name,
		Username:    kc.PreferredUsername,
		Roles:       []string{},
		ClientRoles: []string{},
	}
	if claims.Name == "" {
		claims.Name = kc.PreferredUsername
	}
	if kc.RealmAccess != nil && kc.RealmAccess.Roles != nil {
		claims.Roles = kc.RealmAccess.Roles
	}
	if entry, ok := kc.ResourceAccess[clientID]; ok {
		var client roleSet
		if err := json.Unmarshal(entry, &client); err != nil {
			return nil, fmt.Errorf("%w: resource_access.%s: %w", ErrMalformedClaims, clientID, err)
		}
		if client.Roles != nil {
			claims.ClientRoles = client.Roles
		}
	}

	return claims, nil
}
