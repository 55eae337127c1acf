package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	otherKey    *rsa.PrivateKey
)

// signingKeys はテスト全体で共有するRSA鍵を返す。生成が重いため1回だけ作る。
func signingKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		if testKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
		if otherKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
	})
	return testKey, otherKey
}

// realmPublicKey はKeycloakのpublic_keyと同じ形式（ヘッダなしbase64のPKIX DER）で公開鍵を返す。
func realmPublicKey(t *testing.T, key *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	return base64.StdEncoding.EncodeToString(der)
}

func signRS256(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return token
}

func keycloakClaimsFor(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":                sub,
		"email":              sub + "@example.com",
		"preferred_username": sub,
		"exp":                time.Now().Add(5 * time.Minute).Unix(),
		"iat":                time.Now().Unix(),
		"realm_access":       map[string]any{"roles": []string{"user"}},
		"resource_access": map[string]any{
			"taskboard-backend": map[string]any{"roles": []string{"editor"}},
			"account":           map[string]any{"roles": []string{"manage-account"}},
		},
	}
}

// staticKeys は固定の鍵（またはエラー）を返すKeySource。呼び出し回数を数える。
type staticKeys struct {
	mu    sync.Mutex
	key   *rsa.PublicKey
	err   error
	calls int
}

func (s *staticKeys) Key(context.Context) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.key, s.err
}

func (s *staticKeys) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingObserver はObserverへの通知を記録する。
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	fetches  []error
}

func (o *recordingObserver) VerifyResult(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) KeyFetched(err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetches = append(o.fetches, err)
}
