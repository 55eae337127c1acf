package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// maxRealmResponseSize はレルムメタデータのレスポンスサイズ上限（1MB）。
const maxRealmResponseSize = 1 << 20

// realmMetadata はGET /realms/{realm} のレスポンスのうち使用する部分。
type realmMetadata struct {
	Realm     string `json:"realm"`
	PublicKey string `json:"public_key"`
}

// RealmKeyFetcher はKeycloakのレルムメタデータから公開鍵を取得する。
type RealmKeyFetcher struct {
	client   *http.Client
	realmURL string
}

// NewRealmKeyFetcher はRealmKeyFetcherを生成する。
// realmURLは {KEYCLOAK_URL}/realms/{realm} の形式。
func NewRealmKeyFetcher(client *http.Client, realmURL string) *RealmKeyFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &RealmKeyFetcher{client: client, realmURL: realmURL}
}

// FetchKey はレルムメタデータを取得し、public_keyをRSA公開鍵として返す。
// 失敗した場合のエラーはすべてErrKeyFetchFailedをラップする。
func (f *RealmKeyFetcher) FetchKey(ctx context.Context) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.realmURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrKeyFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", ErrKeyFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrKeyFetchFailed, resp.StatusCode)
	}

	var meta realmMetadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRealmResponseSize)).Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: failed to decode realm metadata: %w", ErrKeyFetchFailed, err)
	}

	key, err := ParseRealmPublicKey(meta.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyFetchFailed, err)
	}
	return key, nil
}

// ParseRealmPublicKey はレルムのpublic_keyをRSA公開鍵に変換する。
// Keycloakはヘッダなしのbase64（DER、PKIX）で返すため、PEMで包んでから解析する。
// PEM形式の値もそのまま受け付ける。
func ParseRealmPublicKey(s string) (*rsa.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("public_key is empty")
	}
	if !strings.HasPrefix(s, "-----BEGIN") {
		s = "-----BEGIN PUBLIC KEY-----\n" + s + "\n-----END PUBLIC KEY-----\n"
	}

	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("failed to parse public_key: %w", err)
	}
	return key, nil
}
