// Package auth はKeycloakが発行したRS256トークンの検証を提供する。
//
// レルムの公開鍵は初回検証時に取得してKeyCacheに保持し、
// 以降の検証はキャッシュした鍵で行う。
package auth

import "errors"

// 検証エラー。errors.Isで判定でき、原因となったエラーをラップして返す。
var (
	// ErrInvalidToken は署名・アルゴリズム・有効期限・構造のいずれかが不正な場合のエラー。
	ErrInvalidToken = errors.New("invalid token")

	// ErrKeyFetchFailed はレルム公開鍵を取得または解析できなかった場合のエラー。
	ErrKeyFetchFailed = errors.New("failed to fetch realm public key")

	// ErrMalformedClaims は署名は正しいがクレームの形式が不正な場合のエラー。
	ErrMalformedClaims = errors.New("malformed token claims")
)
