package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier はKeycloakのアクセストークンを検証し、Claimsを取り出す。
//
// 受け付ける署名アルゴリズムはRS256のみで、HS256やnoneなど他のアルゴリズムの
// トークンは形式が正しくてもErrInvalidTokenとする。
// audクレームの検証は同一レルムを複数クライアントで共有する構成のためデフォルトで無効。
// WithAudienceCheck(true)でaudにクライアントIDが含まれることを要求する。
type Verifier struct {
	keys     KeySource
	clientID string
	parser   *jwt.Parser
	observer Observer

	verifyAudience bool
}

// VerifierOption はVerifierのオプション。
type VerifierOption func(*Verifier)

// WithAudienceCheck はaudクレームの検証の有無を設定する。
func WithAudienceCheck(enabled bool) VerifierOption {
	return func(v *Verifier) {
		v.verifyAudience = enabled
	}
}

// WithObserver は検証結果を通知するObserverを設定する。
func WithObserver(o Observer) VerifierOption {
	return func(v *Verifier) {
		if o != nil {
			v.observer = o
		}
	}
}

// NewVerifier はVerifierを生成する。
// keysは通常KeyCacheを渡す。clientIDはクライアントロールの取り出しと、
// audience検証が有効な場合のaudの照合に使う。
func NewVerifier(keys KeySource, clientID string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		keys:     keys,
		clientID: clientID,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(v)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	}
	if v.verifyAudience {
		parserOpts = append(parserOpts, jwt.WithAudience(clientID))
	}
	v.parser = jwt.NewParser(parserOpts...)

	return v
}

// Verify はトークンを検証し、Claimsを返す。
//
// エラーはErrInvalidToken、ErrKeyFetchFailed、ErrMalformedClaimsのいずれかをラップする。
// 公開鍵の取得はアルゴリズムの確認後に行うため、RS256以外のトークンでは鍵を取得しない。
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		v.observer.VerifyResult(OutcomeInvalid)
		return nil, fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}

	payload := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, payload, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		key, err := v.keys.Key(ctx)
		if err != nil {
			if errors.Is(err, ErrKeyFetchFailed) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrKeyFetchFailed, err)
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, ErrKeyFetchFailed) {
			v.observer.VerifyResult(OutcomeKeyUnavailable)
			return nil, err
		}
		v.observer.VerifyResult(OutcomeInvalid)
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, err := decodeClaims(payload, v.clientID)
	if err != nil {
		v.observer.VerifyResult(OutcomeMalformedClaims)
		return nil, err
	}

	v.observer.VerifyResult(OutcomeValid)
	return claims, nil
}

// AudienceCheckEnabled はaudクレームを検証する設定かどうかを返す。
func (v *Verifier) AudienceCheckEnabled() bool {
	return v.verifyAudience
}
