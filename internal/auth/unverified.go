package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DecodeUnverified は署名を検証せずにトークンのペイロードをClaimsに変換し、expの時刻も返す。
// expがない場合はゼロ値。期限切れでもエラーにはしない。
// クライアント側で表示の出し分けに使うためのもので、認可の判断には使わない。
func DecodeUnverified(token, clientID string) (*Claims, time.Time, error) {
	payload := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, payload); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	exp, err := payload.GetExpirationTime()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %w", ErrMalformedClaims, err)
	}
	claims, err := decodeClaims(payload, clientID)
	if err != nil {
		return nil, time.Time{}, err
	}
	if exp == nil {
		return claims, time.Time{}, nil
	}
	return claims, exp.Time, nil
}
