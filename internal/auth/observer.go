package auth

import "time"

// 検証結果の分類。メトリクスのラベル値として使用する。
const (
	OutcomeValid           = "valid"
	OutcomeInvalid         = "invalid"
	OutcomeMalformedClaims = "malformed_claims"
	OutcomeKeyUnavailable  = "key_unavailable"
)

// Observer は検証と鍵取得の結果を受け取る。
// metrics.Collectorが実装する。
type Observer interface {
	VerifyResult(outcome string)
	KeyFetched(err error, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) VerifyResult(string)             {}
func (nopObserver) KeyFetched(error, time.Duration) {}
