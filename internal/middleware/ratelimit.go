package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/taskboard/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	PerMinute       int           // ユーザーごとの1分あたりのリクエスト数。0以下で無効
	Burst           int           // バーストサイズ。0以下の場合はPerMinuteと同じ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig は指定された1分あたりのリクエスト数でデフォルト設定を返す。
func DefaultRateLimiterConfig(perMinute int) RateLimiterConfig {
	return RateLimiterConfig{
		PerMinute:       perMinute,
		Burst:           perMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はClaimsのsubjectごとのレート制限を管理する。
// 認可ゲートとは独立しており、RequireAuthenticatedの後に配置する。
type RateLimiter struct {
	config RateLimiterConfig
	limit  rate.Limit

	mu       sync.Mutex
	limiters map[string]*userLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// 有効な場合はバックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Burst <= 0 {
		config.Burst = config.PerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	rl := &RateLimiter{
		config:   config,
		limit:    rate.Limit(float64(config.PerMinute) / 60.0),
		limiters: make(map[string]*userLimiter),
		stopCh:   make(chan struct{}),
	}

	if rl.Enabled() {
		go rl.cleanupLoop()
	}

	return rl
}

// Enabled はレート制限が有効かどうかを返す。
func (rl *RateLimiter) Enabled() bool {
	return rl.config.PerMinute > 0
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
// 複数回呼び出しても安全。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware はユーザーごとのレート制限ミドルウェアを返す。
// 無効な場合は何もせず次のハンドラーに渡す。
// 制限を超えた場合は429を返し、Retry-Afterにそのユーザーのトークンが補充されるまでの秒数を設定する。
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !rl.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, model.NewUnauthenticatedError("No user information found"))
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.PerMinute))

			wait, ok := rl.reserve(claims.Subject, time.Now())
			if !ok {
				slog.Warn("rate limit exceeded",
					slog.String("user_id", claims.Subject),
					slog.Duration("retry_after", wait),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
				WriteErrorResponse(w, model.NewTooManyRequestsError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// limiterCount は現在管理されているリミッターのエントリ数を返す。
func (rl *RateLimiter) limiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// reserve はuserIDのトークンを1つ消費する。
// 即時に消費できない場合は予約を取り消し、次に消費できるまでの待ち時間とfalseを返す。
func (rl *RateLimiter) reserve(userID string, now time.Time) (time.Duration, bool) {
	rl.mu.Lock()
	ul, exists := rl.limiters[userID]
	if !exists {
		ul = &userLimiter{limiter: rate.NewLimiter(rl.limit, rl.config.Burst)}
		rl.limiters[userID] = ul
	}
	ul.lastAccess = now
	rl.mu.Unlock()

	res := ul.limiter.ReserveN(now, 1)
	if !res.OK() {
		return rl.config.CleanupInterval, false
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay, false
	}
	return 0, true
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for userID, ul := range rl.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.limiters, userID)
		}
	}
}

func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
