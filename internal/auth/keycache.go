package auth

import (
	"context"
	"crypto/rsa"
	"sync"
	"time"
)

// KeyFetcher はレルム公開鍵の取得元。
type KeyFetcher interface {
	FetchKey(ctx context.Context) (*rsa.PublicKey, error)
}

// KeySource はVerifierが検証に使う公開鍵の供給元。KeyCacheが満たす。
type KeySource interface {
	Key(ctx context.Context) (*rsa.PublicKey, error)
}

type keyEntry struct {
	key       *rsa.PublicKey
	fetchedAt time.Time
}

// KeyCache はレルム公開鍵を1つだけ保持するキャッシュ。
//
// 初回のKeyで取得し、ttlが0の場合は無効化されるまで保持し続ける。
// ttlが正の場合は取得からttl経過後の最初のKeyで再取得する。
// 取得は mu を保持したまま行うため、同時に初回アクセスが来ても取得は1回になる。
// 取得に失敗した結果はキャッシュしない。
type KeyCache struct {
	fetcher  KeyFetcher
	ttl      time.Duration
	observer Observer
	now      func() time.Time

	mu    sync.Mutex
	entry *keyEntry
}

// KeyCacheOption はKeyCacheのオプション。
type KeyCacheOption func(*KeyCache)

// WithKeyTTL はキャッシュの有効期間を設定する。0以下は無期限。
func WithKeyTTL(ttl time.Duration) KeyCacheOption {
	return func(c *KeyCache) {
		c.ttl = ttl
	}
}

// WithCacheObserver は鍵取得の結果を通知するObserverを設定する。
func WithCacheObserver(o Observer) KeyCacheOption {
	return func(c *KeyCache) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewKeyCache はKeyCacheを生成する。
func NewKeyCache(fetcher KeyFetcher, opts ...KeyCacheOption) *KeyCache {
	c := &KeyCache{
		fetcher:  fetcher,
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key はキャッシュ済みの公開鍵を返す。未取得または期限切れの場合は取得する。
func (c *KeyCache) Key(ctx context.Context) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry != nil && !c.expired(c.entry) {
		return c.entry.key, nil
	}

	start := c.now()
	key, err := c.fetcher.FetchKey(ctx)
	c.observer.KeyFetched(err, c.now().Sub(start))
	if err != nil {
		return nil, err
	}

	c.entry = &keyEntry{key: key, fetchedAt: c.now()}
	return key, nil
}

// Invalidate はキャッシュした鍵を破棄する。次のKeyで再取得する。
// IdPで署名鍵をローテーションした場合に使用する。
func (c *KeyCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

// FetchedAt は現在キャッシュしている鍵の取得時刻を返す。未取得の場合はfalseを返す。
func (c *KeyCache) FetchedAt() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry == nil {
		return time.Time{}, false
	}
	return c.entry.fetchedAt, true
}

func (c *KeyCache) expired(e *keyEntry) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(e.fetchedAt) >= c.ttl
}
