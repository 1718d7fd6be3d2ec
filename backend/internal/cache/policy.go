package cache

import (
	"math/rand"
	"time"
)

const (
	DefaultTTL = 24 * time.Hour   // 基础过期时间
	MaxJitter  = 60 * time.Minute // 随机抖动上限
)

// 给 TTL 加上随机抖动（最多 ttl 的十分之一），防止缓存雪崩。
// ttl <= 0 表示不过期。
func ttlWithJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	jitter := ttl / 10
	if jitter > MaxJitter {
		jitter = MaxJitter
	}
	if jitter <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(int64(jitter)))
}
