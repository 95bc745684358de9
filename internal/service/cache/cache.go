package cache

import "time"

// BytesCache is a minimal cache API storing raw bytes with TTL. Handlers
// use it to memoize rendered responses; the snapshot provider uses it for
// upstream fetch results.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
}
