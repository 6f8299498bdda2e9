package cache

import "time"

// BytesCache stores pre-marshaled response bodies under a TTL. Handlers cache
// the full envelope so a hit replays the exact bytes of the first response.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
