package cache

import (
	"github.com/redis/go-redis/v9"
)

// NewBackend selects the shared L2 tier from configuration. Backend
// "redis" requires a connected client; anything else (including
// "memory") runs the layered cache in L1-only mode.
func NewBackend(backend, prefix string, client *redis.Client) Backend {
	switch backend {
	case "redis":
		if client == nil {
			return nil
		}
		return NewRedis(client, prefix)
	default:
		return nil
	}
}
