package runtime

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/mohammad-safakhou/postshot/config"
	"github.com/mohammad-safakhou/postshot/internal/dedup"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewDedupStore builds the configured dedup backend. The returned closer
// releases any connection it opened.
func NewDedupStore(ctx context.Context, cfg *config.Config) (dedup.Store, io.Closer, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config is nil")
	}
	switch cfg.Dedup.Backend {
	case "", "memory":
		return dedup.NewMemoryStore(), nopCloser{}, nil
	case "redis":
		r := cfg.Storage.Redis
		client, err := dedup.Conn(ctx, r.Addr(), r.Password, r.DB, r.Timeout)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[DEDUP] using redis at %s (db %d)", r.Addr(), r.DB)
		return dedup.NewRedisStore(client, cfg.Dedup.TTL), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown dedup backend %q", cfg.Dedup.Backend)
	}
}
