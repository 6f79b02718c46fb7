// Package dedup remembers, per chat, the origin timestamp of the last
// forwarded post so repeated deliveries of the same forward are ignored.
package dedup

import (
	"context"
	"sync"
	"time"
)

// Store is a chat id -> last forward origin timestamp mapping.
type Store interface {
	// Seen records origin as the latest forward for chatID and reports
	// whether it was already the latest one.
	Seen(ctx context.Context, chatID int64, origin time.Time) (bool, error)
}

// MemoryStore keeps state in process memory. State is lost on restart.
type MemoryStore struct {
	mu   sync.Mutex
	last map[int64]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[int64]int64)}
}

func (s *MemoryStore) Seen(_ context.Context, chatID int64, origin time.Time) (bool, error) {
	ts := origin.Unix()
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.last[chatID]
	s.last[chatID] = ts
	return ok && prev == ts, nil
}

// Len returns the number of chats tracked.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.last)
}
