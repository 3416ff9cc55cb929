package holds

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps holds in process. It backs tests and single-node dev runs.
type MemoryStore struct {
	mu    sync.Mutex
	holds map[string]Hold
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{holds: map[string]Hold{}}
}

func (s *MemoryStore) Insert(_ context.Context, h Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds[h.ID] = h
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, tenantID, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[id]
	if !ok || h.TenantID != tenantID {
		return false, nil
	}
	delete(s.holds, id)
	return h.Live(now), nil
}

func (s *MemoryStore) Active(_ context.Context, tenantID, productID string, now time.Time) ([]Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Hold
	for _, h := range s.holds {
		if h.TenantID == tenantID && h.ProductID == productID && h.Live(now) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, h := range s.holds {
		if !h.Live(now) {
			delete(s.holds, id)
			n++
		}
	}
	return n, nil
}

// Len counts rows including dead ones that have not been swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.holds)
}
