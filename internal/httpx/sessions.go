package httpx

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/google/uuid"
)

type session struct {
	c       *checkout.Coordinator
	touched time.Time
}

// Sessions holds one coordinator per storefront checkout. Idle sessions are
// dropped by the janitor; the order service expires their reservations.
type Sessions struct {
	Deps checkout.Deps
	Idle time.Duration

	mu sync.Mutex
	m  map[string]*session
}

func (s *Sessions) New(unitID string) (string, *checkout.Coordinator) {
	id := uuid.NewString()
	c := checkout.NewCoordinator(s.Deps, unitID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[string]*session{}
	}
	s.m[id] = &session{c: c, touched: time.Now()}
	return id, c
}

func (s *Sessions) Get(id string) (*checkout.Coordinator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.m[id]
	if !ok {
		return nil, false
	}
	ss.touched = time.Now()
	return ss.c, true
}

func (s *Sessions) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Evict drops sessions idle since before now-Idle and returns how many.
func (s *Sessions) Evict(now time.Time) int {
	if s.Idle <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, ss := range s.m {
		if now.Sub(ss.touched) > s.Idle {
			ss.c.Reset()
			delete(s.m, id)
			n++
		}
	}
	return n
}

func (s *Sessions) RunJanitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.Evict(now)
		}
	}
}
