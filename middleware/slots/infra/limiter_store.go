package infra

import (
	"context"
	"sync"
	"time"

	"slot-gateway/middleware/slots/domain"

	"golang.org/x/time/rate"
)

// LimiterStore guarda um token bucket (x/time/rate) por cliente para a admissão
// antes do empréstimo de slot. Clientes inativos são esquecidos pelo janitor.
type LimiterStore struct {
	mu      sync.Mutex
	clients map[domain.Key]*clientLimiter

	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	sweep   time.Duration
	now     func() time.Time
}

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type LimiterStoreOption func(*LimiterStore)

func WithIdleTTL(d time.Duration) LimiterStoreOption {
	return func(s *LimiterStore) { s.idleTTL = d }
}

// WithSweepEvery define o intervalo do janitor; <= 0 desliga.
func WithSweepEvery(d time.Duration) LimiterStoreOption {
	return func(s *LimiterStore) { s.sweep = d }
}

func NewLimiterStore(rps float64, burst int, opts ...LimiterStoreOption) *LimiterStore {
	s := &LimiterStore{
		clients: make(map[domain.Key]*clientLimiter),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
		sweep:   2 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LimiterStore) RPS() float64 { return float64(s.rps) }
func (s *LimiterStore) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *LimiterStore) Get(key domain.Key) domain.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[key]
	if !ok {
		c = &clientLimiter{lim: rate.NewLimiter(s.rps, s.burst)}
		s.clients[key] = c
	}
	c.lastSeen = now
	return c.lim
}

func (s *LimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Sweep remove clientes sem atividade há mais de idleTTL.
func (s *LimiterStore) Sweep() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, c := range s.clients {
		if c.lastSeen.Before(cutoff) {
			delete(s.clients, k)
			removed++
		}
	}
	return removed
}

// StartJanitor roda Sweep periodicamente até ctx encerrar.
func (s *LimiterStore) StartJanitor(ctx context.Context) {
	if s.sweep <= 0 {
		return
	}

	t := time.NewTicker(s.sweep)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}
