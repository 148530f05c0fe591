package infra

import (
	"context"
	"sync"

	"slot-gateway/middleware/slots/domain"
)

// MemoryStatsStore guarda contadores do ciclo de vida dos slots em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu         sync.Mutex
	byKind     map[domain.PoolEventKind]int64
	byRoute    map[string]int64
	bySlot     map[domain.ID]int64
	lastLeaked int

	trackSlots bool
}

type MemoryStatsOption func(*MemoryStatsStore)

// WithTrackSlots conta empréstimos por id (cardinalidade = capacidade do pool).
func WithTrackSlots(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackSlots = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byKind:  make(map[domain.PoolEventKind]int64),
		byRoute: make(map[string]int64),
		bySlot:  make(map[domain.ID]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byKind[ev.Kind]++

	switch ev.Kind {
	case domain.EventAcquired:
		if ev.Method != "" || ev.Path != "" {
			s.byRoute[ev.Method+" "+ev.Path]++
		}
		if s.trackSlots {
			s.bySlot[ev.Slot]++
		}
	case domain.EventDrained:
		s.lastLeaked = ev.Leaked
	}
	return nil
}

func (s *MemoryStatsStore) Count(kind domain.PoolEventKind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKind[kind]
}

func (s *MemoryStatsStore) LastLeaked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLeaked
}

// ByRoute retorna quantos slots foram emprestados por "METHOD path".
func (s *MemoryStatsStore) ByRoute() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) BySlot() map[domain.ID]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.ID]int64, len(s.bySlot))
	for k, v := range s.bySlot {
		out[k] = v
	}
	return out
}
