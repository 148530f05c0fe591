package domain

import (
	"context"
	"time"
)

// StatsEvent registra o ciclo de vida de um slot visto pela camada de despacho.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Kind PoolEventKind
	Key  Key
	// Slot só é significativo em EventAcquired/EventReleased.
	Slot ID
	// Leaked só é preenchido em EventDrained.
	Leaked int

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do pool.
//
// Implementações podem armazenar em Redis, memória, etc.
// Quem chama deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
