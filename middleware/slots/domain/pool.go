package domain

import (
	"context"
	"errors"
	"time"
)

// ID é um identificador emprestado do pool (ex: tag de uma requisição em voo).
// Valores válidos ficam em [0, capacidade).
type ID int

var (
	// ErrClosed indica que o pool entrou em encerramento.
	// Não é uma falha: o chamador deve parar de submeter trabalho novo.
	ErrClosed = errors.New("slot pool is closing")

	// ErrExhausted é retornado por TryAcquire quando não há ids livres.
	ErrExhausted = errors.New("slot pool exhausted")

	// ErrNotInitialized é retornado quando o pool é usado antes de Initialize.
	ErrNotInitialized = errors.New("slot pool not initialized")

	// ErrAlreadyInitialized é diagnóstico: a segunda chamada a Initialize é ignorada
	// e o pool continua exatamente como estava.
	ErrAlreadyInitialized = errors.New("slot pool already initialized")

	ErrInvalidSize = errors.New("slot pool size must be > 0")

	// ErrUnknownID e ErrNotOutstanding são violações de contrato em Release.
	// O pool não é alterado quando elas acontecem.
	ErrUnknownID      = errors.New("slot id out of range")
	ErrNotOutstanding = errors.New("slot id is not outstanding")
)

// SlotPool representa um conjunto finito de ids reutilizáveis.
//
// A semântica é: Acquire bloqueia até existir um id livre, até o pool entrar em
// encerramento (ErrClosed) ou até o ctx encerrar. Cada id adquirido deve ser
// devolvido exatamente uma vez com Release.
type SlotPool interface {
	AcquireContext(ctx context.Context) (ID, error)
	Release(id ID) error
}

type PoolEventKind string

const (
	EventAcquired PoolEventKind = "acquired"
	EventReleased PoolEventKind = "released"
	EventRejected PoolEventKind = "rejected"
	// EventTimeout: o chamador desistiu (timeout/cancelamento) com o pool esgotado.
	EventTimeout PoolEventKind = "timeout"
	EventMisuse   PoolEventKind = "misuse"
	EventDrained  PoolEventKind = "drained"
)

// PoolEvent descreve uma transição observada no pool.
// Leaked só é preenchido em EventDrained.
type PoolEvent struct {
	Pool        string
	Kind        PoolEventKind
	ID          ID
	Outstanding int
	Leaked      int
}

// PoolObserver recebe eventos do pool fora do lock interno.
// Implementações devem ser baratas (contadores, métricas); nada de I/O.
type PoolObserver interface {
	ObservePool(ev PoolEvent)
}

type PoolSnapshot struct {
	Capacity    int
	Available   int
	Outstanding int
	Closing     bool
}

// Drainer é implementado por pools que sabem encerrar de forma ordenada.
type Drainer interface {
	DrainAndClose(quiescence time.Duration) (leaked int)
}
