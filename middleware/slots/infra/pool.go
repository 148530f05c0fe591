package infra

import (
	"context"
	"sync"
	"time"

	"slot-gateway/middleware/slots/domain"
)

// DefaultQuiescencePeriod é a janela padrão do DrainAndClose: sem nenhum
// Release durante uma janela inteira, o dreno desiste de esperar.
const DefaultQuiescencePeriod = 3 * time.Second

// IdentifierPool empresta ids de [0, capacidade) para chamadores concorrentes.
//
// Os ids livres ficam num anel FIFO (o id livre há mais tempo sai primeiro).
// Quem espera (Acquire sem id livre, DrainAndClose) aguarda em `wake`, que é
// fechado e trocado a cada Release ou mudança de estado.
type IdentifierPool struct {
	name     string
	observer domain.PoolObserver

	mu       sync.Mutex
	capacity int
	ring     []domain.ID
	head     int
	free     int
	borrowed []bool
	closing  bool
	wake     chan struct{}
}

type PoolOption func(*IdentifierPool)

// WithName define o rótulo usado nos eventos (e nas métricas).
func WithName(name string) PoolOption {
	return func(p *IdentifierPool) { p.name = name }
}

func WithObserver(o domain.PoolObserver) PoolOption {
	return func(p *IdentifierPool) { p.observer = o }
}

// NewIdentifierPool cria um pool vazio. Ele só empresta ids depois de Initialize.
func NewIdentifierPool(opts ...PoolOption) *IdentifierPool {
	p := &IdentifierPool{
		name: "default",
		wake: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewInitializedPool é o atalho NewIdentifierPool + Initialize(size).
func NewInitializedPool(size int, opts ...PoolOption) (*IdentifierPool, error) {
	p := NewIdentifierPool(opts...)
	if err := p.Initialize(size); err != nil {
		return nil, err
	}
	return p, nil
}

// Initialize popula o pool com [0, size) em ordem crescente.
//
// Só a primeira chamada tem efeito. As seguintes retornam
// domain.ErrAlreadyInitialized e não mexem em nada, mesmo que todos os ids
// estejam emprestados no momento.
func (p *IdentifierPool) Initialize(size int) error {
	if size <= 0 {
		return domain.ErrInvalidSize
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.capacity > 0 {
		return domain.ErrAlreadyInitialized
	}

	p.capacity = size
	p.ring = make([]domain.ID, size)
	p.borrowed = make([]bool, size)
	for i := range p.ring {
		p.ring[i] = domain.ID(i)
	}
	p.head = 0
	p.free = size
	return nil
}

// Acquire bloqueia até existir um id livre ou até o pool entrar em encerramento.
func (p *IdentifierPool) Acquire() (domain.ID, error) {
	return p.AcquireContext(context.Background())
}

// AcquireContext é Acquire com saída extra quando ctx encerra.
//
// A cada despertar o encerramento é checado antes da disponibilidade: um pool
// em encerramento nunca entrega id, mesmo que algum tenha acabado de voltar.
func (p *IdentifierPool) AcquireContext(ctx context.Context) (domain.ID, error) {
	p.mu.Lock()
	for {
		if p.closing {
			p.mu.Unlock()
			p.emit(domain.PoolEvent{Kind: domain.EventRejected, ID: -1})
			return 0, domain.ErrClosed
		}
		if p.capacity == 0 {
			p.mu.Unlock()
			return 0, domain.ErrNotInitialized
		}
		if p.free > 0 {
			id, outstanding := p.popLocked()
			p.mu.Unlock()
			p.emit(domain.PoolEvent{Kind: domain.EventAcquired, ID: id, Outstanding: outstanding})
			return id, nil
		}

		wake := p.wake
		p.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			// encerramento continua tendo prioridade sobre o cancelamento
			p.mu.Lock()
			closing := p.closing
			p.mu.Unlock()
			if closing {
				p.emit(domain.PoolEvent{Kind: domain.EventRejected, ID: -1})
				return 0, domain.ErrClosed
			}
			return 0, ctx.Err()
		}

		p.mu.Lock()
	}
}

// TryAcquire nunca bloqueia: sem id livre retorna domain.ErrExhausted.
func (p *IdentifierPool) TryAcquire() (domain.ID, error) {
	p.mu.Lock()
	switch {
	case p.closing:
		p.mu.Unlock()
		p.emit(domain.PoolEvent{Kind: domain.EventRejected, ID: -1})
		return 0, domain.ErrClosed
	case p.capacity == 0:
		p.mu.Unlock()
		return 0, domain.ErrNotInitialized
	case p.free == 0:
		p.mu.Unlock()
		return 0, domain.ErrExhausted
	}
	id, outstanding := p.popLocked()
	p.mu.Unlock()
	p.emit(domain.PoolEvent{Kind: domain.EventAcquired, ID: id, Outstanding: outstanding})
	return id, nil
}

// Release devolve id ao fim da fila de livres e acorda todos os que esperam
// (tanto Acquire quanto DrainAndClose). Continua aceito durante o encerramento.
//
// Ids fora de [0, capacidade) ou que não estão emprestados são rejeitados
// sem alterar o pool.
func (p *IdentifierPool) Release(id domain.ID) error {
	p.mu.Lock()
	if id < 0 || int(id) >= p.capacity {
		p.mu.Unlock()
		p.emit(domain.PoolEvent{Kind: domain.EventMisuse, ID: id})
		return domain.ErrUnknownID
	}
	if !p.borrowed[id] {
		p.mu.Unlock()
		p.emit(domain.PoolEvent{Kind: domain.EventMisuse, ID: id})
		return domain.ErrNotOutstanding
	}

	p.borrowed[id] = false
	p.ring[(p.head+p.free)%p.capacity] = id
	p.free++
	outstanding := p.capacity - p.free
	p.broadcastLocked()
	p.mu.Unlock()

	p.emit(domain.PoolEvent{Kind: domain.EventReleased, ID: id, Outstanding: outstanding})
	return nil
}

// DrainAndClose coloca o pool em encerramento e espera os ids emprestados
// voltarem.
//
// Cada espera dura no máximo quiescence. O laço só continua enquanto cada
// janela termina por causa de um Release e ainda faltam ids; uma janela
// inteira sem Release encerra a espera. Retorna quantos ids nunca voltaram.
func (p *IdentifierPool) DrainAndClose(quiescence time.Duration) int {
	p.mu.Lock()
	if !p.closing {
		p.closing = true
		p.broadcastLocked()
	}

	timer := time.NewTimer(quiescence)
	defer timer.Stop()

	for p.free != p.capacity {
		wake := p.wake
		p.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(quiescence)

		notified := false
		select {
		case <-wake:
			notified = true
		case <-timer.C:
		}

		p.mu.Lock()
		if !notified {
			break
		}
	}

	leaked := p.capacity - p.free
	p.broadcastLocked()
	p.mu.Unlock()

	p.emit(domain.PoolEvent{Kind: domain.EventDrained, ID: -1, Outstanding: leaked, Leaked: leaked})
	return leaked
}

func (p *IdentifierPool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

func (p *IdentifierPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free
}

func (p *IdentifierPool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity - p.free
}

func (p *IdentifierPool) Closing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closing
}

func (p *IdentifierPool) Snapshot() domain.PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.PoolSnapshot{
		Capacity:    p.capacity,
		Available:   p.free,
		Outstanding: p.capacity - p.free,
		Closing:     p.closing,
	}
}

func (p *IdentifierPool) Name() string { return p.name }

func (p *IdentifierPool) popLocked() (domain.ID, int) {
	id := p.ring[p.head]
	p.head = (p.head + 1) % p.capacity
	p.free--
	p.borrowed[id] = true
	return id, p.capacity - p.free
}

func (p *IdentifierPool) broadcastLocked() {
	close(p.wake)
	p.wake = make(chan struct{})
}

func (p *IdentifierPool) emit(ev domain.PoolEvent) {
	if p.observer == nil {
		return
	}
	ev.Pool = p.name
	p.observer.ObservePool(ev)
}
