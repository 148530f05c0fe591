package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"slot-gateway/middleware/slots/domain"
)

// DeniedError é retornado por Begin quando a admissão recusa o cliente.
type DeniedError struct {
	Key        domain.Key
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("client %q denied, retry after %s", e.Key, e.RetryAfter)
}

// Request identifica quem está pedindo o slot. Method/Path só alimentam estatísticas.
type Request struct {
	Key    domain.Key
	Method string
	Path   string
}

// DispatchService concentra a regra de empréstimo/devolução de slots,
// sem saber nada sobre HTTP.
type DispatchService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	Admission      *AdmissionService
	Stats          domain.StatsStore
	Logger         *slog.Logger
}

// Lease é um slot emprestado. Release devolve o id uma única vez, mesmo que
// seja chamado várias vezes.
type Lease struct {
	ID domain.ID

	once    sync.Once
	release func()
}

func (l *Lease) Release() {
	if l == nil || l.release == nil {
		return
	}
	l.once.Do(l.release)
}

// Begin aplica a admissão e empresta um slot.
// - Se `AcquireTimeout <= 0`, espera até existir slot (ou até ctx cancelar).
// - Se `AcquireTimeout > 0`, espera no máximo o timeout.
// Com o pool em encerramento retorna domain.ErrClosed na hora.
func (s *DispatchService) Begin(ctx context.Context, req Request) (*Lease, error) {
	if s.Admission != nil {
		if dec := s.Admission.Decide(req.Key); !dec.Allowed {
			return nil, &DeniedError{Key: req.Key, RetryAfter: dec.RetryAfter}
		}
	}
	if s.Pool == nil {
		return &Lease{ID: -1}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	id, err := s.Pool.AcquireContext(acqCtx)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrClosed):
			s.record(ctx, domain.StatsEvent{Kind: domain.EventRejected, Key: req.Key, Method: req.Method, Path: req.Path})
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			// ctx pode já ter acabado; a estatística não deve se perder com ele
			s.record(context.WithoutCancel(ctx), domain.StatsEvent{Kind: domain.EventTimeout, Key: req.Key, Method: req.Method, Path: req.Path})
		}
		return nil, err
	}
	s.record(ctx, domain.StatsEvent{Kind: domain.EventAcquired, Key: req.Key, Slot: id, Method: req.Method, Path: req.Path})

	lease := &Lease{ID: id}
	lease.release = func() {
		if err := s.Pool.Release(id); err != nil {
			s.logger().Error("slot release failed", "slot", int(id), "error", err)
			s.record(context.Background(), domain.StatsEvent{Kind: domain.EventMisuse, Key: req.Key, Slot: id})
			return
		}
		s.record(context.Background(), domain.StatsEvent{Kind: domain.EventReleased, Key: req.Key, Slot: id, Method: req.Method, Path: req.Path})
	}
	return lease, nil
}

// Drain encerra o pool (se ele souber drenar) e registra quantos ids vazaram.
func (s *DispatchService) Drain(ctx context.Context, quiescence time.Duration) int {
	d, ok := s.Pool.(domain.Drainer)
	if !ok {
		return 0
	}

	started := time.Now()
	leaked := d.DrainAndClose(quiescence)
	s.record(ctx, domain.StatsEvent{Kind: domain.EventDrained, Leaked: leaked})

	if leaked > 0 {
		s.logger().Warn("slot pool drained with leaked slots", "leaked", leaked, "took", time.Since(started))
	} else {
		s.logger().Info("slot pool drained", "took", time.Since(started))
	}
	return leaked
}

func (s *DispatchService) record(ctx context.Context, ev domain.StatsEvent) {
	if s.Stats == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := s.Stats.Record(ctx, ev); err != nil {
		s.logger().Debug("stats record failed", "kind", string(ev.Kind), "error", err)
	}
}

func (s *DispatchService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
