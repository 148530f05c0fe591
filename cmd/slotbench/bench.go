package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"slot-gateway/middleware/slots/domain"
	"slot-gateway/middleware/slots/infra"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type benchOptions struct {
	Slots      int
	Workers    int
	Duration   time.Duration
	Hold       time.Duration
	Rate       float64 // empréstimos/s somando todos os workers; 0 = sem limite
	Abandon    int     // workers que pegam um slot e nunca devolvem
	Quiescence time.Duration
}

type benchResult struct {
	Acquired uint64
	Rejected uint64
	Leaked   int
	Drain    time.Duration
	Stats    infra.PoolStats
}

func (o benchOptions) validate() error {
	switch {
	case o.Slots <= 0:
		return errors.New("--slots must be > 0")
	case o.Workers <= 0:
		return errors.New("--workers must be > 0")
	case o.Abandon < 0 || o.Abandon > o.Workers:
		return fmt.Errorf("--abandon must be between 0 and %d", o.Workers)
	case o.Duration <= 0:
		return errors.New("--duration must be > 0")
	case o.Quiescence <= 0:
		return errors.New("--quiescence must be > 0")
	}
	return nil
}

// runBench põe Workers goroutines emprestando/segurando/devolvendo slots até
// Duration acabar (ou ctx encerrar) e então drena o pool.
func runBench(ctx context.Context, o benchOptions) (benchResult, error) {
	if err := o.validate(); err != nil {
		return benchResult{}, err
	}

	metrics := infra.NewPoolMetrics()
	pool, err := infra.NewInitializedPool(o.Slots, infra.WithName("slotbench"), infra.WithObserver(metrics))
	if err != nil {
		return benchResult{}, err
	}
	defer metrics.Track(pool)()

	limit := rate.Inf
	if o.Rate > 0 {
		limit = rate.Limit(o.Rate)
	}
	pace := rate.NewLimiter(limit, 1)

	runCtx, cancel := context.WithTimeout(ctx, o.Duration)
	defer cancel()

	var acquired, rejected atomic.Uint64
	g := new(errgroup.Group)
	for w := 0; w < o.Workers; w++ {
		if w < o.Abandon {
			g.Go(func() error {
				// pega um slot e nunca devolve
				if _, err := pool.Acquire(); err != nil {
					if errors.Is(err, domain.ErrClosed) {
						rejected.Add(1)
						return nil
					}
					return err
				}
				acquired.Add(1)
				<-runCtx.Done()
				return nil
			})
			continue
		}

		g.Go(func() error {
			for {
				if err := pace.Wait(runCtx); err != nil {
					return nil
				}
				id, err := pool.Acquire()
				switch {
				case errors.Is(err, domain.ErrClosed):
					rejected.Add(1)
					return nil
				case err != nil:
					return err
				}
				acquired.Add(1)

				if o.Hold > 0 {
					time.Sleep(o.Hold)
				}
				if err := pool.Release(id); err != nil {
					return fmt.Errorf("release %d: %w", id, err)
				}
			}
		})
	}

	<-runCtx.Done()
	start := time.Now()
	leaked := pool.DrainAndClose(o.Quiescence)
	drain := time.Since(start)

	if err := g.Wait(); err != nil {
		return benchResult{}, err
	}

	return benchResult{
		Acquired: acquired.Load(),
		Rejected: rejected.Load(),
		Leaked:   leaked,
		Drain:    drain,
		Stats:    metrics.Stats(),
	}, nil
}
