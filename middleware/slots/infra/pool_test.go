package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"slot-gateway/middleware/slots/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, size int, opts ...PoolOption) *IdentifierPool {
	t.Helper()
	p, err := NewInitializedPool(size, opts...)
	require.NoError(t, err)
	return p
}

func acquireAsync(p *IdentifierPool) <-chan acquireResult {
	out := make(chan acquireResult, 1)
	go func() {
		id, err := p.Acquire()
		out <- acquireResult{id: id, err: err}
	}()
	return out
}

type acquireResult struct {
	id  domain.ID
	err error
}

func TestIdentifierPool_AcquireIsFIFO(t *testing.T) {
	p := newPool(t, 3)

	for want := 0; want < 3; want++ {
		id, err := p.Acquire()
		require.NoError(t, err)
		assert.Equal(t, domain.ID(want), id)
	}

	require.NoError(t, p.Release(1))
	require.NoError(t, p.Release(0))

	id, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, domain.ID(1), id, "longest free id must come out first")
}

func TestIdentifierPool_InitializeTwiceIsNoop(t *testing.T) {
	p := NewIdentifierPool()

	require.NoError(t, p.Initialize(2))
	err := p.Initialize(5)
	assert.ErrorIs(t, err, domain.ErrAlreadyInitialized)

	assert.Equal(t, 2, p.Capacity())
	assert.Equal(t, 2, p.Available())
}

func TestIdentifierPool_InitializeIgnoredWhileFullyBorrowed(t *testing.T) {
	p := newPool(t, 1)
	_, err := p.Acquire()
	require.NoError(t, err)

	assert.ErrorIs(t, p.Initialize(1), domain.ErrAlreadyInitialized)
	assert.Equal(t, 0, p.Available())
	assert.Equal(t, 1, p.Outstanding())
}

func TestIdentifierPool_InitializeRejectsInvalidSize(t *testing.T) {
	p := NewIdentifierPool()
	assert.ErrorIs(t, p.Initialize(0), domain.ErrInvalidSize)
	assert.ErrorIs(t, p.Initialize(-3), domain.ErrInvalidSize)
	assert.Equal(t, 0, p.Capacity())
}

func TestIdentifierPool_AcquireBeforeInitialize(t *testing.T) {
	p := NewIdentifierPool()
	_, err := p.Acquire()
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestIdentifierPool_BlocksWhenExhausted(t *testing.T) {
	const n = 4
	p := newPool(t, n)

	for i := 0; i < n; i++ {
		_, err := p.Acquire()
		require.NoError(t, err)
	}

	res := acquireAsync(p)
	select {
	case r := <-res:
		t.Fatalf("expected acquire to block, got id=%d err=%v", r.id, r.err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, p.Release(2))

	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.Equal(t, domain.ID(2), r.id)
	case <-time.After(time.Second):
		t.Fatal("blocked acquire was not woken by release")
	}
}

func TestIdentifierPool_TryAcquire(t *testing.T) {
	p := newPool(t, 1)

	id, err := p.TryAcquire()
	require.NoError(t, err)
	assert.Equal(t, domain.ID(0), id)

	_, err = p.TryAcquire()
	assert.ErrorIs(t, err, domain.ErrExhausted)
}

func TestIdentifierPool_AcquireContextCanceled(t *testing.T) {
	p := newPool(t, 1)
	_, err := p.Acquire()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.AcquireContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, p.Outstanding())
}

func TestIdentifierPool_ReleaseRejectsMisuse(t *testing.T) {
	p := newPool(t, 2)

	assert.ErrorIs(t, p.Release(-1), domain.ErrUnknownID)
	assert.ErrorIs(t, p.Release(2), domain.ErrUnknownID)
	assert.ErrorIs(t, p.Release(0), domain.ErrNotOutstanding)

	id, err := p.Acquire()
	require.NoError(t, err)
	require.NoError(t, p.Release(id))
	assert.ErrorIs(t, p.Release(id), domain.ErrNotOutstanding)

	assert.Equal(t, 2, p.Available())
}

func TestIdentifierPool_ClosedAcquireFailsFast(t *testing.T) {
	p := newPool(t, 2)
	assert.Equal(t, 0, p.DrainAndClose(time.Second))

	_, err := p.Acquire()
	assert.ErrorIs(t, err, domain.ErrClosed)
	_, err = p.TryAcquire()
	assert.ErrorIs(t, err, domain.ErrClosed)
	assert.True(t, p.Closing())
}

func TestIdentifierPool_DrainWakesBlockedAcquirers(t *testing.T) {
	p := newPool(t, 1)
	held, err := p.Acquire()
	require.NoError(t, err)

	waiters := make([]<-chan acquireResult, 3)
	for i := range waiters {
		waiters[i] = acquireAsync(p)
	}
	time.Sleep(20 * time.Millisecond)

	drained := make(chan int, 1)
	go func() { drained <- p.DrainAndClose(time.Second) }()

	for _, w := range waiters {
		select {
		case r := <-w:
			assert.ErrorIs(t, r.err, domain.ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("blocked acquire was not released by drain")
		}
	}

	// release during closing is still accepted and completes the drain
	require.NoError(t, p.Release(held))
	select {
	case leaked := <-drained:
		assert.Equal(t, 0, leaked)
	case <-time.After(2 * time.Second):
		t.Fatal("drain did not finish after last release")
	}
}

// Um Release que chega junto com o encerramento acorda o Acquire parado, mas o
// id devolvido volta para a fila de livres em vez de ir para ele.
func TestIdentifierPool_ReleaseDuringCloseNeverFeedsParkedAcquirer(t *testing.T) {
	for i := 0; i < 50; i++ {
		p := newPool(t, 1)
		held, err := p.Acquire()
		require.NoError(t, err)

		waiter := acquireAsync(p)
		time.Sleep(time.Millisecond)
		select {
		case r := <-waiter:
			t.Fatalf("acquire returned before close: id=%d err=%v", r.id, r.err)
		default:
		}

		drained := make(chan int, 1)
		go func() { drained <- p.DrainAndClose(5 * time.Second) }()
		require.Eventually(t, p.Closing, time.Second, 100*time.Microsecond)

		before := p.Available()
		require.NoError(t, p.Release(held))

		select {
		case r := <-waiter:
			require.ErrorIs(t, r.err, domain.ErrClosed, "iteration %d", i)
		case <-time.After(time.Second):
			t.Fatalf("parked acquire never woke (iteration %d)", i)
		}
		assert.Equal(t, before+1, p.Available())
		assert.Equal(t, 1, p.Available())

		select {
		case leaked := <-drained:
			assert.Equal(t, 0, leaked)
		case <-time.After(time.Second):
			t.Fatalf("drain did not finish after release (iteration %d)", i)
		}
	}
}

// Release e DrainAndClose disputando o mesmo Acquire parado: em qualquer ordem
// o id termina livre e o dreno não reporta vazamento.
func TestIdentifierPool_ReleaseRacingCloseKeepsIDFree(t *testing.T) {
	for i := 0; i < 50; i++ {
		p := newPool(t, 1)
		held, err := p.Acquire()
		require.NoError(t, err)

		waiter := acquireAsync(p)
		time.Sleep(time.Millisecond)

		drained := make(chan int, 1)
		go func() { drained <- p.DrainAndClose(5 * time.Second) }()
		go func() { _ = p.Release(held) }()

		select {
		case r := <-waiter:
			if r.err == nil {
				// Release e Acquire aconteceram antes do encerramento; devolve para o dreno terminar
				require.NoError(t, p.Release(r.id))
			} else {
				require.ErrorIs(t, r.err, domain.ErrClosed, "iteration %d", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("parked acquire never woke (iteration %d)", i)
		}

		select {
		case leaked := <-drained:
			assert.Equal(t, 0, leaked)
		case <-time.After(time.Second):
			t.Fatalf("drain did not finish (iteration %d)", i)
		}
		assert.Equal(t, 1, p.Available())
		_, err = p.Acquire()
		assert.ErrorIs(t, err, domain.ErrClosed)
	}
}

func TestIdentifierPool_DrainEmptyReturnsImmediately(t *testing.T) {
	p := newPool(t, 8)

	start := time.Now()
	leaked := p.DrainAndClose(time.Hour)

	assert.Equal(t, 0, leaked)
	assert.Less(t, time.Since(start), time.Second)
}

func TestIdentifierPool_DrainUninitialized(t *testing.T) {
	p := NewIdentifierPool()
	assert.Equal(t, 0, p.DrainAndClose(time.Hour))
}

func TestIdentifierPool_DrainReportsLeaksAfterQuietWindow(t *testing.T) {
	const quiet = 60 * time.Millisecond
	p := newPool(t, 3)

	for i := 0; i < 3; i++ {
		_, err := p.Acquire()
		require.NoError(t, err)
	}

	start := time.Now()
	leaked := p.DrainAndClose(quiet)

	assert.Equal(t, 3, leaked)
	assert.GreaterOrEqual(t, time.Since(start), quiet)
}

func TestIdentifierPool_DrainKeepsWaitingWhileReleasesArrive(t *testing.T) {
	const quiet = 100 * time.Millisecond
	p := newPool(t, 3)

	ids := make([]domain.ID, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := p.Acquire()
		require.NoError(t, err)
		ids = append(ids, id)
	}

	go func() {
		// cada release chega antes do fim da janela
		for _, id := range ids[:2] {
			time.Sleep(quiet / 2)
			_ = p.Release(id)
		}
	}()

	leaked := p.DrainAndClose(quiet)
	assert.Equal(t, 1, leaked)
	assert.Equal(t, 2, p.Available())
}

// capacidade 3 -> 0,1,2 emprestados -> 4º Acquire bloqueia -> release(1) ->
// o bloqueado recebe 1 -> dreno sem novos releases vaza 3 ids (0, 2 e o 1 de novo).
func TestIdentifierPool_BlockedAcquireThenDrainScenario(t *testing.T) {
	const quiet = 50 * time.Millisecond
	p := newPool(t, 3)

	for want := 0; want < 3; want++ {
		id, err := p.Acquire()
		require.NoError(t, err)
		require.Equal(t, domain.ID(want), id)
	}

	res := acquireAsync(p)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Release(1))

	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.Equal(t, domain.ID(1), r.id)
	case <-time.After(time.Second):
		t.Fatal("blocked acquire did not get released id")
	}

	start := time.Now()
	leaked := p.DrainAndClose(quiet)
	assert.Equal(t, 3, leaked)
	assert.GreaterOrEqual(t, time.Since(start), quiet)
}

func TestIdentifierPool_ConcurrentExclusiveOwnership(t *testing.T) {
	const (
		size       = 5
		goroutines = 32
		iterations = 200
	)
	p := newPool(t, size)

	var (
		mu     sync.Mutex
		owners = make(map[domain.ID]int)
	)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				id, err := p.Acquire()
				if !assert.NoError(t, err) {
					return
				}
				assert.GreaterOrEqual(t, int(id), 0)
				assert.Less(t, int(id), size)

				mu.Lock()
				if prev, taken := owners[id]; taken {
					t.Errorf("id %d handed to goroutine %d while held by %d", id, g, prev)
				}
				owners[id] = g
				assert.LessOrEqual(t, len(owners), size)
				mu.Unlock()

				mu.Lock()
				delete(owners, id)
				mu.Unlock()
				assert.NoError(t, p.Release(id))
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, size, p.Available())
	assert.Equal(t, 0, p.DrainAndClose(time.Second))
}

func TestIdentifierPool_ObserverSeesLifecycle(t *testing.T) {
	m := NewPoolMetrics()
	p := newPool(t, 2, WithName("observer-test"), WithObserver(m))

	id, err := p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.NoError(t, err)
	require.NoError(t, p.Release(id))
	assert.Error(t, p.Release(id))

	leaked := p.DrainAndClose(10 * time.Millisecond)
	_, err = p.Acquire()
	require.ErrorIs(t, err, domain.ErrClosed)

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.Acquires)
	assert.Equal(t, uint64(1), stats.Releases)
	assert.Equal(t, uint64(1), stats.Misuses)
	assert.Equal(t, uint64(1), stats.Rejects)
	assert.Equal(t, 1, leaked)
	assert.Equal(t, 1, stats.Leaked)
	assert.Equal(t, int64(1), stats.InFlight())
}

func TestIdentifierPool_Snapshot(t *testing.T) {
	p := newPool(t, 4)
	_, err := p.Acquire()
	require.NoError(t, err)

	assert.Equal(t, domain.PoolSnapshot{Capacity: 4, Available: 3, Outstanding: 1}, p.Snapshot())
}

func BenchmarkIdentifierPoolAcquireRelease(b *testing.B) {
	p, err := NewInitializedPool(64)
	require.NoError(b, err)

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			id, err := p.Acquire()
			if err != nil {
				b.Fatal(err)
			}
			_ = p.Release(id)
		}
	})
}
