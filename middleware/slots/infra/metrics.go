package infra

import (
	"sync"
	"sync/atomic"

	"slot-gateway/middleware/slots/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	slotAcquires = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slotgateway",
		Subsystem: "pool",
		Name:      "acquires_total",
		Help:      "Total number of slots handed out",
	}, []string{"pool"})

	slotReleases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slotgateway",
		Subsystem: "pool",
		Name:      "releases_total",
		Help:      "Total number of slots returned",
	}, []string{"pool"})

	// slotRejects conta Acquire recusados porque o pool estava encerrando.
	slotRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slotgateway",
		Subsystem: "pool",
		Name:      "rejects_total",
		Help:      "Total number of acquisitions refused because the pool is closing",
	}, []string{"pool"})

	slotMisuses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slotgateway",
		Subsystem: "pool",
		Name:      "misuses_total",
		Help:      "Total number of invalid releases (unknown or not outstanding ids)",
	}, []string{"pool"})

	slotLeaked = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "slotgateway",
		Subsystem: "pool",
		Name:      "leaked",
		Help:      "Slots not returned when the pool was drained",
	}, []string{"pool"})
)

// slotOutstanding lê o pool no momento da coleta. Eventos chegam depois do
// unlock e podem vir fora de ordem, então um Set por evento deixaria valor velho.
var slotOutstanding = newOutstandingCollector()

func init() {
	prometheus.MustRegister(slotOutstanding)
}

// OutstandingSource é o mínimo que o coletor precisa de um pool.
type OutstandingSource interface {
	Name() string
	Outstanding() int
}

type outstandingCollector struct {
	desc *prometheus.Desc

	mu    sync.Mutex
	pools map[string]OutstandingSource
}

func newOutstandingCollector() *outstandingCollector {
	return &outstandingCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName("slotgateway", "pool", "outstanding"),
			"Slots currently borrowed",
			[]string{"pool"}, nil,
		),
		pools: make(map[string]OutstandingSource),
	}
}

func (c *outstandingCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *outstandingCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, p := range c.pools {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(p.Outstanding()), name)
	}
}

func (c *outstandingCollector) track(p OutstandingSource) func() {
	name := p.Name()
	c.mu.Lock()
	c.pools[name] = p
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.pools[name] == p {
			delete(c.pools, name)
		}
	}
}

// value devolve o gauge de um pool como seria exportado agora.
func (c *outstandingCollector) value(name string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pools[name]
	if !ok {
		return 0, false
	}
	return float64(p.Outstanding()), true
}

// PoolMetrics implementa domain.PoolObserver: contadores locais (atômicos) e
// séries Prometheus rotuladas pelo nome do pool.
type PoolMetrics struct {
	acquires atomic.Uint64
	releases atomic.Uint64
	rejects  atomic.Uint64
	misuses  atomic.Uint64
	leaked   atomic.Int64
}

func NewPoolMetrics() *PoolMetrics {
	return &PoolMetrics{}
}

// Track exporta slotgateway_pool_outstanding lido direto de p, rotulado por
// p.Name(). Um pool novo com o mesmo nome substitui o anterior. A função
// retornada para de exportar.
func (m *PoolMetrics) Track(p OutstandingSource) (untrack func()) {
	return slotOutstanding.track(p)
}

func (m *PoolMetrics) ObservePool(ev domain.PoolEvent) {
	switch ev.Kind {
	case domain.EventAcquired:
		m.acquires.Add(1)
		slotAcquires.WithLabelValues(ev.Pool).Inc()
	case domain.EventReleased:
		m.releases.Add(1)
		slotReleases.WithLabelValues(ev.Pool).Inc()
	case domain.EventRejected:
		m.rejects.Add(1)
		slotRejects.WithLabelValues(ev.Pool).Inc()
	case domain.EventMisuse:
		m.misuses.Add(1)
		slotMisuses.WithLabelValues(ev.Pool).Inc()
	case domain.EventDrained:
		m.leaked.Store(int64(ev.Leaked))
		slotLeaked.WithLabelValues(ev.Pool).Set(float64(ev.Leaked))
	}
}

// Stats retorna os contadores locais.
func (m *PoolMetrics) Stats() PoolStats {
	return PoolStats{
		Acquires: m.acquires.Load(),
		Releases: m.releases.Load(),
		Rejects:  m.rejects.Load(),
		Misuses:  m.misuses.Load(),
		Leaked:   int(m.leaked.Load()),
	}
}

type PoolStats struct {
	Acquires uint64
	Releases uint64
	Rejects  uint64
	Misuses  uint64
	Leaked   int
}

// InFlight é acquires - releases; bate com Outstanding enquanto o observer
// estiver ligado desde a criação do pool.
func (s PoolStats) InFlight() int64 {
	return int64(s.Acquires) - int64(s.Releases)
}
