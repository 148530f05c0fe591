package slots

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"slot-gateway/middleware/slots/application"
	"slot-gateway/middleware/slots/domain"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	HeaderRequestSlot = "X-Request-Slot"
	HeaderRequestID   = "X-Request-Id"
)

type TrackingOptions struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration

	// Admission é opcional; sem ele todo cliente é admitido.
	Admission  domain.LimiterStore
	RetryAfter time.Duration

	Stats domain.StatsStore

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	// RejectStatus é usado quando não há slot (timeout ou encerramento).
	RejectStatus int
	Logger       *slog.Logger
}

type slotCtxKey struct{}

// SlotFromContext devolve o slot emprestado para a requisição, se houver.
func SlotFromContext(ctx context.Context) (domain.ID, bool) {
	id, ok := ctx.Value(slotCtxKey{}).(domain.ID)
	return id, ok
}

// TrackingMiddleware empresta um slot por requisição e o devolve quando o
// próximo handler termina.
func TrackingMiddleware(opts TrackingOptions) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	svc := &application.DispatchService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
		Stats:          opts.Stats,
		Logger:         logger,
	}
	if opts.Admission != nil {
		svc.Admission = &application.AdmissionService{Store: opts.Admission, RetryAfter: opts.RetryAfter}
	}

	// esgotamento vira uma enxurrada de logs sob carga
	var warnExhausted, warnClosing rate.Sometimes
	warnExhausted.Interval = 5 * time.Second
	warnClosing.Interval = 5 * time.Second

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
				r.Header.Set(HeaderRequestID, requestID)
			}
			w.Header().Set(HeaderRequestID, requestID)

			key := opts.KeyFn(r)
			lease, err := svc.Begin(r.Context(), application.Request{
				Key:    domain.Key(key),
				Method: r.Method,
				Path:   r.URL.Path,
			})
			if err != nil {
				var denied *application.DeniedError
				switch {
				case errors.As(err, &denied):
					w.Header().Set("Retry-After", retryAfterSeconds(denied.RetryAfter))
					http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				case errors.Is(err, domain.ErrClosed):
					warnClosing.Do(func() {
						logger.Warn("rejecting request, slot pool is closing", "request_id", requestID)
					})
					w.Header().Set("Connection", "close")
					http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				default:
					warnExhausted.Do(func() {
						logger.Warn("no slot available", "request_id", requestID, "key", key, "error", err)
					})
					http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				}
				return
			}
			defer lease.Release()

			if lease.ID >= 0 {
				r.Header.Set(HeaderRequestSlot, formatInt(int(lease.ID)))
				w.Header().Set(HeaderRequestSlot, formatInt(int(lease.ID)))
				r = r.WithContext(context.WithValue(r.Context(), slotCtxKey{}, lease.ID))
			}

			next.ServeHTTP(w, r)
		})
	}
}
