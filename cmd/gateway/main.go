package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"slot-gateway/middleware/slots"
	"slot-gateway/middleware/slots/application"
	"slot-gateway/middleware/slots/domain"
	"slot-gateway/middleware/slots/infra"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := readConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		slotID, _ := slots.SlotFromContext(r.Context())
		logger.Error("proxy error", "error", err, "slot", int(slotID), "request_id", r.Header.Get(slots.HeaderRequestID))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	metrics := infra.NewPoolMetrics()
	pool, err := infra.NewInitializedPool(cfg.SlotsMax, infra.WithName("gateway"), infra.WithObserver(metrics))
	if err != nil {
		return fmt.Errorf("slot pool: %w", err)
	}
	defer metrics.Track(pool)()

	var statsStore domain.StatsStore
	if cfg.StatsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.StatsRedisAddr,
			Password: cfg.StatsRedisPassword,
			DB:       cfg.StatsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return fmt.Errorf("redis stats ping: %w", err)
		}

		statsStore = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.StatsPrefix),
			infra.WithStatsTTL(cfg.StatsTTL),
			infra.WithStatsBucket(cfg.StatsBucket),
			infra.WithSlotTracking(cfg.StatsTrackSlots),
		)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	trackingOpts := slots.TrackingOptions{
		Pool:               pool,
		AcquireTimeout:     cfg.SlotsAcquireTimeout,
		Stats:              statsStore,
		KeyHeader:          cfg.KeyHeader,
		TrustXForwardedFor: cfg.TrustXFF,
		RetryAfter:         cfg.RetryAfter,
		Logger:             logger,
	}
	if cfg.AdmissionEnabled {
		admission := infra.NewLimiterStore(cfg.AdmissionRPS, cfg.AdmissionBurst)
		admission.StartJanitor(ctx)
		trackingOpts.Admission = admission
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           slots.TrackingMiddleware(trackingOpts)(proxy),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if pool.Closing() {
			http.Error(w, "draining", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	admin := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           adminMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("gateway listening",
		"addr", cfg.ListenAddr,
		"admin_addr", cfg.AdminAddr,
		"upstream", target.String(),
		"slots", cfg.SlotsMax,
		"acquire_timeout", cfg.SlotsAcquireTimeout,
		"quiescence", cfg.SlotsQuiescence,
		"admission", cfg.AdmissionEnabled,
		"stats", cfg.StatsEnabled,
	)

	dispatch := &application.DispatchService{Pool: pool, Stats: statsStore, Logger: logger}

	var leaked int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "outstanding", pool.Outstanding())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		leaked = drainAndShutdown(shutdownCtx, logger, srv, dispatch, cfg.SlotsQuiescence)
		return admin.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	return leakError(leaked, cfg.SlotsFailOnLeak)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

type drainer interface {
	Drain(ctx context.Context, quiescence time.Duration) int
}

// drainAndShutdown drena o pool em paralelo ao Shutdown do servidor: pedidos
// novos falham rápido com 503 enquanto os em voo devolvem seus slots.
func drainAndShutdown(ctx context.Context, logger *slog.Logger, srv shutdowner, d drainer, quiescence time.Duration) int {
	drained := make(chan int, 1)
	go func() { drained <- d.Drain(context.Background(), quiescence) }()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	return <-drained
}

func leakError(leaked int, failOnLeak bool) error {
	if leaked > 0 && failOnLeak {
		return fmt.Errorf("%d slots leaked at shutdown", leaked)
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
