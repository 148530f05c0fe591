package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slot-gateway/middleware/slots"
	"slot-gateway/middleware/slots/infra"
)

func main() {
	// Exemplo: middleware direto no seu webserver (sem proxy), cada request
	// recebe um slot de 0..49.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	pool, err := infra.NewInitializedPool(50, infra.WithName("example"))
	if err != nil {
		logger.Error("slot pool", "error", err)
		os.Exit(1)
	}
	admission := infra.NewLimiterStore(5, 10)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	admission.StartJanitor(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		slot, _ := slots.SlotFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok slot=" + r.Header.Get(slots.HeaderRequestSlot) + "\n"))
		logger.Debug("served", "slot", int(slot))
	})

	h := slots.TrackingMiddleware(slots.TrackingOptions{
		Pool:               pool,
		AcquireTimeout:     2 * time.Second,
		Admission:          admission,
		KeyHeader:          "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor: true,
		Logger:             logger,
	})(mux)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	if leaked := pool.DrainAndClose(infra.DefaultQuiescencePeriod); leaked > 0 {
		logger.Warn("slots leaked at shutdown", "leaked", leaked)
	}
}
