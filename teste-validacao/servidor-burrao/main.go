package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Upstream de validação manual do gateway: mostra o slot recebido e, com
// ?delay=2s, segura a requisição para dar tempo de testar o dreno.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	http.HandleFunc("/showTela", func(w http.ResponseWriter, r *http.Request) {
		slot := r.Header.Get("X-Request-Slot")
		if d, err := time.ParseDuration(r.URL.Query().Get("delay")); err == nil && d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Tela do Sistema</h1><p>Requisição recebida no slot %s</p>", slot)
		logger.Info("showTela", "slot", slot, "request_id", r.Header.Get("X-Request-Id"))
	})

	logger.Info("servidor rodando", "addr", "http://localhost:8081")
	if err := http.ListenAndServe(":8081", nil); err != nil {
		logger.Error("erro ao subir o servidor", "error", err)
		os.Exit(1)
	}
}
