// Prediction-market intelligence backend — ingests quotes from two
// exchanges, persists a normalized quote stream, classifies a semantic
// relationship graph over a market catalog, hunts cross-venue arbitrage,
// and serves on-demand scenario stress tests.
//
// Architecture:
//
//	main.go                     — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	internal/engine/engine.go   — orchestrator: wires ingestion -> batch writer -> scanner -> classifier -> scenario engine -> API
//	internal/ingest/            — Quote Ingestor: one session per exchange, reconnect-with-backoff, microstructure enrichment
//	internal/batchwriter/       — Batch Writer: size/time-triggered bounded-burst persistence with retry-by-requeue
//	internal/arbitrage/         — Arbitrage Scanner: periodic cross-venue spread/liquidity gate over the relationship graph
//	internal/classifier/        — Relationship Classifier: one-shot pairwise analyst-model classification workflow
//	internal/scenario/          — Scenario Engine: bounded BFS with direction propagation and confidence decay, narrative generation
//	internal/api/               — HTTP API consumed by the dashboard
//	internal/store/             — PostgREST-style client for the persistent table store
//	internal/analyst/           — OpenAI-compatible client for the external analyst-model endpoint
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"marketintel/internal/config"
	"marketintel/internal/engine"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng := engine.New(*cfg, logger)
	eng.Start()

	logger.Info("prediction-market intelligence backend started",
		"http_port", cfg.HTTP.Port,
		"persistent_store_url", cfg.Store.URL,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
