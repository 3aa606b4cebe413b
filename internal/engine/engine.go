// Package engine is the central orchestrator of the prediction-market
// intelligence backend. It wires together the five spec components plus
// the dashboard-facing HTTP API and owns their combined lifecycle.
//
// Lifecycle: New() -> Start() -> [runs until shutdown] -> Stop()
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"marketintel/internal/analyst"
	"marketintel/internal/api"
	"marketintel/internal/arbitrage"
	"marketintel/internal/batchwriter"
	"marketintel/internal/classifier"
	"marketintel/internal/config"
	"marketintel/internal/ingest"
	"marketintel/internal/scenario"
	"marketintel/internal/store"
)

// scenarioShutdownGrace bounds how long Stop waits for the background tasks
// to return after cancellation (spec §5 cancellation: "up to a short grace
// period, e.g. 10 seconds"). In-flight scenario requests are drained before
// that, by the API server's own graceful shutdown.
const scenarioShutdownGrace = 10 * time.Second

// Engine orchestrates ingestion, persistence, the two analytical workloads,
// and the dashboard API.
type Engine struct {
	cfg config.Config

	store      *store.Client
	analyst    *analyst.Client
	ingestor   *ingest.Ingestor
	writer     *batchwriter.Writer
	arbitrage  *arbitrage.Scanner
	classifier *classifier.Classifier
	scenario   *scenario.Engine
	api        *api.Server

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires all engine components from cfg.
func New(cfg config.Config, logger *slog.Logger) *Engine {
	s := store.New(cfg.Store.URL, cfg.Store.ServiceKey, logger)
	a := analyst.New(cfg.Analyst.Endpoint, cfg.Analyst.APIKey, cfg.Analyst.Model, logger)
	writer := batchwriter.New(cfg.Batch, s, logger)
	ingestor := ingest.New(&cfg, writer, logger)
	scanner := arbitrage.New(cfg.Arbitrage, s, logger)
	cls := classifier.New(cfg.Classifier, a, s, logger)
	scenarioEngine := scenario.New(cfg.Scenario, a, s, logger)
	apiServer := api.NewServer(cfg.HTTP, cfg.Classifier, s, scenarioEngine, logger)

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:        cfg,
		store:      s,
		analyst:    a,
		ingestor:   ingestor,
		writer:     writer,
		arbitrage:  scanner,
		classifier: cls,
		scenario:   scenarioEngine,
		api:        apiServer,
		logger:     logger.With("component", "engine"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches all background tasks named in spec §5: the two ingestor
// sessions, the batch-flush timer, the arbitrage-scan timer, the one-shot
// classifier run, and the HTTP API. It returns once everything has been
// started; the tasks themselves run until Stop is called.
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.ingestor.Run(e.ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.writer.Run(e.ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.arbitrage.Run(e.ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.classifier.Run(e.ctx); err != nil {
			e.logger.Error("classifier run failed", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.api.Start(); err != nil {
			e.logger.Error("api server failed", "error", err)
		}
	}()

	e.logger.Info("engine started",
		"http_port", e.cfg.HTTP.Port,
		"classifier_concurrency", e.cfg.Classifier.Concurrency,
		"scenario_max_depth", e.cfg.Scenario.MaxDepth,
	)
}

// Stop cancels all background tasks, performs a final batch-writer flush
// (via the writer's own ctx.Done handling), waits up to a short grace
// period for anything still in flight, and returns.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	if err := e.api.Stop(); err != nil {
		e.logger.Error("failed to stop api server", "error", err)
	}

	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(scenarioShutdownGrace):
		e.logger.Warn("shutdown grace period elapsed with tasks still running")
	}

	e.logger.Info("shutdown complete")
}
