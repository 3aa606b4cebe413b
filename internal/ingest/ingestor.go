package ingest

import (
	"context"
	"log/slog"
	"sync"

	"marketintel/internal/config"
	"marketintel/internal/microstructure"
)

// Ingestor owns both venue sessions and runs them concurrently, each with
// its own independent reconnect loop (spec §4.1: "Sessions never share
// fate").
type Ingestor struct {
	venueA *VenueASession
	venueB *VenueBSession
}

// New constructs the two venue sessions against a shared sink, with each
// venue's microstructure state kept in its own cache since the two venues
// never share an asset key space.
func New(cfg *config.Config, sink QuoteSink, logger *slog.Logger) *Ingestor {
	cacheA := microstructure.New()
	cacheB := microstructure.New()

	return &Ingestor{
		venueA: NewVenueASession(exchangeAURL, cfg.ExchangeA, cfg.Reconnect, cacheA, sink, logger),
		venueB: NewVenueBSession(exchangeBURL, cfg.ExchangeB, cfg.Reconnect, cacheB, sink, logger),
	}
}

// exchangeAURL and exchangeBURL are the fixed venue endpoints (spec §6
// describes their message shapes, not their network location, since that is
// an externally provisioned detail outside the configuration surface the
// spec enumerates).
const (
	exchangeAURL = "wss://ws-subscriptions-clob.exchange-a.example/ws/market"
	exchangeBURL = "wss://trading-api.exchange-b.example/trade-api/ws/v2"
)

// Run blocks until ctx is cancelled, running both sessions concurrently.
func (i *Ingestor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		i.venueA.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		i.venueB.Run(ctx)
	}()
	wg.Wait()
}
