package ingest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"marketintel/internal/config"
	"marketintel/internal/microstructure"
	"marketintel/pkg/types"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSink records enqueued quotes without any queueing semantics, enough
// to observe what a session decided to emit.
type fakeSink struct {
	mu     sync.Mutex
	quotes []types.Quote
}

func (f *fakeSink) Enqueue(q types.Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes = append(f.quotes, q)
}

func (f *fakeSink) QueueLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.quotes)
}

func newTestVenueASession() (*VenueASession, *fakeSink) {
	sink := &fakeSink{}
	cache := microstructure.New()
	s := NewVenueASession("wss://example.invalid", config.ExchangeAConfig{}, config.ReconnectConfig{BaseDelayMS: 1, MaxDelayMS: 2}, cache, sink, nopLogger())
	return s, sink
}

// TestIngestScenarioOneWorkedExample reproduces spec §8 scenario 1: two
// trade frames for asset X and one book snapshot in between, expecting the
// second trade to be enriched by the book's mid rather than its own price.
func TestIngestScenarioOneWorkedExample(t *testing.T) {
	t.Parallel()
	s, sink := newTestVenueASession()

	s.dispatchMessage([]byte(`{"event_type":"trade","asset":"X","price":"0.64","size":"10","side":"buy"}`))
	s.dispatchMessage([]byte(`{"event_type":"book","asset":"X","bids":[[0.63,100]],"asks":[[0.65,100]]}`))
	s.dispatchMessage([]byte(`{"event_type":"trade","asset":"X","price":"0.66","size":"10","side":"buy"}`))

	if len(sink.quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(sink.quotes))
	}
	if sink.quotes[0].Price != 0.64 {
		t.Errorf("quote[0].Price = %v, want 0.64", sink.quotes[0].Price)
	}
	if sink.quotes[1].Price != 0.64 {
		t.Errorf("quote[1].Price = %v, want 0.64 (book mid, not trade price 0.66)", sink.quotes[1].Price)
	}
	if sink.quotes[1].LiquidityDepthUSD != 128 {
		t.Errorf("quote[1].LiquidityDepthUSD = %v, want 128", sink.quotes[1].LiquidityDepthUSD)
	}
	if sink.quotes[1].BidAskSpreadPct == nil {
		t.Fatal("quote[1].BidAskSpreadPct is nil, want a value near 3.125")
	}
	if got := *sink.quotes[1].BidAskSpreadPct; got < 3.1 || got > 3.15 {
		t.Errorf("quote[1].BidAskSpreadPct = %v, want ~3.125", got)
	}
}

func TestDispatchMessageIgnoresUnknownEventType(t *testing.T) {
	t.Parallel()
	s, sink := newTestVenueASession()
	s.dispatchMessage([]byte(`{"event_type":"something_new","asset":"X"}`))
	if sink.QueueLen() != 0 {
		t.Errorf("unknown event type produced %d quotes, want 0", sink.QueueLen())
	}
}

func TestDispatchMessageMalformedFrameDoesNotPanic(t *testing.T) {
	t.Parallel()
	s, _ := newTestVenueASession()
	s.dispatchMessage([]byte(`not json`))
}

func TestEmitFromTradeSkipsWhenNoPriceResolvable(t *testing.T) {
	t.Parallel()
	s, sink := newTestVenueASession()
	s.dispatchMessage([]byte(`{"event_type":"price_change","asset":"X","best_bid":"0","best_ask":"0"}`))
	if sink.QueueLen() != 0 {
		t.Errorf("got %d quotes, want 0 when no price can be resolved", sink.QueueLen())
	}
}

func TestHighWaterMarkDropsMessages(t *testing.T) {
	t.Parallel()
	s, sink := newTestVenueASession()
	for i := 0; i < venueAHighWaterMark; i++ {
		sink.quotes = append(sink.quotes, types.Quote{})
	}
	s.dispatchMessage([]byte(`{"event_type":"trade","asset":"X","price":"0.5","size":"1","side":"buy"}`))
	if sink.QueueLen() != venueAHighWaterMark {
		t.Errorf("got %d quotes, want no new quote appended over the high water mark", sink.QueueLen())
	}
}

func TestBackoffIsCapped(t *testing.T) {
	t.Parallel()
	base, cap := 10*time.Millisecond, 100*time.Millisecond
	for attempt := 0; attempt < 10; attempt++ {
		d := backoff(attempt, base, cap)
		if d > cap+base {
			t.Errorf("backoff(%d) = %v, want <= cap+jitter (%v)", attempt, d, cap+base)
		}
	}
}

func TestSleepOrDoneReturnsFalseOnCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if ok := sleepOrDone(ctx, time.Second); ok {
		t.Error("sleepOrDone() = true on a cancelled context, want false")
	}
}
