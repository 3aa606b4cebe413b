package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketintel/internal/config"
	"marketintel/internal/microstructure"
	"marketintel/internal/quote"
	"marketintel/pkg/types"
)

// Exchange A (order-book venue) timing constants, kept at the same relative
// scale as the teacher's WSFeed: a liveness probe roughly a third of the
// read deadline.
const (
	venueAPingInterval = 20 * time.Second
	venueAReadTimeout  = 60 * time.Second
	venueAWriteTimeout = 10 * time.Second
	venueAHighWaterMark = 250
)

// VenueASession maintains the order-book venue's WebSocket session:
// subscribe on open, decode book/trade frames, update the microstructure
// cache, and emit normalized quotes.
type VenueASession struct {
	url      string
	assetIDs []string
	apiKey   string

	reconnect config.ReconnectConfig

	cache  *microstructure.Cache
	sink   QuoteSink
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewVenueASession creates a session for the order-book venue.
func NewVenueASession(url string, cfg config.ExchangeAConfig, reconnect config.ReconnectConfig, cache *microstructure.Cache, sink QuoteSink, logger *slog.Logger) *VenueASession {
	return &VenueASession{
		url:       url,
		assetIDs:  cfg.AssetIDs,
		apiKey:    cfg.APIKey,
		reconnect: reconnect,
		cache:     cache,
		sink:      sink,
		logger:    newSessionLogger(logger, "exchange-a"),
	}
}

// Run maintains the session until ctx is cancelled, reconnecting with
// capped exponential backoff on any disconnection or protocol error. A
// failure here never propagates to the other venue's session.
func (s *VenueASession) Run(ctx context.Context) {
	if len(s.assetIDs) == 0 {
		s.logger.Warn("no asset ids configured, session will open but receive no data")
	}

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("session error, reconnecting", "error", err, "attempt", attempt)
			delay := backoff(attempt, s.reconnect.BaseDelay(), s.reconnect.MaxDelay())
			if !sleepOrDone(ctx, delay) {
				return
			}
			attempt++
			continue
		}
		if ctx.Err() != nil {
			return
		}
		attempt = 0
	}
}

func (s *VenueASession) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	defer func() {
		conn.Close()
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
	}()

	sub := types.WSASubscribe{Channel: "market", Assets: s.assetIDs, APIKey: s.apiKey}
	if err := s.writeJSON(sub); err != nil {
		return err
	}
	s.logger.Info("exchange A session connected", "assets", len(s.assetIDs))

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go s.pingLoop(pingCtx)

	for {
		conn.SetReadDeadline(time.Now().Add(venueAReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.dispatchMessage(msg)
	}
}

func (s *VenueASession) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(venueAPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
				s.logger.Warn("ping failed", "error", err)
			}
		}
	}
}

func (s *VenueASession) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.writeMessage(websocket.TextMessage, data)
}

func (s *VenueASession) writeMessage(messageType int, data []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return errors.New("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(venueAWriteTimeout))
	return s.conn.WriteMessage(messageType, data)
}

// dispatchMessage peeks event_type and routes to the matching decoder,
// keeping decoding total: an unrecognized event_type is logged, not
// silently dropped (spec §9 design note on explicit per-venue variants).
func (s *VenueASession) dispatchMessage(raw []byte) {
	var envelope types.WSAEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.logger.Warn("malformed frame", "error", err)
		return
	}

	switch envelope.EventType {
	case "book", "book_snapshot":
		var evt types.WSABook
		if err := json.Unmarshal(raw, &evt); err != nil {
			s.logger.Warn("malformed book frame", "error", err)
			return
		}
		s.cache.ApplyBook(evt.Asset, evt.Bids, evt.Asks, time.Now())
	case "price_change":
		var evt types.WSAPriceChange
		if err := json.Unmarshal(raw, &evt); err != nil {
			s.logger.Warn("malformed price_change frame", "error", err)
			return
		}
		bid, _ := strconv.ParseFloat(evt.BestBid, 64)
		ask, _ := strconv.ParseFloat(evt.BestAsk, 64)
		s.cache.ApplyPriceChange(evt.Asset, bid, ask, time.Now())
		s.emitFromTrade(evt.Asset, 0, 0, "", true)
	case "trade":
		var evt types.WSATrade
		if err := json.Unmarshal(raw, &evt); err != nil {
			s.logger.Warn("malformed trade frame", "error", err)
			return
		}
		price, _ := strconv.ParseFloat(evt.Price, 64)
		size, _ := strconv.ParseFloat(evt.Size, 64)
		s.emitFromTrade(evt.Asset, price, size, evt.Side, false)
	case "last_trade_price":
		var evt types.WSALastTradePrice
		if err := json.Unmarshal(raw, &evt); err != nil {
			s.logger.Warn("malformed last_trade_price frame", "error", err)
			return
		}
		price, _ := strconv.ParseFloat(evt.Price, 64)
		s.emitFromTrade(evt.Asset, price, 0, "", false)
	case "pong", "subscribed", "":
		// informational; nothing to do
	default:
		s.logger.Debug("unhandled exchange A event type", "event_type", envelope.EventType)
	}
}

// emitFromTrade builds and emits a normalized quote for asset, preferring
// mid-of-best-bid-ask over the trade price, enriched from the microstructure
// cache (spec §4.1 trade/price-change message handling). fromPriceChange
// quotes carry no trade price or side of their own; the cache mid alone
// drives emission, and emission is skipped if no price is resolvable.
func (s *VenueASession) emitFromTrade(asset string, tradePrice, size float64, side string, fromPriceChange bool) {
	if highWaterMarkExceeded(s.sink, venueAHighWaterMark) {
		s.logger.Warn("queue overloaded, dropping message for asset", "asset", asset)
		return
	}

	entry, hasEntry := s.cache.Get(asset)
	price, hasPrice := entry.Mid()
	if !hasPrice {
		if fromPriceChange || tradePrice <= 0 {
			return
		}
		price, hasPrice = tradePrice, true
	}
	if !hasPrice {
		return
	}

	var depth float64
	var spreadPct *float64
	var volume *float64
	if hasEntry {
		depth = entry.DepthUSD
		if entry.HasSpread {
			spreadPct = quote.SpreadPct(entry.SpreadPct, price)
		}
		if entry.HasVolume {
			v := entry.Volume24h
			volume = &v
		}
	}

	score, flag := quote.Confidence(depth, spreadPct)
	_ = score

	q := types.Quote{
		ID:                newQuoteID(),
		Timestamp:         time.Now(),
		Platform:          types.PlatformVenueA,
		EventID:           asset,
		Price:             quote.ClampProbability(price),
		Side:              normalizeSide(side),
		Size:              size,
		ProbabilityPct:    quote.ClampProbability(price) * 100,
		LiquidityDepthUSD: depth,
		BidAskSpreadPct:   spreadPct,
		Volume24h:         volume,
		ConfidenceFlag:    flag,
	}
	s.sink.Enqueue(q)
}

func normalizeSide(raw string) types.Side {
	if raw == string(types.SideSell) {
		return types.SideSell
	}
	return types.SideBuy
}
