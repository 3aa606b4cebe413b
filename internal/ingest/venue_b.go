package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketintel/internal/config"
	"marketintel/internal/microstructure"
	"marketintel/internal/quote"
	"marketintel/pkg/types"
)

const (
	venueBWSPath        = "/trade-api/ws/v2"
	venueBWriteTimeout  = 10 * time.Second
	venueBReadTimeout   = 60 * time.Second
	venueBHighWaterMark = 250
)

// VenueBSession maintains the ticker venue's WebSocket session: signed
// connection headers, dual trade/ticker subscription frames, decode, and
// normalized quote emission. Exchange B rejects an application-level ping
// (spec §6), so this session relies on the connection's native keep-alive
// frame instead of the periodic ping loop VenueASession runs.
type VenueBSession struct {
	url     string
	tickers []string
	signer  *venueBSigner

	reconnect config.ReconnectConfig

	cache  *microstructure.Cache
	sink   QuoteSink
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewVenueBSession creates a session for the ticker venue. If no usable
// private key is configured, the session is still created and run (spec §7
// "configuration missing" taxonomy), but every connection attempt fails with
// "no signer configured" before dialing, which the reconnect loop reports
// like any other transient transport error.
func NewVenueBSession(url string, cfg config.ExchangeBConfig, reconnect config.ReconnectConfig, cache *microstructure.Cache, sink QuoteSink, logger *slog.Logger) *VenueBSession {
	sessionLogger := newSessionLogger(logger, "exchange-b")

	signer, err := newVenueBSigner(cfg.APIKey, cfg.PrivateKeyBase64)
	if err != nil {
		sessionLogger.Warn("exchange B signer unavailable, session will fail to authenticate", "error", err)
	}

	return &VenueBSession{
		url:       url,
		tickers:   cfg.Tickers,
		signer:    signer,
		reconnect: reconnect,
		cache:     cache,
		sink:      sink,
		logger:    sessionLogger,
	}
}

// Run maintains the session until ctx is cancelled, mirroring
// VenueASession's independent reconnect loop.
func (s *VenueBSession) Run(ctx context.Context) {
	if len(s.tickers) == 0 {
		s.logger.Warn("no tickers configured, session will open but receive no data")
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

func (s *VenueBSession) connectAndRead(ctx context.Context) error {
	if s.signer == nil {
		return errors.New("no signer configured")
	}

	header, err := s.authHeader()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
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

	if err := s.writeJSON(types.WSBSubscribe{Type: "subscribe", Channel: "trade", Tickers: s.tickers}); err != nil {
		return err
	}
	if err := s.writeJSON(types.WSBSubscribe{Type: "subscribe", Channel: "ticker", Tickers: s.tickers}); err != nil {
		return err
	}
	s.logger.Info("exchange B session connected", "tickers", len(s.tickers))

	for {
		conn.SetReadDeadline(time.Now().Add(venueBReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.dispatchMessage(msg)
	}
}

// authHeader builds the per-connection Authorization headers: access key,
// Unix-millisecond timestamp, and the RSA-PSS signature over
// timestamp||"GET"||path (spec §6).
func (s *VenueBSession) authHeader() (http.Header, error) {
	ts := time.Now().UnixMilli()
	sig, err := s.signer.sign(ts, venueBWSPath)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("ACCESS-KEY", s.signer.apiKey)
	header.Set("ACCESS-TIMESTAMP", strconv.FormatInt(ts, 10))
	header.Set("ACCESS-SIGNATURE", sig)
	return header, nil
}

func (s *VenueBSession) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return errors.New("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(venueBWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// dispatchMessage peeks the frame's type and routes to the matching
// decoder. Exchange B's native pong/keep-alive frames surface here as
// type="pong" and require no action.
func (s *VenueBSession) dispatchMessage(raw []byte) {
	var envelope types.WSBEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.logger.Warn("malformed frame", "error", err)
		return
	}

	switch envelope.Type {
	case "ticker":
		var evt types.WSBTicker
		if err := json.Unmarshal(raw, &evt); err != nil {
			s.logger.Warn("malformed ticker frame", "error", err)
			return
		}
		bid, ask := centsToFraction(evt.YesBid), centsToFraction(evt.YesAsk)
		s.cache.ApplyTicker(evt.Ticker, bid, ask, evt.Volume, time.Now())
	case "trade":
		var evt types.WSBTrade
		if err := json.Unmarshal(raw, &evt); err != nil {
			s.logger.Warn("malformed trade frame", "error", err)
			return
		}
		price := centsToFraction(evt.YesPrice)
		s.emitFromTrade(evt.Ticker, price, float64(evt.Count), sideFromTakerSide(evt.TakerSide))
	case "error":
		var evt types.WSBError
		if err := json.Unmarshal(raw, &evt); err == nil {
			s.logger.Warn("exchange B reported an error", "message", evt.Message)
		}
	case "subscribed", "pong", "":
		// informational; nothing to do
	default:
		s.logger.Debug("unhandled exchange B message type", "type", envelope.Type)
	}
}

// emitFromTrade mirrors VenueASession's normalization: prefer the cache's
// mid when available, otherwise the trade price itself.
func (s *VenueBSession) emitFromTrade(ticker string, tradePrice, size float64, side types.Side) {
	if highWaterMarkExceeded(s.sink, venueBHighWaterMark) {
		s.logger.Warn("queue overloaded, dropping message for ticker", "ticker", ticker)
		return
	}
	if tradePrice <= 0 {
		return
	}

	entry, hasEntry := s.cache.Get(ticker)
	price, hasMid := entry.Mid()
	if !hasMid {
		price = tradePrice
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

	_, flag := quote.Confidence(depth, spreadPct)

	q := types.Quote{
		ID:                newQuoteID(),
		Timestamp:         time.Now(),
		Platform:          types.PlatformVenueB,
		EventID:           ticker,
		Price:             quote.ClampProbability(price),
		Side:              side,
		Size:              size,
		ProbabilityPct:    quote.ClampProbability(price) * 100,
		LiquidityDepthUSD: depth,
		BidAskSpreadPct:   spreadPct,
		Volume24h:         volume,
		ConfidenceFlag:    flag,
	}
	s.sink.Enqueue(q)
}

// centsToFraction converts Exchange B's cents-denominated prices to the
// [0,1] probability fraction used throughout the system.
func centsToFraction(cents int) float64 {
	return float64(cents) / 100.0
}

func sideFromTakerSide(raw string) types.Side {
	if raw == "no" {
		return types.SideSell
	}
	return types.SideBuy
}
