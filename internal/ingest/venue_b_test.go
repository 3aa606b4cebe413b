package ingest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"marketintel/internal/config"
	"marketintel/internal/microstructure"
)

func testPrivateKeyBase64(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der := x509.MarshalPKCS1PrivateKey(key)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	return base64.StdEncoding.EncodeToString(pem.EncodeToMemory(block))
}

func newTestVenueBSession(t *testing.T) (*VenueBSession, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	cache := microstructure.New()
	cfg := config.ExchangeBConfig{APIKey: "key", PrivateKeyBase64: testPrivateKeyBase64(t)}
	s := NewVenueBSession("wss://example.invalid", cfg, config.ReconnectConfig{BaseDelayMS: 1, MaxDelayMS: 2}, cache, sink, nopLogger())
	return s, sink
}

func TestVenueBSignerProducesWellFormedHeader(t *testing.T) {
	t.Parallel()
	s, _ := newTestVenueBSession(t)
	header, err := s.authHeader()
	if err != nil {
		t.Fatalf("authHeader() error = %v", err)
	}
	if header.Get("ACCESS-KEY") != "key" {
		t.Errorf("ACCESS-KEY = %q, want %q", header.Get("ACCESS-KEY"), "key")
	}
	if header.Get("ACCESS-TIMESTAMP") == "" {
		t.Error("ACCESS-TIMESTAMP is empty")
	}
	if header.Get("ACCESS-SIGNATURE") == "" {
		t.Error("ACCESS-SIGNATURE is empty")
	}
}

func TestNewVenueBSessionWithoutKeyHasNilSigner(t *testing.T) {
	t.Parallel()
	sink := &fakeSink{}
	cache := microstructure.New()
	s := NewVenueBSession("wss://example.invalid", config.ExchangeBConfig{}, config.ReconnectConfig{}, cache, sink, nopLogger())
	if s.signer != nil {
		t.Error("expected nil signer when no private key is configured")
	}
}

func TestCentsToFraction(t *testing.T) {
	t.Parallel()
	if got := centsToFraction(64); got != 0.64 {
		t.Errorf("centsToFraction(64) = %v, want 0.64", got)
	}
}

func TestVenueBTradeAndTickerDecoding(t *testing.T) {
	t.Parallel()
	s, sink := newTestVenueBSession(t)

	s.dispatchMessage([]byte(`{"type":"trade","ticker":"Y","yes_price":50,"count":3,"taker_side":"yes"}`))
	if sink.QueueLen() != 1 {
		t.Fatalf("got %d quotes after first trade, want 1", sink.QueueLen())
	}
	if sink.quotes[0].Price != 0.50 {
		t.Errorf("quote price = %v, want 0.50", sink.quotes[0].Price)
	}

	s.dispatchMessage([]byte(`{"type":"ticker","ticker":"Y","yes_bid":48,"yes_ask":52,"volume":1000}`))
	s.dispatchMessage([]byte(`{"type":"trade","ticker":"Y","yes_price":55,"count":1,"taker_side":"no"}`))
	if len(sink.quotes) != 2 {
		t.Fatalf("got %d quotes after second trade, want 2", len(sink.quotes))
	}
	if got := sink.quotes[1].Price; got != 0.50 {
		t.Errorf("second trade price = %v, want 0.50 (ticker mid, not trade price 0.55)", got)
	}
	if sink.quotes[1].Side != "sell" {
		t.Errorf("second trade side = %v, want sell for taker_side=no", sink.quotes[1].Side)
	}
}

func TestVenueBErrorFrameDoesNotPanic(t *testing.T) {
	t.Parallel()
	s, _ := newTestVenueBSession(t)
	s.dispatchMessage([]byte(`{"type":"error","message":"bad subscription"}`))
}
