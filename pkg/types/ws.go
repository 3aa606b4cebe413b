package types

// Exchange A (order-book venue) inbound message shapes. One variant per
// message family so decoding is total: an unrecognized event_type is
// visible at the dispatch site rather than silently ignored.

// WSAEnvelope is peeked to route a raw Exchange A frame to its typed variant.
type WSAEnvelope struct {
	EventType string `json:"event_type"`
	Asset     string `json:"asset"`
}

type WSATrade struct {
	Asset     string  `json:"asset"`
	Price     string  `json:"price"`
	Size      string  `json:"size"`
	Side      string  `json:"side"`
	Timestamp string  `json:"timestamp"`
}

type WSALastTradePrice struct {
	Asset string `json:"asset"`
	Price string `json:"price"`
}

type WSAPriceChange struct {
	Asset   string `json:"asset"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

type WSABook struct {
	Asset string       `json:"asset"`
	Bids  []PriceLevel `json:"bids"`
	Asks  []PriceLevel `json:"asks"`
}

// WSASubscribe is the single outbound subscription frame Exchange A expects
// on open: a channel name, the asset list, and an optional credential.
type WSASubscribe struct {
	Channel string   `json:"channel"`
	Assets  []string `json:"assets"`
	APIKey  string   `json:"api_key,omitempty"`
}

// Exchange B (ticker venue) inbound message shapes.

type WSBEnvelope struct {
	Type   string `json:"type"`
	Ticker string `json:"ticker"`
}

type WSBTrade struct {
	Ticker    string `json:"ticker"`
	YesPrice  int    `json:"yes_price"` // cents
	NoPrice   int    `json:"no_price"`  // cents
	Count     int    `json:"count"`
	TakerSide string `json:"taker_side"` // "yes" or "no"
	Timestamp int64  `json:"timestamp"`
}

type WSBTicker struct {
	Ticker    string  `json:"ticker"`
	YesBid    int     `json:"yes_bid"`
	YesAsk    int     `json:"yes_ask"`
	NoBid     int     `json:"no_bid"`
	NoAsk     int     `json:"no_ask"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

type WSBSubscribed struct {
	Channel string `json:"channel"`
}

type WSBError struct {
	Message string `json:"message"`
}

// WSBSubscribe is one of the two outbound subscription frames Exchange B
// expects on open (trade channel, ticker channel), each naming a ticker list.
type WSBSubscribe struct {
	Type     string   `json:"type"`
	Channel  string   `json:"channel"`
	Tickers  []string `json:"market_tickers"`
}
