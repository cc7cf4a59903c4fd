package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quantregime/qrse/internal/tick"
)

// KrakenReadTimeout bounds how long a single read may block before the
// connection is considered dead (grounded on the teacher's 60s read
// deadline in internal/providers/kraken/websocket.go).
const KrakenReadTimeout = 60 * time.Second

// KrakenSource implements Source for a single instrument over Kraken's
// public WebSocket ticker channel, adapted from the teacher's
// WebSocketClient (internal/providers/kraken/websocket.go) but simplified
// to the blocking-Connect shape the Supervisor expects.
type KrakenSource struct {
	Instrument string // e.g. "BTC/USD"
	Pair       string // Kraken wire pair, e.g. "XBT/USD"
	BaseURL    string
}

// NewKrakenSource creates a KrakenSource for one instrument. BaseURL
// defaults to Kraken's public WebSocket endpoint when empty.
func NewKrakenSource(instrument, pair, baseURL string) *KrakenSource {
	if baseURL == "" {
		baseURL = "wss://ws.kraken.com"
	}
	return &KrakenSource{Instrument: instrument, Pair: pair, BaseURL: baseURL}
}

// Connect dials Kraken, subscribes to the ticker channel for Pair, and
// streams decoded Ticks on out until ctx is cancelled or the connection
// drops, at which point it returns the error so the Supervisor can back
// off and redial (spec.md §4.1).
func (k *KrakenSource) Connect(ctx context.Context, out chan<- tick.Tick) error {
	u, err := url.Parse(k.BaseURL)
	if err != nil {
		return fmt.Errorf("kraken: invalid websocket url: %w", err)
	}

	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = HandshakeTimeout

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("kraken: dial failed: %w", err)
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"event": "subscribe",
		"pair":  []string{k.Pair},
		"subscription": map[string]interface{}{
			"name": "ticker",
		},
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("kraken: marshal subscription: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("kraken: send subscription: %w", err)
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(KrakenReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return ctx.Err()
			default:
			}
			return fmt.Errorf("kraken: read failed: %w", err)
		}

		t, ok, err := k.decode(data)
		if err != nil {
			log.Debug().Err(err).Str("instrument", k.Instrument).Msg("kraken: skipping malformed message")
			continue
		}
		if !ok {
			continue
		}

		select {
		case out <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decode parses a raw Kraken channel message into a Tick. It returns
// ok=false for non-ticker messages (subscription acks, heartbeats) rather
// than treating them as errors.
func (k *KrakenSource) decode(data []byte) (tick.Tick, bool, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil || len(arr) < 4 {
		return tick.Tick{}, false, nil
	}

	// Kraken's ticker channel wire shape is [channelID, {a,b,c,...}, name, pair].
	var payload struct {
		Ask []string `json:"a"`
		Bid []string `json:"b"`
		C   []string `json:"c"` // last trade: [price, lot volume]
	}
	if err := json.Unmarshal(arr[1], &payload); err != nil {
		return tick.Tick{}, false, nil
	}
	if len(payload.Ask) == 0 || len(payload.Bid) == 0 {
		return tick.Tick{}, false, nil
	}

	ask, err := strconv.ParseFloat(payload.Ask[0], 64)
	if err != nil {
		return tick.Tick{}, false, fmt.Errorf("kraken: parse ask: %w", err)
	}
	bid, err := strconv.ParseFloat(payload.Bid[0], 64)
	if err != nil {
		return tick.Tick{}, false, fmt.Errorf("kraken: parse bid: %w", err)
	}

	var lastPrice, lastSize float64
	if len(payload.C) >= 2 {
		lastPrice, _ = strconv.ParseFloat(payload.C[0], 64)
		lastSize, _ = strconv.ParseFloat(payload.C[1], 64)
	}

	now := time.Now().UTC()
	t := tick.Tick{
		Instrument:      k.Instrument,
		Exchange:        "kraken",
		MonotonicIngest: now,
		ExchangeTime:    now,
		MidPrice:        (bid + ask) / 2,
		Bid:             bid,
		Ask:             ask,
		LastTradePrice:  lastPrice,
		LastTradeSize:   lastSize,
	}
	return t, true, nil
}
