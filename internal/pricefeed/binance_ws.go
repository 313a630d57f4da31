package pricefeed

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const binanceStreamURL = "wss://stream.binance.com:9443/ws"

// BinanceStreamSource keeps a live mid price from the Binance bookTicker
// stream. GetPrice never blocks on the network; it returns the last streamed
// value and ErrUnavailable until the first tick (or after the price goes
// stale).
type BinanceStreamSource struct {
	symbol   string
	staleAge time.Duration

	mu        sync.RWMutex
	lastPrice decimal.Decimal
	lastAt    time.Time

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewBinanceStreamSource creates a streaming source for symbol.
func NewBinanceStreamSource(symbol string) *BinanceStreamSource {
	return &BinanceStreamSource{
		symbol:   strings.ToLower(symbol),
		staleAge: 30 * time.Second,
	}
}

type bookTickerEvent struct {
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
}

func (s *BinanceStreamSource) GetPrice(ctx context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastAt.IsZero() {
		return decimal.Zero, errors.Wrapf(ErrUnavailable, "binance stream %s: no tick yet", s.symbol)
	}
	if time.Since(s.lastAt) > s.staleAge {
		return decimal.Zero, errors.Wrapf(ErrUnavailable, "binance stream %s: stale since %s", s.symbol, s.lastAt.Format(time.RFC3339))
	}
	return s.lastPrice, nil
}

// Start launches the read loop. Reconnects with backoff until Stop.
func (s *BinanceStreamSource) Start(ctx context.Context) error {
	s.once.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.run(runCtx)
	})
	return nil
}

func (s *BinanceStreamSource) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *BinanceStreamSource) run(ctx context.Context) {
	defer close(s.done)
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.readStream(ctx); err != nil && ctx.Err() == nil {
			log.Warnf("binance stream %s disconnected: %v (reconnecting in %s)", s.symbol, err, backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *BinanceStreamSource) readStream(ctx context.Context) error {
	url := binanceStreamURL + "/" + s.symbol + "@bookTicker"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Infof("binance stream connected: %s", url)

	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-readerDone:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev bookTickerEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		bid, errB := decimal.NewFromString(ev.BidPrice)
		ask, errA := decimal.NewFromString(ev.AskPrice)
		if errB != nil || errA != nil {
			continue
		}
		mid := bid.Add(ask).Div(decimal.NewFromInt(2))
		s.mu.Lock()
		s.lastPrice = mid
		s.lastAt = time.Now()
		s.mu.Unlock()
	}
}
