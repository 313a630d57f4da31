// Package dex wraps the on-chain DEX contract: order placement encoded as
// token transfers with an order memo, order cancellation, and raw order-book
// table reads.
package dex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bensig/golibre/internal/chain"
	"github.com/bensig/golibre/internal/domain"
	"github.com/bensig/golibre/pkg/logger"
)

var log = logger.WithField("component", "dex")

// OrderBookTable is the DEX contract table holding resting orders.
const OrderBookTable = "orderbook2"

// OrderBookRow is one raw row of the order book table.
type OrderBookRow struct {
	Identifier uint64      `json:"identifier"`
	Account    string      `json:"account"`
	Price      json.Number `json:"price"`
	Quantity   json.Number `json:"quantity"`
	// OrderType is "bid" or "offer".
	OrderType string `json:"order_type"`
}

// ChainClient is the part of the chain client the gateway needs.
type ChainClient interface {
	GetTable(ctx context.Context, q chain.TableQuery) ([]json.RawMessage, error)
	SubmitTransaction(ctx context.Context, action chain.Action, actor string) (string, error)
}

// Gateway submits DEX operations and reads DEX tables for one contract.
type Gateway struct {
	chain    ChainClient
	contract string
}

func NewGateway(chainClient ChainClient, contract string) *Gateway {
	if contract == "" {
		contract = "dex.libre"
	}
	return &Gateway{chain: chainClient, contract: contract}
}

// Contract returns the DEX contract account.
func (g *Gateway) Contract() string { return g.contract }

// PlaceOrder submits a new order. On this DEX an order is a token transfer to
// the DEX contract carrying a "{side}:{qty} {base}:{price} {quote}" memo: a
// buy escrows the quote token, a sell escrows the base token. For a buy the
// transferred amount is the order's quote value (quantity times price), not
// the base quantity named in the memo. The transfer must be pushed against
// the escrowed token's own contract.
func (g *Gateway) PlaceOrder(ctx context.Context, account string, pair domain.TradingPair, side domain.Side, quantity, price decimal.Decimal) (string, error) {
	priceStr := price.StringFixed(10)
	memo := fmt.Sprintf("%s:%s %s:%s %s",
		side, quantity.StringFixed(pair.BasePrecision), pair.BaseSymbol, priceStr, pair.QuoteSymbol)

	// A sell escrows the base asset being sold; a buy escrows the quote
	// value of the order (quantity x price).
	tokenContract := pair.BaseContract
	transferQty := fmt.Sprintf("%s %s", quantity.StringFixed(pair.BasePrecision), pair.BaseSymbol)
	if side == domain.SideBuy {
		tokenContract = pair.QuoteContract
		transferQty = fmt.Sprintf("%s %s", quantity.Mul(price).StringFixed(pair.QuotePrecision), pair.QuoteSymbol)
	}

	action := chain.Action{
		Contract: tokenContract,
		Name:     "transfer",
		Data: map[string]string{
			"from":     account,
			"to":       g.contract,
			"quantity": transferQty,
			"memo":     memo,
		},
	}
	txid, err := g.chain.SubmitTransaction(ctx, action, account)
	if err != nil {
		return "", err
	}
	log.Debugf("placed %s %s @ %s for %s on %s (tx=%s)",
		side, quantity, priceStr, account, pair.Symbol(), txid)
	return txid, nil
}

// CancelOrder cancels a resting order by its exchange-assigned id.
func (g *Gateway) CancelOrder(ctx context.Context, account string, orderID uint64) (string, error) {
	action := chain.Action{
		Contract: g.contract,
		Name:     "cancelorder",
		Data: map[string]interface{}{
			"owner":    account,
			"order_id": orderID,
		},
	}
	txid, err := g.chain.SubmitTransaction(ctx, action, account)
	if err != nil {
		return "", err
	}
	log.Debugf("cancelled order %d for %s (tx=%s)", orderID, account, txid)
	return txid, nil
}

// FetchOrderBook reads all raw order book rows for a pair, preserving the
// exchange's row order. Rows that fail to decode are returned as raw entries
// in malformed for the caller to count; decoding the rest continues.
func (g *Gateway) FetchOrderBook(ctx context.Context, pair domain.TradingPair) (rows []OrderBookRow, malformed int, err error) {
	raw, err := g.chain.GetTable(ctx, chain.TableQuery{
		Code:  g.contract,
		Table: OrderBookTable,
		Scope: pair.Scope(),
	})
	if err != nil {
		return nil, 0, err
	}
	for _, r := range raw {
		var row OrderBookRow
		if err := json.Unmarshal(r, &row); err != nil {
			malformed++
			log.Warnf("dropping malformed order book row for %s: %v", pair.Symbol(), err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, malformed, nil
}
