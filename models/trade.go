package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of a trade order.
type OrderSide string

// OrderType selects the execution style of a trade order.
type OrderType string

const (
	OrderSideBuy    OrderSide = "BUY"
	OrderTypeMarket OrderType = "MARKET"
)

// QuoteAsset is the quote currency every automation buy settles in.
const QuoteAsset = "USDT"

// TradeOrder is an ephemeral market-buy intent produced for one matched
// token. QuoteQty is denominated in the quote asset, not the token.
type TradeOrder struct {
	Symbol   string          `json:"symbol"`
	Side     OrderSide       `json:"side"`
	Type     OrderType       `json:"type"`
	QuoteQty decimal.Decimal `json:"quote_qty"`
	ClientID string          `json:"client_id"`
}

// TradeResult captures the outcome of submitting one TradeOrder. Response
// holds the venue's raw order payload when the submission succeeded.
type TradeResult struct {
	RuleID    uint            `json:"rule_id"`
	Venue     string          `json:"venue"`
	Token     string          `json:"token"`
	Order     TradeOrder      `json:"order"`
	Response  json.RawMessage `json:"response,omitempty"`
	Err       error           `json:"-"`
	Timestamp time.Time       `json:"timestamp"`
}

// TradingAccount is the external collaborator's view of an execution account.
// Exchange names the venue the account trades on and selects the adapter.
type TradingAccount struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Exchange  string `json:"exchange"`
	APIKey    string `json:"api_key,omitempty"`
	APISecret string `json:"api_secret,omitempty"`
	Verified  bool   `json:"verified"`
}
