package exchange

import (
	"context"
	"encoding/json"
	"strings"

	"tokenflow/models"
)

// Adapter executes trade orders on one venue. Implementations must be safe
// for concurrent use.
type Adapter interface {
	// Name returns the venue name the adapter executes on.
	Name() string
	// MarketBuy submits a quote-quantity market buy for the given trading
	// account and returns the venue's raw order response.
	MarketBuy(ctx context.Context, account models.TradingAccount, order models.TradeOrder) (json.RawMessage, error)
}

// Registry holds the execution adapters keyed by lower-cased venue name.
type Registry map[string]Adapter

// NewRegistry indexes the given adapters by venue name.
func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[strings.ToLower(a.Name())] = a
	}
	return r
}

// Lookup resolves the adapter for a venue, matching case-insensitively.
func (r Registry) Lookup(venue string) (Adapter, bool) {
	a, ok := r[strings.ToLower(strings.TrimSpace(venue))]
	return a, ok
}
