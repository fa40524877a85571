package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"tokenflow/logger"
	"tokenflow/models"
)

type fakeOrderAPI struct {
	accountID string
	order     models.TradeOrder
	resp      json.RawMessage
	err       error
}

func (f *fakeOrderAPI) CreateMEXCOrder(_ context.Context, accountID string, order models.TradeOrder) (json.RawMessage, error) {
	f.accountID = accountID
	f.order = order
	return f.resp, f.err
}

func TestRegistryLookup(t *testing.T) {
	mexc := NewMEXCAdapter(&fakeOrderAPI{}, logger.New())
	reg := NewRegistry(mexc)

	cases := []struct {
		venue string
		found bool
	}{
		{"mexc", true},
		{"MEXC", true},
		{" mexc ", true},
		{"binance", false},
		{"", false},
	}

	for _, tc := range cases {
		a, ok := reg.Lookup(tc.venue)
		if ok != tc.found {
			t.Errorf("Lookup(%q) found = %v, want %v", tc.venue, ok, tc.found)
		}
		if ok && a.Name() != "mexc" {
			t.Errorf("Lookup(%q) resolved %q", tc.venue, a.Name())
		}
	}
}

func TestMEXCAdapterMarketBuy(t *testing.T) {
	api := &fakeOrderAPI{resp: json.RawMessage(`{"orderId":"42"}`)}
	adapter := NewMEXCAdapter(api, logger.New())

	order := models.TradeOrder{
		Symbol:   "ABCUSDT",
		Side:     models.OrderSideBuy,
		Type:     models.OrderTypeMarket,
		QuoteQty: decimal.NewFromInt(50),
		ClientID: "client-1",
	}
	account := models.TradingAccount{ID: "acct-7", Exchange: "mexc"}

	resp, err := adapter.MarketBuy(context.Background(), account, order)
	if err != nil {
		t.Fatalf("MarketBuy: %v", err)
	}
	if string(resp) != `{"orderId":"42"}` {
		t.Errorf("response = %s", resp)
	}
	if api.accountID != "acct-7" {
		t.Errorf("account routed = %q", api.accountID)
	}
	if api.order.Symbol != "ABCUSDT" || api.order.ClientID != "client-1" {
		t.Errorf("order forwarded = %+v", api.order)
	}
}

func TestMEXCAdapterMarketBuyError(t *testing.T) {
	api := &fakeOrderAPI{err: errors.New("insufficient balance")}
	adapter := NewMEXCAdapter(api, logger.New())

	_, err := adapter.MarketBuy(context.Background(), models.TradingAccount{ID: "a"}, models.TradeOrder{Symbol: "XUSDT"})
	if err == nil {
		t.Fatal("expected error from order API")
	}
}
