package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"tokenflow/config"
	"tokenflow/exchange"
	"tokenflow/logger"
	"tokenflow/models"
)

type fakeAccounts struct {
	account *models.TradingAccount
	err     error
}

func (f *fakeAccounts) GetAccount(context.Context, string) (*models.TradingAccount, error) {
	return f.account, f.err
}

type fakeAdapter struct {
	name   string
	orders []models.TradeOrder
	failOn string
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) MarketBuy(_ context.Context, _ models.TradingAccount, order models.TradeOrder) (json.RawMessage, error) {
	f.orders = append(f.orders, order)
	if order.Symbol == f.failOn {
		return nil, errors.New("order rejected")
	}
	return json.RawMessage(fmt.Sprintf(`{"symbol":%q}`, order.Symbol)), nil
}

type fakeNotifier struct {
	venues []string
}

func (f *fakeNotifier) BroadcastTrade(venue string, _ json.RawMessage) {
	f.venues = append(f.venues, venue)
}

type fakeRecorder struct {
	results []models.TradeResult
}

func (f *fakeRecorder) RecordTrade(result models.TradeResult) {
	f.results = append(f.results, result)
}

func events(tokens ...string) []models.TokenListingEvent {
	out := make([]models.TokenListingEvent, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, models.TokenListingEvent{Token: token, Exchange: "mexc", Market: "spot"})
	}
	return out
}

func testDispatcher(accounts *fakeAccounts, adapter *fakeAdapter, notifier *fakeNotifier) *Dispatcher {
	cfg := config.AutomationConfig{MaxTokensPerRule: 2}
	return NewDispatcher(cfg, accounts, exchange.NewRegistry(adapter), notifier, logger.New())
}

func TestDispatchSplitsAmountEvenly(t *testing.T) {
	adapter := &fakeAdapter{name: "mexc"}
	accounts := &fakeAccounts{account: &models.TradingAccount{ID: "acct-1", Exchange: "mexc"}}
	notifier := &fakeNotifier{}
	d := testDispatcher(accounts, adapter, notifier)

	rule := models.AutomationRule{
		ID:         7,
		Account:    "acct-1",
		AmountUSDT: decimal.NewFromInt(100),
	}

	results := d.Dispatch(context.Background(), rule, events("newa", "newb"))
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	want := decimal.NewFromInt(50)
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("result %d failed: %v", i, r.Err)
		}
		if !r.Order.QuoteQty.Equal(want) {
			t.Errorf("result %d quote qty = %s, want 50", i, r.Order.QuoteQty)
		}
		if r.RuleID != 7 {
			t.Errorf("result %d rule id = %d", i, r.RuleID)
		}
	}

	if adapter.orders[0].Symbol != "NEWAUSDT" || adapter.orders[1].Symbol != "NEWBUSDT" {
		t.Errorf("symbols submitted out of order: %+v", adapter.orders)
	}
	if adapter.orders[0].Side != models.OrderSideBuy || adapter.orders[0].Type != models.OrderTypeMarket {
		t.Errorf("order shape = %+v", adapter.orders[0])
	}
	if len(notifier.venues) != 2 {
		t.Errorf("broadcast %d trade notifications, want 2", len(notifier.venues))
	}
}

func TestDispatchSingleTokenGetsFullAmount(t *testing.T) {
	adapter := &fakeAdapter{name: "mexc"}
	accounts := &fakeAccounts{account: &models.TradingAccount{ID: "acct-1", Exchange: "mexc"}}
	d := testDispatcher(accounts, adapter, &fakeNotifier{})

	rule := models.AutomationRule{ID: 1, Account: "acct-1", AmountUSDT: decimal.NewFromInt(75)}
	results := d.Dispatch(context.Background(), rule, events("newa"))
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !results[0].Order.QuoteQty.Equal(decimal.NewFromInt(75)) {
		t.Errorf("quote qty = %s, want 75", results[0].Order.QuoteQty)
	}
}

func TestDispatchSkipsAboveTokenCap(t *testing.T) {
	adapter := &fakeAdapter{name: "mexc"}
	accounts := &fakeAccounts{account: &models.TradingAccount{ID: "acct-1", Exchange: "mexc"}}
	d := testDispatcher(accounts, adapter, &fakeNotifier{})

	rule := models.AutomationRule{ID: 1, Account: "acct-1", AmountUSDT: decimal.NewFromInt(90)}
	results := d.Dispatch(context.Background(), rule, events("newa", "newb", "newc"))
	if results != nil {
		t.Fatalf("got %d results, want skip", len(results))
	}
	if len(adapter.orders) != 0 {
		t.Errorf("submitted %d orders despite cap", len(adapter.orders))
	}
}

func TestDispatchNoMatches(t *testing.T) {
	d := testDispatcher(&fakeAccounts{}, &fakeAdapter{name: "mexc"}, &fakeNotifier{})
	if got := d.Dispatch(context.Background(), models.AutomationRule{}, nil); got != nil {
		t.Errorf("got %v on empty match set", got)
	}
}

func TestDispatchAccountResolutionFailure(t *testing.T) {
	adapter := &fakeAdapter{name: "mexc"}
	accounts := &fakeAccounts{err: errors.New("account service down")}
	d := testDispatcher(accounts, adapter, &fakeNotifier{})

	rule := models.AutomationRule{ID: 1, Account: "acct-1", AmountUSDT: decimal.NewFromInt(100)}
	if got := d.Dispatch(context.Background(), rule, events("newa")); got != nil {
		t.Fatalf("got results despite account failure")
	}
	if len(adapter.orders) != 0 {
		t.Errorf("submitted orders without an account")
	}
}

func TestDispatchUnsupportedVenue(t *testing.T) {
	adapter := &fakeAdapter{name: "mexc"}
	accounts := &fakeAccounts{account: &models.TradingAccount{ID: "acct-1", Exchange: "kraken"}}
	d := testDispatcher(accounts, adapter, &fakeNotifier{})

	rule := models.AutomationRule{ID: 1, Account: "acct-1", AmountUSDT: decimal.NewFromInt(100)}
	if got := d.Dispatch(context.Background(), rule, events("newa")); got != nil {
		t.Fatalf("got results for a venue with no adapter")
	}
	if len(adapter.orders) != 0 {
		t.Errorf("submitted orders to the wrong venue adapter")
	}
}

func TestDispatchContinuesAfterOrderFailure(t *testing.T) {
	adapter := &fakeAdapter{name: "mexc", failOn: "NEWAUSDT"}
	accounts := &fakeAccounts{account: &models.TradingAccount{ID: "acct-1", Exchange: "mexc"}}
	notifier := &fakeNotifier{}
	d := testDispatcher(accounts, adapter, notifier)
	recorder := &fakeRecorder{}
	d.SetRecorder(recorder)

	rule := models.AutomationRule{ID: 1, Account: "acct-1", AmountUSDT: decimal.NewFromInt(100)}
	results := d.Dispatch(context.Background(), rule, events("newa", "newb"))
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Err == nil {
		t.Error("first order should have failed")
	}
	if results[1].Err != nil {
		t.Errorf("second order failed: %v", results[1].Err)
	}
	if len(notifier.venues) != 1 {
		t.Errorf("broadcast %d notifications, want only the successful order", len(notifier.venues))
	}
	if len(recorder.results) != 2 {
		t.Errorf("recorded %d results, want both outcomes", len(recorder.results))
	}
}
