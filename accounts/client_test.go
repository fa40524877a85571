package accounts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tokenflow/logger"
	"tokenflow/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 2*time.Second, logger.New())
}

func TestGetAccount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/acct-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"account": map[string]interface{}{
				"id":       "acct-1",
				"name":     "main",
				"exchange": "mexc",
				"verified": true,
			},
		})
	})

	account, err := client.GetAccount(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if account.ID != "acct-1" || account.Exchange != "mexc" || !account.Verified {
		t.Errorf("account = %+v", account)
	}
}

func TestGetAccountFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"error status", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": "unknown account"})
		}},
		{"empty account", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "success", "account": map[string]interface{}{}})
		}},
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.handler)
			if _, err := client.GetAccount(context.Background(), "acct-1"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGetUserAccounts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/user/alice" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"accounts": []map[string]interface{}{
				{"id": "acct-1", "exchange": "mexc"},
				{"id": "acct-2", "exchange": "binance"},
			},
		})
	})

	accounts, err := client.GetUserAccounts(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUserAccounts: %v", err)
	}
	if len(accounts) != 2 || accounts[1].Exchange != "binance" {
		t.Errorf("accounts = %+v", accounts)
	}
}

func TestGetBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mexc/spot/acct-1/balance" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("asset"); got != "USDT" {
			t.Errorf("asset query = %s", got)
		}
		w.Write([]byte(`{"total":"123.45"}`))
	})

	total, err := client.GetBalance(context.Background(), "acct-1", "USDT")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("123.45")) {
		t.Errorf("total = %s", total)
	}
}

func TestCreateMEXCOrder(t *testing.T) {
	var received map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/mexc/spot/acct-1/order" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"orderId":"42","status":"FILLED"}`))
	})

	order := models.TradeOrder{
		Symbol:   "NEWAUSDT",
		Side:     models.OrderSideBuy,
		Type:     models.OrderTypeMarket,
		QuoteQty: decimal.NewFromInt(50),
		ClientID: "client-1",
	}
	resp, err := client.CreateMEXCOrder(context.Background(), "acct-1", order)
	if err != nil {
		t.Fatalf("CreateMEXCOrder: %v", err)
	}
	if string(resp) != `{"orderId":"42","status":"FILLED"}` {
		t.Errorf("response = %s", resp)
	}
	if received["symbol"] != "NEWAUSDT" || received["side"] != "BUY" || received["type"] != "MARKET" {
		t.Errorf("order body = %v", received)
	}
	if received["quote_order_qty"] != "50" {
		t.Errorf("quote qty = %v", received["quote_order_qty"])
	}
}
