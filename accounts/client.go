package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tokenflow/logger"
	"tokenflow/models"
)

// Client talks to the external trading-account service: account lookup,
// balance queries and MEXC order placement. Every call carries a bounded
// timeout so a stalled collaborator cannot stall the caller indefinitely.
type Client struct {
	baseURL string
	client  *http.Client
	log     *logger.Log
}

// NewClient builds a trading-account API client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, log *logger.Log) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// GetAccount resolves an account identifier to its execution details.
func (c *Client) GetAccount(ctx context.Context, id string) (*models.TradingAccount, error) {
	var resp struct {
		Status  string                `json:"status"`
		Account models.TradingAccount `json:"account"`
		Error   string                `json:"error"`
	}
	if err := c.get(ctx, fmt.Sprintf("/accounts/%s", url.PathEscape(id)), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("account %s lookup failed: %s", id, resp.Error)
	}
	if resp.Account.ID == "" {
		return nil, fmt.Errorf("account %s not found", id)
	}
	return &resp.Account, nil
}

// GetUserAccounts lists the trading accounts owned by a user. Rule creation
// and updates use it to verify account ownership.
func (c *Client) GetUserAccounts(ctx context.Context, username string) ([]models.TradingAccount, error) {
	var resp struct {
		Status   string                  `json:"status"`
		Accounts []models.TradingAccount `json:"accounts"`
		Error    string                  `json:"error"`
	}
	if err := c.get(ctx, fmt.Sprintf("/accounts/user/%s", url.PathEscape(username)), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("account listing for %s failed: %s", username, resp.Error)
	}
	return resp.Accounts, nil
}

// GetBalance returns the free balance of one asset on an account.
func (c *Client) GetBalance(ctx context.Context, accountID, asset string) (decimal.Decimal, error) {
	var resp struct {
		Total *decimal.Decimal `json:"total"`
		Error string           `json:"error"`
	}
	path := fmt.Sprintf("/mexc/spot/%s/balance", url.PathEscape(accountID))
	if err := c.get(ctx, path, url.Values{"asset": {asset}}, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.Total == nil {
		return decimal.Zero, fmt.Errorf("no balance data for account %s asset %s", accountID, asset)
	}
	return *resp.Total, nil
}

// CreateMEXCOrder submits a spot order on MEXC through the service, which
// holds the account's venue credentials.
func (c *Client) CreateMEXCOrder(ctx context.Context, accountID string, order models.TradeOrder) (json.RawMessage, error) {
	body := map[string]interface{}{
		"symbol":          order.Symbol,
		"side":            string(order.Side),
		"type":            string(order.Type),
		"quote_order_qty": order.QuoteQty,
		"client_order_id": order.ClientID,
	}
	path := fmt.Sprintf("/mexc/spot/%s/order", url.PathEscape(accountID))
	return c.post(ctx, path, body)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("trade api request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("trade api returned %d: %s", res.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode trade api response: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trade api request failed: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read trade api response: %w", err)
	}

	if res.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("trade api returned %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}

	return json.RawMessage(data), nil
}
