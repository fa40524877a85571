package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/adshao/go-binance/v2"

	"tokenflow/logger"
	"tokenflow/models"
)

// BinanceAdapter places spot market orders directly on Binance with the
// credentials returned by the trading-account service.
type BinanceAdapter struct {
	log *logger.Log

	// newClient is swappable so tests can intercept order submission.
	newClient func(apiKey, apiSecret string) *binance.Client
}

func NewBinanceAdapter(log *logger.Log) *BinanceAdapter {
	return &BinanceAdapter{
		log:       log,
		newClient: binance.NewClient,
	}
}

func (a *BinanceAdapter) Name() string { return "binance" }

func (a *BinanceAdapter) MarketBuy(ctx context.Context, account models.TradingAccount, order models.TradeOrder) (json.RawMessage, error) {
	if account.APIKey == "" || account.APISecret == "" {
		return nil, fmt.Errorf("account %s has no binance credentials", account.ID)
	}

	log := a.log.WithComponent("binance_adapter").WithFields(logger.Fields{
		"account": account.ID,
		"symbol":  order.Symbol,
	})

	client := a.newClient(account.APIKey, account.APISecret)
	res, err := client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(order.QuoteQty.String()).
		NewClientOrderID(order.ClientID).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance order submission failed: %w", err)
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal binance order response: %w", err)
	}

	log.WithFields(logger.Fields{
		"order_id":  res.OrderID,
		"quote_qty": order.QuoteQty.String(),
	}).Info("binance market buy submitted")
	logger.RecordFlow("binance_orders", len(payload))
	return payload, nil
}
