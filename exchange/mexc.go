package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"tokenflow/logger"
	"tokenflow/models"
)

// MEXCOrderAPI is the slice of the trading-account service the MEXC adapter
// needs: order placement is delegated to the external service which holds the
// account's venue credentials.
type MEXCOrderAPI interface {
	CreateMEXCOrder(ctx context.Context, accountID string, order models.TradeOrder) (json.RawMessage, error)
}

// MEXCAdapter places spot market orders on MEXC through the external
// trading-account service.
type MEXCAdapter struct {
	api MEXCOrderAPI
	log *logger.Log
}

func NewMEXCAdapter(api MEXCOrderAPI, log *logger.Log) *MEXCAdapter {
	return &MEXCAdapter{api: api, log: log}
}

func (a *MEXCAdapter) Name() string { return "mexc" }

func (a *MEXCAdapter) MarketBuy(ctx context.Context, account models.TradingAccount, order models.TradeOrder) (json.RawMessage, error) {
	log := a.log.WithComponent("mexc_adapter").WithFields(logger.Fields{
		"account": account.ID,
		"symbol":  order.Symbol,
	})

	resp, err := a.api.CreateMEXCOrder(ctx, account.ID, order)
	if err != nil {
		return nil, fmt.Errorf("mexc order submission failed: %w", err)
	}

	log.WithFields(logger.Fields{"quote_qty": order.QuoteQty.String()}).Info("mexc market buy submitted")
	logger.RecordFlow("mexc_orders", len(resp))
	return resp, nil
}
