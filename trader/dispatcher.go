package trader

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"tokenflow/config"
	"tokenflow/exchange"
	"tokenflow/logger"
	"tokenflow/models"
)

// AccountResolver resolves a rule's account reference to execution details.
type AccountResolver interface {
	GetAccount(ctx context.Context, id string) (*models.TradingAccount, error)
}

// Notifier receives a trade notification for every successful submission.
type Notifier interface {
	BroadcastTrade(venue string, data json.RawMessage)
}

// Recorder archives completed trade results. Optional.
type Recorder interface {
	RecordTrade(result models.TradeResult)
}

// Dispatcher turns a rule's matched listing events into market buys on the
// account's venue. Work for one rule is independent of other rules; any
// failure here is logged and contained.
type Dispatcher struct {
	accounts AccountResolver
	adapters exchange.Registry
	notifier Notifier
	recorder Recorder
	limiter  *rate.Limiter

	maxTokens int
	timeout   time.Duration
	log       *logger.Log
}

func NewDispatcher(cfg config.AutomationConfig, accounts AccountResolver, adapters exchange.Registry, notifier Notifier, log *logger.Log) *Dispatcher {
	maxTokens := cfg.MaxTokensPerRule
	if maxTokens <= 0 {
		maxTokens = 2
	}
	timeout := cfg.DispatchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ordersPerSecond := cfg.OrdersPerSecond
	if ordersPerSecond <= 0 {
		ordersPerSecond = 5
	}
	burst := cfg.OrderBurst
	if burst <= 0 {
		burst = maxTokens
	}

	return &Dispatcher{
		accounts:  accounts,
		adapters:  adapters,
		notifier:  notifier,
		limiter:   rate.NewLimiter(rate.Limit(ordersPerSecond), burst),
		maxTokens: maxTokens,
		timeout:   timeout,
		log:       log,
	}
}

// SetRecorder attaches an optional trade archive.
func (d *Dispatcher) SetRecorder(recorder Recorder) {
	d.recorder = recorder
}

// Dispatch splits the rule's USDT amount evenly across the matched tokens and
// submits one market buy per token, in batch order. More than maxTokens
// matches is a deliberate skip: simultaneous mass listings would otherwise
// over-deploy the account.
func (d *Dispatcher) Dispatch(ctx context.Context, rule models.AutomationRule, matched []models.TokenListingEvent) []models.TradeResult {
	log := d.log.WithComponent("trade_dispatcher").WithFields(logger.Fields{"rule_id": rule.ID})

	if len(matched) == 0 {
		return nil
	}

	if len(matched) > d.maxTokens {
		log.WithFields(logger.Fields{
			"matched": len(matched),
			"max":     d.maxTokens,
		}).Info("too many matched tokens, skipping dispatch")
		return nil
	}

	account, err := d.accounts.GetAccount(ctx, rule.Account)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{"account": rule.Account}).Error("failed to resolve trading account")
		return nil
	}

	adapter, ok := d.adapters.Lookup(account.Exchange)
	if !ok {
		log.WithFields(logger.Fields{
			"account": account.ID,
			"venue":   account.Exchange,
		}).Warn("no execution adapter for venue, skipping dispatch")
		return nil
	}

	perToken := rule.AmountUSDT.Div(decimal.NewFromInt(int64(len(matched))))

	log.WithFields(logger.Fields{
		"matched":     len(matched),
		"venue":       adapter.Name(),
		"amount_usdt": rule.AmountUSDT.String(),
		"per_token":   perToken.String(),
	}).Info("dispatching trades")

	results := make([]models.TradeResult, 0, len(matched))
	for _, event := range matched {
		results = append(results, d.submit(ctx, rule, account, adapter, event, perToken))
	}
	return results
}

func (d *Dispatcher) submit(ctx context.Context, rule models.AutomationRule, account *models.TradingAccount, adapter exchange.Adapter, event models.TokenListingEvent, perToken decimal.Decimal) models.TradeResult {
	order := models.TradeOrder{
		Symbol:   strings.ToUpper(event.Token) + models.QuoteAsset,
		Side:     models.OrderSideBuy,
		Type:     models.OrderTypeMarket,
		QuoteQty: perToken,
		ClientID: uuid.NewString(),
	}

	result := models.TradeResult{
		RuleID:    rule.ID,
		Venue:     account.Exchange,
		Token:     event.Token,
		Order:     order,
		Timestamp: time.Now().UTC(),
	}

	log := d.log.WithComponent("trade_dispatcher").WithFields(logger.Fields{
		"rule_id": rule.ID,
		"token":   event.Token,
		"symbol":  order.Symbol,
	})

	if err := d.limiter.Wait(ctx); err != nil {
		result.Err = err
		log.WithError(err).Warn("order rate limit wait aborted")
		return result
	}

	orderCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	response, err := adapter.MarketBuy(orderCtx, *account, order)
	if err != nil {
		result.Err = err
		log.WithError(err).Error("order submission failed")
		d.log.LogMetric("trade_dispatcher", "orders_failed", 1, "counter", logger.Fields{"venue": account.Exchange})
		if d.recorder != nil {
			d.recorder.RecordTrade(result)
		}
		return result
	}

	result.Response = response
	log.WithFields(logger.Fields{"quote_qty": order.QuoteQty.String()}).Info("order submitted")
	d.log.LogMetric("trade_dispatcher", "orders_submitted", 1, "counter", logger.Fields{"venue": account.Exchange})

	if d.notifier != nil {
		d.notifier.BroadcastTrade(account.Exchange, response)
	}
	if d.recorder != nil {
		d.recorder.RecordTrade(result)
	}
	return result
}
