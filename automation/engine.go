package automation

import (
	"context"
	"encoding/json"
	"time"

	"tokenflow/exchange"
	"tokenflow/logger"
	"tokenflow/models"
)

// RuleSource provides the enabled rules to evaluate. Rules are read fresh on
// every batch so concurrent edits are visible on the next delivery.
type RuleSource interface {
	ListEnabled(ctx context.Context) ([]models.AutomationRule, error)
}

// Dispatcher executes the trades for a rule's matched events.
type Dispatcher interface {
	Dispatch(ctx context.Context, rule models.AutomationRule, matched []models.TokenListingEvent) []models.TradeResult
}

// Engine evaluates every enabled automation rule against each inbound token
// batch. Rules are isolated from each other: one rule's failure never
// prevents evaluation of the rest.
type Engine struct {
	rules      RuleSource
	dispatcher Dispatcher
	aliases    *exchange.AliasTable
	log        *logger.Log
}

func NewEngine(rules RuleSource, dispatcher Dispatcher, aliases *exchange.AliasTable, log *logger.Log) *Engine {
	if aliases == nil {
		aliases = exchange.DefaultAliases()
	}
	return &Engine{
		rules:      rules,
		dispatcher: dispatcher,
		aliases:    aliases,
		log:        log,
	}
}

// HandleMessage classifies one raw feed message and, when it carries a
// non-empty token batch, evaluates all enabled rules against it. It runs
// synchronously on the feed connector's message path so trade intent precedes
// the relay of the message to subscribers.
func (e *Engine) HandleMessage(ctx context.Context, raw []byte) {
	log := e.log.WithComponent("automation_engine")

	var msg models.FeedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.WithError(err).Warn("dropping malformed feed message")
		return
	}

	if msg.Type != models.FeedMessageTokens {
		log.WithFields(logger.Fields{"type": msg.Type}).Debug("skipping non-token message")
		return
	}

	var events []models.TokenListingEvent
	if err := json.Unmarshal(msg.Data, &events); err != nil {
		log.WithError(err).Warn("dropping token message with malformed payload")
		return
	}
	if len(events) == 0 {
		log.Debug("dropping token message with empty payload")
		return
	}
	batch := models.TokenBatch{Events: events, ReceivedAt: time.Now().UTC()}

	logger.RecordFlow("token_batches", len(raw))

	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		log.WithError(err).Error("failed to load enabled rules")
		return
	}

	log.WithFields(logger.Fields{
		"tokens": len(batch.Events),
		"rules":  len(rules),
	}).Info("evaluating token batch")

	for _, rule := range rules {
		e.evaluateRule(ctx, rule, batch)
	}

	log.WithFields(logger.Fields{"elapsed": time.Since(batch.ReceivedAt).String()}).Debug("batch evaluation complete")
}

// evaluateRule runs matcher and dispatcher for one rule, containing panics
// so a faulty rule cannot abort the batch.
func (e *Engine) evaluateRule(ctx context.Context, rule models.AutomationRule, batch models.TokenBatch) {
	log := e.log.WithComponent("automation_engine").WithFields(logger.Fields{"rule_id": rule.ID})

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logger.Fields{"panic": r}).Error("rule evaluation panicked")
		}
	}()

	matched := MatchRule(rule, batch, e.aliases)
	if len(matched) == 0 {
		log.Debug("no matching tokens for rule")
		return
	}

	log.WithFields(logger.Fields{"matched": len(matched)}).Info("rule matched tokens")
	e.dispatcher.Dispatch(ctx, rule, matched)
}
