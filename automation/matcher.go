package automation

import (
	"strings"

	"tokenflow/exchange"
	"tokenflow/models"
)

// MatchRule returns the events of the batch that the rule applies to, in
// batch order. The batch's market is read from its first event; feed batches
// share one delivery and are homogeneous in market type.
func MatchRule(rule models.AutomationRule, batch models.TokenBatch, aliases *exchange.AliasTable) []models.TokenListingEvent {
	if len(batch.Events) == 0 {
		return nil
	}

	batchMarket := strings.ToLower(batch.Events[0].Market)
	if rule.MarketType != models.MarketBoth && string(rule.MarketType) != batchMarket {
		return nil
	}

	var matched []models.TokenListingEvent
	for _, event := range batch.Events {
		if matchesAnyExchange(rule.Exchanges, event.Exchange, aliases) {
			matched = append(matched, event)
		}
	}
	return matched
}

func matchesAnyExchange(ruleExchanges models.ExchangeList, eventExchange string, aliases *exchange.AliasTable) bool {
	for _, ruleExchange := range ruleExchanges {
		if aliases.Match(ruleExchange, eventExchange) {
			return true
		}
	}
	return false
}
