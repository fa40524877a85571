package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MarketType restricts a rule to spot listings, future listings or both.
type MarketType string

const (
	MarketSpot   MarketType = "spot"
	MarketFuture MarketType = "future"
	MarketBoth   MarketType = "both"
)

// RuleStatus controls whether the automation engine evaluates a rule.
type RuleStatus string

const (
	RuleEnabled  RuleStatus = "enabled"
	RuleDisabled RuleStatus = "disabled"
)

// ExchangeList stores the watched listing venues as a JSON column, matching
// the wire format used by the rule management API.
type ExchangeList []string

func (l ExchangeList) Value() (driver.Value, error) {
	if l == nil {
		l = ExchangeList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal exchange list: %w", err)
	}
	return string(data), nil
}

func (l *ExchangeList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported exchange list column type %T", value)
	}
}

// AutomationRule describes which token listings to act on and how much USDT
// to deploy when they appear. Exchanges are the venues to watch for listings;
// Account identifies the external trading account that executes the buys.
type AutomationRule struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Exchanges  ExchangeList    `gorm:"type:text;not null" json:"exchanges"`
	MarketType MarketType      `gorm:"size:10;not null" json:"market_type"`
	Account    string          `gorm:"size:255;not null" json:"account"`
	AmountUSDT decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount_usdt"`
	Status     RuleStatus      `gorm:"size:10;not null;default:enabled" json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (AutomationRule) TableName() string { return "automation_rules" }

// Validate reports the first constraint violated by the rule, if any.
func (r *AutomationRule) Validate() error {
	if len(r.Exchanges) == 0 {
		return fmt.Errorf("rule requires at least one exchange")
	}
	switch r.MarketType {
	case MarketSpot, MarketFuture, MarketBoth:
	default:
		return fmt.Errorf("invalid market type %q", r.MarketType)
	}
	if !r.AmountUSDT.IsPositive() {
		return fmt.Errorf("amount_usdt must be greater than 0, got %s", r.AmountUSDT)
	}
	switch r.Status {
	case RuleEnabled, RuleDisabled, "":
	default:
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.Account == "" {
		return fmt.Errorf("rule requires a trading account")
	}
	return nil
}

// Enabled reports whether the engine should evaluate this rule.
func (r *AutomationRule) Enabled() bool { return r.Status == RuleEnabled }
