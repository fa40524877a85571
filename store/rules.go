package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tokenflow/config"
	"tokenflow/logger"
	"tokenflow/models"
)

// ErrRuleNotFound is returned when a rule does not exist or is not owned by
// any of the requesting user's accounts.
var ErrRuleNotFound = errors.New("automation rule not found")

// ErrAccountNotOwned is returned when a rule names a trading account the
// requesting user does not own.
var ErrAccountNotOwned = errors.New("trading account not owned by user")

// AccountLister resolves the trading accounts a user owns. The trading-
// account service implements this.
type AccountLister interface {
	GetUserAccounts(ctx context.Context, username string) ([]models.TradingAccount, error)
}

// RuleStore persists automation rules. Every owner-facing operation verifies
// account ownership against the trading-account service before touching the
// database. The automation engine reads enabled rules fresh on every batch,
// so edits made here become visible without any engine-side invalidation.
type RuleStore struct {
	db       *gorm.DB
	accounts AccountLister
	log      *logger.Log
}

// Open connects to the configured postgres database and migrates the rule
// schema.
func Open(cfg config.DatabaseConfig, accounts AccountLister, log *logger.Log) (*RuleStore, error) {
	dsn := cfg.DSN
	if dsn == "" {
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, sslMode)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewRuleStore(db, accounts, log)
}

// NewRuleStore wraps an existing gorm handle and ensures the schema exists.
func NewRuleStore(db *gorm.DB, accounts AccountLister, log *logger.Log) (*RuleStore, error) {
	if err := db.AutoMigrate(&models.AutomationRule{}); err != nil {
		return nil, fmt.Errorf("failed to migrate automation rules: %w", err)
	}
	log.WithComponent("rule_store").Info("rule store initialized")
	return &RuleStore{db: db, accounts: accounts, log: log}, nil
}

func (s *RuleStore) ownedAccountIDs(ctx context.Context, owner string) ([]string, error) {
	accts, err := s.accounts.GetUserAccounts(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve accounts for %s: %w", owner, err)
	}
	ids := make([]string, 0, len(accts))
	for _, account := range accts {
		ids = append(ids, account.ID)
	}
	return ids, nil
}

func ownsAccount(ids []string, account string) bool {
	for _, id := range ids {
		if id == account {
			return true
		}
	}
	return false
}

// Create validates a new rule, verifies the owner holds its trading account
// and persists it.
func (s *RuleStore) Create(ctx context.Context, owner string, rule *models.AutomationRule) error {
	if rule.Status == "" {
		rule.Status = models.RuleEnabled
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	ids, err := s.ownedAccountIDs(ctx, owner)
	if err != nil {
		return err
	}
	if !ownsAccount(ids, rule.Account) {
		return ErrAccountNotOwned
	}

	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	s.log.WithComponent("rule_store").WithFields(logger.Fields{"rule_id": rule.ID, "owner": owner}).Info("rule created")
	return nil
}

// Get loads one rule owned by the given user.
func (s *RuleStore) Get(ctx context.Context, owner string, id uint) (*models.AutomationRule, error) {
	ids, err := s.ownedAccountIDs(ctx, owner)
	if err != nil {
		return nil, err
	}

	var rule models.AutomationRule
	err = s.db.WithContext(ctx).
		Where("id = ? AND account IN ?", id, ids).
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rule %d: %w", id, err)
	}
	return &rule, nil
}

// ListByOwner returns every rule owned by the given user's accounts.
func (s *RuleStore) ListByOwner(ctx context.Context, owner string) ([]models.AutomationRule, error) {
	ids, err := s.ownedAccountIDs(ctx, owner)
	if err != nil {
		return nil, err
	}

	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("account IN ?", ids).
		Order("id").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// ListEnabled returns every enabled rule, regardless of owner. This is the
// engine's per-batch read.
func (s *RuleStore) ListEnabled(ctx context.Context) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.RuleEnabled).
		Order("id").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}
	return rules, nil
}

// Update validates and saves a mutated rule. Both the stored row and the
// rule's (possibly changed) account must belong to the owner.
func (s *RuleStore) Update(ctx context.Context, owner string, rule *models.AutomationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	ids, err := s.ownedAccountIDs(ctx, owner)
	if err != nil {
		return err
	}
	if !ownsAccount(ids, rule.Account) {
		return ErrAccountNotOwned
	}

	res := s.db.WithContext(ctx).
		Model(&models.AutomationRule{}).
		Where("id = ? AND account IN ?", rule.ID, ids).
		Updates(map[string]interface{}{
			"exchanges":   rule.Exchanges,
			"market_type": rule.MarketType,
			"account":     rule.Account,
			"amount_usdt": rule.AmountUSDT,
			"status":      rule.Status,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update rule %d: %w", rule.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	s.log.WithComponent("rule_store").WithFields(logger.Fields{"rule_id": rule.ID, "owner": owner}).Info("rule updated")
	return nil
}

// SetStatus flips a rule between enabled and disabled.
func (s *RuleStore) SetStatus(ctx context.Context, owner string, id uint, status models.RuleStatus) error {
	switch status {
	case models.RuleEnabled, models.RuleDisabled:
	default:
		return fmt.Errorf("invalid status %q", status)
	}

	ids, err := s.ownedAccountIDs(ctx, owner)
	if err != nil {
		return err
	}

	res := s.db.WithContext(ctx).
		Model(&models.AutomationRule{}).
		Where("id = ? AND account IN ?", id, ids).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update rule %d status: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Delete removes a rule owned by the given user.
func (s *RuleStore) Delete(ctx context.Context, owner string, id uint) error {
	ids, err := s.ownedAccountIDs(ctx, owner)
	if err != nil {
		return err
	}

	res := s.db.WithContext(ctx).
		Where("id = ? AND account IN ?", id, ids).
		Delete(&models.AutomationRule{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete rule %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	s.log.WithComponent("rule_store").WithFields(logger.Fields{"rule_id": id, "owner": owner}).Info("rule deleted")
	return nil
}
