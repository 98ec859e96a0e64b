package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/events"
	"github.com/nodewarden/warden/internal/models"
)

var (
	ErrRuleNotFound = errors.New("automation rule not found")
)

// RuleFilter narrows List results. Zero values mean no filtering.
type RuleFilter struct {
	Category    string
	TriggerType string
	Enabled     *bool
	Limit       int
	Offset      int
}

type RuleService struct {
	db *gorm.DB
}

func NewRuleService(db *gorm.DB) *RuleService {
	return &RuleService{db: db}
}

// Create validates and stores a new rule. An omitted category falls back to
// the system default before validation runs.
func (s *RuleService) Create(rule *models.AutomationRule) error {
	if rule.Category == "" {
		rule.Category = models.CategorySystem
	}
	if err := s.validate(rule); err != nil {
		return err
	}
	return s.db.Create(rule).Error
}

// Get retrieves one rule by id.
func (s *RuleService) Get(id string) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	if err := s.db.First(&rule, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// List retrieves rules matching the filter, newest first, plus the total
// match count for pagination.
func (s *RuleService) List(filter RuleFilter) ([]models.AutomationRule, int64, error) {
	var total int64
	if err := s.filtered(filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := s.filtered(filter).Order("created_at desc")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rules []models.AutomationRule
	if err := q.Find(&rules).Error; err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

func (s *RuleService) filtered(filter RuleFilter) *gorm.DB {
	q := s.db.Model(&models.AutomationRule{})
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.TriggerType != "" {
		q = q.Where("trigger_type = ?", filter.TriggerType)
	}
	if filter.Enabled != nil {
		q = q.Where("is_enabled = ?", *filter.Enabled)
	}
	return q
}

// ListEnabled returns a snapshot of the enabled rules with the given trigger
// type, in creation order. The engine works off this snapshot for a whole
// tick, so a mid-tick toggle applies from the next tick on.
func (s *RuleService) ListEnabled(trigger models.TriggerType) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	err := s.db.Where("is_enabled = ? AND trigger_type = ?", true, trigger).
		Order("created_at asc").Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// Update replaces a rule's definition. The firing counters are preserved.
func (s *RuleService) Update(id string, updates *models.AutomationRule) (*models.AutomationRule, error) {
	rule, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	rule.Name = updates.Name
	rule.Description = updates.Description
	rule.Category = updates.Category
	if rule.Category == "" {
		rule.Category = models.CategorySystem
	}
	rule.IsEnabled = updates.IsEnabled
	rule.TriggerType = updates.TriggerType
	rule.TriggerConfig = updates.TriggerConfig
	rule.Conditions = updates.Conditions
	rule.ActionType = updates.ActionType
	rule.ActionConfig = updates.ActionConfig

	if err := s.validate(rule); err != nil {
		return nil, err
	}
	if err := s.db.Save(rule).Error; err != nil {
		return nil, err
	}
	return rule, nil
}

// Delete removes a rule together with its execution history.
func (s *RuleService) Delete(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.AutomationRule{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRuleNotFound
		}
		return tx.Where("rule_id = ?", id).Delete(&models.RuleExecutionLog{}).Error
	})
}

// Toggle flips is_enabled in a single UPDATE so concurrent toggles cannot
// lose each other, then returns the stored rule.
func (s *RuleService) Toggle(id string) (*models.AutomationRule, error) {
	result := s.db.Model(&models.AutomationRule{}).Where("id = ?", id).
		UpdateColumn("is_enabled", gorm.Expr("NOT is_enabled"))
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRuleNotFound
	}
	return s.Get(id)
}

// MarkFired stamps last_triggered_at. Called once per firing, whatever the
// outcome.
func (s *RuleService) MarkFired(id string, at time.Time) error {
	return s.db.Model(&models.AutomationRule{}).Where("id = ?", id).
		UpdateColumn("last_triggered_at", at).Error
}

// IncrementTriggerCount bumps trigger_count atomically. Called for firings
// with at least one successful target outcome.
func (s *RuleService) IncrementTriggerCount(id string) error {
	return s.db.Model(&models.AutomationRule{}).Where("id = ?", id).
		UpdateColumn("trigger_count", gorm.Expr("trigger_count + 1")).Error
}

// validate layers the checks the model cannot do itself on top of
// rule.Validate: event names must be known and cron expressions must parse.
func (s *RuleService) validate(rule *models.AutomationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.TriggerType == models.TriggerEvent && !events.Known(rule.TriggerConfig.Event) {
		return fmt.Errorf("unknown event %q, known events: %v", rule.TriggerConfig.Event, events.Names())
	}
	if rule.TriggerType == models.TriggerSchedule && rule.TriggerConfig.Cron != "" {
		if _, err := cron.ParseStandard(rule.TriggerConfig.Cron); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", rule.TriggerConfig.Cron, err)
		}
	}
	return nil
}
