package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TriggerType selects which engine subsystem watches a rule.
type TriggerType string

const (
	// TriggerEvent fires when a matching system event is published.
	TriggerEvent TriggerType = "event"
	// TriggerSchedule fires on a cron expression or a fixed minute interval.
	TriggerSchedule TriggerType = "schedule"
	// TriggerThreshold fires while a sampled metric satisfies a comparison.
	TriggerThreshold TriggerType = "threshold"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerEvent, TriggerSchedule, TriggerThreshold:
		return true
	}
	return false
}

// ActionType names what a rule does when it fires.
type ActionType string

const (
	ActionDisableUser    ActionType = "disable_user"
	ActionBlockUser      ActionType = "block_user"
	ActionNotify         ActionType = "notify"
	ActionRestartNode    ActionType = "restart_node"
	ActionCleanupExpired ActionType = "cleanup_expired"
	ActionResetTraffic   ActionType = "reset_traffic"
	ActionForceSync      ActionType = "force_sync"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionDisableUser, ActionBlockUser, ActionNotify, ActionRestartNode,
		ActionCleanupExpired, ActionResetTraffic, ActionForceSync:
		return true
	}
	return false
}

// RuleCategory groups rules in the admin UI.
type RuleCategory string

const (
	CategoryUsers      RuleCategory = "users"
	CategoryNodes      RuleCategory = "nodes"
	CategoryViolations RuleCategory = "violations"
	CategorySystem     RuleCategory = "system"
)

func (c RuleCategory) Valid() bool {
	switch c {
	case CategoryUsers, CategoryNodes, CategoryViolations, CategorySystem:
		return true
	}
	return false
}

// ComparisonOp is the operator of a condition or a threshold comparison.
type ComparisonOp string

const (
	OpGreater        ComparisonOp = ">"
	OpGreaterOrEqual ComparisonOp = ">="
	OpLess           ComparisonOp = "<"
	OpLessOrEqual    ComparisonOp = "<="
	OpEqual          ComparisonOp = "=="
	OpNotEqual       ComparisonOp = "!="
	OpContains       ComparisonOp = "contains"
	OpNotContains    ComparisonOp = "not_contains"
)

// Valid reports whether o is a known operator.
func (o ComparisonOp) Valid() bool {
	switch o {
	case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual,
		OpEqual, OpNotEqual, OpContains, OpNotContains:
		return true
	}
	return false
}

// Numeric reports whether o can compare two numbers. Threshold triggers only
// accept numeric operators; the substring operators are condition-only.
func (o ComparisonOp) Numeric() bool {
	switch o {
	case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// MetricName identifies a sampled panel metric for threshold triggers.
type MetricName string

const (
	// MetricUsersOnline is the count of currently online users. System scope.
	MetricUsersOnline MetricName = "users_online"
	// MetricTrafficToday is today's total transfer in GB. System scope.
	MetricTrafficToday MetricName = "traffic_today"
	// MetricNodeUptimePercent samples once per node.
	MetricNodeUptimePercent MetricName = "node_uptime_percent"
	// MetricUserTrafficPercent samples once per user with a traffic limit.
	MetricUserTrafficPercent MetricName = "user_traffic_percent"
	// MetricUserNodeTrafficGB samples today's usage per user/node pair.
	MetricUserNodeTrafficGB MetricName = "user_node_traffic_gb"
)

func (m MetricName) Valid() bool {
	switch m {
	case MetricUsersOnline, MetricTrafficToday, MetricNodeUptimePercent,
		MetricUserTrafficPercent, MetricUserNodeTrafficGB:
		return true
	}
	return false
}

// Notification channels accepted by the notify action.
const (
	ChannelTelegram = "telegram"
	ChannelWebhook  = "webhook"
)

// TriggerConfig carries the per-variant trigger settings as one JSON column.
// Only the fields belonging to the rule's TriggerType are honored.
type TriggerConfig struct {
	// Event trigger: the event name plus optional pre-filters applied to the
	// payload before conditions run.
	Event          string   `json:"event,omitempty"`
	MinScore       *float64 `json:"min_score,omitempty"`
	OfflineMinutes *int     `json:"offline_minutes,omitempty"`

	// Schedule trigger: exactly one of Cron or IntervalMinutes.
	Cron            string `json:"cron,omitempty"`
	IntervalMinutes int    `json:"interval_minutes,omitempty"`

	// Threshold trigger: Metric Operator ThresholdValue, e.g. users_online >= 1000.
	Metric         MetricName   `json:"metric,omitempty"`
	Operator       ComparisonOp `json:"operator,omitempty"`
	ThresholdValue *float64     `json:"value,omitempty"`
}

func (c TriggerConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *TriggerConfig) Scan(value interface{}) error {
	if value == nil {
		*c = TriggerConfig{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("cannot scan %T into TriggerConfig", value)
	}
}

// Validate checks the fields required by the given trigger type.
func (c TriggerConfig) Validate(t TriggerType) error {
	switch t {
	case TriggerEvent:
		if strings.TrimSpace(c.Event) == "" {
			return errors.New("event trigger requires an event name")
		}
		if c.MinScore != nil && *c.MinScore < 0 {
			return errors.New("min_score cannot be negative")
		}
		if c.OfflineMinutes != nil && *c.OfflineMinutes < 0 {
			return errors.New("offline_minutes cannot be negative")
		}
	case TriggerSchedule:
		hasCron := strings.TrimSpace(c.Cron) != ""
		hasInterval := c.IntervalMinutes != 0
		if hasCron == hasInterval {
			return errors.New("schedule trigger requires exactly one of cron or interval_minutes")
		}
		if hasInterval && c.IntervalMinutes < 1 {
			return errors.New("interval_minutes must be at least 1")
		}
	case TriggerThreshold:
		if !c.Metric.Valid() {
			return fmt.Errorf("unknown metric %q", c.Metric)
		}
		if !c.Operator.Numeric() {
			return fmt.Errorf("operator %q cannot compare a metric", c.Operator)
		}
		if c.ThresholdValue == nil {
			return errors.New("threshold trigger requires a value")
		}
	default:
		return fmt.Errorf("unknown trigger type %q", t)
	}
	return nil
}

// ActionConfig carries the per-variant action settings as one JSON column.
type ActionConfig struct {
	// Notify action. Message supports {user}, {node}, {rule_name} and
	// {timestamp} placeholders.
	Channel    string `json:"channel,omitempty"`
	Message    string `json:"message,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`

	// Block action. Empty means a generic reason is recorded.
	Reason string `json:"reason,omitempty"`

	// Cleanup action: remove users expired for longer than this many days.
	OlderThanDays *int `json:"older_than_days,omitempty"`

	// Node actions: pin to one node, or empty to target all nodes.
	NodeUUID string `json:"node_uuid,omitempty"`
}

func (c ActionConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *ActionConfig) Scan(value interface{}) error {
	if value == nil {
		*c = ActionConfig{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("cannot scan %T into ActionConfig", value)
	}
}

// Validate checks the fields required by the given action type.
func (c ActionConfig) Validate(a ActionType) error {
	switch a {
	case ActionNotify:
		switch c.Channel {
		case ChannelTelegram:
		case ChannelWebhook:
			if strings.TrimSpace(c.WebhookURL) == "" {
				return errors.New("webhook notify requires a webhook_url")
			}
			if !strings.HasPrefix(c.WebhookURL, "http://") && !strings.HasPrefix(c.WebhookURL, "https://") {
				return errors.New("webhook_url must be an http or https URL")
			}
		default:
			return fmt.Errorf("unknown notify channel %q", c.Channel)
		}
		if strings.TrimSpace(c.Message) == "" {
			return errors.New("notify action requires a message")
		}
	case ActionCleanupExpired:
		if c.OlderThanDays == nil || *c.OlderThanDays < 1 {
			return errors.New("cleanup_expired requires older_than_days of at least 1")
		}
	case ActionDisableUser, ActionBlockUser, ActionResetTraffic,
		ActionRestartNode, ActionForceSync:
		// Reason and NodeUUID are optional.
	default:
		return fmt.Errorf("unknown action type %q", a)
	}
	return nil
}

// Condition is one comparison evaluated against a firing context. Every
// condition on a rule must hold for its action to run; a rule with no
// conditions always passes.
type Condition struct {
	Field    string       `json:"field"`
	Operator ComparisonOp `json:"operator"`
	Value    any          `json:"value"`
}

// ConditionList stores a rule's conditions as one JSON column.
type ConditionList []Condition

func (l ConditionList) Value() (driver.Value, error) {
	if l == nil {
		l = ConditionList{}
	}
	return json.Marshal(l)
}

func (l *ConditionList) Scan(value interface{}) error {
	if value == nil {
		*l = ConditionList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into ConditionList", value)
	}
}

func (l ConditionList) Validate() error {
	for i, c := range l {
		if strings.TrimSpace(c.Field) == "" {
			return fmt.Errorf("condition %d: field is required", i+1)
		}
		if !c.Operator.Valid() {
			return fmt.Errorf("condition %d: unknown operator %q", i+1, c.Operator)
		}
		if c.Value == nil {
			return fmt.Errorf("condition %d: value is required", i+1)
		}
	}
	return nil
}

// AutomationRule ties one trigger to one action with optional conditions in
// between. The engine evaluates enabled rules; TriggerCount and
// LastTriggeredAt feed the counters shown in the admin UI.
type AutomationRule struct {
	ID          string       `json:"id" gorm:"primaryKey"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    RuleCategory `json:"category" gorm:"index;default:'system'"`
	IsEnabled   bool         `json:"is_enabled"`

	TriggerType   TriggerType   `json:"trigger_type" gorm:"index"`
	TriggerConfig TriggerConfig `json:"trigger_config" gorm:"type:text"`
	Conditions    ConditionList `json:"conditions" gorm:"type:text"`
	ActionType    ActionType    `json:"action_type"`
	ActionConfig  ActionConfig  `json:"action_config" gorm:"type:text"`

	TriggerCount    int64      `json:"trigger_count" gorm:"default:0"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *AutomationRule) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Category == "" {
		r.Category = CategorySystem
	}
	return
}

// Validate checks the rule is internally consistent before it is stored.
func (r *AutomationRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("rule name is required")
	}
	if !r.Category.Valid() {
		return fmt.Errorf("unknown category %q", r.Category)
	}
	if !r.TriggerType.Valid() {
		return fmt.Errorf("unknown trigger type %q", r.TriggerType)
	}
	if !r.ActionType.Valid() {
		return fmt.Errorf("unknown action type %q", r.ActionType)
	}
	if err := r.TriggerConfig.Validate(r.TriggerType); err != nil {
		return err
	}
	if err := r.Conditions.Validate(); err != nil {
		return err
	}
	return r.ActionConfig.Validate(r.ActionType)
}
