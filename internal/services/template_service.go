package services

import (
	"errors"

	"github.com/nodewarden/warden/internal/events"
	"github.com/nodewarden/warden/internal/models"
)

var ErrTemplateNotFound = errors.New("rule template not found")

// ruleTemplates is the built-in catalog offered by the UI. IDs are stable,
// the frontend links to them directly.
var ruleTemplates = []models.RuleTemplate{
	{
		ID:          "auto-disable-violators",
		Name:        "Auto-disable violators",
		Description: "Disable a user as soon as a violation with score 70 or higher is detected",
		Category:    models.CategoryViolations,
		TriggerType: models.TriggerEvent,
		TriggerConfig: models.TriggerConfig{
			Event:    events.ViolationDetected,
			MinScore: floatPtr(70),
		},
		ActionType: models.ActionDisableUser,
	},
	{
		ID:          "block-repeat-offenders",
		Name:        "Block repeat offenders",
		Description: "Block a user outright on a critical violation (score 90+)",
		Category:    models.CategoryViolations,
		TriggerType: models.TriggerEvent,
		TriggerConfig: models.TriggerConfig{
			Event:    events.ViolationDetected,
			MinScore: floatPtr(90),
		},
		ActionType:   models.ActionBlockUser,
		ActionConfig: models.ActionConfig{Reason: "repeated high-severity violations"},
	},
	{
		ID:          "offline-node-alert",
		Name:        "Offline node alert",
		Description: "Send a Telegram message when a node stays offline for 5 minutes",
		Category:    models.CategoryNodes,
		TriggerType: models.TriggerEvent,
		TriggerConfig: models.TriggerConfig{
			Event:          events.NodeWentOffline,
			OfflineMinutes: intPtr(5),
		},
		ActionType: models.ActionNotify,
		ActionConfig: models.ActionConfig{
			Channel: models.ChannelTelegram,
			Message: "Node {node} has been offline for more than 5 minutes",
		},
	},
	{
		ID:          "traffic-limit-alert",
		Name:        "Traffic limit alert",
		Description: "Send a Telegram message when a user runs over their traffic limit",
		Category:    models.CategoryUsers,
		TriggerType: models.TriggerEvent,
		TriggerConfig: models.TriggerConfig{
			Event: events.UserTrafficExceeded,
		},
		ActionType: models.ActionNotify,
		ActionConfig: models.ActionConfig{
			Channel: models.ChannelTelegram,
			Message: "User {user} exceeded the traffic limit",
		},
	},
	{
		ID:          "nightly-expired-cleanup",
		Name:        "Nightly expired cleanup",
		Description: "Remove accounts that expired more than 30 days ago, every night at 04:00",
		Category:    models.CategoryUsers,
		TriggerType: models.TriggerSchedule,
		TriggerConfig: models.TriggerConfig{
			Cron: "0 4 * * *",
		},
		ActionType:   models.ActionCleanupExpired,
		ActionConfig: models.ActionConfig{OlderThanDays: intPtr(30)},
	},
	{
		ID:          "weekly-node-resync",
		Name:        "Weekly node resync",
		Description: "Force a full configuration sync to every node on Monday at 03:00",
		Category:    models.CategorySystem,
		TriggerType: models.TriggerSchedule,
		TriggerConfig: models.TriggerConfig{
			Cron: "0 3 * * 1",
		},
		ActionType: models.ActionForceSync,
	},
	{
		ID:          "capacity-alert",
		Name:        "Capacity alert",
		Description: "Send a Telegram message while 1000 or more users are online",
		Category:    models.CategorySystem,
		TriggerType: models.TriggerThreshold,
		TriggerConfig: models.TriggerConfig{
			Metric:         models.MetricUsersOnline,
			Operator:       models.OpGreaterOrEqual,
			ThresholdValue: floatPtr(1000),
		},
		ActionType: models.ActionNotify,
		ActionConfig: models.ActionConfig{
			Channel: models.ChannelTelegram,
			Message: "High load on {rule_name}: 1000+ users online at {timestamp}",
		},
	},
	{
		ID:          "degraded-node-restart",
		Name:        "Degraded node restart",
		Description: "Restart any node whose uptime drops below 95 percent",
		Category:    models.CategoryNodes,
		TriggerType: models.TriggerThreshold,
		TriggerConfig: models.TriggerConfig{
			Metric:         models.MetricNodeUptimePercent,
			Operator:       models.OpLess,
			ThresholdValue: floatPtr(95),
		},
		ActionType: models.ActionRestartNode,
	},
}

type TemplateService struct {
	rules *RuleService
}

func NewTemplateService(rules *RuleService) *TemplateService {
	return &TemplateService{rules: rules}
}

// List returns the built-in rule templates.
func (s *TemplateService) List() []models.RuleTemplate {
	return ruleTemplates
}

// Get returns one template by id.
func (s *TemplateService) Get(id string) (*models.RuleTemplate, error) {
	for i := range ruleTemplates {
		if ruleTemplates[i].ID == id {
			return &ruleTemplates[i], nil
		}
	}
	return nil, ErrTemplateNotFound
}

// Activate copies a template into a new stored rule. The rule starts
// disabled so an admin reviews it before it can fire.
func (s *TemplateService) Activate(id string) (*models.AutomationRule, error) {
	tpl, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	rule := tpl.Rule()
	if err := s.rules.Create(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
