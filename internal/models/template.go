package models

// RuleTemplate is a ready-made rule the UI offers for one-click activation.
// Templates live in code, not the database; activating one copies its fields
// into a new AutomationRule.
type RuleTemplate struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Category      RuleCategory  `json:"category"`
	TriggerType   TriggerType   `json:"trigger_type"`
	TriggerConfig TriggerConfig `json:"trigger_config"`
	Conditions    ConditionList `json:"conditions,omitempty"`
	ActionType    ActionType    `json:"action_type"`
	ActionConfig  ActionConfig  `json:"action_config"`
}

// Rule returns a new rule carrying the template's settings. Activated rules
// start disabled so an admin reviews them before they can fire.
func (t RuleTemplate) Rule() *AutomationRule {
	return &AutomationRule{
		Name:          t.Name,
		Description:   t.Description,
		Category:      t.Category,
		IsEnabled:     false,
		TriggerType:   t.TriggerType,
		TriggerConfig: t.TriggerConfig,
		Conditions:    t.Conditions,
		ActionType:    t.ActionType,
		ActionConfig:  t.ActionConfig,
	}
}
