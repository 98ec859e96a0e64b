package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExecutionResult classifies the outcome of one action against one target.
type ExecutionResult string

const (
	ResultSuccess ExecutionResult = "success"
	ResultError   ExecutionResult = "error"
	ResultSkipped ExecutionResult = "skipped"
)

func (r ExecutionResult) Valid() bool {
	switch r {
	case ResultSuccess, ResultError, ResultSkipped:
		return true
	}
	return false
}

// TargetType names what kind of object an action touched.
type TargetType string

const (
	TargetUser   TargetType = "user"
	TargetNode   TargetType = "node"
	TargetSystem TargetType = "system"
)

// RuleExecutionLog is one row of the append-only firing history. Every firing
// writes at least one row, even when the action ran against no targets.
// RuleName is denormalized so entries stay readable after their rule is
// renamed; deleting a rule removes its entries.
type RuleExecutionLog struct {
	ID          string          `json:"id" gorm:"primaryKey"`
	RuleID      string          `json:"rule_id" gorm:"index"`
	RuleName    string          `json:"rule_name"`
	TriggeredAt time.Time       `json:"triggered_at" gorm:"index"`
	TargetType  TargetType      `json:"target_type"`
	TargetID    string          `json:"target_id"`
	ActionTaken string          `json:"action_taken"`
	Result      ExecutionResult `json:"result" gorm:"index"`
	Details     string          `json:"details"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (l *RuleExecutionLog) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.TriggeredAt.IsZero() {
		l.TriggeredAt = time.Now()
	}
	return
}
