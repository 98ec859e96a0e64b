package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nodewarden/warden/internal/models"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		op       models.ComparisonOp
		actual   any
		expected any
		want     bool
	}{
		{"greater", models.OpGreater, 80.0, 70.0, true},
		{"greater false on equal", models.OpGreater, 70.0, 70.0, false},
		{"greater or equal on the boundary", models.OpGreaterOrEqual, 100.0, 100.0, true},
		{"less", models.OpLess, 3, 5, true},
		{"less or equal", models.OpLessOrEqual, 5, 5, true},
		{"numeric string coerced", models.OpEqual, "70", 70.0, true},
		{"int against float", models.OpGreaterOrEqual, 70, 69.5, true},
		{"ordering needs two numbers", models.OpGreater, "banana", 1.0, false},
		{"ordering false on two strings", models.OpLess, "apple", "banana", false},
		{"equality falls back to strings", models.OpEqual, "active", "active", true},
		{"not equal on strings", models.OpNotEqual, "active", "blocked", true},
		{"bool rendered for equality", models.OpEqual, true, "true", true},
		{"contains", models.OpContains, "edge-fra-1", "fra", true},
		{"contains renders numbers", models.OpContains, 100.5, "100", true},
		{"not contains", models.OpNotContains, "edge-fra-1", "ams", true},
		{"not contains false when present", models.OpNotContains, "edge-fra-1", "fra", false},
		{"unknown operator", models.ComparisonOp("~="), 1.0, 1.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.op, tt.actual, tt.expected))
		})
	}
}

func TestEvaluateConditions(t *testing.T) {
	fctx := map[string]any{
		"score":  85.0,
		"user":   "alice",
		"status": "active",
		"gone":   nil,
	}

	tests := []struct {
		name       string
		conditions models.ConditionList
		want       bool
	}{
		{"no conditions always pass", nil, true},
		{"single condition holds", models.ConditionList{
			{Field: "score", Operator: models.OpGreater, Value: 80.0},
		}, true},
		{"single condition fails", models.ConditionList{
			{Field: "score", Operator: models.OpGreater, Value: 90.0},
		}, false},
		{"every condition must hold", models.ConditionList{
			{Field: "score", Operator: models.OpGreater, Value: 80.0},
			{Field: "status", Operator: models.OpEqual, Value: "active"},
		}, true},
		{"one failing condition fails the list", models.ConditionList{
			{Field: "score", Operator: models.OpGreater, Value: 80.0},
			{Field: "status", Operator: models.OpEqual, Value: "blocked"},
		}, false},
		{"absent field fails closed", models.ConditionList{
			{Field: "node", Operator: models.OpEqual, Value: "edge-fra-1"},
		}, false},
		{"nil field fails closed", models.ConditionList{
			{Field: "gone", Operator: models.OpEqual, Value: ""},
		}, false},
		{"value decoded from json compares numerically", models.ConditionList{
			{Field: "score", Operator: models.OpLessOrEqual, Value: "85"},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateConditions(tt.conditions, fctx))
		})
	}
}
