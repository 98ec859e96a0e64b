package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewarden/warden/internal/models"
)

func TestLogService_RecordAndList(t *testing.T) {
	db := setupTestDB(t)
	service := NewLogService(db)

	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	entries := []models.RuleExecutionLog{
		{RuleID: "r1", RuleName: "One", TriggeredAt: base, TargetType: models.TargetUser, TargetID: "u1", Result: models.ResultSuccess},
		{RuleID: "r1", RuleName: "One", TriggeredAt: base.Add(time.Minute), TargetType: models.TargetUser, TargetID: "u2", Result: models.ResultError},
		{RuleID: "r2", RuleName: "Two", TriggeredAt: base.Add(2 * time.Minute), TargetType: models.TargetSystem, Result: models.ResultSkipped},
	}
	require.NoError(t, service.Record(entries...))

	t.Run("empty record is a no-op", func(t *testing.T) {
		assert.NoError(t, service.Record())
	})

	t.Run("newest first", func(t *testing.T) {
		got, total, err := service.List(LogFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		require.Len(t, got, 3)
		assert.Equal(t, "r2", got[0].RuleID)
		assert.Equal(t, "u2", got[1].TargetID)
	})

	t.Run("filter by rule", func(t *testing.T) {
		got, total, err := service.List(LogFilter{RuleID: "r1"})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, got, 2)
	})

	t.Run("filter by result", func(t *testing.T) {
		got, _, err := service.List(LogFilter{Result: string(models.ResultError)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "u2", got[0].TargetID)
	})

	t.Run("filter by window", func(t *testing.T) {
		from := base.Add(30 * time.Second)
		to := base.Add(90 * time.Second)
		got, _, err := service.List(LogFilter{From: &from, To: &to})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "u2", got[0].TargetID)
	})

	t.Run("window boundaries are inclusive", func(t *testing.T) {
		from := base
		to := base.Add(2 * time.Minute)
		_, total, err := service.List(LogFilter{From: &from, To: &to})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
	})
}

func TestLogService_Pagination(t *testing.T) {
	db := setupTestDB(t)
	service := NewLogService(db)

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	var entries []models.RuleExecutionLog
	for i := 0; i < 60; i++ {
		entries = append(entries, models.RuleExecutionLog{
			RuleID:      "r1",
			RuleName:    "Busy rule",
			TriggeredAt: base.Add(time.Duration(i) * time.Minute),
			TargetType:  models.TargetSystem,
			Result:      models.ResultSuccess,
			Details:     fmt.Sprintf("firing %d", i),
		})
	}
	require.NoError(t, service.Record(entries...))

	t.Run("default page size", func(t *testing.T) {
		got, total, err := service.List(LogFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 60, total)
		assert.Len(t, got, 50)
	})

	t.Run("offset pages through the rest", func(t *testing.T) {
		got, _, err := service.List(LogFilter{Offset: 50})
		require.NoError(t, err)
		assert.Len(t, got, 10)
	})

	t.Run("limit is capped", func(t *testing.T) {
		got, _, err := service.List(LogFilter{Limit: 9999})
		require.NoError(t, err)
		assert.Len(t, got, 60)
	})
}

func TestLogService_PruneBefore(t *testing.T) {
	db := setupTestDB(t)
	service := NewLogService(db)

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, service.Record(
		models.RuleExecutionLog{RuleID: "r1", TriggeredAt: base.Add(-48 * time.Hour), Result: models.ResultSuccess},
		models.RuleExecutionLog{RuleID: "r1", TriggeredAt: base.Add(-time.Hour), Result: models.ResultSuccess},
		models.RuleExecutionLog{RuleID: "r1", TriggeredAt: base, Result: models.ResultSuccess},
	))

	pruned, err := service.PruneBefore(base)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pruned)

	_, total, err := service.List(LogFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total, "entries at the cutoff survive")
}
