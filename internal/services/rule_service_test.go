package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.AutomationRule{},
		&models.RuleExecutionLog{},
		&models.User{},
		&models.Node{},
		&models.UserNodeTraffic{},
		&models.Admin{},
		&models.Setting{},
	)
	require.NoError(t, err)

	return db
}

func eventRule(name string) *models.AutomationRule {
	return &models.AutomationRule{
		Name:          name,
		Category:      models.CategoryViolations,
		IsEnabled:     true,
		TriggerType:   models.TriggerEvent,
		TriggerConfig: models.TriggerConfig{Event: "violation.detected"},
		ActionType:    models.ActionDisableUser,
	}
}

func TestRuleService_Create(t *testing.T) {
	db := setupTestDB(t)
	service := NewRuleService(db)

	t.Run("valid rule", func(t *testing.T) {
		rule := eventRule("Disable violators")
		err := service.Create(rule)
		assert.NoError(t, err)
		assert.NotEmpty(t, rule.ID)
	})

	t.Run("unknown event name", func(t *testing.T) {
		rule := eventRule("Bad event")
		rule.TriggerConfig.Event = "user.sneezed"
		err := service.Create(rule)
		assert.ErrorContains(t, err, "unknown event")
	})

	t.Run("invalid cron expression", func(t *testing.T) {
		rule := eventRule("Bad cron")
		rule.TriggerType = models.TriggerSchedule
		rule.TriggerConfig = models.TriggerConfig{Cron: "every tuesday"}
		err := service.Create(rule)
		assert.ErrorContains(t, err, "invalid cron expression")
	})

	t.Run("six field cron is rejected", func(t *testing.T) {
		rule := eventRule("Seconds cron")
		rule.TriggerType = models.TriggerSchedule
		rule.TriggerConfig = models.TriggerConfig{Cron: "0 0 4 * * *"}
		err := service.Create(rule)
		assert.Error(t, err)
	})

	t.Run("model validation runs", func(t *testing.T) {
		rule := eventRule("")
		err := service.Create(rule)
		assert.ErrorContains(t, err, "name is required")
	})
}

func TestRuleService_GetAndList(t *testing.T) {
	db := setupTestDB(t)
	service := NewRuleService(db)

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	days := 30

	older := eventRule("Older rule")
	older.CreatedAt = base
	require.NoError(t, service.Create(older))

	newer := &models.AutomationRule{
		Name:          "Newer rule",
		Category:      models.CategoryUsers,
		IsEnabled:     false,
		TriggerType:   models.TriggerSchedule,
		TriggerConfig: models.TriggerConfig{Cron: "0 4 * * *"},
		ActionType:    models.ActionCleanupExpired,
		ActionConfig:  models.ActionConfig{OlderThanDays: &days},
		CreatedAt:     base.Add(time.Hour),
	}
	require.NoError(t, service.Create(newer))

	t.Run("get by id", func(t *testing.T) {
		got, err := service.Get(older.ID)
		require.NoError(t, err)
		assert.Equal(t, "Older rule", got.Name)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := service.Get("no-such-id")
		assert.ErrorIs(t, err, ErrRuleNotFound)
	})

	t.Run("list newest first with total", func(t *testing.T) {
		rules, total, err := service.List(RuleFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, rules, 2)
		assert.Equal(t, "Newer rule", rules[0].Name)
	})

	t.Run("filter by category", func(t *testing.T) {
		rules, total, err := service.List(RuleFilter{Category: string(models.CategoryUsers)})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, rules, 1)
		assert.Equal(t, "Newer rule", rules[0].Name)
	})

	t.Run("filter by trigger type", func(t *testing.T) {
		rules, _, err := service.List(RuleFilter{TriggerType: string(models.TriggerEvent)})
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, "Older rule", rules[0].Name)
	})

	t.Run("filter by enabled", func(t *testing.T) {
		enabled := true
		rules, _, err := service.List(RuleFilter{Enabled: &enabled})
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, "Older rule", rules[0].Name)
	})

	t.Run("pagination keeps total", func(t *testing.T) {
		rules, total, err := service.List(RuleFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, rules, 1)
		assert.Equal(t, "Older rule", rules[0].Name)
	})

	t.Run("list enabled by trigger", func(t *testing.T) {
		rules, err := service.ListEnabled(models.TriggerEvent)
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, "Older rule", rules[0].Name)

		rules, err = service.ListEnabled(models.TriggerSchedule)
		require.NoError(t, err)
		assert.Empty(t, rules, "disabled rules are not evaluated")
	})
}

func TestRuleService_Update(t *testing.T) {
	db := setupTestDB(t)
	service := NewRuleService(db)

	rule := eventRule("Before")
	require.NoError(t, service.Create(rule))
	require.NoError(t, service.IncrementTriggerCount(rule.ID))

	t.Run("replaces definition, keeps counters", func(t *testing.T) {
		updates := eventRule("After")
		updates.Conditions = models.ConditionList{{Field: "score", Operator: models.OpGreaterOrEqual, Value: 70}}

		got, err := service.Update(rule.ID, updates)
		require.NoError(t, err)
		assert.Equal(t, "After", got.Name)
		assert.Len(t, got.Conditions, 1)
		assert.EqualValues(t, 1, got.TriggerCount, "update must not reset the firing counter")
	})

	t.Run("validation failure leaves rule unchanged", func(t *testing.T) {
		updates := eventRule("Broken")
		updates.TriggerConfig.Event = "nope"
		_, err := service.Update(rule.ID, updates)
		assert.Error(t, err)

		got, err := service.Get(rule.ID)
		require.NoError(t, err)
		assert.Equal(t, "After", got.Name)
	})

	t.Run("missing rule", func(t *testing.T) {
		_, err := service.Update("no-such-id", eventRule("X"))
		assert.ErrorIs(t, err, ErrRuleNotFound)
	})
}

func TestRuleService_Toggle(t *testing.T) {
	db := setupTestDB(t)
	service := NewRuleService(db)

	rule := eventRule("Toggle me")
	require.NoError(t, service.Create(rule))

	got, err := service.Toggle(rule.ID)
	require.NoError(t, err)
	assert.False(t, got.IsEnabled)

	got, err = service.Toggle(rule.ID)
	require.NoError(t, err)
	assert.True(t, got.IsEnabled)

	_, err = service.Toggle("no-such-id")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestRuleService_DeleteCascadesLogs(t *testing.T) {
	db := setupTestDB(t)
	service := NewRuleService(db)
	logs := NewLogService(db)

	rule := eventRule("Doomed")
	require.NoError(t, service.Create(rule))

	keep := eventRule("Keeper")
	require.NoError(t, service.Create(keep))

	require.NoError(t, logs.Record(
		models.RuleExecutionLog{RuleID: rule.ID, RuleName: rule.Name, Result: models.ResultSuccess},
		models.RuleExecutionLog{RuleID: keep.ID, RuleName: keep.Name, Result: models.ResultSuccess},
	))

	require.NoError(t, service.Delete(rule.ID))

	_, err := service.Get(rule.ID)
	assert.ErrorIs(t, err, ErrRuleNotFound)

	var count int64
	require.NoError(t, db.Model(&models.RuleExecutionLog{}).Count(&count).Error)
	assert.EqualValues(t, 1, count, "only the deleted rule's history goes away")

	assert.ErrorIs(t, service.Delete(rule.ID), ErrRuleNotFound)
}

func TestRuleService_FiringCounters(t *testing.T) {
	db := setupTestDB(t)
	service := NewRuleService(db)

	rule := eventRule("Counted")
	require.NoError(t, service.Create(rule))

	at := time.Date(2025, 5, 1, 4, 0, 0, 0, time.UTC)
	require.NoError(t, service.MarkFired(rule.ID, at))
	require.NoError(t, service.IncrementTriggerCount(rule.ID))
	require.NoError(t, service.IncrementTriggerCount(rule.ID))

	got, err := service.Get(rule.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.TriggerCount)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, got.LastTriggeredAt.Equal(at))
}
