package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewarden/warden/internal/models"
)

func notifyEvery(name string, minutes int) *models.AutomationRule {
	return &models.AutomationRule{
		Name:          name,
		Category:      models.CategorySystem,
		IsEnabled:     true,
		TriggerType:   models.TriggerSchedule,
		TriggerConfig: models.TriggerConfig{IntervalMinutes: minutes},
		ActionType:    models.ActionNotify,
		ActionConfig:  models.ActionConfig{Channel: models.ChannelTelegram, Message: "sweep done"},
	}
}

func notifyOnCron(name, expr string) *models.AutomationRule {
	rule := notifyEvery(name, 0)
	rule.TriggerConfig = models.TriggerConfig{Cron: expr}
	return rule
}

func TestEngine_TickCronRule(t *testing.T) {
	te := newTestEngine(t)
	te.create(t, notifyOnCron("Five minute check", "*/5 * * * *"))

	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	te.eng.Tick(context.Background(), day.Add(4*time.Minute))
	te.drain()
	assert.Empty(t, te.notifier.sent, "10:04 does not match */5")

	te.eng.Tick(context.Background(), day.Add(5*time.Minute+42*time.Second))
	te.drain()
	assert.Len(t, te.notifier.sent, 1, "10:05:42 truncates to the matching minute")

	te.eng.Tick(context.Background(), day.Add(6*time.Minute))
	te.drain()
	assert.Len(t, te.notifier.sent, 1)
}

func TestEngine_TickDailyCronRule(t *testing.T) {
	te := newTestEngine(t)
	te.create(t, notifyOnCron("Nightly sweep", "0 4 * * *"))

	te.eng.Tick(context.Background(), time.Date(2026, 3, 14, 4, 0, 0, 0, time.UTC))
	te.drain()
	require.Len(t, te.notifier.sent, 1)

	te.eng.Tick(context.Background(), time.Date(2026, 3, 14, 4, 1, 0, 0, time.UTC))
	te.drain()
	assert.Len(t, te.notifier.sent, 1)
}

func TestEngine_TickIntervalRule(t *testing.T) {
	te := newTestEngine(t)
	rule := te.create(t, notifyEvery("Half hour sweep", 30))

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	te.eng.Tick(context.Background(), base)
	te.drain()
	assert.Len(t, te.notifier.sent, 1, "a rule that never fired is due immediately")

	te.eng.Tick(context.Background(), base.Add(29*time.Minute))
	te.drain()
	assert.Len(t, te.notifier.sent, 1)

	te.eng.Tick(context.Background(), base.Add(30*time.Minute))
	te.drain()
	assert.Len(t, te.notifier.sent, 2)

	stored := te.reload(t, rule.ID)
	assert.EqualValues(t, 2, stored.TriggerCount)
	require.NotNil(t, stored.LastTriggeredAt)
	assert.Equal(t, base.Add(30*time.Minute).Unix(), stored.LastTriggeredAt.Unix())
}

func TestEngine_TickSkipsDisabledRules(t *testing.T) {
	te := newTestEngine(t)
	rule := notifyEvery("Dormant sweep", 30)
	rule.IsEnabled = false
	te.create(t, rule)

	te.eng.Tick(context.Background(), time.Now())
	te.drain()

	assert.Empty(t, te.notifier.sent)
	assert.Empty(t, te.logEntries(t))
}

func TestEngine_TickSkipsBrokenSchedules(t *testing.T) {
	te := newTestEngine(t)
	// Inserted directly; the service would reject both definitions.
	broken := notifyOnCron("Unparseable cron", "every tuesday")
	require.NoError(t, te.db.Create(broken).Error)
	zero := notifyEvery("Zero interval", 0)
	require.NoError(t, te.db.Create(zero).Error)

	te.eng.Tick(context.Background(), time.Now())
	te.drain()

	assert.Empty(t, te.notifier.sent)
	assert.Empty(t, te.logEntries(t))
}

func TestEngine_ScheduleConditionsSeeSystemMetrics(t *testing.T) {
	te := newTestEngine(t)
	te.metrics.samples[models.MetricUsersOnline] = []MetricSample{{Metric: models.MetricUsersOnline, Value: 150}}
	rule := notifyEvery("Quiet hours only", 30)
	rule.Conditions = models.ConditionList{{Field: "users_online", Operator: models.OpLess, Value: 100.0}}
	te.create(t, rule)

	te.eng.Tick(context.Background(), time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC))
	te.drain()

	entries := te.logEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ResultSkipped, entries[0].Result)
	assert.Equal(t, "conditions not met", entries[0].Details)
	assert.Empty(t, te.notifier.sent)

	te.metrics.samples[models.MetricUsersOnline] = []MetricSample{{Metric: models.MetricUsersOnline, Value: 42}}
	te.eng.Tick(context.Background(), time.Date(2026, 3, 14, 3, 30, 0, 0, time.UTC))
	te.drain()

	assert.Len(t, te.notifier.sent, 1)
}
