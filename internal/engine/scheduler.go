package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nodewarden/warden/internal/logger"
	"github.com/nodewarden/warden/internal/metrics"
	"github.com/nodewarden/warden/internal/models"
)

// Tick evaluates schedule and threshold rules once. The run loop calls it
// every tickInterval; tests call it directly with a chosen time. The wall
// time is truncated to the minute so cron matching does not depend on where
// inside the minute the ticker fired. Ticks missed during downtime are not
// backfilled.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	started := time.Now()
	at := now.Truncate(time.Minute)
	e.tickSchedules(ctx, at)
	e.tickThresholds(ctx, at)
	metrics.ObserveTick(time.Since(started).Seconds())
}

func (e *Engine) tickSchedules(ctx context.Context, at time.Time) {
	rules, err := e.rules.ListEnabled(models.TriggerSchedule)
	if err != nil {
		logger.Log().WithError(err).Error("Failed to load schedule rules")
		return
	}

	// A rule fires at most once per tick, whatever its expression says.
	fired := make(map[string]bool, len(rules))
	for i := range rules {
		rule := rules[i]
		if fired[rule.ID] {
			continue
		}
		due, err := e.scheduleDue(rule, at)
		if err != nil {
			logger.Log().WithError(err).WithField("rule", rule.Name).Warn("Skipping rule with a bad schedule")
			continue
		}
		if !due {
			continue
		}
		fired[rule.ID] = true
		e.fireAsync(ctx, rule, e.tickContext(ctx, rule, at), at)
	}
}

// scheduleDue decides whether a schedule rule fires at the given minute.
// Cron rules fire when the minute matches the expression. Interval rules
// fire when they have never fired, or the interval has elapsed since
// last_triggered_at.
func (e *Engine) scheduleDue(rule models.AutomationRule, at time.Time) (bool, error) {
	cfg := rule.TriggerConfig
	if cfg.Cron != "" {
		sched, err := e.cronSchedule(cfg.Cron)
		if err != nil {
			return false, err
		}
		return sched.Next(at.Add(-time.Second)).Equal(at), nil
	}

	if cfg.IntervalMinutes < 1 {
		return false, fmt.Errorf("invalid interval %d", cfg.IntervalMinutes)
	}
	if rule.LastTriggeredAt == nil {
		return true, nil
	}
	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	return at.Sub(*rule.LastTriggeredAt) >= interval, nil
}

// cronSchedule parses with a process-lifetime cache, so each expression is
// parsed once rather than every minute.
func (e *Engine) cronSchedule(expr string) (cron.Schedule, error) {
	e.cronMu.Lock()
	defer e.cronMu.Unlock()
	if sched, ok := e.cronCache[expr]; ok {
		return sched, nil
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, err
	}
	e.cronCache[expr] = sched
	return sched, nil
}
