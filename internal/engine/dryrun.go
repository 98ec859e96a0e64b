package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/nodewarden/warden/internal/models"
)

// MaxTestTargets caps how many resolved targets a dry run lists. The
// estimated action count still includes everything past the cap.
const MaxTestTargets = 50

// TestResult is the outcome of one dry run.
type TestResult struct {
	WouldTrigger     bool     `json:"would_trigger"`
	Details          string   `json:"details"`
	MatchingTargets  []string `json:"matching_targets"`
	EstimatedActions int      `json:"estimated_actions"`
}

// Test evaluates a rule against current panel state without dispatching
// anything or writing history. Disabled rules can be tested.
func (e *Engine) Test(ctx context.Context, id string) (*TestResult, error) {
	rule, err := e.rules.Get(id)
	if err != nil {
		return nil, err
	}

	at := time.Now().Truncate(time.Minute)
	switch rule.TriggerType {
	case models.TriggerEvent:
		return e.testEvent(ctx, *rule, at)
	case models.TriggerSchedule:
		return e.testSchedule(ctx, *rule, at)
	case models.TriggerThreshold:
		return e.testThreshold(ctx, *rule, at)
	default:
		return nil, fmt.Errorf("unknown trigger type %q", rule.TriggerType)
	}
}

// testEvent checks what can be checked without a live payload: conditions
// run against the system snapshot, and ones referencing payload-only fields
// fail closed.
func (e *Engine) testEvent(ctx context.Context, rule models.AutomationRule, at time.Time) (*TestResult, error) {
	fctx := e.tickContext(ctx, rule, at)
	fctx["event"] = rule.TriggerConfig.Event

	res := &TestResult{}
	if !EvaluateConditions(rule.Conditions, fctx) {
		res.Details = fmt.Sprintf("conditions not met; fields carried only by a live %s payload fail closed in a test", rule.TriggerConfig.Event)
		return res, nil
	}

	res.WouldTrigger = true
	res.MatchingTargets, res.EstimatedActions = e.previewTargets(ctx, rule, fctx, MaxTestTargets)
	res.Details = fmt.Sprintf("would fire on the next %s event that passes the pre-filters", rule.TriggerConfig.Event)
	return res, nil
}

func (e *Engine) testSchedule(ctx context.Context, rule models.AutomationRule, at time.Time) (*TestResult, error) {
	res := &TestResult{}
	fctx := e.tickContext(ctx, rule, at)
	if !EvaluateConditions(rule.Conditions, fctx) {
		res.Details = "conditions not met against current system state"
		return res, nil
	}

	res.WouldTrigger = true
	res.MatchingTargets, res.EstimatedActions = e.previewTargets(ctx, rule, fctx, MaxTestTargets)
	res.Details = fmt.Sprintf("%s would run against %d target(s) on %s",
		rule.ActionType, res.EstimatedActions, describeSchedule(rule.TriggerConfig))
	return res, nil
}

func describeSchedule(cfg models.TriggerConfig) string {
	if cfg.Cron != "" {
		return fmt.Sprintf("cron %q", cfg.Cron)
	}
	return fmt.Sprintf("a %d minute interval", cfg.IntervalMinutes)
}

func (e *Engine) testThreshold(ctx context.Context, rule models.AutomationRule, at time.Time) (*TestResult, error) {
	cfg := rule.TriggerConfig
	samples, err := e.metrics.Sample(ctx, cfg.Metric)
	if err != nil {
		return nil, fmt.Errorf("sample metric %s: %w", cfg.Metric, err)
	}

	res := &TestResult{}
	if cfg.ThresholdValue == nil {
		res.Details = "threshold rule has no comparison value"
		return res, nil
	}

	matched := 0
	for _, sample := range samples {
		if !Compare(cfg.Operator, sample.Value, *cfg.ThresholdValue) {
			continue
		}
		fctx := sampleContext(rule, sample, at)
		if !EvaluateConditions(rule.Conditions, fctx) {
			continue
		}
		matched++
		targets, estimated := e.previewTargets(ctx, rule, fctx, MaxTestTargets-len(res.MatchingTargets))
		res.EstimatedActions += estimated
		res.MatchingTargets = append(res.MatchingTargets, targets...)
	}

	if matched == 0 {
		if len(samples) == 1 && samples[0].TargetID == "" {
			res.Details = fmt.Sprintf("%s = %s, threshold %s %s not met",
				cfg.Metric, toString(samples[0].Value), cfg.Operator, toString(*cfg.ThresholdValue))
		} else {
			res.Details = fmt.Sprintf("none of %d %s samples satisfy %s %s",
				len(samples), cfg.Metric, cfg.Operator, toString(*cfg.ThresholdValue))
		}
		return res, nil
	}

	res.WouldTrigger = true
	res.Details = fmt.Sprintf("%d of %d %s samples satisfy %s %s",
		matched, len(samples), cfg.Metric, cfg.Operator, toString(*cfg.ThresholdValue))
	return res, nil
}

// previewTargets resolves what dispatch would touch without touching it.
// The returned labels are capped at limit; the count is not.
func (e *Engine) previewTargets(ctx context.Context, rule models.AutomationRule, fctx map[string]any, limit int) ([]string, int) {
	if limit < 0 {
		limit = 0
	}

	switch rule.ActionType {
	case models.ActionDisableUser, models.ActionBlockUser, models.ActionResetTraffic:
		id := contextUser(fctx)
		if id == "" {
			return nil, 0
		}
		label := id
		if name := stringField(fctx, "user"); name != "" {
			label = fmt.Sprintf("%s (%s)", name, id)
		} else if user, err := e.users.Get(ctx, id); err == nil {
			label = fmt.Sprintf("%s (%s)", user.Username, id)
		}
		if limit == 0 {
			return nil, 1
		}
		return []string{label}, 1

	case models.ActionCleanupExpired:
		days := 0
		if rule.ActionConfig.OlderThanDays != nil {
			days = *rule.ActionConfig.OlderThanDays
		}
		cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
		expired, err := e.users.ListExpiredBefore(ctx, cutoff)
		if err != nil {
			return nil, 0
		}
		labels := make([]string, 0, min(len(expired), limit))
		for _, u := range expired {
			if len(labels) >= limit {
				break
			}
			labels = append(labels, fmt.Sprintf("%s (%s)", u.Username, u.ID))
		}
		return labels, len(expired)

	case models.ActionRestartNode, models.ActionForceSync:
		targets, failure := e.resolveNodes(ctx, rule, fctx)
		if failure != nil {
			return nil, 0
		}
		labels := make([]string, 0, min(len(targets), limit))
		for _, n := range targets {
			if len(labels) >= limit {
				break
			}
			labels = append(labels, fmt.Sprintf("%s (%s)", n.Name, n.ID))
		}
		return labels, len(targets)

	case models.ActionNotify:
		if limit == 0 {
			return nil, 1
		}
		return []string{rule.ActionConfig.Channel + " notification"}, 1
	}
	return nil, 0
}
