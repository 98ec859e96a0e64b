// Package engine evaluates automation rules against panel state and carries
// out their actions. Three trigger paths feed it: published events, a shared
// minute tick for schedules, and metric sampling for thresholds. Every
// firing, whatever its outcome, leaves at least one execution log entry.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/nodewarden/warden/internal/events"
	"github.com/nodewarden/warden/internal/logger"
	"github.com/nodewarden/warden/internal/metrics"
	"github.com/nodewarden/warden/internal/models"
	"github.com/nodewarden/warden/internal/services"
)

// Outcome is the result of one action attempt against one target.
type Outcome struct {
	TargetType models.TargetType
	TargetID   string
	Result     models.ExecutionResult
	Details    string
}

// Options wires an Engine. Rules, Logs and the collaborators are required;
// Bus may be nil when events arrive by calling HandleEvent directly.
type Options struct {
	Rules    *services.RuleService
	Logs     *services.LogService
	Users    UserDirectory
	Nodes    NodeControl
	Metrics  MetricsSource
	Notifier Notifier
	Bus      *events.Bus

	TickInterval    time.Duration
	DispatchTimeout time.Duration
}

type Engine struct {
	rules    *services.RuleService
	logs     *services.LogService
	users    UserDirectory
	nodes    NodeControl
	metrics  MetricsSource
	notifier Notifier
	bus      *events.Bus

	tickInterval    time.Duration
	dispatchTimeout time.Duration

	cronMu    sync.Mutex
	cronCache map[string]cron.Schedule

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Minute
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 10 * time.Second
	}
	return &Engine{
		rules:           opts.Rules,
		logs:            opts.Logs,
		users:           opts.Users,
		nodes:           opts.Nodes,
		metrics:         opts.Metrics,
		notifier:        opts.Notifier,
		bus:             opts.Bus,
		tickInterval:    opts.TickInterval,
		dispatchTimeout: opts.DispatchTimeout,
		cronCache:       map[string]cron.Schedule{},
	}
}

// Start subscribes to the event bus and launches the shared tick loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	if e.bus != nil {
		e.bus.Subscribe(func(evt events.Event) { e.HandleEvent(ctx, evt) })
	}
	e.wg.Add(1)
	go e.run(ctx)
	logger.Log().WithField("tick", e.tickInterval.String()).Info("Automation engine started")
}

// Stop cancels the tick loop and waits for in-flight firings to drain.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Tick(ctx, now)
		}
	}
}

// HandleEvent evaluates every enabled event rule against one published
// event. Matching rules fire concurrently; the call itself does not block on
// dispatch.
func (e *Engine) HandleEvent(ctx context.Context, evt events.Event) {
	if ctx.Err() != nil {
		return
	}
	metrics.IncEventIngested(evt.Name)

	rules, err := e.rules.ListEnabled(models.TriggerEvent)
	if err != nil {
		logger.Log().WithError(err).Error("Failed to load event rules")
		return
	}
	for i := range rules {
		rule := rules[i]
		if rule.TriggerConfig.Event != evt.Name {
			continue
		}
		if !passesPrefilter(rule.TriggerConfig, evt) {
			continue
		}
		e.fireAsync(ctx, rule, eventContext(rule, evt), time.Now())
	}
}

// passesPrefilter applies the trigger-level payload filters. A filter whose
// payload field is absent fails, so the rule does not fire.
func passesPrefilter(cfg models.TriggerConfig, evt events.Event) bool {
	if cfg.MinScore != nil {
		score, ok := toFloat(evt.Payload["score"])
		if !ok || score < *cfg.MinScore {
			return false
		}
	}
	if cfg.OfflineMinutes != nil {
		minutes, ok := toFloat(evt.Payload["offline_minutes"])
		if !ok || minutes < float64(*cfg.OfflineMinutes) {
			return false
		}
	}
	return true
}

// fireAsync runs one firing on its own goroutine. Panics are contained so a
// bad rule cannot take the engine down.
func (e *Engine) fireAsync(ctx context.Context, rule models.AutomationRule, fctx map[string]any, firedAt time.Time) {
	if ctx.Err() != nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{"rule": rule.Name, "panic": r}).Error("Rule firing panicked")
				metrics.IncRuleFiring(string(models.ResultError))
				_ = e.logs.Record(models.RuleExecutionLog{
					RuleID:      rule.ID,
					RuleName:    rule.Name,
					TriggeredAt: firedAt,
					TargetType:  models.TargetSystem,
					ActionTaken: string(rule.ActionType),
					Result:      models.ResultError,
					Details:     fmt.Sprintf("internal error: %v", r),
				})
			}
		}()
		e.fire(ctx, rule, fctx, firedAt)
	}()
}

// fire runs one firing end to end: stamp the rule, check conditions,
// dispatch the action, record the outcomes.
func (e *Engine) fire(ctx context.Context, rule models.AutomationRule, fctx map[string]any, firedAt time.Time) {
	if err := e.rules.MarkFired(rule.ID, firedAt); err != nil {
		logger.Log().WithError(err).WithField("rule", rule.Name).Warn("Failed to stamp last_triggered_at")
	}

	if !EvaluateConditions(rule.Conditions, fctx) {
		e.record(rule, firedAt, []Outcome{{
			TargetType: models.TargetSystem,
			Result:     models.ResultSkipped,
			Details:    "conditions not met",
		}})
		return
	}

	dctx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
	defer cancel()
	e.record(rule, firedAt, e.dispatch(dctx, rule, fctx))
}

// record writes the log entries and counters for one firing. A firing with
// at least one successful outcome counts towards trigger_count.
func (e *Engine) record(rule models.AutomationRule, firedAt time.Time, outcomes []Outcome) {
	if len(outcomes) == 0 {
		outcomes = []Outcome{{
			TargetType: models.TargetSystem,
			Result:     models.ResultSkipped,
			Details:    "no matching targets",
		}}
	}

	entries := make([]models.RuleExecutionLog, 0, len(outcomes))
	succeeded, failed := false, false
	for _, o := range outcomes {
		switch o.Result {
		case models.ResultSuccess:
			succeeded = true
		case models.ResultError:
			failed = true
		}
		metrics.IncActionDispatch(string(rule.ActionType), string(o.Result))
		entries = append(entries, models.RuleExecutionLog{
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			TriggeredAt: firedAt,
			TargetType:  o.TargetType,
			TargetID:    o.TargetID,
			ActionTaken: string(rule.ActionType),
			Result:      o.Result,
			Details:     o.Details,
		})
	}
	if err := e.logs.Record(entries...); err != nil {
		logger.Log().WithError(err).WithField("rule", rule.Name).Error("Failed to record rule execution")
	}

	overall := models.ResultSkipped
	if succeeded {
		overall = models.ResultSuccess
	} else if failed {
		overall = models.ResultError
	}
	metrics.IncRuleFiring(string(overall))

	if succeeded {
		if err := e.rules.IncrementTriggerCount(rule.ID); err != nil {
			logger.Log().WithError(err).WithField("rule", rule.Name).Warn("Failed to bump trigger_count")
		}
	}

	logger.WithFields(logrus.Fields{
		"rule":    rule.Name,
		"action":  rule.ActionType,
		"result":  overall,
		"targets": len(outcomes),
	}).Info("Rule fired")
}
