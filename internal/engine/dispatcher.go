package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nodewarden/warden/internal/models"
)

// dispatch resolves the rule's targets and applies its action to each one,
// returning one outcome per target. Targets are independent: a failure on
// one never stops the rest. The slice is never empty.
func (e *Engine) dispatch(ctx context.Context, rule models.AutomationRule, fctx map[string]any) []Outcome {
	switch rule.ActionType {
	case models.ActionDisableUser, models.ActionBlockUser, models.ActionResetTraffic:
		return e.dispatchUserAction(ctx, rule, fctx)
	case models.ActionCleanupExpired:
		return e.dispatchCleanup(ctx, rule)
	case models.ActionRestartNode, models.ActionForceSync:
		return e.dispatchNodeAction(ctx, rule, fctx)
	case models.ActionNotify:
		return e.dispatchNotify(ctx, rule, fctx)
	default:
		return []Outcome{{
			TargetType: models.TargetSystem,
			Result:     models.ResultError,
			Details:    fmt.Sprintf("unknown action type %q", rule.ActionType),
		}}
	}
}

// dispatchUserAction applies a single-user action to the user carried in the
// firing context. Without one there is nothing safe to act on, so the firing
// is recorded as skipped rather than touching the whole directory.
func (e *Engine) dispatchUserAction(ctx context.Context, rule models.AutomationRule, fctx map[string]any) []Outcome {
	id := contextUser(fctx)
	if id == "" {
		return []Outcome{{
			TargetType: models.TargetUser,
			Result:     models.ResultSkipped,
			Details:    "no user in firing context",
		}}
	}

	var err error
	var detail string
	switch rule.ActionType {
	case models.ActionDisableUser:
		err = e.users.Disable(ctx, id)
		detail = "user disabled"
	case models.ActionBlockUser:
		reason := rule.ActionConfig.Reason
		if reason == "" {
			reason = "blocked by automation rule " + rule.Name
		}
		err = e.users.Block(ctx, id, reason)
		detail = "user blocked: " + reason
	case models.ActionResetTraffic:
		err = e.users.ResetTraffic(ctx, id)
		detail = "traffic counters reset"
	}
	if err != nil {
		return []Outcome{{TargetType: models.TargetUser, TargetID: id, Result: models.ResultError, Details: err.Error()}}
	}
	return []Outcome{{TargetType: models.TargetUser, TargetID: id, Result: models.ResultSuccess, Details: detail}}
}

// dispatchCleanup removes every account whose expiry lies strictly more than
// older_than_days before now. An account expired exactly on the boundary is
// kept.
func (e *Engine) dispatchCleanup(ctx context.Context, rule models.AutomationRule) []Outcome {
	days := 0
	if rule.ActionConfig.OlderThanDays != nil {
		days = *rule.ActionConfig.OlderThanDays
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	expired, err := e.users.ListExpiredBefore(ctx, cutoff)
	if err != nil {
		return []Outcome{{TargetType: models.TargetSystem, Result: models.ResultError, Details: err.Error()}}
	}
	if len(expired) == 0 {
		return []Outcome{{
			TargetType: models.TargetSystem,
			Result:     models.ResultSkipped,
			Details:    fmt.Sprintf("no accounts expired before %s", cutoff.UTC().Format(time.RFC3339)),
		}}
	}

	outcomes := make([]Outcome, 0, len(expired))
	for _, u := range expired {
		if err := e.users.Remove(ctx, u.ID); err != nil {
			outcomes = append(outcomes, Outcome{TargetType: models.TargetUser, TargetID: u.ID, Result: models.ResultError, Details: err.Error()})
			continue
		}
		outcomes = append(outcomes, Outcome{
			TargetType: models.TargetUser,
			TargetID:   u.ID,
			Result:     models.ResultSuccess,
			Details:    "removed expired account " + u.Username,
		})
	}
	return outcomes
}

// dispatchNodeAction restarts or syncs the resolved nodes.
func (e *Engine) dispatchNodeAction(ctx context.Context, rule models.AutomationRule, fctx map[string]any) []Outcome {
	targets, failure := e.resolveNodes(ctx, rule, fctx)
	if failure != nil {
		return []Outcome{*failure}
	}

	outcomes := make([]Outcome, 0, len(targets))
	for _, n := range targets {
		var err error
		var detail string
		if rule.ActionType == models.ActionRestartNode {
			err = e.nodes.Restart(ctx, n.ID)
			detail = "node " + n.Name + " restarted"
		} else {
			err = e.nodes.ForceSync(ctx, n.ID)
			detail = "node " + n.Name + " synced"
		}
		if err != nil {
			outcomes = append(outcomes, Outcome{TargetType: models.TargetNode, TargetID: n.ID, Result: models.ResultError, Details: err.Error()})
			continue
		}
		outcomes = append(outcomes, Outcome{TargetType: models.TargetNode, TargetID: n.ID, Result: models.ResultSuccess, Details: detail})
	}
	return outcomes
}

// resolveNodes picks the node targets: the pinned config node first, then
// the node in the firing context, then the whole fleet.
func (e *Engine) resolveNodes(ctx context.Context, rule models.AutomationRule, fctx map[string]any) ([]NodeRef, *Outcome) {
	lookup := func(id string) ([]NodeRef, *Outcome) {
		node, err := e.nodes.Get(ctx, id)
		if err != nil {
			return nil, &Outcome{TargetType: models.TargetNode, TargetID: id, Result: models.ResultError, Details: err.Error()}
		}
		return []NodeRef{*node}, nil
	}

	if id := rule.ActionConfig.NodeUUID; id != "" {
		return lookup(id)
	}
	if id := contextNode(fctx); id != "" {
		return lookup(id)
	}

	nodes, err := e.nodes.List(ctx)
	if err != nil {
		return nil, &Outcome{TargetType: models.TargetSystem, Result: models.ResultError, Details: err.Error()}
	}
	if len(nodes) == 0 {
		return nil, &Outcome{TargetType: models.TargetSystem, Result: models.ResultSkipped, Details: "no nodes registered"}
	}
	return nodes, nil
}

// dispatchNotify sends the expanded message over the configured channel.
func (e *Engine) dispatchNotify(ctx context.Context, rule models.AutomationRule, fctx map[string]any) []Outcome {
	cfg := rule.ActionConfig
	message := expandMessage(cfg.Message, fctx)
	if err := e.notifier.Send(ctx, cfg.Channel, message, cfg.WebhookURL); err != nil {
		return []Outcome{{TargetType: models.TargetSystem, Result: models.ResultError, Details: err.Error()}}
	}
	return []Outcome{{
		TargetType: models.TargetSystem,
		Result:     models.ResultSuccess,
		Details:    "notification sent via " + cfg.Channel,
	}}
}

// expandMessage fills the {user}, {node}, {rule_name} and {timestamp}
// placeholders from the firing context. A placeholder whose key is absent
// becomes empty rather than failing the whole action.
func expandMessage(message string, fctx map[string]any) string {
	r := strings.NewReplacer(
		"{user}", stringField(fctx, "user"),
		"{node}", stringField(fctx, "node"),
		"{rule_name}", stringField(fctx, "rule_name"),
		"{timestamp}", stringField(fctx, "timestamp"),
	)
	return r.Replace(message)
}
