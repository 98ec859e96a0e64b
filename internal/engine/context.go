package engine

import (
	"context"
	"time"

	"github.com/nodewarden/warden/internal/events"
	"github.com/nodewarden/warden/internal/models"
)

// Firing contexts are flat maps the condition evaluator and the message
// placeholders read from. Well-known keys: event, user, user_uuid, node,
// node_uuid, score, offline_minutes, metric, value, rule_name, timestamp,
// plus whatever the event payload carried.

// eventContext merges an event's payload under the rule identity keys.
func eventContext(rule models.AutomationRule, evt events.Event) map[string]any {
	fctx := map[string]any{
		"event":     evt.Name,
		"rule_name": rule.Name,
		"timestamp": evt.At.UTC().Format(time.RFC3339),
	}
	for k, v := range evt.Payload {
		fctx[k] = v
	}
	return fctx
}

// tickContext is the context for schedule firings and dry runs: rule identity
// plus a small snapshot of system-wide metrics, so conditions like
// users_online < 100 work on scheduled rules too.
func (e *Engine) tickContext(ctx context.Context, rule models.AutomationRule, at time.Time) map[string]any {
	fctx := map[string]any{
		"rule_name": rule.Name,
		"timestamp": at.UTC().Format(time.RFC3339),
	}
	for _, metric := range []models.MetricName{models.MetricUsersOnline, models.MetricTrafficToday} {
		samples, err := e.metrics.Sample(ctx, metric)
		if err != nil || len(samples) == 0 {
			continue
		}
		fctx[string(metric)] = samples[0].Value
	}
	return fctx
}

// sampleContext is the context for one threshold sample firing.
func sampleContext(rule models.AutomationRule, s MetricSample, at time.Time) map[string]any {
	fctx := map[string]any{
		"rule_name": rule.Name,
		"timestamp": at.UTC().Format(time.RFC3339),
		"metric":    string(s.Metric),
		"value":     s.Value,
	}
	for k, v := range s.Fields {
		fctx[k] = v
	}
	switch s.TargetType {
	case models.TargetUser:
		fctx["user_uuid"] = s.TargetID
		fctx["user"] = s.TargetName
	case models.TargetNode:
		fctx["node_uuid"] = s.TargetID
		fctx["node"] = s.TargetName
	}
	return fctx
}

// contextUser pulls the user target out of a firing context.
func contextUser(fctx map[string]any) string {
	id, _ := fctx["user_uuid"].(string)
	return id
}

// contextNode pulls the node target out of a firing context.
func contextNode(fctx map[string]any) string {
	id, _ := fctx["node_uuid"].(string)
	return id
}

func stringField(fctx map[string]any, key string) string {
	if v, ok := fctx[key]; ok && v != nil {
		return toString(v)
	}
	return ""
}
