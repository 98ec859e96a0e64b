package engine

import (
	"context"
	"time"

	"github.com/nodewarden/warden/internal/logger"
	"github.com/nodewarden/warden/internal/models"
)

// tickThresholds samples each metric that at least one enabled threshold rule
// watches, then fires every rule whose comparison a sample satisfies. There
// is no debounce: a rule whose metric stays over its threshold fires on
// every tick until the metric recovers or the rule is disabled.
func (e *Engine) tickThresholds(ctx context.Context, at time.Time) {
	rules, err := e.rules.ListEnabled(models.TriggerThreshold)
	if err != nil {
		logger.Log().WithError(err).Error("Failed to load threshold rules")
		return
	}
	if len(rules) == 0 {
		return
	}

	// One sampling pass per distinct metric, shared by all rules on it.
	samplesByMetric := make(map[models.MetricName][]MetricSample)
	for i := range rules {
		metric := rules[i].TriggerConfig.Metric
		if _, sampled := samplesByMetric[metric]; sampled {
			continue
		}
		samples, err := e.metrics.Sample(ctx, metric)
		if err != nil {
			logger.Log().WithError(err).WithField("metric", metric).Error("Failed to sample metric")
			samplesByMetric[metric] = nil
			continue
		}
		samplesByMetric[metric] = samples
	}

	for i := range rules {
		rule := rules[i]
		cfg := rule.TriggerConfig
		if cfg.ThresholdValue == nil {
			continue
		}
		for _, sample := range samplesByMetric[cfg.Metric] {
			if !Compare(cfg.Operator, sample.Value, *cfg.ThresholdValue) {
				continue
			}
			e.fireAsync(ctx, rule, sampleContext(rule, sample, at), at)
		}
	}
}
