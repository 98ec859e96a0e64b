package panel

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/engine"
	"github.com/nodewarden/warden/internal/models"
)

const bytesPerGB = 1 << 30

// MetricsSource implements engine.MetricsSource on the panel database.
type MetricsSource struct {
	db *gorm.DB
}

func NewMetricsSource(db *gorm.DB) *MetricsSource {
	return &MetricsSource{db: db}
}

// Sample returns the current value of a metric. System metrics produce a
// single untargeted sample; per-entity metrics produce one sample per user,
// node, or user/node pair.
func (m *MetricsSource) Sample(ctx context.Context, metric models.MetricName) ([]engine.MetricSample, error) {
	switch metric {
	case models.MetricUsersOnline:
		var n int64
		err := m.db.WithContext(ctx).Model(&models.User{}).
			Where("online = ?", true).Count(&n).Error
		if err != nil {
			return nil, err
		}
		return []engine.MetricSample{{
			Metric: metric, Value: float64(n), TargetType: models.TargetSystem,
		}}, nil

	case models.MetricTrafficToday:
		var total float64
		err := m.db.WithContext(ctx).Model(&models.User{}).
			Select("COALESCE(SUM(traffic_today), 0)").Scan(&total).Error
		if err != nil {
			return nil, err
		}
		return []engine.MetricSample{{
			Metric: metric, Value: total / bytesPerGB, TargetType: models.TargetSystem,
		}}, nil

	case models.MetricNodeUptimePercent:
		var nodes []models.Node
		err := m.db.WithContext(ctx).
			Where("status <> ?", models.NodeDisabled).Find(&nodes).Error
		if err != nil {
			return nil, err
		}
		samples := make([]engine.MetricSample, 0, len(nodes))
		for _, n := range nodes {
			samples = append(samples, engine.MetricSample{
				Metric:     metric,
				Value:      n.UptimePercent,
				TargetType: models.TargetNode,
				TargetID:   n.ID,
				TargetName: n.Name,
				Fields:     map[string]any{"status": string(n.Status)},
			})
		}
		return samples, nil

	case models.MetricUserTrafficPercent:
		var users []models.User
		err := m.db.WithContext(ctx).
			Where("traffic_limit > 0").Find(&users).Error
		if err != nil {
			return nil, err
		}
		samples := make([]engine.MetricSample, 0, len(users))
		for _, u := range users {
			samples = append(samples, engine.MetricSample{
				Metric:     metric,
				Value:      u.TrafficPercent(),
				TargetType: models.TargetUser,
				TargetID:   u.ID,
				TargetName: u.Username,
				Fields:     map[string]any{"status": string(u.Status)},
			})
		}
		return samples, nil

	case models.MetricUserNodeTrafficGB:
		type row struct {
			UserID    string
			NodeID    string
			UsedBytes int64
			Username  string
			NodeName  string
		}
		var rows []row
		err := m.db.WithContext(ctx).
			Table("user_node_traffics t").
			Select("t.user_id, t.node_id, t.used_bytes, u.username AS username, n.name AS node_name").
			Joins("JOIN users u ON u.id = t.user_id").
			Joins("JOIN nodes n ON n.id = t.node_id").
			Where("t.day = ?", models.TrafficDay(time.Now())).
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		samples := make([]engine.MetricSample, 0, len(rows))
		for _, r := range rows {
			samples = append(samples, engine.MetricSample{
				Metric:     metric,
				Value:      float64(r.UsedBytes) / bytesPerGB,
				TargetType: models.TargetUser,
				TargetID:   r.UserID,
				TargetName: r.Username,
				Fields:     map[string]any{"node_uuid": r.NodeID, "node": r.NodeName},
			})
		}
		return samples, nil

	default:
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
}
