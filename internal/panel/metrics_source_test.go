package panel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewarden/warden/internal/engine"
	"github.com/nodewarden/warden/internal/models"
)

func samplesByTarget(samples []engine.MetricSample) map[string]engine.MetricSample {
	byID := make(map[string]engine.MetricSample, len(samples))
	for _, s := range samples {
		byID[s.TargetID] = s
	}
	return byID
}

func TestMetricsSource_UsersOnline(t *testing.T) {
	db := setupPanelDB(t)
	source := NewMetricsSource(db)
	seedUser(t, db, &models.User{ID: "u-1", Username: "alice", Online: true})
	seedUser(t, db, &models.User{ID: "u-2", Username: "bob", Online: true})
	seedUser(t, db, &models.User{ID: "u-3", Username: "carol"})

	samples, err := source.Sample(context.Background(), models.MetricUsersOnline)
	require.NoError(t, err)

	require.Len(t, samples, 1)
	assert.Equal(t, models.TargetSystem, samples[0].TargetType)
	assert.Equal(t, 2.0, samples[0].Value)
}

func TestMetricsSource_TrafficToday(t *testing.T) {
	db := setupPanelDB(t)
	source := NewMetricsSource(db)
	seedUser(t, db, &models.User{ID: "u-1", Username: "alice", TrafficToday: 3 << 29}) // 1.5 GB
	seedUser(t, db, &models.User{ID: "u-2", Username: "bob", TrafficToday: 1 << 29})   // 0.5 GB

	samples, err := source.Sample(context.Background(), models.MetricTrafficToday)
	require.NoError(t, err)

	require.Len(t, samples, 1)
	assert.Equal(t, models.TargetSystem, samples[0].TargetType)
	assert.InDelta(t, 2.0, samples[0].Value, 1e-9)
}

func TestMetricsSource_NodeUptimePercent(t *testing.T) {
	db := setupPanelDB(t)
	source := NewMetricsSource(db)
	require.NoError(t, db.Create(&models.Node{ID: "n-1", Name: "edge-fra-1", Status: models.NodeOnline, UptimePercent: 99.92}).Error)
	require.NoError(t, db.Create(&models.Node{ID: "n-2", Name: "edge-ams-1", Status: models.NodeOffline, UptimePercent: 88.1}).Error)
	require.NoError(t, db.Create(&models.Node{ID: "n-3", Name: "edge-sgp-1", Status: models.NodeDisabled, UptimePercent: 50}).Error)

	samples, err := source.Sample(context.Background(), models.MetricNodeUptimePercent)
	require.NoError(t, err)

	byID := samplesByTarget(samples)
	require.Len(t, byID, 2, "disabled nodes are not sampled")
	assert.Equal(t, 99.92, byID["n-1"].Value)
	assert.Equal(t, "edge-fra-1", byID["n-1"].TargetName)
	assert.Equal(t, models.TargetNode, byID["n-1"].TargetType)
	assert.Equal(t, "offline", byID["n-2"].Fields["status"])
}

func TestMetricsSource_UserTrafficPercent(t *testing.T) {
	db := setupPanelDB(t)
	source := NewMetricsSource(db)
	seedUser(t, db, &models.User{ID: "u-1", Username: "alice", TrafficUsed: 80 << 30, TrafficLimit: 100 << 30})
	seedUser(t, db, &models.User{ID: "u-2", Username: "bob", TrafficUsed: 500 << 30})

	samples, err := source.Sample(context.Background(), models.MetricUserTrafficPercent)
	require.NoError(t, err)

	require.Len(t, samples, 1, "unlimited accounts are not sampled")
	assert.Equal(t, "u-1", samples[0].TargetID)
	assert.Equal(t, "alice", samples[0].TargetName)
	assert.Equal(t, models.TargetUser, samples[0].TargetType)
	assert.InDelta(t, 80.0, samples[0].Value, 1e-9)
	assert.Equal(t, "active", samples[0].Fields["status"])
}

func TestMetricsSource_UserNodeTrafficGB(t *testing.T) {
	db := setupPanelDB(t)
	source := NewMetricsSource(db)
	seedUser(t, db, &models.User{ID: "u-1", Username: "alice"})
	require.NoError(t, db.Create(&models.Node{ID: "n-1", Name: "edge-fra-1", Status: models.NodeOnline}).Error)

	today := models.TrafficDay(time.Now())
	yesterday := models.TrafficDay(time.Now().Add(-24 * time.Hour))
	require.NoError(t, db.Create(&models.UserNodeTraffic{UserID: "u-1", NodeID: "n-1", Day: today, UsedBytes: 2 << 30}).Error)
	require.NoError(t, db.Create(&models.UserNodeTraffic{UserID: "u-1", NodeID: "n-1", Day: yesterday, UsedBytes: 9 << 30}).Error)

	samples, err := source.Sample(context.Background(), models.MetricUserNodeTrafficGB)
	require.NoError(t, err)

	require.Len(t, samples, 1, "only today's rows count")
	assert.Equal(t, "u-1", samples[0].TargetID)
	assert.Equal(t, "alice", samples[0].TargetName)
	assert.InDelta(t, 2.0, samples[0].Value, 1e-9)
	assert.Equal(t, "edge-fra-1", samples[0].Fields["node"])
	assert.Equal(t, "n-1", samples[0].Fields["node_uuid"])
}

func TestMetricsSource_UnknownMetric(t *testing.T) {
	source := NewMetricsSource(setupPanelDB(t))
	_, err := source.Sample(context.Background(), models.MetricName("load_average"))
	assert.ErrorContains(t, err, `unknown metric "load_average"`)
}
