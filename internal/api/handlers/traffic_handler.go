package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/events"
	"github.com/nodewarden/warden/internal/models"
)

// TrafficHandler ingests usage reports from node agents. Each report bumps
// the per-day (user, node) counter and the user's totals, and publishes
// user.traffic_exceeded when the report pushes an account over its limit.
type TrafficHandler struct {
	DB  *gorm.DB
	bus *events.Bus
}

func NewTrafficHandler(db *gorm.DB, bus *events.Bus) *TrafficHandler {
	return &TrafficHandler{DB: db, bus: bus}
}

type trafficReportRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	NodeID    string `json:"node_id" binding:"required"`
	UsedBytes int64  `json:"used_bytes" binding:"required"`
	At        string `json:"at"`
}

// Report handles POST /api/v1/traffic/report
func (h *TrafficHandler) Report(c *gin.Context) {
	var req trafficReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UsedBytes < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "used_bytes must be positive"})
		return
	}

	at := time.Now()
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at must be RFC 3339"})
			return
		}
		at = parsed
	}
	day := models.TrafficDay(at)

	var user models.User
	var row models.UserNodeTraffic
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", req.UserID).Error; err != nil {
			return err
		}
		var node models.Node
		if err := tx.First(&node, "id = ?", req.NodeID).Error; err != nil {
			return err
		}

		if err := tx.Where(models.UserNodeTraffic{
			UserID: req.UserID,
			NodeID: req.NodeID,
			Day:    day,
		}).FirstOrCreate(&row).Error; err != nil {
			return err
		}
		row.UsedBytes += req.UsedBytes
		if err := tx.Model(&row).UpdateColumn("used_bytes", row.UsedBytes).Error; err != nil {
			return err
		}

		return tx.Model(&user).UpdateColumns(map[string]any{
			"traffic_used":  gorm.Expr("traffic_used + ?", req.UsedBytes),
			"traffic_today": gorm.Expr("traffic_today + ?", req.UsedBytes),
		}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user or node not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record traffic"})
		return
	}

	// user still carries the pre-report counters here; the increments above
	// went straight to the database.
	before := user.TrafficUsed
	after := before + req.UsedBytes
	if user.TrafficLimit > 0 && before <= user.TrafficLimit && after > user.TrafficLimit {
		h.bus.Publish(events.Event{
			Name: events.UserTrafficExceeded,
			Payload: map[string]any{
				"user_uuid":       user.ID,
				"user":            user.Username,
				"used_gb":         float64(after) / (1 << 30),
				"limit_gb":        float64(user.TrafficLimit) / (1 << 30),
				"traffic_percent": float64(after) / float64(user.TrafficLimit) * 100,
			},
			At: at,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"day":        day,
		"used_bytes": row.UsedBytes,
	})
}
