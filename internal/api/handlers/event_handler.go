package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nodewarden/warden/internal/events"
)

type EventHandler struct {
	bus *events.Bus
}

func NewEventHandler(bus *events.Bus) *EventHandler {
	return &EventHandler{bus: bus}
}

type ingestEventRequest struct {
	Name    string         `json:"name" binding:"required"`
	Payload map[string]any `json:"payload"`
}

// Ingest handles POST /api/v1/events. Panel components and node agents post
// events here; rules subscribed to the event name fire asynchronously, so the
// response only confirms acceptance.
func (h *EventHandler) Ingest(c *gin.Context) {
	var req ingestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !events.Known(req.Name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event name", "known": events.Names()})
		return
	}

	h.bus.Publish(events.Event{
		Name:    req.Name,
		Payload: req.Payload,
		At:      time.Now(),
	})

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "event": req.Name})
}
