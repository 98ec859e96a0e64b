package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/models"
)

// NodeHandler exposes the edge node inventory. Like users, nodes are synced
// in from the monitoring feed and upserted by panel uuid.
type NodeHandler struct {
	DB *gorm.DB
}

func NewNodeHandler(db *gorm.DB) *NodeHandler {
	return &NodeHandler{DB: db}
}

// List handles GET /api/v1/nodes
func (h *NodeHandler) List(c *gin.Context) {
	query := h.DB.Model(&models.Node{})
	if v := c.Query("status"); v != "" {
		query = query.Where("status = ?", v)
	}

	var nodes []models.Node
	if err := query.Order("name asc").Find(&nodes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch nodes"})
		return
	}

	c.JSON(http.StatusOK, nodes)
}

// Get handles GET /api/v1/nodes/:id
func (h *NodeHandler) Get(c *gin.Context) {
	var node models.Node
	if err := h.DB.First(&node, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch node"})
		return
	}

	c.JSON(http.StatusOK, node)
}

type upsertNodeRequest struct {
	Name          string     `json:"name" binding:"required"`
	Address       string     `json:"address"`
	Status        string     `json:"status"`
	UptimePercent float64    `json:"uptime_percent"`
	ContainerName string     `json:"container_name"`
	LastSeenAt    *time.Time `json:"last_seen_at"`
}

// Upsert handles PUT /api/v1/nodes/:id
func (h *NodeHandler) Upsert(c *gin.Context) {
	var req upsertNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := models.NodeStatus(req.Status)
	if req.Status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	node := models.Node{
		ID:            c.Param("id"),
		Name:          req.Name,
		Address:       req.Address,
		Status:        status,
		UptimePercent: req.UptimePercent,
		ContainerName: req.ContainerName,
		LastSeenAt:    req.LastSeenAt,
	}

	var existing models.Node
	err := h.DB.First(&existing, "id = ?", node.ID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := h.DB.Create(&node).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create node"})
			return
		}
		c.JSON(http.StatusCreated, node)
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch node"})
	default:
		node.CreatedAt = existing.CreatedAt
		node.LastRestartAt = existing.LastRestartAt
		if node.Status == "" {
			node.Status = existing.Status
		}
		if err := h.DB.Save(&node).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update node"})
			return
		}
		c.JSON(http.StatusOK, node)
	}
}

// Delete handles DELETE /api/v1/nodes/:id
func (h *NodeHandler) Delete(c *gin.Context) {
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Node{}, "id = ?", c.Param("id"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("node_id = ?", c.Param("id")).Delete(&models.UserNodeTraffic{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete node"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "node deleted"})
}
