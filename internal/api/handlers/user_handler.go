package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/models"
)

// UserHandler exposes the managed accounts the automation engine targets.
// Records are synced in from node agents and the billing side, so writes are
// upserts keyed by the panel uuid rather than a create/update split.
type UserHandler struct {
	DB *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{DB: db}
}

// List handles GET /api/v1/users
func (h *UserHandler) List(c *gin.Context) {
	query := h.DB.Model(&models.User{})

	if v := c.Query("status"); v != "" {
		query = query.Where("status = ?", v)
	}
	if v := c.Query("online"); v != "" {
		online, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "online must be true or false"})
			return
		}
		query = query.Where("online = ?", online)
	}

	var users []models.User
	if err := query.Order("username asc").Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	c.JSON(http.StatusOK, users)
}

// Get handles GET /api/v1/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	var user models.User
	if err := h.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}

	c.JSON(http.StatusOK, user)
}

type upsertUserRequest struct {
	Username     string     `json:"username" binding:"required"`
	Status       string     `json:"status"`
	BlockReason  string     `json:"block_reason"`
	Online       bool       `json:"online"`
	LastOnlineAt *time.Time `json:"last_online_at"`
	ExpireAt     *time.Time `json:"expire_at"`
	TrafficUsed  int64      `json:"traffic_used"`
	TrafficLimit int64      `json:"traffic_limit"`
	TrafficToday int64      `json:"traffic_today"`
}

// Upsert handles PUT /api/v1/users/:id. The id is the uuid assigned by the
// panel that owns the account; syncing the same id again overwrites the
// mutable fields.
func (h *UserHandler) Upsert(c *gin.Context) {
	var req upsertUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := models.UserStatus(req.Status)
	if req.Status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	user := models.User{
		ID:           c.Param("id"),
		Username:     req.Username,
		Status:       status,
		BlockReason:  req.BlockReason,
		Online:       req.Online,
		LastOnlineAt: req.LastOnlineAt,
		ExpireAt:     req.ExpireAt,
		TrafficUsed:  req.TrafficUsed,
		TrafficLimit: req.TrafficLimit,
		TrafficToday: req.TrafficToday,
	}

	var existing models.User
	err := h.DB.First(&existing, "id = ?", user.ID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := h.DB.Create(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}
		c.JSON(http.StatusCreated, user)
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
	default:
		user.CreatedAt = existing.CreatedAt
		if user.Status == "" {
			user.Status = existing.Status
		}
		if err := h.DB.Save(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// Delete handles DELETE /api/v1/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.User{}, "id = ?", c.Param("id"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("user_id = ?", c.Param("id")).Delete(&models.UserNodeTraffic{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}
