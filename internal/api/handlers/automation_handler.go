package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/engine"
	"github.com/nodewarden/warden/internal/models"
	"github.com/nodewarden/warden/internal/services"
)

// RuleTester previews a rule against live state without running its action.
// *engine.Engine satisfies it.
type RuleTester interface {
	Test(ctx context.Context, ruleID string) (*engine.TestResult, error)
}

type AutomationHandler struct {
	rules     *services.RuleService
	logs      *services.LogService
	templates *services.TemplateService
	tester    RuleTester
}

func NewAutomationHandler(db *gorm.DB, tester RuleTester) *AutomationHandler {
	rules := services.NewRuleService(db)
	return &AutomationHandler{
		rules:     rules,
		logs:      services.NewLogService(db),
		templates: services.NewTemplateService(rules),
		tester:    tester,
	}
}

// List handles GET /api/v1/automations
func (h *AutomationHandler) List(c *gin.Context) {
	var filter services.RuleFilter

	if v := c.Query("category"); v != "" {
		if !models.RuleCategory(v).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
			return
		}
		filter.Category = v
	}
	if v := c.Query("trigger_type"); v != "" {
		if !models.TriggerType(v).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown trigger type"})
			return
		}
		filter.TriggerType = v
	}
	if v := c.Query("enabled"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "enabled must be true or false"})
			return
		}
		filter.Enabled = &enabled
	}

	var ok bool
	if filter.Limit, ok = intQuery(c, "limit"); !ok {
		return
	}
	if filter.Offset, ok = intQuery(c, "offset"); !ok {
		return
	}

	rules, total, err := h.rules.List(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": rules,
		"total": total,
	})
}

type createRuleRequest struct {
	models.AutomationRule
	// Shadows the model field so an omitted is_enabled can default to true.
	IsEnabled *bool `json:"is_enabled"`
}

// Create handles POST /api/v1/automations
func (h *AutomationHandler) Create(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := req.AutomationRule
	rule.IsEnabled = req.IsEnabled == nil || *req.IsEnabled

	if err := h.rules.Create(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// Get handles GET /api/v1/automations/:id
func (h *AutomationHandler) Get(c *gin.Context) {
	rule, err := h.rules.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// Update handles PUT /api/v1/automations/:id
func (h *AutomationHandler) Update(c *gin.Context) {
	var updates models.AutomationRule
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.rules.Update(c.Param("id"), &updates)
	if err != nil {
		if errors.Is(err, services.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// Delete handles DELETE /api/v1/automations/:id
func (h *AutomationHandler) Delete(c *gin.Context) {
	if err := h.rules.Delete(c.Param("id")); err != nil {
		if errors.Is(err, services.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "rule deleted"})
}

// Toggle handles POST /api/v1/automations/:id/toggle
func (h *AutomationHandler) Toggle(c *gin.Context) {
	rule, err := h.rules.Toggle(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// Test handles POST /api/v1/automations/:id/test
func (h *AutomationHandler) Test(c *gin.Context) {
	result, err := h.tester.Test(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Logs handles GET /api/v1/automations/logs
func (h *AutomationHandler) Logs(c *gin.Context) {
	filter, ok := h.logFilter(c)
	if !ok {
		return
	}
	h.listLogs(c, filter)
}

// RuleLogs handles GET /api/v1/automations/:id/logs
func (h *AutomationHandler) RuleLogs(c *gin.Context) {
	if _, err := h.rules.Get(c.Param("id")); err != nil {
		if errors.Is(err, services.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filter, ok := h.logFilter(c)
	if !ok {
		return
	}
	filter.RuleID = c.Param("id")
	h.listLogs(c, filter)
}

// Templates handles GET /api/v1/automations/templates
func (h *AutomationHandler) Templates(c *gin.Context) {
	c.JSON(http.StatusOK, h.templates.List())
}

// ActivateTemplate handles POST /api/v1/automations/templates/:id/activate
func (h *AutomationHandler) ActivateTemplate(c *gin.Context) {
	rule, err := h.templates.Activate(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrTemplateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

func (h *AutomationHandler) listLogs(c *gin.Context, filter services.LogFilter) {
	entries, total, err := h.logs.List(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": entries,
		"total": total,
	})
}

// logFilter parses shared log query parameters. It writes the error response
// itself and returns ok=false when a parameter is malformed.
func (h *AutomationHandler) logFilter(c *gin.Context) (services.LogFilter, bool) {
	var filter services.LogFilter

	filter.RuleID = c.Query("rule_id")
	if v := c.Query("result"); v != "" {
		if !models.ExecutionResult(v).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown result"})
			return filter, false
		}
		filter.Result = v
	}
	for key, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		if v := c.Query(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC 3339"})
				return filter, false
			}
			*dst = &t
		}
	}

	var ok bool
	if filter.Limit, ok = intQuery(c, "limit"); !ok {
		return filter, false
	}
	if filter.Offset, ok = intQuery(c, "offset"); !ok {
		return filter, false
	}
	return filter, true
}

// intQuery parses a non-negative integer query parameter, responding with a
// 400 itself on garbage.
func intQuery(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}
