package delivery

import (
	"errors"
	"net/http"

	"mailpilot-backend/internal/rule/dto"
	"mailpilot-backend/internal/rule/usecase"

	"github.com/gin-gonic/gin"
)

// RuleHandler handles rule-related HTTP requests
type RuleHandler struct {
	ruleUsecase usecase.RuleUsecase
}

// NewRuleHandler creates a new RuleHandler
func NewRuleHandler(ruleUsecase usecase.RuleUsecase) *RuleHandler {
	return &RuleHandler{ruleUsecase: ruleUsecase}
}

// GetRules returns the user's rules in evaluation order
// GET /api/rules?enabled_only=true
func (h *RuleHandler) GetRules(c *gin.Context) {
	userID := c.GetString("userID")
	enabledOnly := c.Query("enabled_only") == "true"

	rules, err := h.ruleUsecase.GetUserRules(userID, enabledOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rules": rules, "total": len(rules)})
}

// GetRule returns a single rule
// GET /api/rules/:id
func (h *RuleHandler) GetRule(c *gin.Context) {
	userID := c.GetString("userID")
	ruleID := c.Param("id")

	rule, err := h.ruleUsecase.GetRule(userID, ruleID)
	if err != nil {
		respondRuleError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

// CreateRule validates and persists a new rule
// POST /api/rules
func (h *RuleHandler) CreateRule(c *gin.Context) {
	userID := c.GetString("userID")

	var req dto.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.ruleUsecase.CreateRule(userID, &req)
	if err != nil {
		respondRuleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// UpdateRule validates and replaces a rule's definition
// PUT /api/rules/:id
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	userID := c.GetString("userID")
	ruleID := c.Param("id")

	var req dto.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.ruleUsecase.UpdateRule(userID, ruleID, &req)
	if err != nil {
		respondRuleError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

// DeleteRule hard-deletes a rule
// DELETE /api/rules/:id
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	userID := c.GetString("userID")
	ruleID := c.Param("id")

	if err := h.ruleUsecase.DeleteRule(userID, ruleID); err != nil {
		respondRuleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "rule deleted"})
}

// TestRule dry-runs a rule definition against a stored email
// POST /api/rules/test
func (h *RuleHandler) TestRule(c *gin.Context) {
	userID := c.GetString("userID")

	var req dto.TestRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.ruleUsecase.TestRule(c.Request.Context(), userID, &req)
	if err != nil {
		respondRuleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ProcessEmail runs the engine against a stored message on demand
// POST /api/rules/process
func (h *RuleHandler) ProcessEmail(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		EmailMessageID string `json:"email_message_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.ruleUsecase.ProcessStoredEmail(c.Request.Context(), userID, req.EmailMessageID)
	if err != nil {
		respondRuleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetStats returns aggregate rule statistics
// GET /api/rules/stats
func (h *RuleHandler) GetStats(c *gin.Context) {
	userID := c.GetString("userID")

	stats, err := h.ruleUsecase.GetRuleStats(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// respondRuleError maps usecase errors onto HTTP statuses
func respondRuleError(c *gin.Context, err error) {
	var validationErr *usecase.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "validation failed",
			"violations": validationErr.Violations,
		})
		return
	}

	switch err.Error() {
	case "rule not found", "email not found":
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case "unauthorized":
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
