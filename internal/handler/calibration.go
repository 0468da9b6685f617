package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"coinkiosk/internal/service"
)

type CalibrationHandler struct {
	Service *service.CalibrationService
}

func (h *CalibrationHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/calibration")
	g.GET("", h.list)
	g.POST("", h.add)
	g.POST("/:id/active", h.setActive)
}

func (h *CalibrationHandler) list(c *gin.Context) {
	rules, err := h.Service.ListRules(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, rules, map[string]any{"total": len(rules)})
}

type addRuleRequest struct {
	PulseCount  int             `json:"pulse_count" binding:"required"`
	ActualValue decimal.Decimal `json:"actual_value"`
	Note        string          `json:"note"`
}

func (h *CalibrationHandler) add(c *gin.Context) {
	var req addRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	rule, err := h.Service.AddRule(c.Request.Context(), req.PulseCount, req.ActualValue, req.Note)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, rule, nil)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *CalibrationHandler) setActive(c *gin.Context) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		Error(c, http.StatusBadRequest, "invalid rule id", nil)
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.Service.SetActive(c.Request.Context(), id, req.Active); err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, gin.H{"id": id, "active": req.Active}, nil)
}
