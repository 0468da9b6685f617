package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinkiosk/internal/config"
	"coinkiosk/internal/models"
	"coinkiosk/internal/repository"
	"coinkiosk/internal/service"
)

type SlotHandler struct {
	Repo      repository.Repository
	Leases    *service.LeaseService
	Queue     *service.QueueService
	Logger    *zap.Logger
	RateLimit config.RateLimitConfig
}

func (h *SlotHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/slots")
	g.GET("", h.list)
	g.POST("/:number/claim", RateLimitClaims(h.RateLimit.ClaimPerMinute, h.RateLimit.Burst), h.claim)
	g.POST("/:number/release", h.release)
	g.POST("/:number/coins", h.addCoin)
}

type slotView struct {
	models.CoinSlot
	Queue repository.QueueTotals `json:"queue"`
}

func (h *SlotHandler) list(c *gin.Context) {
	slots, err := h.Repo.ListSlots(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	summaries, err := h.Repo.SlotQueueSummaries(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	views := make([]slotView, 0, len(slots))
	for _, s := range slots {
		v := slotView{CoinSlot: s, Queue: repository.QueueTotals{TotalValue: decimal.Zero}}
		if sum, ok := summaries[s.ID]; ok {
			v.Queue = sum
		}
		views = append(views, v)
	}
	Ok(c, views, map[string]any{"total": len(views)})
}

type claimRequest struct {
	Identity     string `json:"identity" binding:"required"`
	LeaseSeconds int    `json:"lease_seconds"`
}

func (h *SlotHandler) claim(c *gin.Context) {
	number, ok := slotNumberParam(c)
	if !ok {
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	slot, err := h.Leases.Claim(c.Request.Context(), number, req.Identity, req.LeaseSeconds)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, slot, nil)
}

type releaseRequest struct {
	Identity      string `json:"identity"`
	PreserveQueue bool   `json:"preserve_queue"`
	Admin         bool   `json:"admin"`
}

func (h *SlotHandler) release(c *gin.Context) {
	number, ok := slotNumberParam(c)
	if !ok {
		return
	}
	var req releaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	slot, err := h.Leases.Release(c.Request.Context(), number, req.Identity, req.PreserveQueue, req.Admin)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, slot, nil)
}

type addCoinRequest struct {
	Identity  string          `json:"identity" binding:"required"`
	CoinValue decimal.Decimal `json:"coin_value"`
	CoinCount int             `json:"coin_count"`
}

func (h *SlotHandler) addCoin(c *gin.Context) {
	number, ok := slotNumberParam(c)
	if !ok {
		return
	}
	var req addCoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	totals, err := h.Queue.AddCoin(c.Request.Context(), number, req.Identity, req.CoinValue, req.CoinCount)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, totals, nil)
}

func slotNumberParam(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Param("number"))
	number, err := strconv.Atoi(raw)
	if err != nil || number <= 0 {
		Error(c, http.StatusBadRequest, "invalid slot number", nil)
		return 0, false
	}
	return number, true
}
