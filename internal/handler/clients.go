package handler

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"coinkiosk/internal/service"
)

type ClientHandler struct {
	Queue *service.QueueService
}

func (h *ClientHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/clients")
	g.GET("/:identity/totals", h.totals)
	g.POST("/:identity/redeem", h.redeem)
}

func (h *ClientHandler) totals(c *gin.Context) {
	identity := strings.TrimSpace(c.Param("identity"))
	totals, err := h.Queue.Totals(c.Request.Context(), identity)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, totals, map[string]any{"identity": identity})
}

func (h *ClientHandler) redeem(c *gin.Context) {
	identity := strings.TrimSpace(c.Param("identity"))
	result, err := h.Queue.Redeem(c.Request.Context(), identity)
	if err != nil {
		// An empty queue is the normal zero-value outcome, not a failure.
		if errors.Is(err, service.ErrNothingToRedeem) {
			Ok(c, result, map[string]any{"redeemed": false})
			return
		}
		ServiceError(c, err)
		return
	}
	Ok(c, result, map[string]any{"redeemed": true})
}
