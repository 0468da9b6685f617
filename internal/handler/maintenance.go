package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coinkiosk/internal/service"
)

type MaintenanceHandler struct {
	Queue *service.QueueService
}

func (h *MaintenanceHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/maintenance/cleanup", h.cleanup)
}

func (h *MaintenanceHandler) cleanup(c *gin.Context) {
	result, err := h.Queue.Cleanup(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}
