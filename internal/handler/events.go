package handler

import (
	"github.com/gin-gonic/gin"

	"coinkiosk/internal/notify"
)

// EventsHandler exposes the live notification feed consumed by the dashboard
// collaborator.
type EventsHandler struct {
	Hub *notify.WSHub
}

func (h *EventsHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/events/ws", gin.WrapF(h.Hub.Handle))
}
