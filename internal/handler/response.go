package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coinkiosk/internal/service"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// ServiceError maps the engine's error taxonomy onto HTTP statuses. The
// wording of SlotUnavailable and Forbidden matches what the kiosk front-end
// shows the user.
func ServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSlotNotFound):
		Error(c, http.StatusNotFound, "slot not found", nil)
	case errors.Is(err, service.ErrRuleNotFound):
		Error(c, http.StatusNotFound, "calibration rule not found", nil)
	case errors.Is(err, service.ErrSlotUnavailable):
		Error(c, http.StatusConflict, "another session is in progress, please wait", nil)
	case errors.Is(err, service.ErrForbidden):
		Error(c, http.StatusForbidden, "lease state out of date, reload and retry", nil)
	case errors.Is(err, service.ErrCalibrationConflict):
		Error(c, http.StatusConflict, "an active rule for this pulse count already exists", nil)
	case errors.Is(err, service.ErrInvalidCoinValue),
		errors.Is(err, service.ErrInvalidCoinCount),
		errors.Is(err, service.ErrInvalidIdentity):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	default:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
	}
}
