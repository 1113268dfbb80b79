package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fleet-presence-api/internal/service"
	appErrors "github.com/noah-isme/fleet-presence-api/pkg/errors"
	"github.com/noah-isme/fleet-presence-api/pkg/response"
)

// AttendanceHandler exposes the kiosk submission and correction endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// Kiosk godoc
// @Summary Record kiosk attendance
// @Description Self-service arrival or departure submission from the shared terminal
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.KioskEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Kiosk(c *gin.Context) {
	var req service.KioskEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	event, err := h.attendance.RecordKiosk(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Correct godoc
// @Summary Correct attendance event
// @Description Overwrite type and timestamp of an existing event
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param payload body service.CorrectEventRequest true "Correction payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/{id} [put]
func (h *AttendanceHandler) Correct(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid event id"))
		return
	}

	var req service.CorrectEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	event, err := h.attendance.Correct(c.Request.Context(), claims.Actor(), eventID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}
