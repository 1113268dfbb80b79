package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fleet-presence-api/internal/models"
	"github.com/noah-isme/fleet-presence-api/internal/service"
	appErrors "github.com/noah-isme/fleet-presence-api/pkg/errors"
	"github.com/noah-isme/fleet-presence-api/pkg/response"
)

// DriverHandler exposes driver registry endpoints plus the per-driver
// attendance actions.
type DriverHandler struct {
	drivers    *service.DriverService
	attendance *service.AttendanceService
}

// NewDriverHandler constructs DriverHandler.
func NewDriverHandler(drivers *service.DriverService, attendance *service.AttendanceService) *DriverHandler {
	return &DriverHandler{drivers: drivers, attendance: attendance}
}

// List godoc
// @Summary List drivers
// @Description Managers see their own drivers, admins see every driver
// @Tags Drivers
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /drivers [get]
func (h *DriverHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	drivers, err := h.drivers.ListVisible(c.Request.Context(), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, drivers, nil)
}

// Create godoc
// @Summary Create driver
// @Tags Drivers
// @Accept json
// @Produce json
// @Param payload body service.CreateDriverRequest true "Driver payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /drivers [post]
func (h *DriverHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	driver, err := h.drivers.Create(c.Request.Context(), claims.Actor(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, driver)
}

// Get godoc
// @Summary Get driver detail with presence status
// @Tags Drivers
// @Produce json
// @Param id path int true "Driver ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /drivers/{id} [get]
func (h *DriverHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := driverID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	driver, err := h.drivers.Get(c.Request.Context(), claims.Actor(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	status, err := h.attendance.StatusNow(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"driver": driver, "status": status}, nil)
}

// Update godoc
// @Summary Update driver
// @Tags Drivers
// @Accept json
// @Produce json
// @Param id path int true "Driver ID"
// @Param payload body service.UpdateDriverRequest true "Driver payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /drivers/{id} [put]
func (h *DriverHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := driverID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	driver, err := h.drivers.Update(c.Request.Context(), claims.Actor(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, driver, nil)
}

// Delete godoc
// @Summary Delete driver
// @Tags Drivers
// @Produce json
// @Param id path int true "Driver ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /drivers/{id} [delete]
func (h *DriverHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := driverID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.drivers.Delete(c.Request.Context(), claims.Actor(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// History godoc
// @Summary Driver attendance history
// @Description Full event history, newest first, annotated with recency
// @Tags Drivers
// @Produce json
// @Param id path int true "Driver ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /drivers/{id}/history [get]
func (h *DriverHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := driverID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.attendance.History(c.Request.Context(), claims.Actor(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// RecordAttendance godoc
// @Summary One-tap driver attendance
// @Description Record an event now for a registered driver, owner only
// @Tags Drivers
// @Accept json
// @Produce json
// @Param id path int true "Driver ID"
// @Param payload body object true "Event type"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /drivers/{id}/attendance [post]
func (h *DriverHandler) RecordAttendance(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := driverID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var payload struct {
		Type string `json:"type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	event, err := h.attendance.RecordOwner(c.Request.Context(), claims.Actor(), id, models.EventType(payload.Type))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// RecordManual godoc
// @Summary Manual back-dated attendance entry
// @Description Record an event at an explicit date and time, no admission checks
// @Tags Drivers
// @Accept json
// @Produce json
// @Param id path int true "Driver ID"
// @Param payload body service.ManualEventRequest true "Manual entry payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /drivers/{id}/attendance/manual [post]
func (h *DriverHandler) RecordManual(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := driverID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.ManualEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	event, err := h.attendance.RecordManual(c.Request.Context(), claims.Actor(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

func driverID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid driver id")
	}
	return id, nil
}
