package handlers

import (
	"net/http"

	"legalmatch-backend/models"
	"legalmatch-backend/service"

	"github.com/gin-gonic/gin"
)

// AppointmentHandler handles appointment booking
type AppointmentHandler struct {
	appointments *service.AppointmentService
}

// NewAppointmentHandler creates a new appointment handler
func NewAppointmentHandler(appointments *service.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{appointments: appointments}
}

// Create handles POST /api/appointments
func (h *AppointmentHandler) Create(c *gin.Context) {
	var req service.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	appt, err := h.appointments.CreateAppointment(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, appt)
}

// List handles GET /api/appointments?userId= or ?lawyerId=
func (h *AppointmentHandler) List(c *gin.Context) {
	userID, ok := uuidQuery(c, "userId")
	if !ok {
		return
	}
	lawyerID, ok := uuidQuery(c, "lawyerId")
	if !ok {
		return
	}

	appts, err := h.appointments.ListAppointments(c.Request.Context(), userID, lawyerID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, appts)
}

// UpdateStatusRequest is the body of PATCH /api/appointments/:id/status
type UpdateStatusRequest struct {
	Status models.AppointmentStatus `json:"status" binding:"required"`
}

// UpdateStatus handles PATCH /api/appointments/:id/status
func (h *AppointmentHandler) UpdateStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	appt, err := h.appointments.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, appt)
}
