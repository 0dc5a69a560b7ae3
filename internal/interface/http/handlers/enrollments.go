package handlers

import (
	"net/http"
	"time"

	"github.com/escola-hub/academic-records/internal/application/command"
	"github.com/escola-hub/academic-records/internal/application/query"
	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

// EnrollRequest is the body of POST /enrollments.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	CourseID  string `json:"course_id" validate:"required,uuid"`

	// EnrollmentDate defaults to today when omitted.
	EnrollmentDate string `json:"enrollment_date" validate:"omitempty,datetime=2006-01-02"`
}

// EnrollmentResponse is one enrollment as returned by the command endpoints.
type EnrollmentResponse struct {
	ID             string      `json:"id"`
	StudentID      string      `json:"student_id"`
	CourseID       string      `json:"course_id"`
	EnrollmentDate shared.Date `json:"enrollment_date"`
	Status         string      `json:"status"`
	CancelledAt    *time.Time  `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

func enrollmentResponse(e *enrollment.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:             e.ID.String(),
		StudentID:      e.StudentID.String(),
		CourseID:       e.CourseID.String(),
		EnrollmentDate: e.EnrollmentDate,
		Status:         e.Status.String(),
		CancelledAt:    e.CancelledAt,
		CreatedAt:      e.CreatedAt,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentHandler serves the enrollment endpoints.
type EnrollmentHandler struct {
	enroll *command.EnrollHandler
	cancel *command.CancelEnrollmentHandler
	remove *command.RemoveEnrollmentHandler
	list   *query.ListEnrollmentsHandler
	get    *query.GetEnrollmentHandler
}

// NewEnrollmentHandler creates a new EnrollmentHandler.
func NewEnrollmentHandler(
	enroll *command.EnrollHandler,
	cancel *command.CancelEnrollmentHandler,
	remove *command.RemoveEnrollmentHandler,
	list *query.ListEnrollmentsHandler,
	get *query.GetEnrollmentHandler,
) *EnrollmentHandler {
	return &EnrollmentHandler{enroll: enroll, cancel: cancel, remove: remove, list: list, get: get}
}

// Register mounts the routes on rg.
func (h *EnrollmentHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/enrollments", h.Create)
	rg.GET("/enrollments", h.List)
	rg.GET("/enrollments/:id", h.Get)
	rg.POST("/enrollments/:id/cancel", h.Cancel)
	rg.DELETE("/enrollments/:id", h.Delete)
}

// Create handles POST /enrollments.
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req EnrollRequest
	if err := bindJSON(c, "Enroll", &req); err != nil {
		RespondError(c, err)
		return
	}

	e, err := h.enroll.Handle(c.Request.Context(), command.EnrollCommand{
		StudentID:      req.StudentID,
		CourseID:       req.CourseID,
		EnrollmentDate: req.EnrollmentDate,
		CorrelationID:  correlationID(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, enrollmentResponse(e))
}

// List handles GET /enrollments. Rows are streamed out of the store and
// collected only here.
func (h *EnrollmentHandler) List(c *gin.Context) {
	seq, err := h.list.Handle(c.Request.Context(), query.ListEnrollmentsQuery{
		StudentID: c.Query("student_id"),
		CourseID:  c.Query("course_id"),
		Status:    c.Query("status"),
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	rows, err := query.Collect(seq)
	if err != nil {
		RespondError(c, err)
		return
	}
	respondData(c, http.StatusOK, rows)
}

// Get handles GET /enrollments/:id.
func (h *EnrollmentHandler) Get(c *gin.Context) {
	row, err := h.get.Handle(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	respondData(c, http.StatusOK, row)
}

// Cancel handles POST /enrollments/:id/cancel.
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	e, err := h.cancel.Handle(c.Request.Context(), command.CancelEnrollmentCommand{
		EnrollmentID:  c.Param("id"),
		CorrelationID: correlationID(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	respondData(c, http.StatusOK, enrollmentResponse(e))
}

// Delete handles DELETE /enrollments/:id.
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	err := h.remove.Handle(c.Request.Context(), command.RemoveEnrollmentCommand{
		EnrollmentID:  c.Param("id"),
		CorrelationID: correlationID(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
