package handlers

import (
	"net/http"

	"github.com/escola-hub/academic-records/internal/application/command"
	"github.com/escola-hub/academic-records/internal/application/query"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// CourseRequest is the body of POST /courses and PUT /courses/:id.
type CourseRequest struct {
	Name          string `json:"name" validate:"required,max=120"`
	Description   string `json:"description" validate:"required,max=1000"`
	DurationHours int    `json:"duration_hours" validate:"required,gt=0,lte=10000"`
}

// CourseHandler serves the course endpoints.
type CourseHandler struct {
	commands *command.CourseHandler
	queries  *query.CourseQueries
}

// NewCourseHandler creates a new CourseHandler.
func NewCourseHandler(commands *command.CourseHandler, queries *query.CourseQueries) *CourseHandler {
	return &CourseHandler{commands: commands, queries: queries}
}

// Register mounts the routes on rg.
func (h *CourseHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/courses", h.Create)
	rg.GET("/courses", h.List)
	rg.GET("/courses/:id", h.Get)
	rg.PUT("/courses/:id", h.Update)
	rg.DELETE("/courses/:id", h.Delete)
}

// Create handles POST /courses.
func (h *CourseHandler) Create(c *gin.Context) {
	var req CourseRequest
	if err := bindJSON(c, "RegisterCourse", &req); err != nil {
		RespondError(c, err)
		return
	}

	created, err := h.commands.Register(c.Request.Context(), command.RegisterCourseCommand{
		Name:          req.Name,
		Description:   req.Description,
		DurationHours: req.DurationHours,
		CorrelationID: correlationID(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, query.CourseDTOOf(created))
}

// List handles GET /courses; search filters by name.
func (h *CourseHandler) List(c *gin.Context) {
	page, err := queryInt(c, "ListCourses", "page")
	if err != nil {
		RespondError(c, err)
		return
	}
	size, err := queryInt(c, "ListCourses", "page_size")
	if err != nil {
		RespondError(c, err)
		return
	}

	res, err := h.queries.List(c.Request.Context(), query.ListCoursesQuery{
		Search:   c.Query("search"),
		Page:     intOr(page, 1),
		PageSize: intOr(size, shared.DefaultPageSize),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	respondPage(c, res.Courses, Meta(res.Page))
}

// Get handles GET /courses/:id.
func (h *CourseHandler) Get(c *gin.Context) {
	dto, err := h.queries.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	respondData(c, http.StatusOK, dto)
}

// Update handles PUT /courses/:id.
func (h *CourseHandler) Update(c *gin.Context) {
	var req CourseRequest
	if err := bindJSON(c, "UpdateCourse", &req); err != nil {
		RespondError(c, err)
		return
	}

	updated, err := h.commands.Update(c.Request.Context(), command.UpdateCourseCommand{
		CourseID:      c.Param("id"),
		Name:          req.Name,
		Description:   req.Description,
		DurationHours: req.DurationHours,
		CorrelationID: correlationID(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	respondData(c, http.StatusOK, query.CourseDTOOf(updated))
}

// Delete handles DELETE /courses/:id.
func (h *CourseHandler) Delete(c *gin.Context) {
	err := h.commands.Delete(c.Request.Context(), command.DeleteCourseCommand{
		CourseID:      c.Param("id"),
		CorrelationID: correlationID(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
