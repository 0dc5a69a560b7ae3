package handlers

import (
	"net/http"

	"github.com/escola-hub/academic-records/internal/application/command"
	"github.com/escola-hub/academic-records/internal/application/query"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// RegisterStudentRequest is the body of POST /students.
type RegisterStudentRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Email       string `json:"email" validate:"required,email,max=254"`
	DateOfBirth string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
}

func (r RegisterStudentRequest) command(correlationID string) command.RegisterStudentCommand {
	return command.RegisterStudentCommand{
		Name:          r.Name,
		Email:         r.Email,
		DateOfBirth:   r.DateOfBirth,
		CorrelationID: correlationID,
	}
}

// RegisterStudentsRequest is the body of POST /students/batch.
type RegisterStudentsRequest struct {
	Students []RegisterStudentRequest `json:"students" validate:"required,min=1,max=500,dive"`
}

// BatchItem is the outcome of one entry of a batch registration.
type BatchItem struct {
	Index   int               `json:"index"`
	Student *query.StudentDTO `json:"student,omitempty"`
	Error   *APIError         `json:"error,omitempty"`
}

// StudentHandler serves the student endpoints.
type StudentHandler struct {
	register *command.RegisterStudentHandler
	remove   *command.DeleteStudentHandler
	queries  *query.StudentQueries
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(register *command.RegisterStudentHandler, remove *command.DeleteStudentHandler, queries *query.StudentQueries) *StudentHandler {
	return &StudentHandler{register: register, remove: remove, queries: queries}
}

// Register mounts the routes on rg.
func (h *StudentHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/students", h.Create)
	rg.POST("/students/batch", h.CreateBatch)
	rg.GET("/students", h.List)
	rg.GET("/students/by-email/:email", h.GetByEmail)
	rg.GET("/students/:id", h.Get)
	rg.DELETE("/students/:id", h.Delete)
}

// Create handles POST /students.
func (h *StudentHandler) Create(c *gin.Context) {
	var req RegisterStudentRequest
	if err := bindJSON(c, "RegisterStudent", &req); err != nil {
		RespondError(c, err)
		return
	}

	s, err := h.register.Handle(c.Request.Context(), req.command(correlationID(c)))
	if err != nil {
		RespondError(c, err)
		return
	}

	respondData(c, http.StatusCreated, h.queries.Describe(s))
}

// CreateBatch handles POST /students/batch. Entries are registered
// independently; the response reports each one.
func (h *StudentHandler) CreateBatch(c *gin.Context) {
	var req RegisterStudentsRequest
	if err := bindJSON(c, "RegisterStudents", &req); err != nil {
		RespondError(c, err)
		return
	}

	cmds := make([]command.RegisterStudentCommand, len(req.Students))
	for i, s := range req.Students {
		cmds[i] = s.command(correlationID(c))
	}

	results, err := h.register.HandleBatch(c.Request.Context(), cmds)
	if err != nil {
		RespondError(c, err)
		return
	}

	items := make([]BatchItem, len(results))
	created := 0
	for i, r := range results {
		items[i] = BatchItem{Index: r.Index}
		if r.Err != nil {
			items[i].Error = &APIError{Kind: shared.KindOf(r.Err), Message: shared.MessageOf(r.Err)}
			continue
		}
		items[i].Student = h.queries.Describe(r.Student)
		created++
	}

	status := http.StatusCreated
	if created < len(items) {
		status = http.StatusMultiStatus
	}
	respondData(c, status, items)
}

// List handles GET /students.
func (h *StudentHandler) List(c *gin.Context) {
	page, err := queryInt(c, "ListStudents", "page")
	if err != nil {
		RespondError(c, err)
		return
	}
	size, err := queryInt(c, "ListStudents", "page_size")
	if err != nil {
		RespondError(c, err)
		return
	}

	res, err := h.queries.List(c.Request.Context(), query.ListStudentsQuery{
		Search:   c.Query("search"),
		Page:     intOr(page, 1),
		PageSize: intOr(size, shared.DefaultPageSize),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	respondPage(c, res.Students, Meta(res.Page))
}

// Get handles GET /students/:id.
func (h *StudentHandler) Get(c *gin.Context) {
	dto, err := h.queries.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	respondData(c, http.StatusOK, dto)
}

// GetByEmail handles GET /students/by-email/:email.
func (h *StudentHandler) GetByEmail(c *gin.Context) {
	dto, err := h.queries.GetByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		RespondError(c, err)
		return
	}
	respondData(c, http.StatusOK, dto)
}

// Delete handles DELETE /students/:id.
func (h *StudentHandler) Delete(c *gin.Context) {
	err := h.remove.Handle(c.Request.Context(), command.DeleteStudentCommand{
		StudentID:     c.Param("id"),
		CorrelationID: correlationID(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
