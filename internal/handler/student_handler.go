package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/service"
	"github.com/noah-isme/coaching-console/pkg/response"
)

type studentService interface {
	List(ctx context.Context) (service.View[[]models.Student], error)
	Get(ctx context.Context, id string) (service.View[models.Student], error)
	Classes(ctx context.Context) (service.View[[]models.Class], error)
	Create(ctx context.Context, input models.StudentInput) (*models.Student, error)
	Update(ctx context.Context, id string, patch models.StudentPatch) (*models.Student, error)
	Delete(ctx context.Context, id string) error
}

// StudentHandler exposes the roster and its class grouping.
type StudentHandler struct {
	students studentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List returns the roster.
func (h *StudentHandler) List(c *gin.Context) {
	view, err := h.students.List(c.Request.Context())
	respondView(c, view, err)
}

// Get returns one student.
func (h *StudentHandler) Get(c *gin.Context) {
	view, err := h.students.Get(c.Request.Context(), c.Param("id"))
	respondView(c, view, err)
}

// Classes returns the classes derived from the roster.
func (h *StudentHandler) Classes(c *gin.Context) {
	view, err := h.students.Classes(c.Request.Context())
	respondView(c, view, err)
}

// Create adds a student.
func (h *StudentHandler) Create(c *gin.Context) {
	var input models.StudentInput
	if !bindJSON(c, &input) {
		return
	}
	student, err := h.students.Create(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update applies a partial update.
func (h *StudentHandler) Update(c *gin.Context) {
	var patch models.StudentPatch
	if !bindJSON(c, &patch) {
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, student)
}

// Delete removes a student.
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
