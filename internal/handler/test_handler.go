package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/service"
	"github.com/noah-isme/coaching-console/pkg/response"
)

type testService interface {
	ListTests(ctx context.Context) (service.View[[]models.Test], error)
	CreateTest(ctx context.Context, input models.TestInput) (*models.Test, error)
	Results(ctx context.Context, testID string) (service.View[[]models.TestResult], error)
	StudentResults(ctx context.Context, studentID string) (service.View[[]models.TestResult], error)
	Report(ctx context.Context, testID string) (service.View[service.TestReport], error)
	RecordResult(ctx context.Context, input models.ResultInput) (*models.TestResult, error)
}

// TestHandler exposes tests and results.
type TestHandler struct {
	tests testService
}

// NewTestHandler constructs TestHandler.
func NewTestHandler(tests testService) *TestHandler {
	return &TestHandler{tests: tests}
}

// List returns every test.
func (h *TestHandler) List(c *gin.Context) {
	view, err := h.tests.ListTests(c.Request.Context())
	respondView(c, view, err)
}

// Create schedules a test.
func (h *TestHandler) Create(c *gin.Context) {
	var input models.TestInput
	if !bindJSON(c, &input) {
		return
	}
	test, err := h.tests.CreateTest(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, test)
}

// Results returns the results of one test.
func (h *TestHandler) Results(c *gin.Context) {
	view, err := h.tests.Results(c.Request.Context(), c.Param("id"))
	respondView(c, view, err)
}

// Report returns a test with its grade distribution and average.
func (h *TestHandler) Report(c *gin.Context) {
	view, err := h.tests.Report(c.Request.Context(), c.Param("id"))
	respondView(c, view, err)
}

// StudentResults returns every result of one student.
func (h *TestHandler) StudentResults(c *gin.Context) {
	view, err := h.tests.StudentResults(c.Request.Context(), c.Param("id"))
	respondView(c, view, err)
}

// RecordResult stores the marks of a student in the test named by the path.
func (h *TestHandler) RecordResult(c *gin.Context) {
	var input models.ResultInput
	if !bindJSON(c, &input) {
		return
	}
	input.TestID = c.Param("id")
	result, err := h.tests.RecordResult(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
