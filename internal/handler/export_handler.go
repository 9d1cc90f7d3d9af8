package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coaching-console/internal/service"
	"github.com/noah-isme/coaching-console/pkg/response"
)

type exportService interface {
	LowAttendance(ctx context.Context, format service.ExportFormat) (*service.ExportFile, error)
	PendingFees(ctx context.Context, format service.ExportFormat) (*service.ExportFile, error)
}

// ExportHandler serves dashboard selections as downloads.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// LowAttendance downloads the low-attendance list.
func (h *ExportHandler) LowAttendance(c *gin.Context) {
	h.serve(c, h.exports.LowAttendance)
}

// PendingFees downloads the pending-fee list.
func (h *ExportHandler) PendingFees(c *gin.Context) {
	h.serve(c, h.exports.PendingFees)
}

func (h *ExportHandler) serve(c *gin.Context, render func(context.Context, service.ExportFormat) (*service.ExportFile, error)) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := render(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
