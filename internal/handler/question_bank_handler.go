package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/questionbank"
	"github.com/noah-isme/coaching-console/internal/service"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
	"github.com/noah-isme/coaching-console/pkg/response"
)

type questionBankService interface {
	Browse(ctx context.Context, path service.QuestionBankPath) (questionbank.Snapshot, error)
	SetFavorite(ctx context.Context, topicID, questionID string, favorite bool) (models.Question, error)
}

// QuestionBankHandler exposes the question bank hierarchy.
type QuestionBankHandler struct {
	bank questionBankService
}

// NewQuestionBankHandler constructs QuestionBankHandler.
func NewQuestionBankHandler(bank questionBankService) *QuestionBankHandler {
	return &QuestionBankHandler{bank: bank}
}

// Browse resolves the levels selected by class_id, subject_id, chapter_id and topic_id.
func (h *QuestionBankHandler) Browse(c *gin.Context) {
	var path service.QuestionBankPath
	if err := c.ShouldBindQuery(&path); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	snap, err := h.bank.Browse(c.Request.Context(), path)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, snap)
}

type favoriteRequest struct {
	Favorite *bool `json:"favorite"`
}

// SetFavorite flags or unflags a question.
func (h *QuestionBankHandler) SetFavorite(c *gin.Context) {
	var req favoriteRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Favorite == nil {
		response.Error(c, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "favorite is required"),
			map[string]string{"favorite": "required"}))
		return
	}
	q, err := h.bank.SetFavorite(c.Request.Context(), c.Param("topicId"), c.Param("id"), *req.Favorite)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, q)
}
