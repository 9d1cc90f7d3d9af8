package handler

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
	"github.com/noah-isme/coaching-console/pkg/response"
)

type preferenceService interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{})
	Reset(ctx context.Context)
}

// PreferenceHandler reads and writes UI preferences of the session user.
type PreferenceHandler struct {
	preferences preferenceService
}

// NewPreferenceHandler constructs PreferenceHandler.
func NewPreferenceHandler(preferences preferenceService) *PreferenceHandler {
	return &PreferenceHandler{preferences: preferences}
}

// Get returns the stored or default value of a preference.
func (h *PreferenceHandler) Get(c *gin.Context) {
	key := c.Param("key")
	var value json.RawMessage
	if !h.preferences.Get(c.Request.Context(), key, &value) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "preference not found"))
		return
	}
	response.OK(c, gin.H{"key": key, "value": value})
}

type preferenceRequest struct {
	Value json.RawMessage `json:"value"`
}

// Set stores a preference. Storage failures are not reported.
func (h *PreferenceHandler) Set(c *gin.Context) {
	var req preferenceRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Value) == 0 {
		response.Error(c, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "value is required"),
			map[string]string{"value": "required"}))
		return
	}
	h.preferences.Set(c.Request.Context(), c.Param("key"), req.Value)
	response.NoContent(c)
}

// Reset removes every stored preference.
func (h *PreferenceHandler) Reset(c *gin.Context) {
	h.preferences.Reset(c.Request.Context())
	response.NoContent(c)
}
