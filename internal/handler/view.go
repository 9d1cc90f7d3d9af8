package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/service"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
	"github.com/noah-isme/coaching-console/pkg/response"
)

// respondView writes a cached read. Freshness travels in meta so clients can show a
// stale badge or the error of a failed background refresh.
func respondView[T any](c *gin.Context, view service.View[T], err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{
		"stale":    view.Stale,
		"fetching": view.Fetching,
	}
	if !view.UpdatedAt.IsZero() {
		meta["updated_at"] = view.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if view.Error != nil {
		meta["refresh_error"] = view.Error
	}
	response.OK(c, view.Data, meta)
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return false
	}
	return true
}

// parseDay reads a YYYY-MM-DD value. An empty value yields the zero time.
func parseDay(raw, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid date"),
			map[string]string{field: "datetime=" + models.DateLayout})
	}
	return day, nil
}
