package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

func TestTranslateError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want *appErrors.Error
	}{
		{"no rows", sql.ErrNoRows, appErrors.ErrNotFound},
		{"unique", &pq.Error{Code: "23505"}, appErrors.ErrConflict},
		{"not null", &pq.Error{Code: "23502", Column: "name"}, appErrors.ErrValidation},
		{"check", &pq.Error{Code: "23514", Constraint: "fees_positive"}, appErrors.ErrValidation},
		{"bad text", &pq.Error{Code: "22P02"}, appErrors.ErrValidation},
		{"connection", &pq.Error{Code: "08006"}, appErrors.ErrNetwork},
		{"bad conn", driver.ErrBadConn, appErrors.ErrNetwork},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), appErrors.ErrNetwork},
		{"other", errors.New("syntax"), appErrors.ErrInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := translateError(tc.err, "list students")
			assert.True(t, appErrors.Is(got, tc.want), "got %v", got)
			assert.ErrorIs(t, got, tc.err)
		})
	}

	assert.Nil(t, translateError(nil, "noop"))
	typed := appErrors.Clone(appErrors.ErrValidation, "bad")
	assert.Same(t, typed, translateError(typed, "noop"))
}

func TestTranslateErrorCarriesFieldDetail(t *testing.T) {
	err := translateError(&pq.Error{Code: "23502", Column: "name", Message: "null value in column"}, "create student")
	assert.Equal(t, map[string]string{"name": "null value in column"}, appErrors.FromError(err).Fields)
}
