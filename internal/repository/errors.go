package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"

	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

// translateError maps driver failures onto the gateway's error taxonomy. Errors that are
// already typed pass through unchanged.
func translateError(err error, action string) error {
	if err == nil {
		return nil
	}
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, action+": not found")
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			conflict := appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, action+": already exists")
			if pqErr.Constraint != "" {
				return appErrors.WithFields(conflict, map[string]string{"constraint": pqErr.Constraint})
			}
			return conflict
		case pqErr.Code.Class() == "22", pqErr.Code == "23502", pqErr.Code == "23503", pqErr.Code == "23514":
			invalid := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, action+": rejected input")
			field := pqErr.Column
			if field == "" {
				field = pqErr.Constraint
			}
			if field == "" {
				return invalid
			}
			return appErrors.WithFields(invalid, map[string]string{field: pqErr.Message})
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "53", pqErr.Code.Class() == "57":
			return appErrors.Wrap(err, appErrors.ErrNetwork.Code, appErrors.ErrNetwork.Status, action+": store unavailable")
		}
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return appErrors.Wrap(err, appErrors.ErrNetwork.Code, appErrors.ErrNetwork.Status, action+": store unreachable")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, action)
}

// notFound builds the error returned when a write touched no rows.
func notFound(action string) error {
	return appErrors.Clone(appErrors.ErrNotFound, action+": not found")
}
