package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/coaching-console/internal/mutation"
	"github.com/noah-isme/coaching-console/internal/query"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

// errSignedOut is returned by identity-scoped reads while nobody is signed in.
var errSignedOut = appErrors.Clone(appErrors.ErrUnauthorized, "sign in to load console data")

// Identity reports whether identity-scoped reads may run.
type Identity interface {
	IsAuthenticated() bool
}

// Core bundles the query cache and write pipeline shared by every facade service.
type Core struct {
	Cache    *query.Client
	Pipeline *mutation.Pipeline
	Identity Identity
	// Options overrides the cache defaults for console reads.
	Options *query.Options
}

func (c Core) options() query.Options {
	opts := c.Cache.Defaults()
	if c.Options != nil {
		opts = *c.Options
	}
	if c.Identity != nil {
		opts.Enabled = c.Identity.IsAuthenticated
	}
	return opts
}

// View is a cached read as handed to consumers: the data with its freshness and the
// error of the latest failed refresh, if any.
type View[T any] struct {
	Data      T                `json:"data"`
	Stale     bool             `json:"stale"`
	Fetching  bool             `json:"fetching"`
	Error     *appErrors.Error `json:"error,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func viewOf[T any](res query.Result) View[T] {
	v := View[T]{Stale: res.IsStale, Fetching: res.IsFetching, UpdatedAt: res.FetchedAt}
	if data, ok := query.As[T](res); ok {
		v.Data = data
	}
	if res.Err != nil {
		v.Error = appErrors.FromError(res.Err)
	}
	return v
}

// derive maps the data of a view, keeping its freshness.
func derive[T, U any](v View[T], fn func(T) U) View[U] {
	return View[U]{Data: fn(v.Data), Stale: v.Stale, Fetching: v.Fetching, Error: v.Error, UpdatedAt: v.UpdatedAt}
}

// load reads key through the cache. It fails only when no data is available; a failed
// refresh over retained data is reported on the view.
func load[T any](ctx context.Context, core Core, key string, fetch func(context.Context) (T, error)) (View[T], error) {
	res, err := core.Cache.Ensure(ctx, key, query.Typed(fetch), core.options())
	if res.HasData {
		return viewOf[T](res), nil
	}
	if err == nil {
		return View[T]{}, errSignedOut
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return View[T]{}, err
	}
	return View[T]{}, appErrors.FromError(err)
}

// watch subscribes fn to key and starts a load when needed.
func watch[T any](core Core, key string, fetch func(context.Context) (T, error), fn func(View[T])) (View[T], func()) {
	res, stop := core.Cache.Watch(key, query.Typed(fetch), core.options(), func(res query.Result) {
		fn(viewOf[T](res))
	})
	return viewOf[T](res), stop
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// invalid converts a validator failure into a ValidationError with per-field detail.
func invalid(err error, message string) error {
	typed := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return typed
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}
	return appErrors.WithFields(typed, fields)
}
