package query

import "time"

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is a point-in-time view of a cache entry. Err may be set while Data still
// holds the last successful value.
type Result struct {
	Key        string
	Data       any
	Err        error
	Status     Status
	HasData    bool
	IsStale    bool
	IsFetching bool
	FetchedAt  time.Time
	Generation uint64
}

// As returns the result data as T.
func As[T any](r Result) (T, bool) {
	var zero T
	if !r.HasData {
		return zero, false
	}
	v, ok := r.Data.(T)
	if !ok {
		return zero, false
	}
	return v, true
}
