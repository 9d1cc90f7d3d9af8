package query

import (
	"context"
	"strings"
	"time"
)

// Fetcher loads the value cached under a key.
type Fetcher func(ctx context.Context) (any, error)

// Typed adapts a typed loader to a Fetcher.
func Typed[T any](fetch func(ctx context.Context) (T, error)) Fetcher {
	return func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Options tune how a single key is fetched and kept.
type Options struct {
	// StaleTime is how long a successful fetch counts as fresh. Zero means always stale.
	StaleTime time.Duration
	// CacheTime is how long an unobserved entry survives GC. Zero uses the client default.
	CacheTime time.Duration
	// Retry is the number of automatic retries after a failed fetch.
	Retry int
	// RetryDelay overrides the client's backoff for the given retry attempt (0-based).
	RetryDelay func(attempt int) time.Duration
	// RefetchOnFocus allows Focus to refresh the entry in the background.
	RefetchOnFocus bool
	// Enabled gates fetching; nil means always enabled.
	Enabled func() bool
}

func (o Options) enabled() bool {
	return o.Enabled == nil || o.Enabled()
}

// Key joins a collection name and its parameters into a stable cache key.
func Key(collection string, params ...string) string {
	if len(params) == 0 {
		return collection
	}
	return collection + ":" + strings.Join(params, ":")
}

// Collection returns the collection part of a key.
func Collection(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}
