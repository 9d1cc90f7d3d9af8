package mutation

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

// Cache is the part of the query cache a pipeline writes to.
type Cache interface {
	Invalidate(pattern string) int
	SetData(key string, update func(old any, ok bool) (any, bool)) bool
}

// Recorder receives mutation instrumentation.
type Recorder interface {
	ObserveMutation(op string, duration time.Duration, err error)
}

// Patch rewrites a single cached value after a confirmed write.
type Patch struct {
	Key    string
	Update func(old any, ok bool) (any, bool)
}

// Request describes one remote write.
type Request struct {
	Op      Operation
	Params  map[string]string
	Exec    func(ctx context.Context) (any, error)
	Patches []Patch
}

// Config configures a Pipeline.
type Config struct {
	// Invalidations maps operations to the key patterns they invalidate. Nil uses DefaultInvalidations.
	Invalidations map[Operation][]string
	Logger        *zap.Logger
	Recorder      Recorder
}

// Pipeline executes writes and keeps the query cache consistent with them.
type Pipeline struct {
	cache         Cache
	invalidations map[Operation][]string
	logger        *zap.Logger
	recorder      Recorder
}

// New constructs a Pipeline over cache.
func New(cache Cache, cfg Config) *Pipeline {
	invalidations := cfg.Invalidations
	if invalidations == nil {
		invalidations = DefaultInvalidations
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cache: cache, invalidations: invalidations, logger: logger, recorder: cfg.Recorder}
}

// Mutate runs req.Exec exactly once. Writes are never retried. On failure the error is
// returned as an *errors.Error and the cache is left untouched; on success the request's
// patches are applied and the operation's invalidations run, in that order.
func (p *Pipeline) Mutate(ctx context.Context, req Request) (any, error) {
	if req.Exec == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "mutation has no executor")
	}
	if _, ok := p.invalidations[req.Op]; !ok {
		return nil, appErrors.Clone(appErrors.ErrInternal, "unknown mutation operation "+string(req.Op))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := req.Exec(ctx)
	duration := time.Since(start)
	if p.recorder != nil {
		p.recorder.ObserveMutation(string(req.Op), duration, err)
	}
	if err != nil {
		typed := appErrors.FromError(err)
		p.logger.Warn("mutation failed",
			zap.String("operation", string(req.Op)),
			zap.String("code", typed.Code),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, typed
	}

	for _, patch := range req.Patches {
		if patch.Update == nil {
			continue
		}
		if p.cache.SetData(patch.Key, patch.Update) {
			p.logger.Debug("cache patched", zap.String("operation", string(req.Op)), zap.String("key", patch.Key))
		}
	}
	keys := p.Keys(req.Op, req.Params)
	for _, pattern := range keys {
		p.cache.Invalidate(pattern)
	}
	p.logger.Debug("mutation applied",
		zap.String("operation", string(req.Op)),
		zap.Strings("invalidated", keys),
		zap.Duration("duration", duration),
	)
	return result, nil
}

// Keys expands the invalidation patterns of op with params. A placeholder without a
// value widens to "*".
func (p *Pipeline) Keys(op Operation, params map[string]string) []string {
	patterns := p.invalidations[op]
	if len(patterns) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(patterns))
	keys := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		key := expand(pattern, params)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// Run executes a typed write through p.
func Run[T any](ctx context.Context, p *Pipeline, op Operation, params map[string]string, exec func(ctx context.Context) (T, error), patches ...Patch) (T, error) {
	var zero T
	out, err := p.Mutate(ctx, Request{
		Op:     op,
		Params: params,
		Exec: func(ctx context.Context) (any, error) {
			return exec(ctx)
		},
		Patches: patches,
	})
	if err != nil {
		return zero, err
	}
	v, ok := out.(T)
	if !ok {
		return zero, nil
	}
	return v, nil
}

// globEscaper quotes glob metacharacters so a param value only ever matches itself.
var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`)

func expand(pattern string, params map[string]string) string {
	if !strings.Contains(pattern, "{") {
		return pattern
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pattern = strings.ReplaceAll(pattern, "{"+name+"}", globEscaper.Replace(params[name]))
	}
	for {
		open := strings.IndexByte(pattern, '{')
		if open < 0 {
			return pattern
		}
		end := strings.IndexByte(pattern[open:], '}')
		if end < 0 {
			return pattern
		}
		pattern = pattern[:open] + "*" + pattern[open+end+1:]
	}
}
