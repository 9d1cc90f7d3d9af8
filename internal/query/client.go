package query

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

// errDiscarded marks a flight whose result predates the entry's current generation.
var errDiscarded = errors.New("query: result discarded by newer generation")

// Lookup outcomes reported to the Recorder.
const (
	LookupHit   = "hit"
	LookupStale = "stale"
	LookupMiss  = "miss"
)

// Recorder receives cache instrumentation. Labels are collection names, not full keys.
type Recorder interface {
	ObserveQueryLookup(collection, outcome string)
	ObserveQueryFetch(collection string, duration time.Duration, err error)
	IncQueryRetry(collection string)
	IncQueryDiscarded(collection string)
}

// Config configures a Client.
type Config struct {
	Defaults       Options
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	FetchTimeout   time.Duration
	Logger         *zap.Logger
	Recorder       Recorder
	Now            func() time.Time
}

// subscription serialises deliveries to fn. Deliveries older than the last one handed
// to fn are dropped; while fn runs, only the newest pending delivery is kept.
type subscription struct {
	fn     func(Result)
	active atomic.Bool

	mu      sync.Mutex
	last    uint64
	pending *Result
	running bool
}

type entry struct {
	key        string
	data       any
	hasData    bool
	err        error
	status     Status
	fetchedAt  time.Time
	touchedAt  time.Time
	generation uint64
	invalid    bool
	inflight   int
	settledGen uint64
	settleSeq  uint64
	fetcher    Fetcher
	opts       Options
	subs       map[uint64]*subscription
}

// Client is a keyed cache of asynchronous read results.
type Client struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	subSeq  uint64
	sendSeq uint64
}

// New constructs a Client. Background fetches run until Close is called.
func New(cfg Config) *Client {
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Defaults.CacheTime <= 0 {
		cfg.Defaults.CacheTime = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:     cfg,
		logger:  logger,
		now:     now,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
}

// Defaults returns the configured default options.
func (c *Client) Defaults() Options {
	return c.cfg.Defaults
}

// Close stops background fetches. In-flight results are discarded by their contexts.
func (c *Client) Close() {
	c.cancel()
}

// Get returns the cached state for key without blocking, starting a background fetch
// when the entry is missing, stale or invalidated.
func (c *Client) Get(key string, fetch Fetcher, opts Options) Result {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.remember(fetch, opts)
	stale := c.staleLocked(e)
	launch := stale && e.fetcher != nil && e.opts.enabled()
	res := c.snapshotLocked(e)
	gen, seq := e.generation, e.settleSeq
	c.mu.Unlock()

	c.recordLookup(key, res.HasData, stale)
	if launch {
		c.launch(key, gen, seq)
		res.IsFetching = true
		if !res.HasData && res.Status == StatusIdle {
			res.Status = StatusLoading
		}
	}
	return res
}

// Ensure returns data for the current generation of key, waiting for a fetch when the
// entry holds none. Stale data is returned immediately and refreshed in the background.
// When ctx ends first the fetch still completes and is cached for other consumers.
func (c *Client) Ensure(ctx context.Context, key string, fetch Fetcher, opts Options) (Result, error) {
	return c.wait(ctx, key, fetch, opts, false)
}

// Fetch is like Ensure but also waits when the cached data is stale.
func (c *Client) Fetch(ctx context.Context, key string, fetch Fetcher, opts Options) (Result, error) {
	return c.wait(ctx, key, fetch, opts, true)
}

func (c *Client) wait(ctx context.Context, key string, fetch Fetcher, opts Options, fresh bool) (Result, error) {
	first := true
	for {
		c.mu.Lock()
		e := c.entryLocked(key)
		e.remember(fetch, opts)
		stale := c.staleLocked(e)
		enabled := e.fetcher != nil && e.opts.enabled()
		settled := e.settledGen == e.generation && e.settleSeq > 0 && e.hasData
		if !enabled || (settled && !(fresh && stale)) {
			res := c.snapshotLocked(e)
			gen, seq := e.generation, e.settleSeq
			c.mu.Unlock()
			if first {
				c.recordLookup(key, res.HasData, stale)
			}
			if enabled && stale {
				c.launch(key, gen, seq)
				res.IsFetching = true
			}
			return res, res.Err
		}
		gen, seq := e.generation, e.settleSeq
		c.mu.Unlock()
		if first {
			c.recordLookup(key, false, true)
			first = false
		}

		ch := c.group.DoChan(flightKey(key, gen), c.flight(key, gen, seq))
		select {
		case <-ctx.Done():
			return c.Peek(key), ctx.Err()
		case out := <-ch:
			if errors.Is(out.Err, errDiscarded) {
				continue
			}
			if out.Err != nil {
				return c.Peek(key), out.Err
			}
			res := out.Val.(Result)
			return res, res.Err
		}
	}
}

// Peek returns the cached state for key without fetching.
func (c *Client) Peek(key string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{Key: key, Status: StatusIdle}
	}
	return c.snapshotLocked(e)
}

// Subscribe registers fn for every state change of key. Deliveries after the returned
// unsubscribe function runs are dropped.
func (c *Client) Subscribe(key string, fn func(Result)) func() {
	c.mu.Lock()
	e := c.entryLocked(key)
	c.subSeq++
	id := c.subSeq
	sub := &subscription{fn: fn}
	sub.active.Store(true)
	if e.subs == nil {
		e.subs = make(map[uint64]*subscription)
	}
	e.subs[id] = sub
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			c.mu.Lock()
			if cur, ok := c.entries[key]; ok {
				delete(cur.subs, id)
				cur.touchedAt = c.now()
			}
			c.mu.Unlock()
		})
	}
}

// Watch subscribes fn to key and returns the current state, fetching as Get does.
func (c *Client) Watch(key string, fetch Fetcher, opts Options, fn func(Result)) (Result, func()) {
	unsubscribe := c.Subscribe(key, fn)
	return c.Get(key, fetch, opts), unsubscribe
}

// Invalidate marks every entry matching pattern stale and bumps its generation so
// in-flight results started earlier are discarded. Observed entries refetch at once.
func (c *Client) Invalidate(pattern string) int {
	type pending struct {
		key      string
		gen, seq uint64
	}
	var refetch []pending

	c.checkPattern(pattern)
	c.mu.Lock()
	matched := 0
	for key, e := range c.entries {
		if !matches(pattern, key) {
			continue
		}
		matched++
		e.generation++
		e.invalid = true
		if len(e.subs) > 0 && e.fetcher != nil && e.opts.enabled() {
			refetch = append(refetch, pending{key: key, gen: e.generation, seq: e.settleSeq})
		}
	}
	c.mu.Unlock()

	for _, p := range refetch {
		c.launch(p.key, p.gen, p.seq)
	}
	if matched > 0 {
		c.logger.Debug("query invalidated", zap.String("pattern", pattern), zap.Int("entries", matched))
	}
	return matched
}

// SetData replaces the value of key with update(old). Returning false from update
// leaves the entry untouched. A patched entry counts as freshly fetched and discards
// reads that were in flight before the patch.
func (c *Client) SetData(key string, update func(old any, ok bool) (any, bool)) bool {
	c.mu.Lock()
	e, exists := c.entries[key]
	var old any
	var had bool
	if exists {
		old, had = e.data, e.hasData
	}
	next, ok := update(old, had)
	if !ok {
		c.mu.Unlock()
		return false
	}
	if !exists {
		e = c.entryLocked(key)
	}
	e.data = next
	e.hasData = true
	e.err = nil
	e.status = StatusSuccess
	e.fetchedAt = c.now()
	e.invalid = false
	e.generation++
	c.settleLocked(e)
	res := c.snapshotLocked(e)
	subs := e.activeSubs()
	order := c.orderLocked()
	c.mu.Unlock()

	deliver(subs, res, order)
	return true
}

// Focus refreshes stale observed entries that opted into RefetchOnFocus.
func (c *Client) Focus() int {
	type pending struct {
		key      string
		gen, seq uint64
	}
	var refetch []pending
	c.mu.Lock()
	for key, e := range c.entries {
		if len(e.subs) == 0 || e.fetcher == nil || !e.opts.RefetchOnFocus || !e.opts.enabled() {
			continue
		}
		if c.staleLocked(e) {
			refetch = append(refetch, pending{key: key, gen: e.generation, seq: e.settleSeq})
		}
	}
	c.mu.Unlock()
	for _, p := range refetch {
		c.launch(p.key, p.gen, p.seq)
	}
	return len(refetch)
}

// Remove drops entries matching pattern. In-flight fetches for them are discarded.
func (c *Client) Remove(pattern string) int {
	c.checkPattern(pattern)
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.entries {
		if matches(pattern, key) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (c *Client) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// GC removes unobserved, idle entries untouched for longer than their CacheTime.
func (c *Client) GC() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if len(e.subs) > 0 || e.inflight > 0 {
			continue
		}
		ttl := e.opts.CacheTime
		if ttl <= 0 {
			ttl = c.cfg.Defaults.CacheTime
		}
		if now.Sub(e.touchedAt) >= ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// RunGC collects idle entries every interval until ctx ends.
func (c *Client) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if n := c.GC(); n > 0 {
				c.logger.Debug("query gc", zap.Int("removed", n))
			}
		}
	}
}

func (c *Client) launch(key string, gen, seq uint64) {
	c.group.DoChan(flightKey(key, gen), c.flight(key, gen, seq))
}

// flight fetches key for generation gen. seq is the settle sequence observed by the
// caller; a flight that finds a newer settlement for the same generation returns it
// without fetching again.
func (c *Client) flight(key string, gen, seq uint64) func() (any, error) {
	return func() (any, error) {
		c.mu.Lock()
		e, ok := c.entries[key]
		if !ok || e.generation != gen {
			c.mu.Unlock()
			return nil, errDiscarded
		}
		if e.settledGen == gen && e.settleSeq != seq && e.settleSeq > 0 {
			res := c.snapshotLocked(e)
			c.mu.Unlock()
			return res, nil
		}
		fetch, opts := e.fetcher, e.opts
		if fetch == nil {
			c.mu.Unlock()
			return nil, errDiscarded
		}
		e.inflight++
		if !e.hasData {
			e.status = StatusLoading
		}
		res := c.snapshotLocked(e)
		subs := e.activeSubs()
		order := c.orderLocked()
		c.mu.Unlock()
		deliver(subs, res, order)

		start := c.now()
		data, err := c.fetchWithRetry(key, fetch, opts)
		if c.cfg.Recorder != nil {
			c.cfg.Recorder.ObserveQueryFetch(Collection(key), c.now().Sub(start), err)
		}
		return c.commit(e, key, gen, data, err)
	}
}

func (c *Client) commit(e *entry, key string, gen uint64, data any, err error) (any, error) {
	c.mu.Lock()
	e.inflight--
	if cur, ok := c.entries[key]; !ok || cur != e || e.generation != gen {
		c.mu.Unlock()
		if c.cfg.Recorder != nil {
			c.cfg.Recorder.IncQueryDiscarded(Collection(key))
		}
		c.logger.Debug("query result discarded", zap.String("key", key), zap.Uint64("generation", gen))
		return nil, errDiscarded
	}
	if err != nil {
		e.err = err
		e.status = StatusError
		c.logger.Warn("query fetch failed", zap.String("key", key), zap.Bool("retained_data", e.hasData), zap.Error(err))
	} else {
		e.data = data
		e.hasData = true
		e.err = nil
		e.status = StatusSuccess
		e.fetchedAt = c.now()
		e.invalid = false
	}
	c.settleLocked(e)
	res := c.snapshotLocked(e)
	subs := e.activeSubs()
	order := c.orderLocked()
	c.mu.Unlock()

	deliver(subs, res, order)
	return res, nil
}

func (c *Client) fetchWithRetry(key string, fetch Fetcher, opts Options) (any, error) {
	for attempt := 0; ; attempt++ {
		data, err := c.fetchOnce(fetch)
		if err == nil {
			return data, nil
		}
		if attempt >= opts.Retry || !appErrors.IsRetryable(err) || c.ctx.Err() != nil {
			return nil, err
		}
		delay := c.retryDelay(opts, attempt)
		c.logger.Debug("query fetch retry", zap.String("key", key), zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
		if c.cfg.Recorder != nil {
			c.cfg.Recorder.IncQueryRetry(Collection(key))
		}
		timer := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return nil, err
		case <-timer.C:
		}
	}
}

func (c *Client) fetchOnce(fetch Fetcher) (data any, err error) {
	ctx := c.ctx
	if c.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.FetchTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = appErrors.Wrap(fmt.Errorf("%v", r), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "query fetcher panicked")
		}
	}()
	return fetch(ctx)
}

func (c *Client) retryDelay(opts Options, attempt int) time.Duration {
	if opts.RetryDelay != nil {
		return opts.RetryDelay(attempt)
	}
	delay := c.cfg.RetryBaseDelay << uint(attempt)
	if delay <= 0 || delay > c.cfg.RetryMaxDelay {
		delay = c.cfg.RetryMaxDelay
	}
	return delay
}

func (c *Client) recordLookup(key string, hasData, stale bool) {
	if c.cfg.Recorder == nil {
		return
	}
	outcome := LookupHit
	switch {
	case !hasData:
		outcome = LookupMiss
	case stale:
		outcome = LookupStale
	}
	c.cfg.Recorder.ObserveQueryLookup(Collection(key), outcome)
}

func (c *Client) entryLocked(key string) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{key: key, status: StatusIdle, opts: c.cfg.Defaults}
		c.entries[key] = e
	}
	e.touchedAt = c.now()
	return e
}

func (c *Client) settleLocked(e *entry) {
	c.seq++
	e.settledGen = e.generation
	e.settleSeq = c.seq
}

func (c *Client) staleLocked(e *entry) bool {
	if e.invalid || !e.hasData {
		return true
	}
	return c.now().Sub(e.fetchedAt) >= e.opts.StaleTime
}

func (c *Client) snapshotLocked(e *entry) Result {
	return Result{
		Key:        e.key,
		Data:       e.data,
		Err:        e.err,
		Status:     e.status,
		HasData:    e.hasData,
		IsStale:    c.staleLocked(e),
		IsFetching: e.inflight > 0,
		FetchedAt:  e.fetchedAt,
		Generation: e.generation,
	}
}

func (e *entry) remember(fetch Fetcher, opts Options) {
	if fetch != nil {
		e.fetcher = fetch
		e.opts = opts
	}
}

func (e *entry) activeSubs() []*subscription {
	if len(e.subs) == 0 {
		return nil
	}
	subs := make([]*subscription, 0, len(e.subs))
	for _, s := range e.subs {
		subs = append(subs, s)
	}
	return subs
}

// orderLocked stamps a delivery so subscribers can drop states that lost a race.
func (c *Client) orderLocked() uint64 {
	c.sendSeq++
	return c.sendSeq
}

func deliver(subs []*subscription, res Result, order uint64) {
	for _, s := range subs {
		s.send(res, order)
	}
}

func (s *subscription) send(res Result, order uint64) {
	s.mu.Lock()
	if order <= s.last {
		s.mu.Unlock()
		return
	}
	s.last = order
	s.pending = &res
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	for s.pending != nil {
		next := *s.pending
		s.pending = nil
		s.mu.Unlock()
		if s.active.Load() {
			s.fn(next)
		}
		s.mu.Lock()
	}
	s.running = false
	s.mu.Unlock()
}

func flightKey(key string, gen uint64) string {
	return fmt.Sprintf("%s@%d", key, gen)
}

// checkPattern logs a malformed glob. Such a pattern still matches its exact key.
func (c *Client) checkPattern(pattern string) {
	if _, err := path.Match(pattern, ""); err != nil {
		c.logger.Warn("query pattern is not a valid glob, matching exact key only", zap.String("pattern", pattern), zap.Error(err))
	}
}

func matches(pattern, key string) bool {
	if pattern == key {
		return true
	}
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}
