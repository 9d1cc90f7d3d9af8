// Package questionbank resolves the subject, chapter, topic and question levels of the
// question bank as a chain of dependent queries.
package questionbank

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/mutation"
	"github.com/noah-isme/coaching-console/internal/query"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

// Level identifies one tier of the hierarchy.
type Level int

const (
	LevelSubjects Level = iota
	LevelChapters
	LevelTopics
	LevelQuestions

	levelCount = 4
)

func (l Level) String() string {
	switch l {
	case LevelSubjects:
		return "subjects"
	case LevelChapters:
		return "chapters"
	case LevelTopics:
		return "topics"
	case LevelQuestions:
		return "questions"
	default:
		return "unknown"
	}
}

// Status is the state of a level.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusErrored Status = "errored"
)

var (
	// ErrNoParent is returned when a level is loaded before its parent is selected.
	ErrNoParent = appErrors.Clone(appErrors.ErrValidation, "parent not selected")
	// ErrSuperseded is returned when the parent changed while a level was loading.
	ErrSuperseded = errors.New("questionbank: parent changed while loading")
)

// Gateway is the remote access the resolver needs.
type Gateway interface {
	ListSubjects(ctx context.Context, classID string) ([]models.Subject, error)
	ListChapters(ctx context.Context, subjectID string) ([]models.Chapter, error)
	ListTopics(ctx context.Context, chapterID string) ([]models.Topic, error)
	ListQuestions(ctx context.Context, topicID string) ([]models.Question, error)
	SetQuestionFavorite(ctx context.Context, id string, favorite bool) error
}

// LevelState describes one level in a Snapshot.
type LevelState struct {
	Level      string `json:"level"`
	ParentID   string `json:"parent_id,omitempty"`
	Status     Status `json:"status"`
	Stale      bool   `json:"stale"`
	Error      string `json:"error,omitempty"`
	Generation uint64 `json:"generation"`
}

// Snapshot is the resolver state at one instant.
type Snapshot struct {
	Subjects  []models.Subject  `json:"subjects"`
	Chapters  []models.Chapter  `json:"chapters"`
	Topics    []models.Topic    `json:"topics"`
	Questions []models.Question `json:"questions"`
	Levels    []LevelState      `json:"levels"`
}

// Config tunes a Resolver.
type Config struct {
	Options query.Options
	// Fanout bounds the concurrent child fetches of a roll-up. Defaults to 4.
	Fanout int
	Logger *zap.Logger
}

type level struct {
	parent      string
	gen         uint64
	status      Status
	data        any
	dataGen     uint64
	fetchedAt   time.Time
	stale       bool
	err         error
	unsubscribe func()
}

// accept stores res unless the level already holds a newer cache value.
func (l *level) accept(res query.Result) bool {
	if l.data != nil && (res.Generation < l.dataGen ||
		(res.Generation == l.dataGen && res.FetchedAt.Before(l.fetchedAt))) {
		return false
	}
	l.data = res.Data
	l.dataGen = res.Generation
	l.fetchedAt = res.FetchedAt
	l.stale = res.IsStale
	return true
}

// Resolver tracks the selected path through the hierarchy. Selecting a parent resets
// every level below it; results that arrive for a previous parent are discarded.
type Resolver struct {
	gateway  Gateway
	cache    *query.Client
	pipeline *mutation.Pipeline
	opts     query.Options
	fanout   int
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	levels    [levelCount]level
	listeners map[uint64]func(Snapshot)
	nextID    uint64
}

// NewResolver constructs a Resolver. Close releases its cache subscriptions.
func NewResolver(gateway Gateway, cache *query.Client, pipeline *mutation.Pipeline, cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fanout := cfg.Fanout
	if fanout <= 0 {
		fanout = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Resolver{
		gateway:   gateway,
		cache:     cache,
		pipeline:  pipeline,
		opts:      cfg.Options,
		fanout:    fanout,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[uint64]func(Snapshot)),
	}
	for i := range r.levels {
		r.levels[i].status = StatusIdle
	}
	return r
}

// Close stops background loads and drops cache subscriptions.
func (r *Resolver) Close() {
	r.cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.levels {
		if r.levels[i].unsubscribe != nil {
			r.levels[i].unsubscribe()
			r.levels[i].unsubscribe = nil
		}
	}
}

// SelectClass sets the class whose subjects are listed.
func (r *Resolver) SelectClass(classID string) { r.selectAt(LevelSubjects, classID) }

// SelectSubject sets the subject whose chapters are listed.
func (r *Resolver) SelectSubject(subjectID string) { r.selectAt(LevelChapters, subjectID) }

// SelectChapter sets the chapter whose topics are listed.
func (r *Resolver) SelectChapter(chapterID string) { r.selectAt(LevelTopics, chapterID) }

// SelectTopic sets the topic whose questions are listed.
func (r *Resolver) SelectTopic(topicID string) { r.selectAt(LevelQuestions, topicID) }

// OnChange registers fn for every state change.
func (r *Resolver) OnChange(fn func(Snapshot)) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Load waits until lvl holds data for its current parent.
func (r *Resolver) Load(ctx context.Context, lvl Level) (Snapshot, error) {
	if lvl < 0 || lvl >= levelCount {
		return r.Snapshot(), appErrors.Clone(appErrors.ErrValidation, "unknown question bank level")
	}
	r.mu.Lock()
	parent, gen := r.levels[lvl].parent, r.levels[lvl].gen
	r.mu.Unlock()
	if parent == "" {
		return r.Snapshot(), ErrNoParent
	}
	err := r.resolve(ctx, lvl, parent, gen)
	return r.Snapshot(), err
}

// Snapshot returns the current state of every level.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// SetFavorite toggles the favorite flag of q. Only the cached entries holding q are
// patched; the topic's question list is not refetched.
func (r *Resolver) SetFavorite(ctx context.Context, q models.Question, favorite bool) (models.Question, error) {
	params := map[string]string{"id": q.ID, "topicId": q.TopicID}
	_, err := mutation.Run(ctx, r.pipeline, mutation.OpSetQuestionFavorite, params,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.gateway.SetQuestionFavorite(ctx, q.ID, favorite)
		},
		mutation.Patch{Key: QuestionsKey(q.TopicID), Update: favoriteInList(q.ID, favorite)},
		mutation.Patch{Key: QuestionKey(q.ID), Update: favoriteSingle(favorite)},
	)
	if err != nil {
		return q, err
	}
	q.IsFavorite = favorite

	r.mu.Lock()
	st := &r.levels[LevelQuestions]
	if st.parent == q.TopicID {
		if res := r.cache.Peek(QuestionsKey(q.TopicID)); res.HasData {
			st.accept(res)
		}
	}
	snap := r.snapshotLocked()
	listeners := r.listenersLocked()
	r.mu.Unlock()
	notify(listeners, snap)
	return q, nil
}

func (r *Resolver) selectAt(lvl Level, parentID string) {
	r.mu.Lock()
	cur := &r.levels[lvl]
	if parentID != "" && cur.parent == parentID && cur.status != StatusErrored {
		r.mu.Unlock()
		return
	}
	for l := lvl; l < levelCount; l++ {
		st := &r.levels[l]
		if st.unsubscribe != nil {
			st.unsubscribe()
		}
		*st = level{gen: st.gen + 1, status: StatusIdle}
	}
	cur.parent = parentID
	gen := cur.gen
	if parentID != "" {
		cur.status = StatusLoading
		key, _ := r.query(lvl, parentID)
		cur.unsubscribe = r.cache.Subscribe(key, r.observe(lvl, parentID, gen))
	}
	snap := r.snapshotLocked()
	listeners := r.listenersLocked()
	r.mu.Unlock()

	notify(listeners, snap)
	if parentID != "" {
		go func() {
			if err := r.resolve(r.ctx, lvl, parentID, gen); err != nil && !errors.Is(err, ErrSuperseded) {
				r.logger.Debug("question bank level load failed", zap.Stringer("level", lvl), zap.String("parent", parentID), zap.Error(err))
			}
		}()
	}
}

func (r *Resolver) observe(lvl Level, parent string, gen uint64) func(query.Result) {
	return func(res query.Result) {
		if !res.HasData && res.Status != query.StatusError {
			return
		}
		_ = r.commit(lvl, parent, gen, res, res.Err)
	}
}

func (r *Resolver) resolve(ctx context.Context, lvl Level, parent string, gen uint64) error {
	key, fetch := r.query(lvl, parent)
	res, err := r.cache.Ensure(ctx, key, fetch, r.opts)
	if err != nil && !res.HasData && ctx.Err() != nil {
		return err
	}
	return r.commit(lvl, parent, gen, res, err)
}

func (r *Resolver) commit(lvl Level, parent string, gen uint64, res query.Result, err error) error {
	r.mu.Lock()
	st := &r.levels[lvl]
	if st.gen != gen || st.parent != parent {
		r.mu.Unlock()
		r.logger.Debug("question bank result discarded", zap.Stringer("level", lvl), zap.String("parent", parent), zap.Uint64("generation", gen))
		return ErrSuperseded
	}
	switch {
	case res.HasData:
		st.accept(res)
		st.status = StatusReady
		st.err = err
	case err != nil:
		st.status = StatusErrored
		st.err = err
	}
	snap := r.snapshotLocked()
	listeners := r.listenersLocked()
	r.mu.Unlock()

	notify(listeners, snap)
	return err
}

func (r *Resolver) query(lvl Level, parent string) (string, query.Fetcher) {
	switch lvl {
	case LevelSubjects:
		return SubjectsKey(parent), query.Typed(func(ctx context.Context) ([]models.Subject, error) {
			return r.fetchSubjects(ctx, parent)
		})
	case LevelChapters:
		return ChaptersKey(parent), query.Typed(func(ctx context.Context) ([]models.Chapter, error) {
			return r.fetchChapters(ctx, parent)
		})
	case LevelTopics:
		return TopicsKey(parent), query.Typed(func(ctx context.Context) ([]models.Topic, error) {
			return r.gateway.ListTopics(ctx, parent)
		})
	default:
		return QuestionsKey(parent), query.Typed(func(ctx context.Context) ([]models.Question, error) {
			return r.gateway.ListQuestions(ctx, parent)
		})
	}
}

// fetchSubjects lists a class's subjects and rolls chapter and question counts up from
// each subject's chapters.
func (r *Resolver) fetchSubjects(ctx context.Context, classID string) ([]models.Subject, error) {
	subjects, err := r.gateway.ListSubjects(ctx, classID)
	if err != nil {
		return nil, err
	}
	out := append([]models.Subject(nil), subjects...)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fanout)
	for i := range out {
		i := i
		g.Go(func() error {
			key, fetch := r.query(LevelChapters, out[i].ID)
			res, err := r.cache.Ensure(gctx, key, fetch, r.opts)
			chapters, ok := query.As[[]models.Chapter](res)
			if !ok {
				if err == nil {
					err = appErrors.Clone(appErrors.ErrInternal, "chapters unavailable for roll-up")
				}
				return err
			}
			out[i].ChapterCount = len(chapters)
			out[i].QuestionCount = 0
			for _, ch := range chapters {
				out[i].QuestionCount += ch.QuestionCount
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchChapters lists a subject's chapters and rolls topic and question counts up from
// each chapter's topics.
func (r *Resolver) fetchChapters(ctx context.Context, subjectID string) ([]models.Chapter, error) {
	chapters, err := r.gateway.ListChapters(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	out := append([]models.Chapter(nil), chapters...)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fanout)
	for i := range out {
		i := i
		g.Go(func() error {
			key, fetch := r.query(LevelTopics, out[i].ID)
			res, err := r.cache.Ensure(gctx, key, fetch, r.opts)
			topics, ok := query.As[[]models.Topic](res)
			if !ok {
				if err == nil {
					err = appErrors.Clone(appErrors.ErrInternal, "topics unavailable for roll-up")
				}
				return err
			}
			out[i].TopicCount = len(topics)
			out[i].QuestionCount = 0
			for _, t := range topics {
				out[i].QuestionCount += t.QuestionCount
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) snapshotLocked() Snapshot {
	snap := Snapshot{Levels: make([]LevelState, 0, levelCount)}
	for i := range r.levels {
		st := r.levels[i]
		ls := LevelState{
			Level:      Level(i).String(),
			ParentID:   st.parent,
			Status:     st.status,
			Stale:      st.stale,
			Generation: st.gen,
		}
		if st.err != nil {
			ls.Error = st.err.Error()
		}
		snap.Levels = append(snap.Levels, ls)

		switch v := st.data.(type) {
		case []models.Subject:
			snap.Subjects = v
		case []models.Chapter:
			snap.Chapters = v
		case []models.Topic:
			snap.Topics = v
		case []models.Question:
			snap.Questions = v
		}
	}
	return snap
}

func (r *Resolver) listenersLocked() []func(Snapshot) {
	if len(r.listeners) == 0 {
		return nil
	}
	out := make([]func(Snapshot), 0, len(r.listeners))
	for _, fn := range r.listeners {
		out = append(out, fn)
	}
	return out
}

func notify(listeners []func(Snapshot), snap Snapshot) {
	for _, fn := range listeners {
		fn(snap)
	}
}
