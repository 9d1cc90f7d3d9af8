package questionbank

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/mutation"
	"github.com/noah-isme/coaching-console/internal/query"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

type fakeGateway struct {
	mu        sync.Mutex
	subjects  map[string][]models.Subject
	chapters  map[string][]models.Chapter
	topics    map[string][]models.Topic
	questions map[string][]models.Question
	gates     map[string]chan struct{}
	calls     map[string]int
	favErr    error
	favorites map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		subjects: map[string][]models.Subject{
			"c10": {{ID: "phys", ClassID: "c10", Name: "Physics", ChapterCount: 99}, {ID: "chem", ClassID: "c10", Name: "Chemistry"}},
			"c9":  {{ID: "bio", ClassID: "c9", Name: "Biology"}},
		},
		chapters: map[string][]models.Chapter{
			"phys": {{ID: "motion", SubjectID: "phys", Name: "Motion"}, {ID: "optics", SubjectID: "phys", Name: "Optics"}},
		},
		topics: map[string][]models.Topic{
			"motion": {{ID: "speed", ChapterID: "motion", QuestionCount: 3}, {ID: "force", ChapterID: "motion", QuestionCount: 2}},
			"optics": {{ID: "lens", ChapterID: "optics", QuestionCount: 4}},
		},
		questions: map[string][]models.Question{
			"speed": {
				{ID: "q1", TopicID: "speed", Text: "v = ?", Difficulty: models.DifficultyEasy},
				{ID: "q2", TopicID: "speed", Text: "a = ?", Difficulty: models.DifficultyMedium},
				{ID: "q3", TopicID: "speed", Text: "s = ?", Difficulty: models.DifficultyHard},
			},
		},
		gates:     map[string]chan struct{}{},
		calls:     map[string]int{},
		favorites: map[string]bool{},
	}
}

func (f *fakeGateway) enter(ctx context.Context, call string) error {
	f.mu.Lock()
	f.calls[call]++
	gate := f.gates[call]
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeGateway) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *fakeGateway) gate(call string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[call] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeGateway) ListSubjects(ctx context.Context, classID string) ([]models.Subject, error) {
	if err := f.enter(ctx, "subjects:"+classID); err != nil {
		return nil, err
	}
	return f.subjects[classID], nil
}

func (f *fakeGateway) ListChapters(ctx context.Context, subjectID string) ([]models.Chapter, error) {
	if err := f.enter(ctx, "chapters:"+subjectID); err != nil {
		return nil, err
	}
	return f.chapters[subjectID], nil
}

func (f *fakeGateway) ListTopics(ctx context.Context, chapterID string) ([]models.Topic, error) {
	if err := f.enter(ctx, "topics:"+chapterID); err != nil {
		return nil, err
	}
	return f.topics[chapterID], nil
}

func (f *fakeGateway) ListQuestions(ctx context.Context, topicID string) ([]models.Question, error) {
	if err := f.enter(ctx, "questions:"+topicID); err != nil {
		return nil, err
	}
	return f.questions[topicID], nil
}

func (f *fakeGateway) SetQuestionFavorite(ctx context.Context, id string, favorite bool) error {
	if err := f.enter(ctx, "favorite:"+id); err != nil {
		return err
	}
	if f.favErr != nil {
		return f.favErr
	}
	f.mu.Lock()
	f.favorites[id] = favorite
	f.mu.Unlock()
	return nil
}

func newTestResolver(t *testing.T, gw Gateway) (*Resolver, *query.Client) {
	t.Helper()
	cache := query.New(query.Config{})
	pipeline := mutation.New(cache, mutation.Config{})
	r := NewResolver(gw, cache, pipeline, Config{Options: query.Options{StaleTime: time.Hour}})
	t.Cleanup(func() {
		r.Close()
		cache.Close()
	})
	return r, cache
}

func TestResolverRollsUpCountsFromChildren(t *testing.T) {
	gw := newFakeGateway()
	r, _ := newTestResolver(t, gw)

	r.SelectClass("c10")
	snap, err := r.Load(context.Background(), LevelSubjects)
	require.NoError(t, err)
	require.Len(t, snap.Subjects, 2)

	phys := snap.Subjects[0]
	assert.Equal(t, 2, phys.ChapterCount, "chapter count comes from fetched chapters")
	assert.Equal(t, 9, phys.QuestionCount)
	assert.Equal(t, 0, snap.Subjects[1].ChapterCount)
	assert.Equal(t, 0, snap.Subjects[1].QuestionCount)
	assert.Equal(t, StatusReady, snap.Levels[LevelSubjects].Status)
	assert.Equal(t, StatusIdle, snap.Levels[LevelChapters].Status)

	r.SelectSubject("phys")
	snap, err = r.Load(context.Background(), LevelChapters)
	require.NoError(t, err)
	require.Len(t, snap.Chapters, 2)
	assert.Equal(t, 2, snap.Chapters[0].TopicCount)
	assert.Equal(t, 5, snap.Chapters[0].QuestionCount)
	assert.Equal(t, 4, snap.Chapters[1].QuestionCount)
	assert.Equal(t, 1, gw.count("chapters:phys"), "roll-up results are reused from the cache")
}

func TestResolverRequiresParent(t *testing.T) {
	gw := newFakeGateway()
	r, _ := newTestResolver(t, gw)

	snap, err := r.Load(context.Background(), LevelTopics)
	assert.ErrorIs(t, err, ErrNoParent)
	assert.Equal(t, StatusIdle, snap.Levels[LevelTopics].Status)
	assert.Zero(t, gw.count("topics:"))
}

func TestResolverDiscardsResultsForPreviousParent(t *testing.T) {
	gw := newFakeGateway()
	release := gw.gate("subjects:c10")
	r, cache := newTestResolver(t, gw)

	r.SelectClass("c10")
	require.Eventually(t, func() bool { return gw.count("subjects:c10") == 1 }, time.Second, time.Millisecond)

	r.SelectSubject("phys")
	r.SelectClass("c9")
	snap := r.Snapshot()
	assert.Equal(t, "", snap.Levels[LevelChapters].ParentID, "descendants reset on parent change")

	snap, err := r.Load(context.Background(), LevelSubjects)
	require.NoError(t, err)
	require.Len(t, snap.Subjects, 1)
	assert.Equal(t, "bio", snap.Subjects[0].ID)

	close(release)
	require.Eventually(t, func() bool { return cache.Peek(SubjectsKey("c10")).HasData }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	snap = r.Snapshot()
	require.Len(t, snap.Subjects, 1)
	assert.Equal(t, "bio", snap.Subjects[0].ID)
	assert.Equal(t, "c9", snap.Levels[LevelSubjects].ParentID)
}

func TestResolverFavoritePatchesOnlyOneQuestion(t *testing.T) {
	gw := newFakeGateway()
	r, cache := newTestResolver(t, gw)

	r.SelectTopic("speed")
	before, err := r.Load(context.Background(), LevelQuestions)
	require.NoError(t, err)
	require.Len(t, before.Questions, 3)
	genBefore := cache.Peek(QuestionsKey("speed")).Generation

	updated, err := r.SetFavorite(context.Background(), before.Questions[1], true)
	require.NoError(t, err)
	assert.True(t, updated.IsFavorite)

	after := r.Snapshot()
	require.Len(t, after.Questions, 3)
	assert.True(t, after.Questions[1].IsFavorite)
	assert.Equal(t, before.Questions[0], after.Questions[0])
	assert.Equal(t, before.Questions[2], after.Questions[2])
	assert.False(t, before.Questions[1].IsFavorite, "previous snapshot is not mutated")

	cached := cache.Peek(QuestionsKey("speed"))
	assert.False(t, cached.IsStale)
	assert.Greater(t, cached.Generation, genBefore)
	assert.Equal(t, 1, gw.count("questions:speed"), "topic list is not refetched")
	assert.Equal(t, 1, gw.count("favorite:q2"))
}

func TestResolverFavoriteFailureLeavesCache(t *testing.T) {
	gw := newFakeGateway()
	gw.favErr = appErrors.Clone(appErrors.ErrNotFound, "question removed")
	r, cache := newTestResolver(t, gw)

	r.SelectTopic("speed")
	before, err := r.Load(context.Background(), LevelQuestions)
	require.NoError(t, err)

	_, err = r.SetFavorite(context.Background(), before.Questions[0], true)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.Equal(t, before.Questions, cache.Peek(QuestionsKey("speed")).Data)
	assert.False(t, r.Snapshot().Questions[0].IsFavorite)
}

func TestResolverErroredLevel(t *testing.T) {
	gw := &failingGateway{fakeGateway: newFakeGateway()}
	r, _ := newTestResolver(t, gw)

	r.SelectChapter("motion")
	snap, err := r.Load(context.Background(), LevelTopics)
	require.Error(t, err)
	assert.Equal(t, StatusErrored, snap.Levels[LevelTopics].Status)
	assert.NotEmpty(t, snap.Levels[LevelTopics].Error)
	assert.Empty(t, snap.Topics)
}

func TestResolverNotifiesListeners(t *testing.T) {
	gw := newFakeGateway()
	r, _ := newTestResolver(t, gw)

	updates := make(chan Snapshot, 16)
	stop := r.OnChange(func(s Snapshot) { updates <- s })
	defer stop()

	r.SelectTopic("speed")
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-updates:
			if s.Levels[LevelQuestions].Status == StatusReady {
				assert.Len(t, s.Questions, 3)
				return
			}
		case <-timeout:
			t.Fatal("no ready notification")
		}
	}
}

type failingGateway struct {
	*fakeGateway
}

func (f *failingGateway) ListTopics(ctx context.Context, chapterID string) ([]models.Topic, error) {
	return nil, appErrors.Clone(appErrors.ErrValidation, "bad chapter id")
}
