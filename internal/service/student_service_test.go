package service

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

type staticIdentity struct{ signedIn bool }

func (s *staticIdentity) IsAuthenticated() bool { return s.signedIn }

func newTestCore(t *testing.T, identity Identity) Core {
	t.Helper()
	cache := query.New(query.Config{
		Defaults:       query.Options{StaleTime: time.Hour, Retry: 1},
		RetryBaseDelay: time.Millisecond,
	})
	t.Cleanup(cache.Close)
	return Core{
		Cache:    cache,
		Pipeline: mutation.New(cache, mutation.Config{}),
		Identity: identity,
	}
}

type mockStudentRepo struct {
	mu        sync.Mutex
	students  []models.Student
	listCalls int
	getCalls  int
	createErr error
	created   []models.Student
	updated   map[string]models.StudentPatch
	deleted   []string
}

func (m *mockStudentRepo) List(ctx context.Context) ([]models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	out := make([]models.Student, len(m.students))
	copy(out, m.students)
	return out, nil
}

func (m *mockStudentRepo) Get(ctx context.Context, id string) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	for _, s := range m.students {
		if s.ID == id {
			student := s
			return &student, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	student.ID = "new-id"
	m.created = append(m.created, *student)
	m.students = append(m.students, *student)
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, id string, patch models.StudentPatch) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updated == nil {
		m.updated = map[string]models.StudentPatch{}
	}
	m.updated[id] = patch
	for i := range m.students {
		if m.students[i].ID == id {
			if patch.Name != nil {
				m.students[i].Name = *patch.Name
			}
			student := m.students[i]
			return &student, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockStudentRepo) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

func seededStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{students: []models.Student{
		{ID: "s1", Name: "Asha", Class: "10", TotalFees: 1000, PaidFees: 1000, FeeStatus: models.FeeStatusPaid, AttendancePercentage: 90},
		{ID: "s2", Name: "Ravi", Class: "Class 10", TotalFees: 1000, PaidFees: 200, FeeStatus: models.FeeStatusPartial, AttendancePercentage: 60},
		{ID: "s3", Name: "Meera", Class: "9", TotalFees: 800, FeeStatus: models.FeeStatusPending, AttendancePercentage: 70},
	}}
}

func TestStudentServiceListIsCached(t *testing.T) {
	repo := seededStudentRepo()
	svc := NewStudentService(newTestCore(t, nil), repo, nil, nil)

	first, err := svc.List(context.Background())
	require.NoError(t, err)
	second, err := svc.List(context.Background())
	require.NoError(t, err)

	assert.Len(t, first.Data, 3)
	assert.Equal(t, first.Data, second.Data)
	assert.False(t, second.Stale)
	assert.Equal(t, 1, repo.calls())
}

func TestStudentServiceSignedOutDoesNotFetch(t *testing.T) {
	repo := seededStudentRepo()
	svc := NewStudentService(newTestCore(t, &staticIdentity{}), repo, nil, nil)

	_, err := svc.List(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
	assert.Zero(t, repo.calls())
}

func TestStudentServiceCreateRefetchesRoster(t *testing.T) {
	repo := seededStudentRepo()
	svc := NewStudentService(newTestCore(t, &staticIdentity{signedIn: true}), repo, nil, nil)

	_, err := svc.List(context.Background())
	require.NoError(t, err)

	created, err := svc.Create(context.Background(), models.StudentInput{
		Name:      " Kiran ",
		Class:     "11",
		TotalFees: 500,
		PaidFees:  100,
	})
	require.NoError(t, err)
	assert.Equal(t, "Kiran", created.Name)
	assert.Equal(t, models.FeeStatusPartial, created.FeeStatus, "fee status derived from amounts")

	roster, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, roster.Data, 4)
	assert.Equal(t, 2, repo.calls())
}

func TestStudentServiceCreateConflictLeavesRoster(t *testing.T) {
	repo := seededStudentRepo()
	repo.createErr = appErrors.Clone(appErrors.ErrConflict, "duplicate student")
	core := newTestCore(t, nil)
	svc := NewStudentService(core, repo, nil, nil)

	before, err := svc.List(context.Background())
	require.NoError(t, err)
	gen := core.Cache.Peek(StudentsKey).Generation

	_, err = svc.Create(context.Background(), models.StudentInput{Name: "Asha", Class: "10"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	after, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before.Data, after.Data)
	assert.Equal(t, gen, core.Cache.Peek(StudentsKey).Generation)
	assert.Equal(t, 1, repo.calls())
}

func TestStudentServiceCreateValidation(t *testing.T) {
	repo := seededStudentRepo()
	svc := NewStudentService(newTestCore(t, nil), repo, nil, nil)

	_, err := svc.Create(context.Background(), models.StudentInput{TotalFees: -5, FeeStatus: "Waived"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	typed := appErrors.FromError(err)
	assert.Equal(t, "required", typed.Fields["name"])
	assert.Equal(t, "required", typed.Fields["class"])
	assert.Equal(t, "gte=0", typed.Fields["total_fees"])
	assert.Contains(t, typed.Fields["fee_status"], "oneof")
	assert.Empty(t, repo.created)
}

func TestStudentServiceClassesGroupsLabels(t *testing.T) {
	svc := NewStudentService(newTestCore(t, nil), seededStudentRepo(), nil, nil)

	classes, err := svc.Classes(context.Background())
	require.NoError(t, err)
	require.Len(t, classes.Data, 2)
	assert.Equal(t, "9", classes.Data[0].ID)
	assert.Equal(t, "10", classes.Data[1].ID)
	assert.Equal(t, 2, classes.Data[1].StudentCount)
}

func TestStudentServiceUpdateInvalidatesStudent(t *testing.T) {
	repo := seededStudentRepo()
	core := newTestCore(t, nil)
	svc := NewStudentService(core, repo, nil, nil)

	_, err := svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), "s2")
	require.NoError(t, err)

	name := "Asha K"
	updated, err := svc.Update(context.Background(), "s1", models.StudentPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	assert.True(t, core.Cache.Peek(StudentKey("s1")).IsStale)
	assert.False(t, core.Cache.Peek(StudentKey("s2")).IsStale)

	fresh, err := svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, name, fresh.Data.Name)
}

func TestStudentServiceUpdateRejectsEmptyPatch(t *testing.T) {
	repo := seededStudentRepo()
	svc := NewStudentService(newTestCore(t, nil), repo, nil, nil)

	_, err := svc.Update(context.Background(), "s1", models.StudentPatch{})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, repo.updated)
}

func TestStudentServiceGetNotFound(t *testing.T) {
	svc := NewStudentService(newTestCore(t, nil), seededStudentRepo(), nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestStudentServiceWatchReceivesRefetch(t *testing.T) {
	repo := seededStudentRepo()
	svc := NewStudentService(newTestCore(t, nil), repo, nil, nil)

	_, err := svc.List(context.Background())
	require.NoError(t, err)

	updates := make(chan View[[]models.Student], 8)
	_, stop := svc.Watch(func(v View[[]models.Student]) { updates <- v })
	defer stop()

	require.NoError(t, svc.Delete(context.Background(), "s3"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-updates:
			if !v.Stale && !v.Fetching && repo.calls() == 2 {
				return
			}
		case <-deadline:
			t.Fatalf("no refetch delivered, list calls = %d", repo.calls())
		}
	}
}
