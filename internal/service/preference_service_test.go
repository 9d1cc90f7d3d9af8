package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coaching-console/internal/models"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

type memoryPreferenceStore struct {
	values  map[string][]byte
	getErr  error
	setErr  error
	cleared []string
}

func newMemoryPreferenceStore() *memoryPreferenceStore {
	return &memoryPreferenceStore{values: map[string][]byte{}}
}

func (m *memoryPreferenceStore) Get(ctx context.Context, userID, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.values[userID+"/"+key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryPreferenceStore) Set(ctx context.Context, userID, key string, value interface{}) error {
	if m.setErr != nil {
		return m.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[userID+"/"+key] = raw
	return nil
}

func (m *memoryPreferenceStore) Clear(ctx context.Context, userID string) error {
	m.cleared = append(m.cleared, userID)
	return nil
}

type fixedUser struct{ id string }

func (f fixedUser) User() (models.UserInfo, bool) {
	return models.UserInfo{ID: f.id}, f.id != ""
}

func TestPreferenceServiceRoundTripPerUser(t *testing.T) {
	store := newMemoryPreferenceStore()
	svc := NewPreferenceService(store, fixedUser{id: "u1"}, nil, nil)

	svc.Set(context.Background(), "theme", "dark")

	var theme string
	require.True(t, svc.Get(context.Background(), "theme", &theme))
	assert.Equal(t, "dark", theme)
	assert.Contains(t, store.values, "u1/theme")

	other := NewPreferenceService(store, fixedUser{id: "u2"}, nil, nil)
	require.True(t, other.Get(context.Background(), "theme", &theme))
	assert.Equal(t, "light", theme)
}

func TestPreferenceServiceFallsBackOnFailure(t *testing.T) {
	store := newMemoryPreferenceStore()
	store.getErr = errors.New("redis down")
	store.setErr = errors.New("redis down")
	svc := NewPreferenceService(store, fixedUser{id: "u1"}, map[string]interface{}{"students.page_size": 50}, nil)

	svc.Set(context.Background(), "students.page_size", 10)

	var size int
	require.True(t, svc.Get(context.Background(), "students.page_size", &size))
	assert.Equal(t, 50, size)

	var unknown string
	assert.False(t, svc.Get(context.Background(), "missing", &unknown))
	assert.False(t, svc.Get(context.Background(), " ", &unknown))
}

func TestPreferenceServiceReset(t *testing.T) {
	store := newMemoryPreferenceStore()
	svc := NewPreferenceService(store, fixedUser{id: "u1"}, nil, nil)

	svc.Reset(context.Background())
	assert.Equal(t, []string{"u1"}, store.cleared)
}
