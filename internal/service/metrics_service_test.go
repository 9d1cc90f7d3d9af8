package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/mutation"
	"github.com/noah-isme/coaching-console/internal/query"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()

	m.ObserveQueryLookup("students", query.LookupHit)
	m.ObserveQueryLookup("students", query.LookupHit)
	m.ObserveQueryLookup("students", query.LookupStale)
	m.ObserveQueryLookup("tests", query.LookupMiss)
	m.IncQueryDiscarded("students")
	m.ObserveMutation("createStudent", time.Millisecond, nil)
	m.ObserveMutation("createStudent", time.Millisecond, appErrors.Clone(appErrors.ErrConflict, "dup"))
	m.ObserveHTTPRequest(http.MethodGet, "/students", http.StatusOK, 4*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.QueryHits)
	assert.Equal(t, uint64(1), snap.QueryStaleServed)
	assert.Equal(t, uint64(1), snap.QueryMisses)
	assert.Equal(t, 0.5, snap.QueryHitRatio)
	assert.Equal(t, uint64(1), snap.QueryDiscarded)
	assert.Equal(t, uint64(2), snap.Mutations)
	assert.Equal(t, uint64(1), snap.MutationFailures)
	assert.Equal(t, uint64(1), snap.RequestsTotal)
	assert.Equal(t, 4.0, snap.AverageRequestMs)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutationTotal.WithLabelValues("createStudent", "CONFLICT")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.queryHitRatio))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveQueryLookup("students", query.LookupHit)
	m.ObserveMutation("createStudent", time.Millisecond, nil)
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsServiceRecordsCacheAndPipeline(t *testing.T) {
	m := NewMetricsService()
	cache := query.New(query.Config{Defaults: query.Options{StaleTime: time.Hour}, Recorder: m})
	t.Cleanup(cache.Close)
	core := Core{Cache: cache, Pipeline: mutation.New(cache, mutation.Config{Recorder: m})}
	svc := NewStudentService(core, seededStudentRepo(), nil, nil)

	_, err := svc.List(context.Background())
	require.NoError(t, err)
	_, err = svc.List(context.Background())
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), models.StudentInput{Name: "Kiran", Class: "9", TotalFees: 100})
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.GreaterOrEqual(t, snap.QueryHits, uint64(1))
	assert.Equal(t, uint64(1), snap.Mutations)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `mutations_total{code="OK",operation="createStudent"} 1`), body)
	assert.Contains(t, body, "query_fetch_duration_seconds")
}
