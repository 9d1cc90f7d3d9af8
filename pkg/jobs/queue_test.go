package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRequiresStart(t *testing.T) {
	q := NewQueue("sync", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "a"})
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestQueueCoalescesWaitingJobs(t *testing.T) {
	gate := make(chan struct{})
	var mu sync.Mutex
	seen := map[string]int{}
	done := make(chan struct{}, 4)

	q := NewQueue("sync", func(ctx context.Context, job Job) error {
		if job.ID == "busy" {
			<-gate
		}
		mu.Lock()
		seen[job.ID]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 8})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "busy"}))
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.waiting) == 0
	}, time.Second, time.Millisecond)

	require.NoError(t, q.Enqueue(Job{ID: "s1"}))
	require.NoError(t, q.Enqueue(Job{ID: "s1"}))
	close(gate)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job not processed")
		}
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen["s1"])
	assert.Equal(t, 1, seen["busy"])
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	gaveUp := make(chan Job, 1)

	q := NewQueue("sync", func(ctx context.Context, job Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("remote store unreachable")
	}, QueueConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnGiveUp:   func(job Job, err error) { gaveUp <- job },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "s1", Type: "attendance.sync"}))

	select {
	case job := <-gaveUp:
		assert.Equal(t, 3, job.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("job never gave up")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}
