package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

func queueJob(priority id.Priority) *Job {
	job := newJob(id.NewDocumentID(), id.NewOrganizationID(), id.NewUserID(), id.ContentHash(""), time.Now())
	job.Priority = priority
	return job
}

func TestJobQueue_PriorityOrder(t *testing.T) {
	q := newJobQueue(16)

	low := queueJob(id.PriorityLow)
	normal := queueJob(id.PriorityNormal)
	urgent := queueJob(id.PriorityUrgent)
	high := queueJob(id.PriorityHigh)

	for _, job := range []*Job{low, normal, urgent, high} {
		require.NoError(t, q.Push(job))
	}

	ctx := context.Background()
	var got []*Job
	for i := 0; i < 4; i++ {
		job, err := q.Pop(ctx)
		require.NoError(t, err)
		got = append(got, job)
	}
	assert.Equal(t, []*Job{urgent, high, normal, low}, got)
}

func TestJobQueue_FIFOWithinPriority(t *testing.T) {
	q := newJobQueue(16)

	first := queueJob(id.PriorityNormal)
	second := queueJob(id.PriorityNormal)
	third := queueJob(id.PriorityNormal)
	for _, job := range []*Job{first, second, third} {
		require.NoError(t, q.Push(job))
	}

	ctx := context.Background()
	for _, want := range []*Job{first, second, third} {
		job, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Same(t, want, job)
	}
}

func TestJobQueue_CapacityRejection(t *testing.T) {
	q := newJobQueue(2)

	require.NoError(t, q.Push(queueJob(id.PriorityNormal)))
	require.NoError(t, q.Push(queueJob(id.PriorityNormal)))

	err := q.Push(queueJob(id.PriorityUrgent))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	assert.Equal(t, 2, q.Depth())
}

func TestJobQueue_PopHonorsContext(t *testing.T) {
	q := newJobQueue(2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJobQueue_PopWakesOnPush(t *testing.T) {
	q := newJobQueue(2)
	job := queueJob(id.PriorityNormal)

	done := make(chan *Job, 1)
	go func() {
		popped, err := q.Pop(context.Background())
		if err == nil {
			done <- popped
		}
	}()

	require.NoError(t, q.Push(job))
	select {
	case popped := <-done:
		assert.Same(t, job, popped)
	case <-time.After(time.Second):
		t.Fatal("Pop never woke up")
	}
}
