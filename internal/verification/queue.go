package verification

import (
	"container/heap"
	"context"
	"sync"

	dErrors "docanchor/pkg/domain-errors"
)

// jobQueue is a bounded priority FIFO: urgent > high > normal > low, ties
// broken by submission order.
type jobQueue struct {
	mu    sync.Mutex
	items jobHeap
	seq   uint64

	// ready carries one token per queued job so Pop can wait without
	// spinning. Its capacity matches the queue capacity.
	ready    chan struct{}
	capacity int
}

func newJobQueue(capacity int) *jobQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &jobQueue{
		ready:    make(chan struct{}, capacity),
		capacity: capacity,
	}
}

// Push enqueues the job, rejecting when the queue is at capacity.
func (q *jobQueue) Push(job *Job) error {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "verification queue is at capacity")
	}
	q.seq++
	heap.Push(&q.items, &queuedJob{job: job, seq: q.seq})
	q.mu.Unlock()
	q.ready <- struct{}{}
	return nil
}

// Pop blocks until a job is available or the context ends.
func (q *jobQueue) Pop(ctx context.Context) (*Job, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.ready:
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	item := heap.Pop(&q.items).(*queuedJob)
	return item.job, nil
}

// Depth reports the number of waiting jobs.
func (q *jobQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type queuedJob struct {
	job *Job
	seq uint64
}

type jobHeap []*queuedJob

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	ri, rj := h[i].job.Priority.Rank(), h[j].job.Priority.Rank()
	if ri != rj {
		return ri > rj
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*queuedJob)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
