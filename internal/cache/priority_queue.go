package cache

import (
	"container/heap"
	"sync"
)

type queuedJob struct {
	job   WarmupJob
	seq   int
	index int
}

type jobHeap []*queuedJob

func (h jobHeap) Len() int { return len(h) }

// Higher priority first; equal priorities keep insertion order.
func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x interface{}) {
	item := x.(*queuedJob)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// PriorityQueue orders warmup jobs by priority. Safe for concurrent use.
type PriorityQueue struct {
	mu    sync.Mutex
	items jobHeap
	seq   int
}

func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{}
}

func (pq *PriorityQueue) Push(job WarmupJob) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	pq.seq++
	heap.Push(&pq.items, &queuedJob{job: job, seq: pq.seq})
}

func (pq *PriorityQueue) Pop() (WarmupJob, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if len(pq.items) == 0 {
		return WarmupJob{}, false
	}
	return heap.Pop(&pq.items).(*queuedJob).job, true
}

func (pq *PriorityQueue) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return len(pq.items)
}

// Jobs returns the queued jobs in pop order without draining the queue.
func (pq *PriorityQueue) Jobs() []WarmupJob {
	pq.mu.Lock()
	clone := make(jobHeap, len(pq.items))
	for i, item := range pq.items {
		copied := *item
		clone[i] = &copied
	}
	pq.mu.Unlock()

	jobs := make([]WarmupJob, 0, len(clone))
	for clone.Len() > 0 {
		jobs = append(jobs, heap.Pop(&clone).(*queuedJob).job)
	}
	return jobs
}
