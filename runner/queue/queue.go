// Package queue runs pipeline jobs on a fixed pool of workers and
// enforces concurrency groups: when a job whose policy requests
// cancellation starts, any in-flight job holding the same group key
// is cancelled through its context.
package queue

import (
	"context"
	"sync"
)

type Job struct {
	// Group is the resolved concurrency group key for this run.
	Group string
	// CancelInProgress preempts an in-flight run of the same group
	// once this job starts.
	CancelInProgress bool

	Run    func(ctx context.Context) error
	OnFail func(error)
}

type active struct {
	cancel context.CancelFunc
}

type Queue struct {
	jobs    chan Job
	workers int

	mu      sync.Mutex
	current map[string]*active

	wg sync.WaitGroup
}

func NewQueue(size, workers int) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		jobs:    make(chan Job, size),
		workers: workers,
		current: make(map[string]*active),
	}
}

func (q *Queue) Enqueue(job Job) bool {
	select {
	case q.jobs <- job:
		return true
	default:
		return false
	}
}

func (q *Queue) Start() {
	for range q.workers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				q.run(job)
			}
		}()
	}
}

// Stop drains the queue and waits for in-flight jobs to complete.
func (q *Queue) Stop() {
	close(q.jobs)
	q.wg.Wait()
}

func (q *Queue) run(job Job) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entry := &active{cancel: cancel}

	q.mu.Lock()
	if prev, ok := q.current[job.Group]; ok && job.CancelInProgress {
		// at most one active run per group once a newer one starts
		prev.cancel()
	}
	q.current[job.Group] = entry
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		if q.current[job.Group] == entry {
			delete(q.current, job.Group)
		}
		q.mu.Unlock()
	}()

	if err := job.Run(ctx); err != nil {
		if job.OnFail != nil {
			job.OnFail(err)
		}
	}
}
