package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncta/internal/shared"
)

// Job is one queued unit of work, typically a full playlist sync.
type Job struct {
	ID       string
	Adapter  string // per-adapter concurrency key
	Priority bool   // priority jobs jump to the front of the queue
	Run      func(ctx context.Context) error
	Done     func(err error) // optional completion callback
}

// Queue runs jobs FIFO with bounded global and per-adapter concurrency.
// Jobs on the same binding must not be enqueued concurrently by the
// caller; the queue itself only bounds adapters and workers.
type Queue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	pending     []*Job
	running     map[string]context.CancelFunc
	adapterBusy map[string]int

	workers    int
	perAdapter int
	closed     bool

	baseCtx context.Context
	wg      sync.WaitGroup
	logger  *log.Logger
}

// NewQueue creates a Queue with the given concurrency bounds.
func NewQueue(workers, perAdapter int, logger *log.Logger) *Queue {
	if workers <= 0 {
		workers = 2
	}
	if perAdapter <= 0 {
		perAdapter = 1
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	q := &Queue{
		running:     make(map[string]context.CancelFunc),
		adapterBusy: make(map[string]int),
		workers:     workers,
		perAdapter:  perAdapter,
		logger:      logger,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker pool. Cancelling ctx stops all workers and
// cancels every running job.
func (q *Queue) Start(ctx context.Context) {
	q.baseCtx = ctx

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	go func() {
		<-ctx.Done()
		q.Shutdown()
	}()
}

// Submit enqueues a job and returns its id. Priority jobs jump ahead of
// waiting jobs but never preempt running ones.
func (q *Queue) Submit(job *Job) (string, error) {
	if job.Run == nil {
		return "", fmt.Errorf("%w: job has no run function", shared.ErrInvalidInput)
	}
	if job.ID == "" {
		job.ID = shared.GenerateID()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", fmt.Errorf("%w: queue is shut down", shared.ErrStopped)
	}

	if job.Priority {
		q.pending = append([]*Job{job}, q.pending...)
	} else {
		q.pending = append(q.pending, job)
	}

	q.cond.Broadcast()
	return job.ID, nil
}

// Cancel cancels a job by id, whether it is still queued or already
// running. Returns false if the job is unknown.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, job := range q.pending {
		if job.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			if job.Done != nil {
				go job.Done(shared.ErrCancelled)
			}
			return true
		}
	}

	if cancel, ok := q.running[id]; ok {
		cancel()
		return true
	}
	return false
}

// Shutdown stops accepting jobs, cancels running ones, and waits for
// workers to drain.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true

	dropped := q.pending
	q.pending = nil
	for _, cancel := range q.running {
		cancel()
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	for _, job := range dropped {
		if job.Done != nil {
			job.Done(shared.ErrStopped)
		}
	}

	q.wg.Wait()
}

// worker pops eligible jobs until the queue closes.
func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		job := q.next()
		if job == nil {
			return
		}

		ctx, cancel := context.WithCancel(q.baseCtx)

		q.mu.Lock()
		q.running[job.ID] = cancel
		q.mu.Unlock()

		err := job.Run(ctx)

		q.mu.Lock()
		delete(q.running, job.ID)
		q.adapterBusy[job.Adapter]--
		q.cond.Broadcast()
		q.mu.Unlock()

		cancel()
		if err != nil {
			q.logger.Error("job failed", "job", job.ID, "err", err)
		}
		if job.Done != nil {
			job.Done(err)
		}
	}
}

// next blocks until an eligible job is available or the queue closes.
// A job is eligible when its adapter has a free slot.
func (q *Queue) next() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			return nil
		}

		for i, job := range q.pending {
			if q.adapterBusy[job.Adapter] < q.perAdapter {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				q.adapterBusy[job.Adapter]++
				return job
			}
		}

		q.cond.Wait()
	}
}
