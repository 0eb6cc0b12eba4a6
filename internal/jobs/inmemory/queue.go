package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// DefaultWorkers is used when NewQueue is given a non-positive worker count.
const DefaultWorkers = 4

// Queue is an in-memory job publisher and consumer backed by a buffered
// channel. It is safe for concurrent use and suits single-instance
// deployments and tests. Jobs published before Stop are always run.
type Queue struct {
	jobChan chan *jobs.Job
	wg      sync.WaitGroup
	mu      sync.RWMutex
	store   jobs.Store
	workers int
	closed  bool
}

// NewQueue creates a new in-memory job queue. bufferSize bounds how many jobs
// may wait before Publish blocks.
func NewQueue(bufferSize, workers int, store jobs.Store) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		jobChan: make(chan *jobs.Job, bufferSize),
		store:   store,
		workers: workers,
	}
}

// Publish records the job as pending and enqueues it. The read lock is held
// across the send so Stop cannot close the channel underneath it.
func (q *Queue) Publish(ctx context.Context, job *jobs.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	job.Status = jobs.StatusPending
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if q.store != nil {
		if err := q.store.Save(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	// Hand the worker its own copy so the caller may keep reading job.
	queued := *job
	select {
	case q.jobChan <- &queued:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the worker goroutines.
func (q *Queue) Start(ctx context.Context, handler jobs.Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobChan:
			if !ok {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs one job. Ingestion deletes its artifact on failure, so a
// failed job is final.
func (q *Queue) processJob(ctx context.Context, job *jobs.Job, handler jobs.Handler) {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).
		Str("kind", string(job.Kind)).
		Logger()
	ctx = logger.WithContext(ctx, log)

	job.Status = jobs.StatusRunning
	now := time.Now()
	job.StartedAt = &now
	q.save(ctx, job)

	report, err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt
	job.Report = report
	if err != nil {
		job.Status = jobs.StatusFailed
		job.Error = err.Error()
		log.Warn().Err(err).Msg("job failed")
	} else {
		job.Status = jobs.StatusCompleted
		log.Info().Dur("duration", completedAt.Sub(now)).Msg("job completed")
	}
	q.save(ctx, job)
}

func (q *Queue) save(ctx context.Context, job *jobs.Job) {
	if q.store == nil {
		return
	}
	if err := q.store.Save(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("saving job state")
	}
}

// Stop refuses new jobs, lets the workers drain everything already queued
// and waits for them to finish.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
