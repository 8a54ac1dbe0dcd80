package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreport/constants"
	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/entity"
)

type ProcessorQueue struct {
	proc    Analyzer
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// base is cancelled when shutdown runs out of time.
	base       context.Context
	cancelBase context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

var _ Queue = (*ProcessorQueue)(nil)

func NewProcessorQueue(proc Analyzer, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 2,
		timeout: 2 * time.Minute,
		ch:      make(chan Job, 16),
	}
	for _, o := range opts {
		o(q)
	}
	q.base, q.cancelBase = context.WithCancel(context.Background())
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					res := q.run(job)
					job.result <- res
					if res.OK() {
						q.logger.Info("analysis finished", "worker_id", workerID, "job_id", job.ID, "req_id", job.TraceID, "record_id", res.RecordID)
					} else {
						q.logger.Warn("analysis failed", "worker_id", workerID, "job_id", job.ID, "req_id", job.TraceID, "code", res.Code)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(job Job) entity.PipelineResult {
	ctx, cancel := context.WithTimeout(job.ctx, q.timeout)
	defer cancel()
	stop := context.AfterFunc(q.base, cancel)
	defer stop()

	if ctx.Err() != nil || q.base.Err() != nil {
		return entity.Failed(constants.FailureCancelled, constants.MsgCancelled)
	}
	return q.proc.Analyze(ctx, job.Request)
}

// Submit queues req and returns a channel that yields its result. When the
// queue is full Submit blocks until there is room or ctx is done.
func (q *ProcessorQueue) Submit(ctx context.Context, req entity.AnalysisRequest) <-chan entity.PipelineResult {
	ctx, rid := common.EnsureRequestID(ctx)
	job := Job{
		ID:          uuid.New(),
		Request:     req,
		SubmittedAt: time.Now(),
		TraceID:     rid,
		ctx:         ctx,
		result:      make(chan entity.PipelineResult, 1),
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.ID)
		job.result <- entity.Failed(constants.FailureCancelled, constants.MsgCancelled)
		return job.result
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued analysis", "job_id", job.ID, "req_id", rid)
		return job.result
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "job_id", job.ID)
	select {
	case q.ch <- job:
	case <-ctx.Done():
		job.result <- entity.Failed(constants.FailureCancelled, constants.MsgCancelled)
	}
	return job.result
}

// Shutdown stops accepting work and drains queued jobs. If ctx ends first the
// remaining runs are cancelled and still resolve before Shutdown returns.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context, cancelling in-flight analyses")
		q.cancelBase()
		<-done
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
	q.cancelBase()
}
