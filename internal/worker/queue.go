package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/iconidentify/reelscribe/internal/domain"
	"github.com/iconidentify/reelscribe/internal/service"
)

var (
	// ErrShutdownTimeout is returned when the worker doesn't stop within timeout.
	ErrShutdownTimeout = errors.New("worker queue shutdown timed out")
	// ErrQueueFull is returned when no more requests can wait.
	ErrQueueFull = errors.New("worker queue is full")
	// ErrStopped is returned for submissions after Stop.
	ErrStopped = errors.New("worker queue stopped")
)

// Config holds worker queue configuration.
type Config struct {
	// Delay is the minimum time between the starts of two requests.
	Delay time.Duration
	// Capacity is the number of requests that may wait for the worker.
	Capacity int
}

// Stats is a snapshot of queue activity.
type Stats struct {
	Running    bool  `json:"running"`
	Queued     int64 `json:"queued"`
	Processing bool  `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

type task struct {
	ctx    context.Context
	req    domain.JobRequest
	result chan domain.ProcessResult
}

// Queue runs requests one at a time on a single worker, paced by a token
// bucket so that starts are at least Delay apart.
type Queue struct {
	proc    service.URLProcessor
	limiter *rate.Limiter
	tasks   chan *task
	logger  *slog.Logger

	queued     atomic.Int64
	processing atomic.Bool
	completed  atomic.Int64
	failed     atomic.Int64
	running    atomic.Bool

	mu      sync.RWMutex
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue creates a new worker queue.
func NewQueue(cfg Config, proc service.URLProcessor, logger *slog.Logger) *Queue {
	if cfg.Delay <= 0 {
		cfg.Delay = 4 * time.Second
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 16
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		proc:    proc,
		limiter: rate.NewLimiter(rate.Every(cfg.Delay), 1),
		tasks:   make(chan *task, cfg.Capacity),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker.
func (q *Queue) Start() {
	q.logger.Info("starting worker queue", "capacity", cap(q.tasks))
	q.running.Store(true)
	q.wg.Add(1)
	go q.worker()
}

// Stop rejects new submissions and waits for the in-flight request.
func (q *Queue) Stop(timeout time.Duration) error {
	q.logger.Info("stopping worker queue")

	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.running.Store(false)
		q.logger.Info("worker queue stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// Submit queues req and blocks until it has been processed or ctx is done.
func (q *Queue) Submit(ctx context.Context, req domain.JobRequest) (domain.ProcessResult, error) {
	t := &task{
		ctx:    ctx,
		req:    req,
		result: make(chan domain.ProcessResult, 1),
	}

	q.mu.RLock()
	if q.stopped {
		q.mu.RUnlock()
		return domain.ProcessResult{}, ErrStopped
	}
	select {
	case q.tasks <- t:
		q.queued.Add(1)
	default:
		q.mu.RUnlock()
		return domain.ProcessResult{}, ErrQueueFull
	}
	q.mu.RUnlock()

	select {
	case res := <-t.result:
		return res, nil
	case <-ctx.Done():
		return domain.ProcessResult{}, ctx.Err()
	}
}

// Stats returns current queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Running:    q.running.Load(),
		Queued:     q.queued.Load(),
		Processing: q.processing.Load(),
		Completed:  q.completed.Load(),
		Failed:     q.failed.Load(),
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	q.logger.Info("worker started")

	for {
		select {
		case <-q.ctx.Done():
			q.drain()
			q.logger.Info("worker stopping")
			return
		case t := <-q.tasks:
			q.queued.Add(-1)
			q.run(t)
		}
	}
}

func (q *Queue) run(t *task) {
	logger := q.logger.With("request_id", t.req.ID)

	// Nothing new starts once shutdown has begun.
	if q.ctx.Err() != nil {
		t.result <- cancelled(t.req, ErrStopped)
		return
	}

	// Callers that gave up while waiting are not processed.
	if err := q.limiter.Wait(t.ctx); err != nil {
		logger.Debug("request abandoned before start", "error", err)
		t.result <- cancelled(t.req, err)
		return
	}
	if q.ctx.Err() != nil {
		t.result <- cancelled(t.req, ErrStopped)
		return
	}

	q.processing.Store(true)
	res := q.proc.Process(t.ctx, t.req)
	q.processing.Store(false)

	if res.Success() {
		q.completed.Add(1)
	} else {
		q.failed.Add(1)
	}
	t.result <- res
}

// drain answers every waiting request after shutdown.
func (q *Queue) drain() {
	for {
		select {
		case t := <-q.tasks:
			q.queued.Add(-1)
			t.result <- cancelled(t.req, ErrStopped)
		default:
			return
		}
	}
}

func cancelled(req domain.JobRequest, err error) domain.ProcessResult {
	return domain.ProcessResult{
		Request: req,
		Err:     domain.NewError(domain.KindCancelled, "queue", err),
		Stage:   domain.StageValidating,
	}
}
