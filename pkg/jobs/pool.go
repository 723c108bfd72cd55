package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrPoolStopped is returned by Submit once Stop has been called.
var ErrPoolStopped = errors.New("pool stopped")

// Job represents a unit of background work handed to the pool.
type Job struct {
	ID       string
	Type     string
	Payload  []byte
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// PoolConfig configures worker pool behaviour.
type PoolConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Pool is a bounded set of goroutines fed through a buffered channel.
// Submit blocks while the buffer is full, which pushes back on the producer.
type Pool struct {
	name    string
	handler Handler

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	jobs     chan Job
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	started  bool
	stopped  bool
	inFlight atomic.Int64
}

// NewPool builds a pool with the provided handler.
func NewPool(name string, handler Handler, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Pool{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		jobs:       make(chan Job, cfg.BufferSize),
	}
}

// Start launches the workers. Safe to call once.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i + 1)
	}
	p.started = true
	p.logger.Sugar().Infow("pool started", "pool", p.name, "workers", p.workers)
}

// Stop refuses new work, lets the workers drain the buffer and waits for them.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.stopped = true
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	p.logger.Sugar().Infow("pool stopped", "pool", p.name)
}

// Submit hands a job to the pool, waiting for buffer space until ctx is done.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return fmt.Errorf("pool %s: %w", p.name, ErrPoolStopped)
	}
	if !p.started {
		return fmt.Errorf("pool %s not started", p.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("pool %s submit: %w", p.name, ctx.Err())
	case p.jobs <- job:
		return nil
	}
}

// InFlight reports how many jobs are currently executing.
func (p *Pool) InFlight() int64 {
	return p.inFlight.Load()
}

func (p *Pool) worker(workerID int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.inFlight.Add(1)
		err := p.handler(p.ctx, job)
		p.inFlight.Add(-1)
		if err != nil {
			p.handleFailure(job, err)
		}
	}
	p.logger.Sugar().Debugw("worker exited", "pool", p.name, "worker", workerID)
}

func (p *Pool) handleFailure(job Job, err error) {
	job.Attempt++
	if job.Attempt > p.maxRetries {
		p.logger.Sugar().Errorw("job exceeded retries", "pool", p.name, "job_id", job.ID, "type", job.Type, "error", err)
		return
	}
	p.logger.Sugar().Warnw("job failed, retrying", "pool", p.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)

	go func(j Job) {
		timer := time.NewTimer(p.retryDelay)
		defer timer.Stop()
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
			if err := p.Submit(p.ctx, j); err != nil {
				p.logger.Sugar().Errorw("failed to resubmit job", "pool", p.name, "job_id", j.ID, "error", err)
			}
		}
	}(job)
}
