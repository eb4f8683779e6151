// Package pipeline runs batches of mask imports across a pool of workers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"slitmask/internal/fsutil"

	"github.com/google/uuid"
)

// JobType enumerates supported input kinds.
type JobType string

const (
	JobDocument JobType = "document" // MSC XML
	JobPointing JobType = "pointing" // YAML pointing file, generated on import
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("pipeline stopped")

// Job is one file to import.
type Job struct {
	ID        string
	Type      JobType
	InputPath string
	Output    string // product directory; empty skips export
}

// NewJob classifies path and assigns an ID.
func NewJob(path, output string) (Job, error) {
	job := Job{ID: uuid.NewString(), InputPath: path, Output: output}
	switch {
	case fsutil.IsMaskDocument(path):
		job.Type = JobDocument
	case fsutil.IsPointingFile(path):
		job.Type = JobPointing
	default:
		return Job{}, fmt.Errorf("%s is neither a mask document nor a pointing file", path)
	}
	return job, nil
}

// Result captures the outcome of a Job.
type Result struct {
	Job      Job
	MaskID   string
	Warnings []string
	Products []string
	Duration time.Duration
	Error    error
}

// Processor executes a job and returns a Result.
type Processor interface {
	Process(ctx context.Context, job Job) Result
}

// Pipeline orchestrates job dispatch across workers.
type Pipeline struct {
	processor Processor
	log       *slog.Logger
	jobs      chan Job
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
	mu        sync.Mutex
	subs      map[int]chan Result
	nextSubID int
}

// New starts concurrency workers that import through imp.
func New(ctx context.Context, concurrency int, logger *slog.Logger, imp Importer) *Pipeline {
	return newPipeline(ctx, concurrency, logger, newRouter(logger, imp))
}

func newPipeline(ctx context.Context, concurrency int, logger *slog.Logger, proc Processor) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		processor: proc,
		log:       logger,
		jobs:      make(chan Job, concurrency*2),
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[int]chan Result),
	}
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit queues a job, blocking while the queue is full.
func (p *Pipeline) Submit(ctx context.Context, job Job) error {
	if p.ctx.Err() != nil {
		return ErrStopped
	}
	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals workers to exit, waits for them and closes every subscription.
// Jobs still queued are dropped.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.jobs:
			p.log.Debug("job started", "worker", id, "job", job.ID, "type", job.Type, "input", job.InputPath)
			start := time.Now()
			res := p.processor.Process(p.ctx, job)
			res.Duration = time.Since(start)

			if res.Error != nil {
				p.log.Error("job failed", "job", job.ID, "input", job.InputPath, "duration", res.Duration, "error", res.Error)
			} else {
				p.log.Info("job completed", "job", job.ID, "input", job.InputPath, "mask", res.MaskID,
					"products", len(res.Products), "duration", res.Duration)
			}
			p.broadcast(res)
		}
	}
}

// Subscribe returns a channel for receiving job results and an unsubscribe
// function. Results are dropped for a subscriber whose buffer is full.
func (p *Pipeline) Subscribe(buffer int) (<-chan Result, func()) {
	if buffer < 1 {
		buffer = 8
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Result, buffer)
	p.subs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			close(c)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func (p *Pipeline) broadcast(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- res:
		default:
			p.log.Warn("result channel full", "subscriber", id, "job", res.Job.ID)
		}
	}
}
