package dedup

import (
	"context"
	"errors"
	"sync"

	"imageclassifier/internal/logger"
)

// ErrQueueStopped is returned for requests submitted after Stop.
var ErrQueueStopped = errors.New("dedup queue stopped")

// ClassResolver resolves a label and its embedding to a class.
type ClassResolver interface {
	ResolveClass(ctx context.Context, label string, embedding []float64) (*Resolution, error)
}

type resolveTask struct {
	ctx       context.Context
	label     string
	embedding []float64
	reply     chan resolveResult
}

type resolveResult struct {
	resolution *Resolution
	err        error
}

// Queue funnels every ResolveClass call through one worker goroutine so the
// list-compare-append sequence never interleaves inside this process.
type Queue struct {
	resolver ClassResolver
	logger   *logger.Logger

	tasks   chan resolveTask
	quit    chan struct{}
	mu      sync.RWMutex
	stopped bool
	once    sync.Once
	wg      sync.WaitGroup
}

// NewQueue starts the worker. Call Stop to release it.
func NewQueue(resolver ClassResolver, size int, log *logger.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	q := &Queue{
		resolver: resolver,
		logger:   log,
		tasks:    make(chan resolveTask, size),
		quit:     make(chan struct{}),
	}

	q.wg.Add(1)
	go q.worker()

	q.logger.Info("Dedup queue started (buffer %d)", size)
	return q
}

// ResolveClass enqueues the request and waits for its result or ctx cancellation.
func (q *Queue) ResolveClass(ctx context.Context, label string, embedding []float64) (*Resolution, error) {
	task := resolveTask{ctx: ctx, label: label, embedding: embedding, reply: make(chan resolveResult, 1)}

	q.mu.RLock()
	if q.stopped {
		q.mu.RUnlock()
		return nil, ErrQueueStopped
	}
	select {
	case q.tasks <- task:
		q.mu.RUnlock()
	case <-ctx.Done():
		q.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case res := <-task.reply:
		return res.resolution, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case task := <-q.tasks:
			q.run(task)
		case <-q.quit:
			// Drain what was accepted before Stop.
			for {
				select {
				case task := <-q.tasks:
					q.run(task)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) run(task resolveTask) {
	if err := task.ctx.Err(); err != nil {
		task.reply <- resolveResult{err: err}
		return
	}
	res, err := q.resolver.ResolveClass(task.ctx, task.label, task.embedding)
	if err != nil {
		q.logger.WarningCtx(task.ctx, "Dedup resolution for %q failed: %v", task.label, err)
	}
	task.reply <- resolveResult{resolution: res, err: err}
}

// Stop finishes queued work and stops the worker.
func (q *Queue) Stop() {
	q.once.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()

		close(q.quit)
		q.wg.Wait()
		q.logger.Info("Dedup queue stopped")
	})
}
