package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
)

const DefaultQueueSize = 16

var ErrPoolClosed = errors.New("worker pool closed")

type StartOptions[J any] struct {
	Ctx    context.Context
	Sem    chan struct{}
	Jobs   <-chan J
	Handle func(context.Context, J)
	Done   func()
}

// Start consumes Jobs until the channel is closed or Ctx is done. Each job
// holds one Sem slot while it runs.
func Start[J any](opts StartOptions[J]) {
	go func() {
		if opts.Done != nil {
			defer opts.Done()
		}
		for {
			select {
			case <-opts.Ctx.Done():
				return
			case job, ok := <-opts.Jobs:
				if !ok {
					return
				}
				select {
				case opts.Sem <- struct{}{}:
				case <-opts.Ctx.Done():
					return
				}
				func() {
					defer func() { <-opts.Sem }()
					opts.Handle(opts.Ctx, job)
				}()
			}
		}
	}()
}

func Enqueue[J any](ctx, workersCtx context.Context, jobs chan<- J, job J) error {
	if ctx == nil {
		ctx = workersCtx
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-workersCtx.Done():
		return workersCtx.Err()
	case jobs <- job:
		return nil
	}
}

// Pool runs one serial worker per key. Jobs for the same key are handled in
// order; different keys run in parallel up to the semaphore size.
type Pool[J any] struct {
	ctx       context.Context
	sem       chan struct{}
	queueSize int
	handle    func(context.Context, J)

	// sendMu keeps Close from closing a queue while a Submit is sending.
	sendMu  sync.RWMutex
	mu      sync.Mutex
	closed  bool
	workers map[string]chan J
	wg      sync.WaitGroup
}

func NewPool[J any](ctx context.Context, maxConcurrency, queueSize int, handle func(context.Context, J)) *Pool[J] {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Pool[J]{
		ctx:       ctx,
		sem:       make(chan struct{}, maxConcurrency),
		queueSize: queueSize,
		handle:    handle,
		workers:   make(map[string]chan J),
	}
}

func (p *Pool[J]) Submit(ctx context.Context, key string, job J) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	jobs, err := p.workerFor(key)
	if err != nil {
		return err
	}
	return Enqueue(ctx, p.ctx, jobs, job)
}

func (p *Pool[J]) workerFor(key string) (chan J, error) {
	key = strings.TrimSpace(key)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if jobs, ok := p.workers[key]; ok {
		return jobs, nil
	}
	jobs := make(chan J, p.queueSize)
	p.workers[key] = jobs
	p.wg.Add(1)
	Start(StartOptions[J]{
		Ctx:    p.ctx,
		Sem:    p.sem,
		Jobs:   jobs,
		Handle: p.handle,
		Done:   p.wg.Done,
	})
	return jobs, nil
}

// Size reports the number of live per-key workers.
func (p *Pool[J]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Close stops accepting jobs and waits until queued jobs are drained or ctx
// is done.
func (p *Pool[J]) Close(ctx context.Context) error {
	p.sendMu.Lock()
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for _, jobs := range p.workers {
			close(jobs)
		}
	}
	p.mu.Unlock()
	p.sendMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
