// Package worker runs background jobs such as player handoffs on a bounded
// set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/liuran001/sonatica-go/sonatica"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Pool provides bounded concurrency execution.
type Pool struct {
	tasks    chan func()
	wg       sync.WaitGroup
	shutdown chan struct{}
	mu       sync.Mutex
	closed   bool
	size     int
	logger   sonatica.Logger
}

// New creates a worker pool with the given size. A panicking task is
// recovered and logged; the worker keeps running.
func New(size int, logger sonatica.Logger) *Pool {
	if size <= 0 {
		size = 1
	}

	queueSize := size * 8
	if queueSize < 8 {
		queueSize = 8
	}

	p := &Pool{
		tasks:    make(chan func(), queueSize),
		shutdown: make(chan struct{}),
		size:     size,
		logger:   logger,
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.run()
	}

	return p
}

// run executes tasks until shutdown, then drains what is already queued.
// The task channel is never closed so a racing Submit cannot panic.
func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			p.exec(task)
		case <-p.shutdown:
			for {
				select {
				case task := <-p.tasks:
					p.exec(task)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) exec(task func()) {
	if task == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && p.logger != nil {
			p.logger.Error("worker task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task()
}

// Submit enqueues a task for execution.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.mu.Unlock()

	select {
	case <-p.shutdown:
		return ErrPoolClosed
	case p.tasks <- task:
		return nil
	}
}

// SubmitWait enqueues a task and waits for it to complete.
func (p *Pool) SubmitWait(task func() error) error {
	return p.SubmitWaitContext(context.Background(), task)
}

// SubmitWaitContext enqueues a task and waits for it or for ctx. The task
// keeps running if ctx ends first.
func (p *Pool) SubmitWaitContext(ctx context.Context, task func() error) error {
	if task == nil {
		return nil
	}

	result := make(chan error, 1)
	err := p.Submit(func() {
		var taskErr error
		defer func() {
			if r := recover(); r != nil {
				taskErr = fmt.Errorf("worker task panicked: %v", r)
			}
			result <- taskErr
		}()
		taskErr = task()
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// Shutdown waits for in-flight tasks until context is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// StopNow closes the pool without waiting for queued tasks to finish.
func (p *Pool) StopNow() {
	p.close()
}

func (p *Pool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.shutdown)
	}
}

// Size returns the worker count.
func (p *Pool) Size() int {
	return p.size
}
