package task

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull  = errors.New("task queue is full")
	ErrPoolClosed = errors.New("worker pool is closed")
)

type Task interface {
	Do()
}

// Func adapts a plain function to Task.
type Func func()

func (f Func) Do() { f() }

type Stats struct {
	Workers int
	Active  int64
	Queued  int
}

// Pool runs tasks on a fixed number of workers fed by a bounded queue.
// Submit never blocks: when the queue is full the task is rejected with ErrQueueFull.
type Pool struct {
	taskC   chan Task
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	active  atomic.Int64
	workers int
}

func NewPool(workers, queueSize int) *Pool {
	p := &Pool{
		taskC:   make(chan Task, queueSize),
		workers: workers,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go (&worker{id: i, pool: p}).run()
	}
	return p
}

func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.taskC <- task:
		return nil
	default:
		return fmt.Errorf("%d tasks are waiting: %w", len(p.taskC), ErrQueueFull)
	}
}

// Shutdown stops accepting tasks and waits until queued and running tasks are done.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.taskC)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers: p.workers,
		Active:  p.active.Load(),
		Queued:  len(p.taskC),
	}
}

type worker struct {
	pool *Pool
	id   int
}

func (w *worker) run() {
	defer w.pool.wg.Done()
	for task := range w.pool.taskC {
		w.do(task)
	}
}

func (w *worker) do(task Task) {
	w.pool.active.Add(1)
	defer w.pool.active.Add(-1)
	// One crashed task must not take the worker down with it.
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Int("worker_id", w.id).Interface("panic", rec).Bytes("stack", debug.Stack()).
				Msg("task panicked")
		}
	}()
	task.Do()
}
