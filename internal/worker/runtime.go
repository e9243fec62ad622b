// Package worker serves registered tasks from their queues.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/maxkimambo/taskflow/internal/logger"
	"github.com/maxkimambo/taskflow/internal/queue"
	"github.com/maxkimambo/taskflow/internal/task"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrAlreadyStarted is returned by Start and Register once the runtime runs.
	ErrAlreadyStarted = errors.New("worker runtime already started")
	// ErrDuplicateTask is returned when two handlers share a queue name.
	ErrDuplicateTask = errors.New("task already registered")
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithConcurrency bounds the number of handlers running at once across all
// tasks of the runtime. Zero or less means unbounded.
func WithConcurrency(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// Runtime consumes one queue per registered task.
type Runtime struct {
	broker queue.Broker
	sem    *semaphore.Weighted

	mu        sync.Mutex
	names     map[string]struct{}
	handlers  []task.Handler
	startup   []task.Handler
	consumers []queue.Consumer
	started   bool
}

// New creates a runtime that opens its queues on broker.
func New(broker queue.Broker, opts ...Option) *Runtime {
	r := &Runtime{
		broker: broker,
		names:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds normal tasks. They are prepared in registration order.
func (r *Runtime) Register(handlers ...task.Handler) error {
	return r.register(&r.handlers, handlers)
}

// RegisterStartup adds startup tasks. Each is served until it has handled
// one message, before any normal task is prepared.
func (r *Runtime) RegisterStartup(handlers ...task.Handler) error {
	return r.register(&r.startup, handlers)
}

func (r *Runtime) register(dst *[]task.Handler, handlers []task.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}
	for _, h := range handlers {
		if _, ok := r.names[h.Name()]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, h.Name())
		}
		r.names[h.Name()] = struct{}{}
		*dst = append(*dst, h)
	}
	return nil
}

// Tasks returns the names of the normal tasks in registration order.
func (r *Runtime) Tasks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.handlers))
	for _, h := range r.handlers {
		names = append(names, h.Name())
	}
	return names
}

// Start serves the startup tasks until each completed a message, prepares
// the normal tasks one by one and then attaches their consumers.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	startup := append([]task.Handler(nil), r.startup...)
	handlers := append([]task.Handler(nil), r.handlers...)
	r.mu.Unlock()

	if err := r.runStartup(ctx, startup); err != nil {
		return err
	}

	for _, h := range handlers {
		logger.Op.ForFlow(h.Name(), "").Debug("Preparing task")
		if err := h.Prepare(ctx); err != nil {
			return fmt.Errorf("failed to prepare task %s: %w", h.Name(), err)
		}
	}

	for _, h := range handlers {
		c, err := r.consume(h.Name(), r.processor(h))
		if err != nil {
			r.Stop()
			return err
		}
		r.mu.Lock()
		r.consumers = append(r.consumers, c)
		r.mu.Unlock()
	}

	logger.Op.WithFields(map[string]interface{}{
		"tasks":         len(handlers),
		"startup_tasks": len(startup),
	}).Info("Worker runtime started")
	return nil
}

// runStartup blocks until every startup task has handled one message.
func (r *Runtime) runStartup(ctx context.Context, startup []task.Handler) error {
	if len(startup) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	consumers := make([]queue.Consumer, 0, len(startup))
	closeAll := func() {
		for _, c := range consumers {
			_ = c.Close()
		}
	}

	for _, h := range startup {
		name := h.Name()
		proc := r.processor(h)
		handled := make(chan struct{})
		var once sync.Once

		c, err := r.consume(name, func(ctx context.Context, msg *queue.TaskMessage) *queue.TaskPayload {
			payload := proc(ctx, msg)
			once.Do(func() { close(handled) })
			return payload
		})
		if err != nil {
			closeAll()
			return err
		}
		consumers = append(consumers, c)

		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-handled:
				_ = c.Close()
				logger.Op.ForFlow(name, "").Debug("Startup task completed")
			case <-ctx.Done():
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if err := ctx.Err(); err != nil {
			closeAll()
			return err
		}
		return nil
	case <-ctx.Done():
		closeAll()
		return ctx.Err()
	}
}

func (r *Runtime) consume(name string, proc queue.Processor) (queue.Consumer, error) {
	h, err := r.broker.Queue(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue %s: %w", name, err)
	}
	c, err := h.Consume(proc)
	if err != nil {
		return nil, fmt.Errorf("failed to consume queue %s: %w", name, err)
	}
	return c, nil
}

// Stop detaches every consumer. Handlers already running finish normally.
func (r *Runtime) Stop() {
	r.mu.Lock()
	consumers := r.consumers
	r.consumers = nil
	r.mu.Unlock()

	for _, c := range consumers {
		if err := c.Close(); err != nil {
			logger.Op.WithFields(map[string]interface{}{"error": err}).Warn("Failed to close consumer")
		}
	}
}
