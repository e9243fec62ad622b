package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxkimambo/taskflow/internal/logger"
	"golang.org/x/sync/semaphore"
)

// LocalBroker is an in-process Broker. Each named queue is a bounded
// channel drained by the consumers attached to it.
type LocalBroker struct {
	mu          sync.Mutex
	queues      map[string]*LocalQueue
	capacity    int
	concurrency int
	closed      bool
}

// NewLocalBroker creates a broker whose queues hold at most capacity pending
// tasks and run at most concurrency handlers per consumer.
func NewLocalBroker(capacity, concurrency int) *LocalBroker {
	if capacity <= 0 {
		capacity = 1
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &LocalBroker{
		queues:      make(map[string]*LocalQueue),
		capacity:    capacity,
		concurrency: concurrency,
	}
}

// Queue returns the queue called name, creating it on first use.
func (b *LocalBroker) Queue(name string) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrQueueClosed
	}
	if q, ok := b.queues[name]; ok {
		return q, nil
	}

	q := newLocalQueue(name, b.capacity, b.concurrency)
	b.queues[name] = q
	logger.Op.WithFields(map[string]interface{}{
		"queue":       name,
		"capacity":    b.capacity,
		"concurrency": b.concurrency,
	}).Debug("Local queue opened")
	return q, nil
}

// Metrics returns a copy of the metrics of the named queue.
func (b *LocalBroker) Metrics(name string) (QueueMetrics, bool) {
	b.mu.Lock()
	q, ok := b.queues[name]
	b.mu.Unlock()
	if !ok {
		return QueueMetrics{}, false
	}
	return q.GetMetrics(), true
}

// Names returns the names of the opened queues, sorted.
func (b *LocalBroker) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close shuts down every queue and waits for in-flight handlers.
func (b *LocalBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	queues := make([]*LocalQueue, 0, len(b.queues))
	for _, q := range b.queues {
		queues = append(queues, q)
	}
	b.mu.Unlock()

	for _, q := range queues {
		q.Shutdown()
	}
	return nil
}

// LocalQueue is a bounded in-memory queue with a single completion sink.
type LocalQueue struct {
	name        string
	jobs        chan *TaskMessage
	concurrency int
	metrics     *QueueMetrics
	shutdownCh  chan struct{}
	wg          sync.WaitGroup

	mu     sync.RWMutex
	sink   func(*TaskPayload)
	closed bool
}

func newLocalQueue(name string, capacity, concurrency int) *LocalQueue {
	return &LocalQueue{
		name:        name,
		jobs:        make(chan *TaskMessage, capacity),
		concurrency: concurrency,
		metrics:     NewQueueMetrics(),
		shutdownCh:  make(chan struct{}),
	}
}

func (q *LocalQueue) Name() string {
	return q.name
}

// AddTask enqueues msg without blocking. It fails with ErrQueueFull when the
// buffer is exhausted.
func (q *LocalQueue) AddTask(ctx context.Context, msg *TaskMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		atomic.AddInt64(&q.metrics.tasksDropped, 1)
		return ErrQueueClosed
	}

	select {
	case q.jobs <- msg:
		atomic.AddInt64(&q.metrics.tasksEnqueued, 1)
		atomic.AddInt64(&q.metrics.queueSize, 1)
		logger.Op.ForTask(q.name, msg.FlowID, msg.TaskID).Debug("Task enqueued")
		return nil
	default:
		atomic.AddInt64(&q.metrics.tasksDropped, 1)
		return ErrQueueFull
	}
}

// OnCompleted installs the completion sink.
func (q *LocalQueue) OnCompleted(sink func(*TaskPayload)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sink = sink
}

// Consume attaches processor to the queue. Messages are handled concurrently,
// bounded by the queue's concurrency.
func (q *LocalQueue) Consume(processor Processor) (Consumer, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if processor == nil {
		return nil, fmt.Errorf("queue %s: nil processor", q.name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &localConsumer{
		queue:     q,
		processor: processor,
		sem:       semaphore.NewWeighted(int64(q.concurrency)),
		ctx:       ctx,
		cancel:    cancel,
	}

	q.wg.Add(1)
	go c.run()
	logger.Op.ForFlow(q.name, "").Debug("Consumer attached")
	return c, nil
}

// GetMetrics returns a copy of the current queue metrics
func (q *LocalQueue) GetMetrics() QueueMetrics {
	return q.metrics.snapshot()
}

// Size returns the current number of pending tasks
func (q *LocalQueue) Size() int {
	return len(q.jobs)
}

// Shutdown stops all consumers and waits for in-flight handlers to finish.
func (q *LocalQueue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.shutdownCh)
	q.mu.Unlock()

	q.wg.Wait()
	logger.Op.ForFlow(q.name, "").WithField("pending", len(q.jobs)).Debug("Local queue shut down")
}

func (q *LocalQueue) deliver(payload *TaskPayload) {
	q.mu.RLock()
	sink := q.sink
	q.mu.RUnlock()

	if sink == nil {
		atomic.AddInt64(&q.metrics.tasksDropped, 1)
		logger.Op.ForTask(q.name, payload.FlowID, payload.TaskID).Warn("No completion sink installed, dropping completion")
		return
	}
	atomic.AddInt64(&q.metrics.tasksCompleted, 1)
	sink(payload)
}

// requeue puts back a message a stopping consumer took but never handled.
func (q *LocalQueue) requeue(msg *TaskMessage) {
	select {
	case q.jobs <- msg:
		atomic.AddInt64(&q.metrics.queueSize, 1)
	default:
		atomic.AddInt64(&q.metrics.tasksDropped, 1)
		logger.Op.ForTask(q.name, msg.FlowID, msg.TaskID).Warn("Queue full while returning message, dropping task")
	}
}

type localConsumer struct {
	queue     *LocalQueue
	processor Processor
	sem       *semaphore.Weighted
	ctx       context.Context
	cancel    context.CancelFunc
}

func (c *localConsumer) Close() error {
	c.cancel()
	return nil
}

func (c *localConsumer) run() {
	q := c.queue
	defer q.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-q.shutdownCh:
			c.cancel()
			return
		case msg := <-q.jobs:
			atomic.AddInt64(&q.metrics.queueSize, -1)

			if c.ctx.Err() != nil {
				q.requeue(msg)
				return
			}
			if err := c.sem.Acquire(c.ctx, 1); err != nil {
				q.requeue(msg)
				return
			}
			atomic.AddInt64(&q.metrics.tasksDequeued, 1)

			q.wg.Add(1)
			go func(msg *TaskMessage) {
				defer q.wg.Done()
				defer c.sem.Release(1)

				start := time.Now()
				payload := c.processor(c.ctx, msg)
				if payload == nil {
					atomic.AddInt64(&q.metrics.tasksDropped, 1)
					return
				}
				logger.Op.ForTask(q.name, msg.FlowID, msg.TaskID).
					WithField("status", payload.Status).
					WithField("duration", time.Since(start).String()).
					Debug("Task processed")
				q.deliver(payload)
			}(msg)
		}
	}
}
