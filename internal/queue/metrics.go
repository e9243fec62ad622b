package queue

import "sync/atomic"

// QueueMetrics tracks metrics for a queue
type QueueMetrics struct {
	tasksEnqueued  int64
	tasksDequeued  int64
	tasksCompleted int64
	tasksDropped   int64
	queueSize      int64
}

// NewQueueMetrics creates a new QueueMetrics instance
func NewQueueMetrics() *QueueMetrics {
	return &QueueMetrics{}
}

// GetTasksEnqueued returns the number of tasks accepted by AddTask
func (m *QueueMetrics) GetTasksEnqueued() int64 {
	return atomic.LoadInt64(&m.tasksEnqueued)
}

// GetTasksDequeued returns the number of tasks handed to a consumer
func (m *QueueMetrics) GetTasksDequeued() int64 {
	return atomic.LoadInt64(&m.tasksDequeued)
}

// GetTasksCompleted returns the number of completions delivered to the sink
func (m *QueueMetrics) GetTasksCompleted() int64 {
	return atomic.LoadInt64(&m.tasksCompleted)
}

// GetTasksDropped returns the number of rejected tasks and undeliverable completions
func (m *QueueMetrics) GetTasksDropped() int64 {
	return atomic.LoadInt64(&m.tasksDropped)
}

// GetQueueSize returns the current queue size
func (m *QueueMetrics) GetQueueSize() int64 {
	return atomic.LoadInt64(&m.queueSize)
}

func (m *QueueMetrics) snapshot() QueueMetrics {
	return QueueMetrics{
		tasksEnqueued:  m.GetTasksEnqueued(),
		tasksDequeued:  m.GetTasksDequeued(),
		tasksCompleted: m.GetTasksCompleted(),
		tasksDropped:   m.GetTasksDropped(),
		queueSize:      m.GetQueueSize(),
	}
}
