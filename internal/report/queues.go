package report

import (
	"strconv"

	"github.com/maxkimambo/taskflow/internal/queue"
)

// MetricsSource is implemented by brokers that keep per-queue metrics.
type MetricsSource interface {
	Names() []string
	Metrics(name string) (queue.QueueMetrics, bool)
}

// QueueTable summarizes the metrics of every queue of src.
func QueueTable(src MetricsSource) *Table {
	t := NewTable("QUEUE", "ENQUEUED", "DEQUEUED", "COMPLETED", "DROPPED", "PENDING")
	for _, name := range src.Names() {
		m, ok := src.Metrics(name)
		if !ok {
			continue
		}
		t.AddRow(name,
			itoa(m.GetTasksEnqueued()),
			itoa(m.GetTasksDequeued()),
			itoa(m.GetTasksCompleted()),
			itoa(m.GetTasksDropped()),
			itoa(m.GetQueueSize()),
		)
	}
	return t
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
