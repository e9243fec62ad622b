package queue

import (
	"context"
	"errors"
)

var (
	// ErrQueueFull is returned by AddTask when the queue cannot accept more work right now
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned once a queue or broker has been shut down
	ErrQueueClosed = errors.New("queue is closed")
)

// Status is the outcome reported in a TaskPayload
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// TaskMessage is the unit of work submitted to a queue.
type TaskMessage struct {
	Name    string `json:"name"`
	TaskID  uint64 `json:"taskId"`
	FlowID  string `json:"flowId"`
	Payload string `json:"payload"`
}

// TaskPayload is the completion a worker emits for a TaskMessage. Payload
// holds the encoded result on success and the error message otherwise.
type TaskPayload struct {
	Status  Status `json:"status"`
	TaskID  uint64 `json:"taskId"`
	FlowID  string `json:"flowId"`
	Name    string `json:"name"`
	Payload string `json:"payload"`
}

// SuccessPayload builds the completion for msg carrying result.
func SuccessPayload(msg *TaskMessage, result string) *TaskPayload {
	return &TaskPayload{
		Status:  StatusSuccess,
		TaskID:  msg.TaskID,
		FlowID:  msg.FlowID,
		Name:    msg.Name,
		Payload: result,
	}
}

// ErrorPayload builds the failed completion for msg.
func ErrorPayload(msg *TaskMessage, message string) *TaskPayload {
	return &TaskPayload{
		Status:  StatusError,
		TaskID:  msg.TaskID,
		FlowID:  msg.FlowID,
		Name:    msg.Name,
		Payload: message,
	}
}

// Processor handles one message on the worker side and returns its completion.
type Processor func(ctx context.Context, msg *TaskMessage) *TaskPayload

// Consumer is a running subscription of a Processor to a queue.
type Consumer interface {
	// Close stops taking new messages. It does not wait for in-flight ones
	// and is safe to call from inside the processor.
	Close() error
}

// Handle is an open connection to one named queue.
type Handle interface {
	Name() string
	AddTask(ctx context.Context, msg *TaskMessage) error
	// OnCompleted installs the single completion sink for this handle,
	// replacing any previous one.
	OnCompleted(sink func(*TaskPayload))
	Consume(processor Processor) (Consumer, error)
}

// Broker opens named queues.
type Broker interface {
	Queue(name string) (Handle, error)
	Close() error
}
