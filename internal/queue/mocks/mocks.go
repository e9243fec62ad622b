// Package mocks provides testify mocks of the queue contract.
package mocks

import (
	"context"
	"sync"

	"github.com/maxkimambo/taskflow/internal/queue"
	"github.com/stretchr/testify/mock"
)

// MockBroker is a mock of queue.Broker
type MockBroker struct {
	mock.Mock
}

// NewMockBroker creates a MockBroker whose expectations are asserted when t finishes.
func NewMockBroker(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockBroker {
	m := &MockBroker{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockBroker) Queue(name string) (queue.Handle, error) {
	args := m.Called(name)
	h, _ := args.Get(0).(queue.Handle)
	return h, args.Error(1)
}

func (m *MockBroker) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockHandle is a mock of queue.Handle. OnCompleted is not an expectation:
// it records the sink so tests can push completions with Complete.
type MockHandle struct {
	mock.Mock

	mu   sync.Mutex
	sink func(*queue.TaskPayload)
}

// NewMockHandle creates a MockHandle whose expectations are asserted when t finishes.
func NewMockHandle(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockHandle {
	m := &MockHandle{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockHandle) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockHandle) AddTask(ctx context.Context, msg *queue.TaskMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockHandle) OnCompleted(sink func(*queue.TaskPayload)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

func (m *MockHandle) Consume(processor queue.Processor) (queue.Consumer, error) {
	args := m.Called(processor)
	c, _ := args.Get(0).(queue.Consumer)
	return c, args.Error(1)
}

// Complete delivers payload to the installed sink. It reports false when no
// sink is installed.
func (m *MockHandle) Complete(payload *queue.TaskPayload) bool {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if sink == nil {
		return false
	}
	sink(payload)
	return true
}
