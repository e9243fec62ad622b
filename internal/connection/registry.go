// Package connection multiplexes the single completion sink of each queue
// onto the many flows that submit work to it.
package connection

import (
	"errors"
	"fmt"
	"sync"

	flowerrors "github.com/maxkimambo/taskflow/internal/errors"
	"github.com/maxkimambo/taskflow/internal/logger"
	"github.com/maxkimambo/taskflow/internal/queue"
)

// ErrDuplicateFlow is returned by Claim when a live flow already uses the id.
var ErrDuplicateFlow = errors.New("flow id already in use")

// Listener receives the completions of one flow on one queue.
type Listener func(payload *queue.TaskPayload)

type listenerKey struct {
	Queue  string
	FlowID string
}

// Registry opens one handle per queue name, shared by every flow, and routes
// each completion to the listener registered for its (queue, flow) pair.
type Registry struct {
	broker queue.Broker

	mu        sync.RWMutex
	queues    map[string]queue.Handle
	listeners map[listenerKey]Listener
	flows     map[string]struct{}
}

// NewRegistry creates a registry on top of broker.
func NewRegistry(broker queue.Broker) *Registry {
	return &Registry{
		broker:    broker,
		queues:    make(map[string]queue.Handle),
		listeners: make(map[listenerKey]Listener),
		flows:     make(map[string]struct{}),
	}
}

// Open returns the handle for name, opening it and installing the routing
// sink on first use.
func (r *Registry) Open(name string) (queue.Handle, error) {
	r.mu.RLock()
	h, ok := r.queues[name]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.queues[name]; ok {
		return h, nil
	}

	h, err := r.broker.Queue(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue %s: %w", name, err)
	}
	h.OnCompleted(func(payload *queue.TaskPayload) {
		r.route(name, payload)
	})
	r.queues[name] = h

	logger.Op.ForFlow(name, "").Debug("Queue connection opened")
	return h, nil
}

// Listen registers fn for completions of flowID on queueName and returns the
// queue handle. A second registration for the same pair replaces the first.
func (r *Registry) Listen(queueName, flowID string, fn Listener) (queue.Handle, error) {
	h, err := r.Open(queueName)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.listeners[listenerKey{Queue: queueName, FlowID: flowID}] = fn
	r.mu.Unlock()

	logger.Op.ForFlow(queueName, flowID).Debug("Listener registered")
	return h, nil
}

// Unlisten removes the listener of flowID on queueName, if any.
func (r *Registry) Unlisten(queueName, flowID string) {
	r.mu.Lock()
	delete(r.listeners, listenerKey{Queue: queueName, FlowID: flowID})
	r.mu.Unlock()
}

// UnlistenFlow removes every listener registered by flowID and returns how
// many were removed.
func (r *Registry) UnlistenFlow(flowID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key := range r.listeners {
		if key.FlowID == flowID {
			delete(r.listeners, key)
			removed++
		}
	}
	return removed
}

// Claim reserves flowID for a live flow. Flow ids must be unique among live
// flows; the creator of a flow is responsible for choosing them.
func (r *Registry) Claim(flowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.flows[flowID]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateFlow, flowID)
	}
	r.flows[flowID] = struct{}{}
	return nil
}

// Release frees flowID for reuse.
func (r *Registry) Release(flowID string) {
	r.mu.Lock()
	delete(r.flows, flowID)
	r.mu.Unlock()
}

// Listeners returns the number of registered listeners.
func (r *Registry) Listeners() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

func (r *Registry) route(queueName string, payload *queue.TaskPayload) {
	r.mu.RLock()
	fn, ok := r.listeners[listenerKey{Queue: queueName, FlowID: payload.FlowID}]
	r.mu.RUnlock()

	if !ok {
		perr := flowerrors.NewProtocolError(flowerrors.CodeUnknownListener, queueName, payload.FlowID, payload.TaskID)
		logger.Op.WithFields(perr.ToLogFields()).Warn("Dropping completion for unknown flow")
		return
	}
	fn(payload)
}
