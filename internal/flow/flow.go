// Package flow coordinates a dynamic graph of remote tasks. A Flow owns a
// state value, submits tasks to queues and runs a continuation for every
// result, until the flow is resolved or rejected.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/maxkimambo/taskflow/internal/connection"
	flowerrors "github.com/maxkimambo/taskflow/internal/errors"
	"github.com/maxkimambo/taskflow/internal/logger"
	"github.com/maxkimambo/taskflow/internal/queue"
)

var (
	// ErrAlreadyStarted is returned by a second call to WithFlow.
	ErrAlreadyStarted = errors.New("flow already started")
	// ErrFlowTerminated is returned when submitting to a resolved or rejected flow.
	ErrFlowTerminated = errors.New("flow already terminated")
)

// Rejecter receives errors forwarded by DeferErrorsTo.
type Rejecter interface {
	Reject(err error) bool
}

// completion is run on the mailbox for a payload whose task id was pending.
type completion func(payload *queue.TaskPayload)

// Flow coordinates the tasks of one flow id. S is the state shared by the
// continuations, R is the value the flow resolves with.
//
// All continuations and the executor run on a single goroutine owned by the
// flow, so they may read and write State without locking.
type Flow[S, R any] struct {
	id       string
	registry *connection.Registry
	settings settings

	ctx    context.Context
	cancel context.CancelFunc
	box    *mailbox
	future *Future[R]

	state S

	mu         sync.Mutex
	pending    map[uint64]completion
	listening  map[string]struct{}
	nextTaskID uint64
	inProgress int
	started    bool
	terminal   bool
	erroredOut bool
	failure    error
	closed     bool
	parents    []Rejecter
}

// New creates a flow with the given id and initial state. The id must not be
// in use by another live flow on the same registry.
func New[S, R any](registry *connection.Registry, flowID string, initial S, opts ...Option) (*Flow[S, R], error) {
	if flowID == "" {
		return nil, flowerrors.NewValidationError(flowerrors.CodeInvalidInput, "flow id must not be empty")
	}
	s := settings{ctx: context.Background(), backoff: DefaultSubmitBackoff}
	for _, opt := range opts {
		opt(&s)
	}
	if err := registry.Claim(flowID); err != nil {
		return nil, err
	}

	f := &Flow[S, R]{
		id:        flowID,
		registry:  registry,
		settings:  s,
		future:    newFuture[R](),
		state:     initial,
		pending:   make(map[uint64]completion),
		listening: make(map[string]struct{}),
	}
	f.ctx, f.cancel = context.WithCancel(s.ctx)
	f.box = newMailbox(func(err error) {
		f.Reject(fmt.Errorf("flow %s: %w", f.id, err))
	})
	return f, nil
}

// ID returns the flow id.
func (f *Flow[S, R]) ID() string {
	return f.id
}

// State returns the flow state. It must only be touched from the executor
// and continuations.
func (f *Flow[S, R]) State() *S {
	return &f.state
}

// Context is canceled when the flow closes.
func (f *Flow[S, R]) Context() context.Context {
	return f.ctx
}

// TasksInProgress returns the number of submitted tasks whose continuation
// has not yet run.
func (f *Flow[S, R]) TasksInProgress() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inProgress
}

// Err returns the rejection error, or nil.
func (f *Flow[S, R]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failure
}

// Future returns the future completed by Resolve or Reject.
func (f *Flow[S, R]) Future() *Future[R] {
	return f.future
}

// WithFlow starts the flow. The executor runs on the flow goroutine and
// receives the resolve and reject functions of the flow.
func (f *Flow[S, R]) WithFlow(executor func(resolve func(R), reject func(error))) (*Future[R], error) {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFlowTerminated
	}
	f.started = true
	f.mu.Unlock()

	f.box.start()
	f.box.post(func() {
		executor(func(r R) { f.Resolve(r) }, func(err error) { f.Reject(err) })
	})
	return f.future, nil
}

// Run posts fn to the flow goroutine. It returns false if the flow is closed.
func (f *Flow[S, R]) Run(fn func()) bool {
	return f.box.post(fn)
}

// Resolve completes the flow with result. Only the first terminal call has
// an effect; later calls return false.
func (f *Flow[S, R]) Resolve(result R) bool {
	f.mu.Lock()
	if f.terminal {
		f.mu.Unlock()
		logger.Op.ForFlow("", f.id).Debug("Ignoring resolve of terminated flow")
		return false
	}
	f.terminal = true
	f.mu.Unlock()

	f.Close()
	f.future.complete(result, nil)
	logger.Op.ForFlow("", f.id).Debug("Flow resolved")
	return true
}

// Reject completes the flow with err and forwards it to every parent set
// through DeferErrorsTo. Results arriving afterwards are discarded.
func (f *Flow[S, R]) Reject(err error) bool {
	f.mu.Lock()
	if f.terminal {
		f.mu.Unlock()
		logger.Op.ForFlow("", f.id).WithField("error", err).Debug("Ignoring reject of terminated flow")
		return false
	}
	f.terminal = true
	f.erroredOut = true
	f.failure = err
	parents := append([]Rejecter(nil), f.parents...)
	f.mu.Unlock()

	f.Close()
	var zero R
	f.future.complete(zero, err)

	entry := logger.Op.ForFlow("", f.id)
	var ferr *flowerrors.FlowError
	if errors.As(err, &ferr) {
		entry = entry.WithFields(ferr.ToLogFields())
	}
	entry.WithField("error", err).Debug("Flow rejected")

	for _, p := range parents {
		p.Reject(err)
	}
	return true
}

// DeferErrorsTo forwards the rejection of this flow to parent.
func (f *Flow[S, R]) DeferErrorsTo(parent Rejecter) {
	f.mu.Lock()
	if f.erroredOut {
		err := f.failure
		f.mu.Unlock()
		parent.Reject(err)
		return
	}
	f.parents = append(f.parents, parent)
	f.mu.Unlock()
}

// Close unregisters the flow listeners, releases the flow id and stops the
// flow goroutine. It does not complete the future. Close is idempotent.
func (f *Flow[S, R]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.pending = make(map[uint64]completion)
	f.mu.Unlock()

	removed := f.registry.UnlistenFlow(f.id)
	f.registry.Release(f.id)
	f.cancel()
	f.box.stop()
	logger.Op.ForFlow("", f.id).WithField("listeners", removed).Debug("Flow closed")
}

// listen registers the flow listener on queueName once and returns the
// shared handle.
func (f *Flow[S, R]) listen(queueName string) (queue.Handle, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFlowTerminated
	}
	_, ok := f.listening[queueName]
	f.mu.Unlock()
	if ok {
		return f.registry.Open(queueName)
	}

	h, err := f.registry.Listen(queueName, f.id, f.receive)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.listening[queueName] = struct{}{}
	f.mu.Unlock()
	return h, nil
}

// receive runs on the queue sink goroutine.
func (f *Flow[S, R]) receive(payload *queue.TaskPayload) {
	f.mu.Lock()
	closed := f.closed
	done, ok := f.pending[payload.TaskID]
	if ok {
		delete(f.pending, payload.TaskID)
	}
	f.mu.Unlock()

	if closed {
		logger.Op.ForTask(payload.Name, f.id, payload.TaskID).Debug("Discarding completion of closed flow")
		return
	}
	if !ok {
		perr := flowerrors.NewProtocolError(flowerrors.CodeUnknownTask, payload.Name, f.id, payload.TaskID)
		logger.Op.WithFields(perr.ToLogFields()).Warn("Dropping completion for unknown task")
		return
	}

	f.box.post(func() {
		f.mu.Lock()
		f.inProgress--
		discard := f.terminal
		f.mu.Unlock()
		if discard {
			logger.Op.ForTask(payload.Name, f.id, payload.TaskID).Debug("Discarding completion of terminated flow")
			return
		}
		done(payload)
	})
}

func (f *Flow[S, R]) track(done completion) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminal || f.closed {
		return 0, ErrFlowTerminated
	}
	id := f.nextTaskID
	f.nextTaskID++
	f.pending[id] = done
	f.inProgress++
	return id, nil
}

func (f *Flow[S, R]) untrack(taskID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[taskID]; ok {
		delete(f.pending, taskID)
		f.inProgress--
	}
}
