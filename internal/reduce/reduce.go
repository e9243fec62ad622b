// Package reduce implements a map then pairwise-reduce pipeline on top of a
// flow. Inputs are mapped concurrently; any two mapped outputs accepted by
// the mergeability predicate are combined, in whichever order the predicate
// allows, until a single value remains.
package reduce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxkimambo/taskflow/internal/connection"
	flowerrors "github.com/maxkimambo/taskflow/internal/errors"
	"github.com/maxkimambo/taskflow/internal/flow"
	"github.com/maxkimambo/taskflow/internal/logger"
	"github.com/maxkimambo/taskflow/internal/task"
)

// ErrNotStarted is returned by PushInput before Start or Execute.
var ErrNotStarted = errors.New("reduction flow not started")

// Config describes a reduction.
type Config[In, Out any] struct {
	Name string
	// InputLength is the total number of inputs, which may be pushed
	// incrementally.
	InputLength   int
	MappingTask   task.Task[In, Out]
	ReductionTask task.Task[task.Pair[Out], Out]
	// Mergeable reports whether a may be combined with b, a taking the
	// first position. It need not be symmetric.
	Mergeable func(a, b Out) bool
	// StallTimeout rejects a stalled reduction after this long without
	// progress. Zero only logs the stall.
	StallTimeout time.Duration
	FlowOptions  []flow.Option
}

func (c Config[In, Out]) validate() error {
	switch {
	case c.InputLength <= 0:
		return flowerrors.NewValidationError(flowerrors.CodeInvalidConfig, "input length must be positive").
			WithContext("input_length", c.InputLength)
	case c.MappingTask == nil:
		return flowerrors.NewValidationError(flowerrors.CodeInvalidConfig, "mapping task is required")
	case c.ReductionTask == nil:
		return flowerrors.NewValidationError(flowerrors.CodeInvalidConfig, "reduction task is required")
	case c.Mergeable == nil:
		return flowerrors.NewValidationError(flowerrors.CodeInvalidConfig, "mergeable predicate is required")
	case c.StallTimeout < 0:
		return flowerrors.NewValidationError(flowerrors.CodeInvalidConfig, "stall timeout must not be negative")
	}
	return nil
}

// state is only touched on the flow goroutine.
type state[Out any] struct {
	queue   []Out
	merges  int
	stalled bool
	episode int
}

// Flow is a reduction flow.
type Flow[In, Out any] struct {
	cfg  Config[In, Out]
	flow *flow.Flow[state[Out], Out]

	mu      sync.Mutex
	started bool
	pushed  int
	timer   *time.Timer
	merges  atomic.Int64
	submits atomic.Int64
}

// New creates a reduction flow with the given flow id.
func New[In, Out any](registry *connection.Registry, flowID string, cfg Config[In, Out]) (*Flow[In, Out], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	f, err := flow.New[state[Out], Out](registry, flowID, state[Out]{}, cfg.FlowOptions...)
	if err != nil {
		return nil, err
	}
	return &Flow[In, Out]{cfg: cfg, flow: f}, nil
}

// ID returns the flow id.
func (r *Flow[In, Out]) ID() string {
	return r.flow.ID()
}

// Future returns the future of the underlying flow.
func (r *Flow[In, Out]) Future() *flow.Future[Out] {
	return r.flow.Future()
}

// Merges returns the number of completed reductions.
func (r *Flow[In, Out]) Merges() int {
	return int(r.merges.Load())
}

// Reductions returns the number of submitted reductions.
func (r *Flow[In, Out]) Reductions() int {
	return int(r.submits.Load())
}

// Start starts the underlying flow so that inputs can be pushed. It is a
// no-op once started.
func (r *Flow[In, Out]) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if _, err := r.flow.WithFlow(func(func(Out), func(error)) {}); err != nil {
		return err
	}
	r.started = true
	logger.Op.ForFlow(r.cfg.Name, r.flow.ID()).
		WithField("input_length", r.cfg.InputLength).
		Debug("Reduction started")
	return nil
}

// Execute starts the flow, pushes inputs and waits for the result. The
// returned error is always the one the flow terminated with. When ctx ends
// first, the flow is rejected with the context error.
func (r *Flow[In, Out]) Execute(ctx context.Context, inputs []In) (Out, error) {
	var zero Out
	if err := r.Start(); err != nil {
		return zero, err
	}
	for _, in := range inputs {
		if err := r.PushInput(ctx, in); err != nil {
			return r.settle(err)
		}
	}
	out, err := r.flow.Future().Await(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return r.settle(err)
	}
	return out, err
}

// settle rejects the flow with err unless it already terminated, and
// returns the outcome that won.
func (r *Flow[In, Out]) settle(err error) (Out, error) {
	r.flow.Reject(err)
	return r.flow.Future().Await(context.Background())
}

// PushInput maps one more input. At most InputLength inputs are accepted.
func (r *Flow[In, Out]) PushInput(ctx context.Context, input In) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrNotStarted
	}
	if r.pushed >= r.cfg.InputLength {
		r.mu.Unlock()
		return flowerrors.NewValidationError(flowerrors.CodeInvalidInput, "more inputs than the declared input length").
			WithFlow(r.flow.ID()).
			WithContext("input_length", r.cfg.InputLength)
	}
	r.pushed++
	r.mu.Unlock()

	return flow.PushTask(r.flow, r.cfg.MappingTask, input, func(out Out, _ In) {
		r.add(out)
	})
}

// OnCompletion calls cb with the outcome once the flow terminates.
func (r *Flow[In, Out]) OnCompletion(cb func(result Out, err error)) error {
	if cb == nil {
		return flowerrors.NewValidationError(flowerrors.CodeInvalidInput, "completion callback is required")
	}
	fu := r.flow.Future()
	go func() {
		<-fu.Done()
		cb(fu.Await(context.Background()))
	}()
	return nil
}

// DeferErrorsTo forwards the rejection of this reduction to parent.
func (r *Flow[In, Out]) DeferErrorsTo(parent flow.Rejecter) {
	r.flow.DeferErrorsTo(parent)
}

// Reject fails the reduction. It lets a reduction act as the parent of
// another flow.
func (r *Flow[In, Out]) Reject(err error) bool {
	return r.flow.Reject(err)
}

// add runs on the flow goroutine for every mapped or reduced output.
func (r *Flow[In, Out]) add(out Out) {
	st := r.flow.State()
	st.queue = append(st.queue, out)
	r.progress(st)
	r.scan(st)
}

func (r *Flow[In, Out]) reduced(out Out) {
	st := r.flow.State()
	st.merges++
	r.merges.Add(1)
	r.add(out)
}

// progress ends the current stall episode, if any.
func (r *Flow[In, Out]) progress(st *state[Out]) {
	if !st.stalled {
		return
	}
	st.stalled = false
	st.episode++
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()
}

func (r *Flow[In, Out]) scan(st *state[Out]) {
	pairs := r.takePairs(st)
	for _, p := range pairs {
		r.submits.Add(1)
		if err := flow.PushTask(r.flow, r.cfg.ReductionTask, p, func(out Out, _ task.Pair[Out]) {
			r.reduced(out)
		}); err != nil {
			return
		}
	}

	inProgress := r.flow.TasksInProgress()
	remaining := r.cfg.InputLength - st.merges

	if remaining == 1 && len(st.queue) == 1 && inProgress == 0 {
		logger.Op.ForFlow(r.cfg.Name, r.flow.ID()).
			WithField("merges", st.merges).
			Debug("Reduction resolved")
		r.flow.Resolve(st.queue[0])
		return
	}

	if len(pairs) == 0 && inProgress == 0 && len(st.queue) > 1 && len(st.queue) == remaining {
		r.stall(st)
	}
}

// takePairs removes every disjoint mergeable pair from the queue, first
// match first, and returns them in the order the predicate allows.
func (r *Flow[In, Out]) takePairs(st *state[Out]) []task.Pair[Out] {
	var pairs []task.Pair[Out]
	q := st.queue
	for i := 0; i < len(q); i++ {
		for j := i + 1; j < len(q); j++ {
			var p task.Pair[Out]
			switch {
			case r.cfg.Mergeable(q[i], q[j]):
				p = task.Pair[Out]{First: q[i], Second: q[j]}
			case r.cfg.Mergeable(q[j], q[i]):
				p = task.Pair[Out]{First: q[j], Second: q[i]}
			default:
				continue
			}
			pairs = append(pairs, p)
			q = append(q[:j], q[j+1:]...)
			q = append(q[:i], q[i+1:]...)
			i--
			break
		}
	}
	st.queue = q
	return pairs
}

// stall logs once per episode and arms the stall timeout.
func (r *Flow[In, Out]) stall(st *state[Out]) {
	if st.stalled {
		return
	}
	st.stalled = true
	episode := st.episode

	serr := flowerrors.NewStallError(r.flow.ID(), len(st.queue), st.merges, r.cfg.InputLength).
		WithContext("reduction", r.cfg.Name)
	logger.Op.WithFields(serr.ToLogFields()).Warn("Reduction stalled, no two remaining elements are mergeable")

	if r.cfg.StallTimeout <= 0 {
		return
	}
	r.mu.Lock()
	r.timer = time.AfterFunc(r.cfg.StallTimeout, func() {
		r.flow.Run(func() {
			cur := r.flow.State()
			if !cur.stalled || cur.episode != episode {
				return
			}
			serr.Code = flowerrors.CodeStallTimeout
			serr.WithContext("stall_timeout", r.cfg.StallTimeout.String())
			r.flow.Reject(serr)
		})
	})
	r.mu.Unlock()
}
