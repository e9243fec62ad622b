// Package task defines the unit of work dispatched through queues: a name,
// a one-time Prepare step, a pure Compute function and the serializers used
// to move its input and result across the wire.
package task

import "context"

// Task is a named, serializable unit of work. Implementations must be
// immutable once registered with a worker runtime.
type Task[In, Out any] interface {
	// Name identifies the task and names the queue it is dispatched on
	Name() string

	// Prepare runs once per process before any Compute call
	Prepare(ctx context.Context) error

	// Compute produces the result for input. It runs on workers only and
	// must have no observable side effects beyond its return values.
	Compute(ctx context.Context, input In) (Out, error)

	InputSerializer() Serializer[In]
	ResultSerializer() Serializer[Out]
}

// ComputeFunc is the function signature for a task's compute logic.
type ComputeFunc[In, Out any] func(ctx context.Context, input In) (Out, error)

// Func is a Task built from plain functions. Serializers default to JSON.
type Func[In, Out any] struct {
	name    string
	compute ComputeFunc[In, Out]
	prepare func(ctx context.Context) error
	input   Serializer[In]
	result  Serializer[Out]
}

// New creates a task named name that runs compute.
func New[In, Out any](name string, compute ComputeFunc[In, Out]) *Func[In, Out] {
	return &Func[In, Out]{
		name:    name,
		compute: compute,
		input:   JSON[In](),
		result:  JSON[Out](),
	}
}

// WithPrepare sets the one-time setup hook.
func (t *Func[In, Out]) WithPrepare(prepare func(ctx context.Context) error) *Func[In, Out] {
	t.prepare = prepare
	return t
}

// WithSerializers replaces the default JSON serializers. A nil argument keeps the current one.
func (t *Func[In, Out]) WithSerializers(input Serializer[In], result Serializer[Out]) *Func[In, Out] {
	if input != nil {
		t.input = input
	}
	if result != nil {
		t.result = result
	}
	return t
}

func (t *Func[In, Out]) Name() string {
	return t.name
}

func (t *Func[In, Out]) Prepare(ctx context.Context) error {
	if t.prepare == nil {
		return nil
	}
	return t.prepare(ctx)
}

func (t *Func[In, Out]) Compute(ctx context.Context, input In) (Out, error) {
	return t.compute(ctx, input)
}

func (t *Func[In, Out]) InputSerializer() Serializer[In] {
	return t.input
}

func (t *Func[In, Out]) ResultSerializer() Serializer[Out] {
	return t.result
}

// Pair is the input of a reduction task: First and Second keep the
// positional order chosen by the mergeability predicate.
type Pair[T any] struct {
	First  T `json:"first"`
	Second T `json:"second"`
}
