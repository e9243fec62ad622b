package task

import (
	"context"

	flowerrors "github.com/maxkimambo/taskflow/internal/errors"
)

// Handler is the type-erased view of a Task used by workers, which only
// ever see encoded payloads.
type Handler interface {
	Name() string
	Prepare(ctx context.Context) error
	// Handle decodes payload, computes and encodes the result. Serialization
	// failures are returned as *errors.FlowError; compute errors are
	// returned unchanged.
	Handle(ctx context.Context, payload string) (string, error)
}

type erased[In, Out any] struct {
	task Task[In, Out]
}

// Erase adapts t to a Handler.
func Erase[In, Out any](t Task[In, Out]) Handler {
	return erased[In, Out]{task: t}
}

func (e erased[In, Out]) Name() string {
	return e.task.Name()
}

func (e erased[In, Out]) Prepare(ctx context.Context) error {
	return e.task.Prepare(ctx)
}

func (e erased[In, Out]) Handle(ctx context.Context, payload string) (string, error) {
	input, err := e.task.InputSerializer().Decode(payload)
	if err != nil {
		return "", flowerrors.NewSerializationError(flowerrors.CodeDecodeInput, e.task.Name(), err)
	}

	result, err := e.task.Compute(ctx, input)
	if err != nil {
		return "", err
	}

	encoded, err := e.task.ResultSerializer().Encode(result)
	if err != nil {
		return "", flowerrors.NewSerializationError(flowerrors.CodeEncode, e.task.Name(), err)
	}
	return encoded, nil
}
