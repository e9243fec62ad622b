package worker

import (
	"context"
	"fmt"

	flowerrors "github.com/maxkimambo/taskflow/internal/errors"
	"github.com/maxkimambo/taskflow/internal/logger"
	"github.com/maxkimambo/taskflow/internal/queue"
	"github.com/maxkimambo/taskflow/internal/task"
)

// processor turns h into a queue processor. Every failure, panics included,
// is reported back as an error payload naming the task, flow and task id.
func (r *Runtime) processor(h task.Handler) queue.Processor {
	name := h.Name()
	return func(ctx context.Context, msg *queue.TaskMessage) (payload *queue.TaskPayload) {
		entry := logger.Op.ForTask(name, msg.FlowID, msg.TaskID)

		if r.sem != nil {
			if err := r.sem.Acquire(ctx, 1); err != nil {
				return failure(msg, flowerrors.NewComputationError(name, msg.FlowID, msg.TaskID, err))
			}
			defer r.sem.Release(1)
		}

		defer func() {
			if rec := recover(); rec != nil {
				ferr := flowerrors.NewFlowError(flowerrors.ErrorCategoryComputation, flowerrors.CodeComputePanic,
					fmt.Sprintf("task %q panicked", name)).
					WithTask(name, msg.FlowID, msg.TaskID).
					WithContext("panic", fmt.Sprint(rec))
				entry.WithFields(ferr.ToLogFields()).Error("Task panicked")
				payload = failure(msg, ferr)
			}
		}()

		result, err := h.Handle(ctx, msg.Payload)
		if err != nil {
			ferr, ok := err.(*flowerrors.FlowError)
			if ok {
				ferr = ferr.WithTask(name, msg.FlowID, msg.TaskID)
			} else {
				ferr = flowerrors.NewComputationError(name, msg.FlowID, msg.TaskID, err)
			}
			entry.WithFields(ferr.ToLogFields()).Warn("Task failed")
			return failure(msg, ferr)
		}
		return queue.SuccessPayload(msg, result)
	}
}

func failure(msg *queue.TaskMessage, err error) *queue.TaskPayload {
	return queue.ErrorPayload(msg, err.Error())
}
