package flow

import (
	"errors"

	"github.com/googleapis/gax-go/v2"
	flowerrors "github.com/maxkimambo/taskflow/internal/errors"
	"github.com/maxkimambo/taskflow/internal/logger"
	"github.com/maxkimambo/taskflow/internal/queue"
	"github.com/maxkimambo/taskflow/internal/task"
)

// PushTask submits input to the queue named after t. When the result
// arrives, onComplete runs on the flow goroutine with the decoded result and
// the original input. A failed task, an undecodable result or a submission
// failure rejects the flow instead.
func PushTask[S, R, In, Out any](f *Flow[S, R], t task.Task[In, Out], input In, onComplete func(result Out, input In)) error {
	name := t.Name()

	payload, err := t.InputSerializer().Encode(input)
	if err != nil {
		serr := flowerrors.NewSerializationError(flowerrors.CodeEncodeInput, name, err).WithFlow(f.id)
		f.Reject(serr)
		return serr
	}

	handle, err := f.listen(name)
	if err != nil {
		if errors.Is(err, ErrFlowTerminated) {
			return err
		}
		qerr := flowerrors.NewQueueError(flowerrors.CodeSubmitFailed, name, err).WithFlow(f.id)
		f.Reject(qerr)
		return qerr
	}

	taskID, err := f.track(func(p *queue.TaskPayload) {
		if p.Status == queue.StatusError {
			f.Reject(flowerrors.NewRemoteFailureError(name, f.id, p.TaskID, p.Payload))
			return
		}
		out, err := t.ResultSerializer().Decode(p.Payload)
		if err != nil {
			f.Reject(flowerrors.NewSerializationError(flowerrors.CodeDecodeResult, name, err).WithTask(name, f.id, p.TaskID))
			return
		}
		if onComplete != nil {
			onComplete(out, input)
		}
	})
	if err != nil {
		return err
	}

	msg := &queue.TaskMessage{Name: name, TaskID: taskID, FlowID: f.id, Payload: payload}
	if err := f.submit(handle, msg); err != nil {
		f.untrack(taskID)
		code := flowerrors.CodeSubmitFailed
		if errors.Is(err, queue.ErrQueueClosed) {
			code = flowerrors.CodeQueueClosed
		}
		qerr := flowerrors.NewQueueError(code, name, err).WithTask(name, f.id, taskID)
		f.Reject(qerr)
		return qerr
	}

	logger.Op.ForTask(name, f.id, taskID).Debug("Task submitted")
	return nil
}

// submit retries AddTask while the queue is full, pausing according to the
// flow backoff, until the flow context is done.
func (f *Flow[S, R]) submit(h queue.Handle, msg *queue.TaskMessage) error {
	bo := f.settings.backoff
	for {
		err := h.AddTask(f.ctx, msg)
		if !errors.Is(err, queue.ErrQueueFull) {
			return err
		}
		pause := bo.Pause()
		logger.Op.ForTask(msg.Name, msg.FlowID, msg.TaskID).
			WithField("pause", pause.String()).
			Debug("Queue full, retrying submission")
		if err := gax.Sleep(f.ctx, pause); err != nil {
			return errors.Join(queue.ErrQueueFull, err)
		}
	}
}
