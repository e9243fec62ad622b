package flow

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/maxkimambo/taskflow/internal/connection"
	flowerrors "github.com/maxkimambo/taskflow/internal/errors"
	"github.com/maxkimambo/taskflow/internal/logger"
	"github.com/maxkimambo/taskflow/internal/queue"
	"github.com/maxkimambo/taskflow/internal/queue/mocks"
	"github.com/maxkimambo/taskflow/internal/task"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var double = task.New("double", func(_ context.Context, n int) (int, error) {
	return n * 2, nil
})

// sent records the messages submitted to a mock handle.
type sent struct {
	mu   sync.Mutex
	msgs []*queue.TaskMessage
}

func (s *sent) add(args mock.Arguments) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, args.Get(1).(*queue.TaskMessage))
}

func (s *sent) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *sent) get(i int) *queue.TaskMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs[i]
}

func setup(t *testing.T) (*connection.Registry, *mocks.MockHandle, *sent) {
	t.Helper()
	logger.Setup(false, false, false)

	handle := mocks.NewMockHandle(t)
	broker := mocks.NewMockBroker(t)
	broker.On("Queue", "double").Return(handle, nil).Maybe()

	s := &sent{}
	handle.On("AddTask", mock.Anything, mock.Anything).Run(s.add).Return(nil).Maybe()
	return connection.NewRegistry(broker), handle, s
}

// newTestFlow creates a flow that is closed when the test ends.
func newTestFlow(t *testing.T, registry *connection.Registry, id string, state int, opts ...Option) (*Flow[int, int], error) {
	t.Helper()
	f, err := New[int, int](registry, id, state, opts...)
	if err == nil {
		t.Cleanup(f.Close)
	}
	return f, err
}

func await[R any](t *testing.T, fu *Future[R]) (R, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return fu.Await(ctx)
}

func TestNew_DuplicateFlowID(t *testing.T) {
	registry, _, _ := setup(t)

	f, err := newTestFlow(t, registry, "flow-1", 0)
	require.NoError(t, err)

	_, err = newTestFlow(t, registry, "flow-1", 0)
	assert.ErrorIs(t, err, connection.ErrDuplicateFlow)

	f.Close()
	_, err = newTestFlow(t, registry, "flow-1", 0)
	assert.NoError(t, err, "closing a flow releases its id")
}

func TestNew_EmptyFlowID(t *testing.T) {
	registry, _, _ := setup(t)

	_, err := newTestFlow(t, registry, "", 0)
	assert.ErrorIs(t, err, flowerrors.ErrValidation)
}

func TestResolve_OnlyFirstCallCounts(t *testing.T) {
	registry, _, _ := setup(t)

	f, err := newTestFlow(t, registry, "flow-1", 0)
	require.NoError(t, err)

	assert.True(t, f.Resolve(1))
	assert.False(t, f.Resolve(2))
	assert.False(t, f.Reject(errors.New("late")))

	got, err := await(t, f.Future())
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.NoError(t, f.Err())
}

func TestReject_OnlyFirstCallCounts(t *testing.T) {
	registry, _, _ := setup(t)

	f, err := newTestFlow(t, registry, "flow-1", 0)
	require.NoError(t, err)

	first := errors.New("first")
	assert.True(t, f.Reject(first))
	assert.False(t, f.Reject(errors.New("second")))
	assert.False(t, f.Resolve(3))

	_, err = await(t, f.Future())
	assert.Same(t, first, err)
}

func TestWithFlow_SecondCallFails(t *testing.T) {
	registry, _, _ := setup(t)

	f, err := newTestFlow(t, registry, "flow-1", 0)
	require.NoError(t, err)

	_, err = f.WithFlow(func(func(int), func(error)) {})
	require.NoError(t, err)
	_, err = f.WithFlow(func(func(int), func(error)) {})
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	f.Close()
}

func TestPushTask_ContinuationReceivesResultAndInput(t *testing.T) {
	registry, handle, s := setup(t)

	f, err := New[int, string](registry, "flow-1", 0)
	require.NoError(t, err)
	t.Cleanup(f.Close)

	fu, err := f.WithFlow(func(resolve func(string), reject func(error)) {
		err := PushTask(f, double, 21, func(out, in int) {
			*f.State() += out
			resolve(strconv.Itoa(in) + "->" + strconv.Itoa(out))
		})
		if err != nil {
			reject(err)
		}
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.len() == 1 }, time.Second, 5*time.Millisecond)
	msg := s.get(0)
	assert.Equal(t, "double", msg.Name)
	assert.Equal(t, "flow-1", msg.FlowID)
	assert.Equal(t, "21", msg.Payload)
	assert.Equal(t, 1, f.TasksInProgress())

	require.True(t, handle.Complete(queue.SuccessPayload(msg, "42")))

	got, err := await(t, fu)
	require.NoError(t, err)
	assert.Equal(t, "21->42", got)
	assert.Equal(t, 42, *f.State())
	assert.Equal(t, 0, f.TasksInProgress())
	assert.Equal(t, 0, registry.Listeners(), "resolution unregisters the flow")
}

func TestPushTask_TaskIDsAreSequential(t *testing.T) {
	registry, _, s := setup(t)

	f, err := newTestFlow(t, registry, "flow-1", 0)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WithFlow(func(func(int), func(error)) {
		for i := 0; i < 3; i++ {
			_ = PushTask(f, double, i, nil)
		}
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.len() == 3 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 3; i++ {
		assert.Equal(t, uint64(i), s.get(i).TaskID)
	}
	assert.Equal(t, 3, f.TasksInProgress())
}

func TestErrorPayload_RejectsOnlyOwningFlow(t *testing.T) {
	registry, handle, s := setup(t)

	a, err := newTestFlow(t, registry, "flow-a", 0)
	require.NoError(t, err)
	b, err := newTestFlow(t, registry, "flow-b", 0)
	require.NoError(t, err)

	futA, err := a.WithFlow(func(resolve func(int), _ func(error)) {
		_ = PushTask(a, double, 1, func(out, _ int) { resolve(out) })
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.len() == 1 }, time.Second, 5*time.Millisecond)

	futB, err := b.WithFlow(func(resolve func(int), _ func(error)) {
		_ = PushTask(b, double, 2, func(out, _ int) { resolve(out) })
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.len() == 2 }, time.Second, 5*time.Millisecond)

	msgA, msgB := s.get(0), s.get(1)
	require.Equal(t, "flow-a", msgA.FlowID)
	require.Equal(t, msgA.TaskID, msgB.TaskID, "task ids are flow-local")

	handle.Complete(queue.ErrorPayload(msgA, "boom"))
	_, err = await(t, futA)
	require.Error(t, err)
	assert.ErrorIs(t, err, flowerrors.ErrComputation)
	assert.Contains(t, err.Error(), "double")
	assert.Contains(t, err.Error(), "flow-a")
	assert.Contains(t, err.Error(), "boom")

	select {
	case <-futB.Done():
		t.Fatal("sibling flow must not be affected")
	default:
	}

	handle.Complete(queue.SuccessPayload(msgB, "4"))
	got, err := await(t, futB)
	require.NoError(t, err)
	assert.Equal(t, 4, got)
}

func TestUnknownTaskID_IsDroppedAndLogged(t *testing.T) {
	registry, handle, s := setup(t)
	hook := test.NewLocal(logger.GetLogger().GetInternalLogger())

	f, err := newTestFlow(t, registry, "flow-1", 0)
	require.NoError(t, err)
	defer f.Close()

	var calls atomic.Int32
	_, err = f.WithFlow(func(func(int), func(error)) {
		_ = PushTask(f, double, 1, func(int, int) { calls.Add(1) })
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.len() == 1 }, time.Second, 5*time.Millisecond)

	stray := *s.get(0)
	stray.TaskID = 99
	handle.Complete(queue.SuccessPayload(&stray, "2"))

	assert.Equal(t, 1, f.TasksInProgress())
	assert.Equal(t, int32(0), calls.Load())

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["error_category"] == string(flowerrors.ErrorCategoryProtocol) {
			found = true
			assert.Equal(t, uint64(99), e.Data["task_id"])
		}
	}
	assert.True(t, found, "expected a protocol warning")
}

func TestUndecodableResult_RejectsWithSerializationError(t *testing.T) {
	registry, handle, s := setup(t)

	f, err := newTestFlow(t, registry, "flow-1", 0)
	require.NoError(t, err)

	fu, err := f.WithFlow(func(resolve func(int), _ func(error)) {
		_ = PushTask(f, double, 1, func(out, _ int) { resolve(out) })
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.len() == 1 }, time.Second, 5*time.Millisecond)

	handle.Complete(queue.SuccessPayload(s.get(0), "not-a-number"))

	_, err = await(t, fu)
	assert.ErrorIs(t, err, flowerrors.ErrSerialization)
}

func TestUnencodableInput_RejectsWithInputEncodeError(t *testing.T) {
	registry, _, s := setup(t)

	ratio := task.New("ratio", func(_ context.Context, x float64) (float64, error) {
		return x / 2, nil
	})

	f, err := newTestFlow(t, registry, "flow-1", 0)
	require.NoError(t, err)

	err = PushTask(f, ratio, math.NaN(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, &flowerrors.FlowError{Category: flowerrors.ErrorCategorySerialization, Code: flowerrors.CodeEncodeInput})
	assert.Contains(t, err.Error(), `cannot encode input of task "ratio"`)
	assert.ErrorIs(t, f.Err(), flowerrors.ErrSerialization)
	assert.Equal(t, 0, s.len())
}

func TestErroredOutFlow_DiscardsLaterResults(t *testing.T) {
	registry, handle, s := setup(t)

	f, err := newTestFlow(t, registry, "flow-1", 0)
	require.NoError(t, err)

	var calls atomic.Int32
	fu, err := f.WithFlow(func(func(int), func(error)) {
		_ = PushTask(f, double, 1, func(int, int) { calls.Add(1) })
		_ = PushTask(f, double, 2, func(int, int) { calls.Add(1) })
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.len() == 2 }, time.Second, 5*time.Millisecond)

	handle.Complete(queue.ErrorPayload(s.get(0), "boom"))
	_, err = await(t, fu)
	require.Error(t, err)

	handle.Complete(queue.SuccessPayload(s.get(1), "4"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestQueueFull_RetriesWithBackoff(t *testing.T) {
	logger.Setup(false, false, false)

	handle := mocks.NewMockHandle(t)
	broker := mocks.NewMockBroker(t)
	broker.On("Queue", "double").Return(handle, nil).Once()
	handle.On("AddTask", mock.Anything, mock.Anything).Return(queue.ErrQueueFull).Twice()
	handle.On("AddTask", mock.Anything, mock.Anything).Return(nil).Once()

	registry := connection.NewRegistry(broker)
	f, err := newTestFlow(t, registry, "flow-1", 0,
		WithSubmitBackoff(gax.Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}))
	require.NoError(t, err)
	defer f.Close()

	errc := make(chan error, 1)
	_, err = f.WithFlow(func(func(int), func(error)) {
		errc <- PushTask(f, double, 1, nil)
	})
	require.NoError(t, err)

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not complete")
	}
	assert.Equal(t, 1, f.TasksInProgress())
}

func TestSubmitFailure_RejectsFlow(t *testing.T) {
	logger.Setup(false, false, false)

	handle := mocks.NewMockHandle(t)
	broker := mocks.NewMockBroker(t)
	broker.On("Queue", "double").Return(handle, nil).Once()
	handle.On("AddTask", mock.Anything, mock.Anything).Return(queue.ErrQueueClosed).Once()

	f, err := newTestFlow(t, connection.NewRegistry(broker), "flow-1", 0)
	require.NoError(t, err)

	fu, err := f.WithFlow(func(func(int), func(error)) {
		_ = PushTask(f, double, 1, nil)
	})
	require.NoError(t, err)

	_, err = await(t, fu)
	assert.ErrorIs(t, err, flowerrors.ErrQueue)
	assert.ErrorIs(t, err, queue.ErrQueueClosed)
	assert.Equal(t, 0, f.TasksInProgress())
}

func TestPushTask_AfterTermination(t *testing.T) {
	registry, _, _ := setup(t)

	f, err := newTestFlow(t, registry, "flow-1", 0)
	require.NoError(t, err)
	f.Resolve(0)

	err = PushTask(f, double, 1, nil)
	assert.ErrorIs(t, err, ErrFlowTerminated)
}

func TestDeferErrorsTo_ForwardsRejection(t *testing.T) {
	registry, _, _ := setup(t)

	parent, err := newTestFlow(t, registry, "parent", 0)
	require.NoError(t, err)
	child, err := newTestFlow(t, registry, "child", 0)
	require.NoError(t, err)

	child.DeferErrorsTo(parent)
	cause := errors.New("child failed")
	child.Reject(cause)

	_, err = await(t, parent.Future())
	assert.Same(t, cause, err)
}

func TestDeferErrorsTo_AlreadyRejected(t *testing.T) {
	registry, _, _ := setup(t)

	parent, err := newTestFlow(t, registry, "parent", 0)
	require.NoError(t, err)
	child, err := newTestFlow(t, registry, "child", 0)
	require.NoError(t, err)

	cause := errors.New("child failed")
	child.Reject(cause)
	child.DeferErrorsTo(parent)

	_, err = await(t, parent.Future())
	assert.Same(t, cause, err)
}

func TestContinuationPanic_RejectsFlow(t *testing.T) {
	registry, _, _ := setup(t)

	f, err := newTestFlow(t, registry, "flow-1", 0)
	require.NoError(t, err)

	fu, err := f.WithFlow(func(func(int), func(error)) {
		panic("bad continuation")
	})
	require.NoError(t, err)

	_, err = await(t, fu)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad continuation")
}

func TestForEach(t *testing.T) {
	registry, _, _ := setup(t)

	f, err := newTestFlow(t, registry, "flow-1", 0)
	require.NoError(t, err)
	defer f.Close()

	var total atomic.Int64
	err = ForEach(f, []int{1, 2, 3, 4}, func(_ context.Context, n int) error {
		total.Add(int64(n))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), total.Load())

	boom := errors.New("boom")
	err = ForEach(f, []int{1, 2, 3}, func(_ context.Context, n int) error {
		if n == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestNewID(t *testing.T) {
	a, b := NewID("reduce"), NewID("reduce")
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^reduce-[0-9a-f-]{36}$`, a)
	assert.Len(t, NewID(""), 36)
}
