package demo

import (
	"context"
	"testing"

	"github.com/maxkimambo/taskflow/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoubleAndSum(t *testing.T) {
	ctx := context.Background()

	out, err := Double().Compute(ctx, 21)
	require.NoError(t, err)
	assert.Equal(t, int64(42), out)

	out, err = Sum().Compute(ctx, task.Pair[int64]{First: 2, Second: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(6), out)
}

func TestSum_HandlesWirePayloads(t *testing.T) {
	h := task.Erase[task.Pair[int64], int64](Sum())

	got, err := h.Handle(context.Background(), `{"first":6,"second":14}`)
	require.NoError(t, err)
	n, err := task.Int64().Decode(got)
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)
}

func TestConcat(t *testing.T) {
	ctx := context.Background()
	a := Interval{Start: 0, End: 3, Parts: 1}
	b := Interval{Start: 3, End: 5, Parts: 2}

	got, err := Concat().Compute(ctx, task.Pair[Interval]{First: a, Second: b})
	require.NoError(t, err)
	assert.Equal(t, Interval{Start: 0, End: 5, Parts: 3}, got)

	_, err = Concat().Compute(ctx, task.Pair[Interval]{First: b, Second: a})
	assert.ErrorContains(t, err, "not adjacent")

	assert.True(t, Adjacent(a, b))
	assert.False(t, Adjacent(b, a))
}

func TestSpan(t *testing.T) {
	got, err := Span().Compute(context.Background(), Interval{Start: 1, End: 4})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Parts)

	_, err = Span().Compute(context.Background(), Interval{Start: 4, End: 1})
	assert.ErrorContains(t, err, "[4,1)")
}

func TestIntervals(t *testing.T) {
	assert.Nil(t, Intervals([]int64{1}))
	assert.Equal(t, []Interval{{Start: 0, End: 2}, {Start: 2, End: 7}}, Intervals([]int64{0, 2, 7}))
}

func TestHandlers(t *testing.T) {
	var names []string
	for _, h := range Handlers() {
		names = append(names, h.Name())
	}
	assert.Equal(t, []string{"double", "sum", "span", "concat"}, names)
}
