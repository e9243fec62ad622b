// Package demo holds small tasks used by the CLI and by tests.
package demo

import (
	"context"
	"fmt"

	"github.com/maxkimambo/taskflow/internal/task"
)

// Double multiplies its input by two.
func Double() *task.Func[int64, int64] {
	return task.New("double", func(_ context.Context, n int64) (int64, error) {
		return n * 2, nil
	}).WithSerializers(task.Int64(), task.Int64())
}

// Sum adds the two elements of a pair.
func Sum() *task.Func[task.Pair[int64], int64] {
	return task.New("sum", func(_ context.Context, p task.Pair[int64]) (int64, error) {
		return p.First + p.Second, nil
	}).WithSerializers(nil, task.Int64())
}

// Interval is a half-open range [Start, End). Parts counts the unit ranges
// concatenated into it.
type Interval struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
	Parts int   `json:"parts"`
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%d,%d)", iv.Start, iv.End)
}

// Span validates an interval on the worker side.
func Span() *task.Func[Interval, Interval] {
	return task.New("span", func(_ context.Context, iv Interval) (Interval, error) {
		if iv.End < iv.Start {
			return Interval{}, fmt.Errorf("interval %s ends before it starts", iv)
		}
		iv.Parts = 1
		return iv, nil
	})
}

// Concat joins two adjacent intervals. It is not commutative: the first
// interval must end where the second starts.
func Concat() *task.Func[task.Pair[Interval], Interval] {
	return task.New("concat", func(_ context.Context, p task.Pair[Interval]) (Interval, error) {
		if p.First.End != p.Second.Start {
			return Interval{}, fmt.Errorf("intervals %s and %s are not adjacent", p.First, p.Second)
		}
		return Interval{Start: p.First.Start, End: p.Second.End, Parts: p.First.Parts + p.Second.Parts}, nil
	})
}

// Adjacent reports whether a can be followed by b.
func Adjacent(a, b Interval) bool {
	return a.End == b.Start
}

// Intervals turns consecutive bounds into intervals: [b0,b1), [b1,b2), ...
func Intervals(bounds []int64) []Interval {
	if len(bounds) < 2 {
		return nil
	}
	out := make([]Interval, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		out = append(out, Interval{Start: bounds[i], End: bounds[i+1]})
	}
	return out
}

// Handlers returns every demo task ready for a worker runtime.
func Handlers() []task.Handler {
	return []task.Handler{
		task.Erase[int64, int64](Double()),
		task.Erase[task.Pair[int64], int64](Sum()),
		task.Erase[Interval, Interval](Span()),
		task.Erase[task.Pair[Interval], Interval](Concat()),
	}
}
