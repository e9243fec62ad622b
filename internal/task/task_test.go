package task

import (
	"context"
	"errors"
	"math"
	"testing"

	flowerrors "github.com/maxkimambo/taskflow/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func TestJSONRoundTrip(t *testing.T) {
	t.Run("int", func(t *testing.T) {
		s := JSON[int]()
		for _, v := range []int{0, -1, 42, math.MaxInt32} {
			enc, err := s.Encode(v)
			require.NoError(t, err)
			dec, err := s.Decode(enc)
			require.NoError(t, err)
			assert.Equal(t, v, dec)
		}
	})

	t.Run("pair of structs", func(t *testing.T) {
		s := JSON[Pair[interval]]()
		v := Pair[interval]{First: interval{0, 2}, Second: interval{2, 5}}
		enc, err := s.Encode(v)
		require.NoError(t, err)
		assert.JSONEq(t, `{"first":{"start":0,"end":2},"second":{"start":2,"end":5}}`, enc)
		dec, err := s.Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, v, dec)
	})

	t.Run("decode failure", func(t *testing.T) {
		_, err := JSON[int]().Decode("not-json")
		assert.Error(t, err)
	})
}

func TestInt64RoundTrip(t *testing.T) {
	s := Int64()
	for _, v := range []int64{0, 1, -20, math.MaxInt64, math.MinInt64} {
		enc, err := s.Encode(v)
		require.NoError(t, err)
		dec, err := s.Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, v, dec)
	}

	_, err := s.Decode(`{"nope":`)
	assert.Error(t, err)
}

func TestProtoRoundTrip(t *testing.T) {
	s := Proto(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	v := wrapperspb.String("merkle-root")

	enc, err := s.Encode(v)
	require.NoError(t, err)
	dec, err := s.Decode(enc)
	require.NoError(t, err)
	assert.True(t, proto.Equal(v, dec))
}

func TestFuncTask(t *testing.T) {
	prepared := 0
	double := New("double", func(ctx context.Context, in int) (int, error) {
		return in * 2, nil
	}).WithPrepare(func(ctx context.Context) error {
		prepared++
		return nil
	})

	assert.Equal(t, "double", double.Name())
	require.NoError(t, double.Prepare(context.Background()))
	assert.Equal(t, 1, prepared)

	out, err := double.Compute(context.Background(), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	noPrep := New("noop", func(ctx context.Context, in string) (string, error) { return in, nil })
	assert.NoError(t, noPrep.Prepare(context.Background()))
}

func TestWithSerializersKeepsDefaultsForNil(t *testing.T) {
	tk := New("sum", func(ctx context.Context, in Pair[int64]) (int64, error) {
		return in.First + in.Second, nil
	}).WithSerializers(nil, Int64())

	enc, err := tk.InputSerializer().Encode(Pair[int64]{First: 1, Second: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"first":1,"second":2}`, enc)

	res, err := tk.ResultSerializer().Encode(3)
	require.NoError(t, err)
	assert.Equal(t, `"3"`, res)
}

func TestErasedHandler(t *testing.T) {
	boom := errors.New("boom")
	h := Erase[int, int](New("double", func(ctx context.Context, in int) (int, error) {
		if in < 0 {
			return 0, boom
		}
		return in * 2, nil
	}))

	assert.Equal(t, "double", h.Name())

	out, err := h.Handle(context.Background(), "4")
	require.NoError(t, err)
	assert.Equal(t, "8", out)

	_, err = h.Handle(context.Background(), "-1")
	assert.ErrorIs(t, err, boom)

	_, err = h.Handle(context.Background(), "four")
	assert.ErrorIs(t, err, flowerrors.ErrSerialization)
}
