package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-quiver/internal/device"
)

func assertClose(t *testing.T, want []float64, got []float32) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], float64(got[i]), 1e-3, "index %d", i)
	}
}

func TestLinspace(t *testing.T) {
	b := device.NewCPUBackend()

	cases := []struct {
		start, stop float64
		num         int
		want        []float64
	}{
		{1, 10, 10, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{12, 17, 8, []float64{12, 12.71428571, 13.42857143, 14.14285714, 14.85714286, 15.57142857, 16.28571429, 17}},
		{9, 0, 6, []float64{9, 7.2, 5.4, 3.6, 1.8, 0}},
		{-4, 5, 6, []float64{-4, -2.2, -0.4, 1.4, 3.2, 5}},
		{4, -5, 6, []float64{4, 2.2, 0.4, -1.4, -3.2, -5}},
		{-4, -5, 6, []float64{-4, -4.2, -4.4, -4.6, -4.8, -5}},
		{-9, -4, 5, []float64{-9, -7.75, -6.5, -5.25, -4}},
		{3, 7, 1, []float64{3}},
	}
	for _, tc := range cases {
		a, err := Linspace(b, tc.start, tc.stop, tc.num)
		require.NoError(t, err)
		assert.Equal(t, device.Shape{tc.num}, a.Shape())
		assert.Equal(t, device.Float32, a.DType())
		assertClose(t, tc.want, a.Float32s())
	}

	_, err := Linspace(b, 2, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRange(t *testing.T) {
	b := device.NewCPUBackend()

	cases := []struct {
		name        string
		start, stop float64
		opts        []RangeOption
		want        []float32
	}{
		{"start stop", 0, 3, nil, []float32{0, 1, 2}},
		{"start stop 2", 3, 8, nil, []float32{3, 4, 5, 6, 7}},
		{"negative", -2, 3, nil, []float32{-2, -1, 0, 1, 2}},
		{"decreasing default step", 4, -2, nil, []float32{4, 3, 2, 1, 0, -1}},
		{"step", 4, 15, []RangeOption{WithStep(4)}, []float32{4, 8, 12}},
		{"step exact", 4, 11, []RangeOption{WithStep(4)}, []float32{4, 8}},
		{"step 16", 4, 17, []RangeOption{WithStep(4)}, []float32{4, 8, 12, 16}},
		{"step 5", 0, 30, []RangeOption{WithStep(5)}, []float32{0, 5, 10, 15, 20, 25}},
		{"step from negative", -3, 9, []RangeOption{WithStep(2)}, []float32{-3, -1, 1, 3, 5, 7}},
		{"empty", 3, 3, nil, []float32{}},
		{"empty step 1", 3, 3, []RangeOption{WithStep(1)}, []float32{}},
		{"empty step 4", 3, 3, []RangeOption{WithStep(4)}, []float32{}},
		{"negative bounds", -18, -2, []RangeOption{WithStep(5)}, []float32{-18, -13, -8, -3}},
		{"large step", 3, 10, []RangeOption{WithStep(150)}, []float32{3}},
		{"large step 2", 10, 500, []RangeOption{WithStep(205)}, []float32{10, 215, 420}},
		{"large negative step", 3, -10, []RangeOption{WithStep(-150)}, []float32{3}},
		{"large negative step 2", -10, -500, []RangeOption{WithStep(-205)}, []float32{-10, -215, -420}},
		{"negative step", 0, -10, []RangeOption{WithStep(-1)}, []float32{0, -1, -2, -3, -4, -5, -6, -7, -8, -9}},
		{"negative default", 0, -10, nil, []float32{0, -1, -2, -3, -4, -5, -6, -7, -8, -9}},
		{"negative step 2", 3, -4, []RangeOption{WithStep(-2)}, []float32{3, 1, -1, -3}},
		{"negative step 5", -3, -18, []RangeOption{WithStep(-5)}, []float32{-3, -8, -13}},
		{"incompatible negative", 3, 10, []RangeOption{WithStep(-2)}, []float32{}},
		{"incompatible positive", 40, 3, []RangeOption{WithStep(2)}, []float32{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := Range(b, tc.start, tc.stop, tc.opts...)
			require.NoError(t, err)
			assert.Equal(t, device.Shape{len(tc.want)}, a.Shape())
			assert.Equal(t, tc.want, a.Float32s())
		})
	}

	t.Run("zero step", func(t *testing.T) {
		_, err := Range(b, 2, 10, WithStep(0))
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("dtypes", func(t *testing.T) {
		a, err := Range(b, 1, 4)
		require.NoError(t, err)
		assert.Equal(t, device.Float32, a.DType())

		a, err = Range(b, 1, 4, WithDType(device.Float32))
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 3}, a.Float32s())

		a, err = Range(b, 1, 4, WithDType(device.Int32))
		require.NoError(t, err)
		assert.Equal(t, device.Int32, a.DType())
		assert.Equal(t, []int32{1, 2, 3}, a.Int32s())

		_, err = Range(b, 1, 4, WithDType(device.Bool))
		assert.ErrorIs(t, err, ErrUnsupportedDType)
	})
}
