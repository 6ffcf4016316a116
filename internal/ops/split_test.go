package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-quiver/internal/device"
)

func newTensor2x4(t *testing.T, b device.Backend) device.Tensor {
	t.Helper()
	x, err := b.NewTensor(device.Shape{2, 4}, device.Float32, []float32{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	return x
}

func TestSplit(t *testing.T) {
	b := device.NewCPUBackend()

	t.Run("by number", func(t *testing.T) {
		res, err := Split(b, newTensor2x4(t, b), 2, 1)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, device.Shape{2, 2}, res[0].Shape())
		assert.Equal(t, []float32{1, 2, 5, 6}, res[0].Float32s())
		assert.Equal(t, device.Shape{2, 2}, res[1].Shape())
		assert.Equal(t, []float32{3, 4, 7, 8}, res[1].Float32s())
	})

	t.Run("by sizes", func(t *testing.T) {
		res, err := SplitSizes(b, newTensor2x4(t, b), []int{1, 2, 1}, 1)
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, device.Shape{2, 1}, res[0].Shape())
		assert.Equal(t, []float32{1, 5}, res[0].Float32s())
		assert.Equal(t, device.Shape{2, 2}, res[1].Shape())
		assert.Equal(t, []float32{2, 3, 6, 7}, res[1].Float32s())
		assert.Equal(t, device.Shape{2, 1}, res[2].Shape())
		assert.Equal(t, []float32{4, 8}, res[2].Float32s())
	})

	t.Run("inferred size", func(t *testing.T) {
		res, err := SplitSizes(b, newTensor2x4(t, b), []int{1, -1}, -1)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, []float32{2, 3, 4, 6, 7, 8}, res[1].Float32s())
	})

	t.Run("axis 0", func(t *testing.T) {
		res, err := Split(b, newTensor2x4(t, b), 2, 0)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 3, 4}, res[0].Float32s())
		assert.Equal(t, []float32{5, 6, 7, 8}, res[1].Float32s())
	})

	t.Run("sizes do not sum to axis", func(t *testing.T) {
		_, err := SplitSizes(b, newTensor2x4(t, b), []int{1, 2}, 1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("uneven number of splits", func(t *testing.T) {
		_, err := Split(b, newTensor2x4(t, b), 3, 1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("axis out of range", func(t *testing.T) {
		_, err := Split(b, newTensor2x4(t, b), 2, 2)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("zero-sized axis 0", func(t *testing.T) {
		a, err := Zeros(b, device.Shape{4, 0}, device.Float32)
		require.NoError(t, err)
		res, err := Split(b, a, 4, 0)
		require.NoError(t, err)
		require.Len(t, res, 4)
		for _, r := range res {
			assert.Equal(t, device.Shape{1, 0}, r.Shape())
			assert.Empty(t, r.Float32s())
		}
	})

	t.Run("zero-sized axis 1", func(t *testing.T) {
		a, err := Zeros(b, device.Shape{0, 4}, device.Float32)
		require.NoError(t, err)
		res, err := Split(b, a, 4, 1)
		require.NoError(t, err)
		require.Len(t, res, 4)
		for _, r := range res {
			assert.Equal(t, device.Shape{0, 1}, r.Shape())
			assert.Empty(t, r.Float32s())
		}
	})

	t.Run("non-tensor", func(t *testing.T) {
		_, err := Split(b, struct{}{}, 1, 0)
		assert.ErrorContains(t, err, "Argument 'x' passed to 'split' must be a Tensor")
	})

	t.Run("tensor-like", func(t *testing.T) {
		before := b.Memory().NumTensors
		res, err := Split(b, [][]float64{{1, 2, 3, 4}, {5, 6, 7, 8}}, 2, 1)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, []float32{1, 2, 5, 6}, res[0].Float32s())
		assert.Equal(t, []float32{3, 4, 7, 8}, res[1].Float32s())
		// only the outputs remain live
		assert.Equal(t, before+2, b.Memory().NumTensors)
	})

	t.Run("strings", func(t *testing.T) {
		x, err := b.NewTensor(device.Shape{3}, device.String, []string{"a", "b", "c"})
		require.NoError(t, err)
		res, err := SplitSizes(b, x, []int{1, 2}, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, res[0].Strings())
		assert.Equal(t, []string{"b", "c"}, res[1].Strings())
	})
}
