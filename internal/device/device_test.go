package device

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUBackend_TensorOps(t *testing.T) {
	backend := NewCPUBackend()

	t.Run("NewTensor copies data", func(t *testing.T) {
		src := []float32{1, 2, 3, 4}
		a, err := backend.NewTensor(Shape{2, 2}, Float32, src)
		require.NoError(t, err)

		src[0] = 100
		assert.Equal(t, []float32{1, 2, 3, 4}, a.Float32s())
		assert.Equal(t, Shape{2, 2}, a.Shape())
		assert.Equal(t, Float32, a.DType())
		assert.Equal(t, 4, a.Size())
	})

	t.Run("NewTensor zero filled", func(t *testing.T) {
		a, err := backend.NewTensor(Shape{3}, Int32, nil)
		require.NoError(t, err)
		assert.Equal(t, []int32{0, 0, 0}, a.Int32s())
		assert.Nil(t, a.Float32s())
	})

	t.Run("NewTensor length mismatch", func(t *testing.T) {
		_, err := backend.NewTensor(Shape{2, 2}, Float32, []float32{1, 2, 3})
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("NewTensor dtype mismatch", func(t *testing.T) {
		_, err := backend.NewTensor(Shape{2}, Int32, []float32{1, 2})
		assert.ErrorIs(t, err, ErrDataMismatch)
	})

	t.Run("NewTensor negative dim", func(t *testing.T) {
		_, err := backend.NewTensor(Shape{2, -1}, Float32, nil)
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("Bool normalised", func(t *testing.T) {
		a, err := backend.NewTensor(Shape{3}, Bool, []uint8{0, 7, 1})
		require.NoError(t, err)
		assert.Equal(t, []uint8{0, 1, 1}, a.Bools())

		b, err := backend.NewTensor(Shape{2}, Bool, []bool{true, false})
		require.NoError(t, err)
		assert.Equal(t, []uint8{1, 0}, b.Bools())
	})

	t.Run("Typed accessors", func(t *testing.T) {
		c, err := backend.NewTensor(Shape{2}, Complex64, []complex64{complex(1, 2), complex(3, 4)})
		require.NoError(t, err)
		assert.Equal(t, []complex64{complex(1, 2), complex(3, 4)}, c.Complex64s())
		assert.Nil(t, c.Float32s())

		s, err := backend.NewTensor(Shape{1}, String, []string{"a"})
		require.NoError(t, err)
		assert.Nil(t, s.Int32s())
		assert.Equal(t, []string{"a"}, s.Strings())
	})

	t.Run("NewTensor element count overflow", func(t *testing.T) {
		for _, shape := range []Shape{
			{math.MaxInt, math.MaxInt},
			{1 << 16, 1 << 16},
			{2, math.MaxInt/2 + 1, 3},
		} {
			_, err := backend.NewTensor(shape, Int32, []int32{})
			assert.ErrorIs(t, err, ErrShapeMismatch, "shape %s", shape)
		}
	})

	t.Run("GetTensor rejects overflowing shapes", func(t *testing.T) {
		assert.Panics(t, func() {
			backend.GetTensor(Shape{1, math.MaxInt/4 + 1, 4}, Int32)
		})
	})

	t.Run("Reshape shares storage", func(t *testing.T) {
		a, err := backend.NewTensor(Shape{1, 1, 3}, Int32, []int32{2, 3, 4})
		require.NoError(t, err)
		r, err := a.Reshape(Shape{1, 1, 1, 3})
		require.NoError(t, err)
		assert.Equal(t, Shape{1, 1, 1, 3}, r.Shape())

		a.Int32s()[0] = 9
		assert.Equal(t, int32(9), r.Int32s()[0])

		_, err = a.Reshape(Shape{2, 2})
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("Pooling", func(t *testing.T) {
		t1 := backend.GetTensor(Shape{10, 10}, Float32)
		t1.Float32s()[0] = 123
		backend.PutTensor(t1)

		t2 := backend.GetTensor(Shape{10, 10}, Float32)
		// Should overwrite t1's memory, verify it is zeroed
		if val := t2.Float32s()[0]; val != 0 {
			t.Errorf("Pooled tensor not zeroed: got %f", val)
		}
		backend.PutTensor(t2)
	})
}

func TestCPUBackend_Memory(t *testing.T) {
	backend := NewCPUBackend()
	assert.Equal(t, MemoryInfo{}, backend.Memory())

	a, err := backend.NewTensor(Shape{2, 3}, Float32, nil)
	require.NoError(t, err)
	b := backend.GetTensor(Shape{4}, Bool)

	mem := backend.Memory()
	assert.Equal(t, 2, mem.NumTensors)
	assert.Equal(t, int64(6*4+4), mem.NumBytes)

	backend.PutTensor(a)
	backend.PutTensor(a) // double release is a no-op
	assert.Equal(t, 1, backend.Memory().NumTensors)

	view, err := b.Reshape(Shape{2, 2})
	require.NoError(t, err)
	backend.PutTensor(view) // views are not accounted
	assert.Equal(t, 1, backend.Memory().NumTensors)

	other := NewCPUBackend()
	other.PutTensor(b) // foreign
	assert.Equal(t, 1, backend.Memory().NumTensors)

	backend.PutTensor(b)
	assert.Equal(t, MemoryInfo{}, backend.Memory())
}

func TestParallelRows(t *testing.T) {
	for _, rows := range []int{0, 1, 63, 64, 1000, 4099} {
		seen := make([]int32, rows)
		ParallelRows(rows, func(start, end int) {
			for i := start; i < end; i++ {
				seen[i]++
			}
		})
		for i, v := range seen {
			if v != 1 {
				t.Fatalf("rows=%d: row %d visited %d times", rows, i, v)
			}
		}
	}
}
