package client

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-quiver/internal/device"
)

func TestBuildTensorRecord(t *testing.T) {
	pool := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer pool.AssertSize(t, 0)
	backend := device.NewCPUBackend()

	t.Run("int32", func(t *testing.T) {
		x, err := backend.NewTensor(device.Shape{2, 1, 3}, device.Int32, []int32{1, 2, 3, 4, 5, 6})
		require.NoError(t, err)
		defer backend.PutTensor(x)

		rb, err := NewRecordBatchBuilder(pool).BuildTensorRecord("frame", x)
		require.NoError(t, err)
		defer rb.Release()

		assert.Equal(t, int64(1), rb.NumRows())
		assert.Equal(t, int64(4), rb.NumCols())
		assert.Equal(t, "frame", rb.Column(0).(*array.String).Value(0))
		assert.Equal(t, "int32", rb.Column(1).(*array.String).Value(0))

		shape := rb.Column(2).(*array.List).ListValues().(*array.Int32)
		assert.Equal(t, []int32{2, 1, 3}, shape.Int32Values())

		values := rb.Column(3).(*array.List).ListValues().(*array.Int32)
		assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, values.Int32Values())
	})

	t.Run("float32", func(t *testing.T) {
		x, err := backend.NewTensor(device.Shape{2}, device.Float32, []float32{0.5, 1})
		require.NoError(t, err)
		defer backend.PutTensor(x)

		rb, err := NewRecordBatchBuilder(pool).BuildTensorRecord("f", x)
		require.NoError(t, err)
		defer rb.Release()

		values := rb.Column(3).(*array.List).ListValues().(*array.Float32)
		assert.Equal(t, []float32{0.5, 1}, values.Float32Values())
	})

	t.Run("float16 transport", func(t *testing.T) {
		x, err := backend.NewTensor(device.Shape{3}, device.Float32, []float32{0.5, 1, 255})
		require.NoError(t, err)
		defer backend.PutTensor(x)

		rb, err := NewRecordBatchBuilder(pool).WithFloat16().BuildTensorRecord("f", x)
		require.NoError(t, err)
		defer rb.Release()

		values := rb.Column(3).(*array.List).ListValues().(*array.Float16)
		require.Equal(t, 3, values.Len())
		assert.Equal(t, float32(0.5), values.Value(0).Float32())
		assert.Equal(t, float32(255), values.Value(2).Float32())
	})

	t.Run("bool as int32", func(t *testing.T) {
		x, err := backend.NewTensor(device.Shape{3}, device.Bool, []bool{true, false, true})
		require.NoError(t, err)
		defer backend.PutTensor(x)

		rb, err := NewRecordBatchBuilder(pool).BuildTensorRecord("mask", x)
		require.NoError(t, err)
		defer rb.Release()

		assert.Equal(t, "bool", rb.Column(1).(*array.String).Value(0))
		values := rb.Column(3).(*array.List).ListValues().(*array.Int32)
		assert.Equal(t, []int32{1, 0, 1}, values.Int32Values())
	})

	t.Run("unsupported", func(t *testing.T) {
		x, err := backend.NewTensor(device.Shape{1}, device.String, []string{"a"})
		require.NoError(t, err)
		defer backend.PutTensor(x)

		_, err = NewRecordBatchBuilder(pool).BuildTensorRecord("s", x)
		assert.ErrorIs(t, err, ErrUnsupportedExport)
	})
}
