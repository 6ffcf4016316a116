package client

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-quiver/internal/device"
)

var ErrUnsupportedExport = errors.New("tensor dtype cannot be exported")

// RecordBatchBuilder creates Arrow RecordBatches from tensors.
type RecordBatchBuilder struct {
	mem  memory.Allocator
	fp16 bool
}

// NewRecordBatchBuilder creates a new builder.
func NewRecordBatchBuilder(mem memory.Allocator) *RecordBatchBuilder {
	return &RecordBatchBuilder{mem: mem}
}

// WithFloat16 makes float32 tensors travel as list<float16>, halving the
// payload for forwarded decode results.
func (b *RecordBatchBuilder) WithFloat16() *RecordBatchBuilder {
	b.fp16 = true
	return b
}

// TensorSchema returns the one-row schema used for a tensor of the given
// dtype: name, dtype, shape and flattened values.
func (b *RecordBatchBuilder) TensorSchema(dtype device.DType) (*arrow.Schema, error) {
	var values arrow.DataType
	switch dtype {
	case device.Float32:
		values = arrow.PrimitiveTypes.Float32
		if b.fp16 {
			values = arrow.FixedWidthTypes.Float16
		}
	case device.Int32, device.Bool:
		values = arrow.PrimitiveTypes.Int32
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedExport, dtype)
	}

	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "name", Type: arrow.BinaryTypes.String},
			{Name: "dtype", Type: arrow.BinaryTypes.String},
			{Name: "shape", Type: arrow.ListOf(arrow.PrimitiveTypes.Int32)},
			{Name: "values", Type: arrow.ListOf(values)},
		},
		nil,
	), nil
}

// BuildTensorRecord converts a tensor into a single-row RecordBatch.
// Bool tensors are exported as int32 0/1; the dtype column keeps "bool".
func (b *RecordBatchBuilder) BuildTensorRecord(name string, t device.Tensor) (arrow.RecordBatch, error) {
	schema, err := b.TensorSchema(t.DType())
	if err != nil {
		return nil, err
	}

	nameBuilder := array.NewStringBuilder(b.mem)
	defer nameBuilder.Release()
	nameBuilder.Append(name)

	dtypeBuilder := array.NewStringBuilder(b.mem)
	defer dtypeBuilder.Release()
	dtypeBuilder.Append(t.DType().String())

	shapeBuilder := array.NewListBuilder(b.mem, arrow.PrimitiveTypes.Int32)
	defer shapeBuilder.Release()
	shapeBuilder.Append(true)
	dims := shapeBuilder.ValueBuilder().(*array.Int32Builder)
	for _, d := range t.Shape() {
		dims.Append(int32(d))
	}

	valueType := schema.Field(3).Type.(*arrow.ListType).Elem()
	valuesBuilder := array.NewListBuilder(b.mem, valueType)
	defer valuesBuilder.Release()
	valuesBuilder.Append(true)

	switch vb := valuesBuilder.ValueBuilder().(type) {
	case *array.Float32Builder:
		vb.AppendValues(t.Float32s(), nil)
	case *array.Float16Builder:
		src := t.Float32s()
		half := make([]float16.Num, len(src))
		for i, v := range src {
			half[i] = float16.New(v)
		}
		vb.AppendValues(half, nil)
	case *array.Int32Builder:
		if t.DType() == device.Bool {
			for _, v := range t.Bools() {
				vb.Append(int32(v))
			}
		} else {
			vb.AppendValues(t.Int32s(), nil)
		}
	}

	cols := []arrow.Array{
		nameBuilder.NewArray(),
		dtypeBuilder.NewArray(),
		shapeBuilder.NewArray(),
		valuesBuilder.NewArray(),
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	return array.NewRecordBatch(schema, cols, 1), nil
}
