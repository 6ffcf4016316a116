package ops

import (
	"fmt"

	"github.com/23skdu/longbow-quiver/internal/device"
)

// Split divides x along axis into numSplits equal pieces.
func Split(b device.Backend, x any, numSplits int, axis int) ([]device.Tensor, error) {
	scope := device.NewScope(b)
	defer scope.Close()

	t, err := convertScoped(scope, b, x, "x", "split")
	if err != nil {
		return nil, err
	}
	shape := t.Shape()
	ax, err := normalizeAxis(axis, shape.Rank())
	if err != nil {
		return nil, err
	}
	if numSplits <= 0 {
		return nil, fmt.Errorf("%w: number of splits must be positive, got %d", ErrInvalidArgument, numSplits)
	}
	if shape[ax]%numSplits != 0 {
		return nil, fmt.Errorf("%w: number of splits %d must evenly divide axis %d of size %d",
			ErrInvalidArgument, numSplits, ax, shape[ax])
	}

	sizes := make([]int, numSplits)
	for i := range sizes {
		sizes[i] = shape[ax] / numSplits
	}
	return splitTensor(b, t, sizes, ax)
}

// SplitSizes divides x along axis into pieces of the given sizes, which must
// sum to the axis length. One size may be -1 and is inferred.
func SplitSizes(b device.Backend, x any, sizes []int, axis int) ([]device.Tensor, error) {
	scope := device.NewScope(b)
	defer scope.Close()

	t, err := convertScoped(scope, b, x, "x", "split")
	if err != nil {
		return nil, err
	}
	shape := t.Shape()
	ax, err := normalizeAxis(axis, shape.Rank())
	if err != nil {
		return nil, err
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("%w: split sizes are empty", ErrInvalidArgument)
	}

	resolved := make([]int, len(sizes))
	copy(resolved, sizes)
	sum, inferred := 0, -1
	for i, s := range resolved {
		switch {
		case s == -1 && inferred < 0:
			inferred = i
		case s < 0:
			return nil, fmt.Errorf("%w: invalid split size %d", ErrInvalidArgument, s)
		default:
			sum += s
		}
	}
	if inferred >= 0 {
		if sum > shape[ax] {
			return nil, fmt.Errorf("%w: split sizes %v exceed axis size %d", ErrInvalidArgument, sizes, shape[ax])
		}
		resolved[inferred] = shape[ax] - sum
		sum = shape[ax]
	}
	if sum != shape[ax] {
		return nil, fmt.Errorf("%w: split sizes %v must sum to axis size %d", ErrInvalidArgument, sizes, shape[ax])
	}
	return splitTensor(b, t, resolved, ax)
}

func normalizeAxis(axis, rank int) (int, error) {
	ax := axis
	if ax < 0 {
		ax += rank
	}
	if ax < 0 || ax >= rank {
		return 0, fmt.Errorf("%w: axis %d out of range for rank %d", ErrInvalidArgument, axis, rank)
	}
	return ax, nil
}

func splitTensor(b device.Backend, t device.Tensor, sizes []int, axis int) ([]device.Tensor, error) {
	shape := t.Shape()
	outer := device.Shape(shape[:axis]).Size()
	inner := device.Shape(shape[axis+1:]).Size()
	dim := shape[axis]

	outs := make([]device.Tensor, 0, len(sizes))
	offset := 0
	for _, size := range sizes {
		outShape := shape.Clone()
		outShape[axis] = size

		out := b.GetTensor(outShape, t.DType())
		for i := 0; i < outer; i++ {
			src := (i*dim + offset) * inner
			dst := i * size * inner
			copyElems(out, t, dst, src, size*inner)
		}
		outs = append(outs, out)
		offset += size
	}
	return outs, nil
}

// copyElems copies n elements of src starting at srcOff into dst at dstOff.
func copyElems(dst, src device.Tensor, dstOff, srcOff, n int) {
	if n == 0 {
		return
	}
	switch src.DType() {
	case device.Float32:
		copy(dst.Float32s()[dstOff:dstOff+n], src.Float32s()[srcOff:srcOff+n])
	case device.Int32:
		copy(dst.Int32s()[dstOff:dstOff+n], src.Int32s()[srcOff:srcOff+n])
	case device.Bool:
		copy(dst.Bools()[dstOff:dstOff+n], src.Bools()[srcOff:srcOff+n])
	case device.Complex64:
		copy(dst.Complex64s()[dstOff:dstOff+n], src.Complex64s()[srcOff:srcOff+n])
	case device.String:
		copy(dst.Strings()[dstOff:dstOff+n], src.Strings()[srcOff:srcOff+n])
	}
}
