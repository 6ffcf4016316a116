package ops

import (
	"context"
	"fmt"

	"github.com/23skdu/longbow-quiver/internal/device"
)

// SetDiff1D returns the values of x that are not in y, in x order, and their
// Int32 indices into x. Both inputs must be 1-D with the same dtype.
func SetDiff1D(ctx context.Context, b device.Backend, x, y any) (out, indices device.Tensor, err error) {
	scope := device.NewScope(b)
	defer scope.Close()

	xt, err := convertScoped(scope, b, x, "x", "setdiff1d")
	if err != nil {
		return nil, nil, err
	}
	yt, err := convertScoped(scope, b, y, "y", "setdiff1d")
	if err != nil {
		return nil, nil, err
	}

	if xt.DType() != yt.DType() {
		return nil, nil, fmt.Errorf("%w: x and y should have the same dtype, but got x (%v) and y (%v).",
			ErrInvalidArgument, xt.DType(), yt.DType())
	}
	if xt.Shape().Rank() != 1 {
		return nil, nil, fmt.Errorf("%w: x should be 1D tensor, but got x %s.", ErrInvalidArgument, xt.Shape())
	}
	if yt.Shape().Rank() != 1 {
		return nil, nil, fmt.Errorf("%w: y should be 1D tensor, but got y %s.", ErrInvalidArgument, yt.Shape())
	}

	// Reading data is the suspension point.
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	b.Synchronize()

	var vals any
	var idx []int32
	switch xt.DType() {
	case device.Float32:
		vals, idx = setDiff(xt.Float32s(), yt.Float32s())
	case device.Int32:
		vals, idx = setDiff(xt.Int32s(), yt.Int32s())
	case device.Bool:
		vals, idx = setDiff(xt.Bools(), yt.Bools())
	case device.Complex64:
		vals, idx = setDiff(xt.Complex64s(), yt.Complex64s())
	case device.String:
		vals, idx = setDiff(xt.Strings(), yt.Strings())
	}

	out, err = b.NewTensor(device.Shape{len(idx)}, xt.DType(), vals)
	if err != nil {
		return nil, nil, err
	}
	indices, err = b.NewTensor(device.Shape{len(idx)}, device.Int32, idx)
	if err != nil {
		b.PutTensor(out)
		return nil, nil, err
	}
	return out, indices, nil
}

func setDiff[T comparable](xs, ys []T) ([]T, []int32) {
	exclude := make(map[T]struct{}, len(ys))
	for _, v := range ys {
		exclude[v] = struct{}{}
	}
	vals := make([]T, 0, len(xs))
	idx := make([]int32, 0, len(xs))
	for i, v := range xs {
		if _, ok := exclude[v]; ok {
			continue
		}
		vals = append(vals, v)
		idx = append(idx, int32(i))
	}
	return vals, idx
}
