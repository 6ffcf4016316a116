package ops

import (
	"fmt"
	"reflect"

	"github.com/23skdu/longbow-quiver/internal/device"
)

// Zeros creates a zero-filled tensor. Strings have no zero value here.
func Zeros(b device.Backend, shape device.Shape, dtype device.DType) (device.Tensor, error) {
	if dtype == device.String {
		return nil, fmt.Errorf("%w: zeros of %v", ErrUnsupportedDType, dtype)
	}
	return b.NewTensor(shape, dtype, nil)
}

// Ones creates a tensor of ones; complex ones are 1+0i.
func Ones(b device.Backend, shape device.Shape, dtype device.DType) (device.Tensor, error) {
	n := shape.Size()
	var data any
	switch dtype {
	case device.Float32:
		data = filled(n, float32(1))
	case device.Int32:
		data = filled(n, int32(1))
	case device.Bool:
		data = filled(n, uint8(1))
	case device.Complex64:
		data = filled(n, complex64(complex(1, 0)))
	default:
		return nil, fmt.Errorf("%w: ones of %v", ErrUnsupportedDType, dtype)
	}
	return b.NewTensor(shape, dtype, data)
}

// ZerosLike creates zeros with the shape and dtype of x.
func ZerosLike(b device.Backend, x any) (device.Tensor, error) {
	scope := device.NewScope(b)
	defer scope.Close()

	t, err := convertScoped(scope, b, x, "x", "zerosLike")
	if err != nil {
		return nil, err
	}
	return Zeros(b, t.Shape(), t.DType())
}

// OnesLike creates ones with the shape and dtype of x.
func OnesLike(b device.Backend, x any) (device.Tensor, error) {
	scope := device.NewScope(b)
	defer scope.Close()

	t, err := convertScoped(scope, b, x, "x", "onesLike")
	if err != nil {
		return nil, err
	}
	return Ones(b, t.Shape(), t.DType())
}

// Clone copies x into a new tensor of the same shape and dtype.
func Clone(b device.Backend, x any) (device.Tensor, error) {
	t, owned, err := Convert(b, x, "x", "clone")
	if err != nil {
		return nil, err
	}
	if owned {
		// Already a fresh copy.
		return t, nil
	}
	return b.NewTensor(t.Shape(), t.DType(), hostData(t))
}

// Fill creates a tensor with every element set to value.
// Without an explicit dtype, numbers produce Float32, strings String and
// bools Bool. Converting a number to Int32 truncates toward zero.
func Fill(b device.Backend, shape device.Shape, value any, dtype ...device.DType) (device.Tensor, error) {
	v := reflect.ValueOf(value)
	if !v.IsValid() {
		return nil, fmt.Errorf("%w: fill value is nil", ErrInvalidArgument)
	}
	kind := kindOf(v.Kind())

	var dt device.DType
	switch {
	case len(dtype) > 0:
		dt = dtype[0]
	case kind == leafFloat || kind == leafInt:
		dt = device.Float32
	case kind == leafBool:
		dt = device.Bool
	case kind == leafComplex:
		dt = device.Complex64
	case kind == leafString:
		dt = device.String
	default:
		return nil, fmt.Errorf("%w: cannot fill with %T", ErrInvalidArgument, value)
	}

	n := shape.Size()
	numeric := kind == leafFloat || kind == leafInt
	mismatch := fmt.Errorf("%w: cannot fill %v tensor with %T", ErrInvalidArgument, dt, value)

	var data any
	switch dt {
	case device.Float32:
		if !numeric {
			return nil, mismatch
		}
		data = filled(n, float32(asFloat(v)))
	case device.Int32:
		if !numeric {
			return nil, mismatch
		}
		data = filled(n, int32(asFloat(v)))
	case device.Bool:
		var bv uint8
		switch {
		case kind == leafBool:
			if v.Bool() {
				bv = 1
			}
		case numeric:
			if asFloat(v) != 0 {
				bv = 1
			}
		default:
			return nil, mismatch
		}
		data = filled(n, bv)
	case device.Complex64:
		switch {
		case kind == leafComplex:
			data = filled(n, complex64(v.Complex()))
		case numeric:
			data = filled(n, complex64(complex(asFloat(v), 0)))
		default:
			return nil, mismatch
		}
	case device.String:
		if kind != leafString {
			return nil, mismatch
		}
		data = filled(n, v.String())
	default:
		return nil, fmt.Errorf("%w: fill %v", ErrUnsupportedDType, dt)
	}
	return b.NewTensor(shape, dt, data)
}

func filled[T any](n int, v T) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func asFloat(v reflect.Value) float64 {
	switch {
	case v.CanFloat():
		return v.Float()
	case v.CanInt():
		return float64(v.Int())
	case v.CanUint():
		return float64(v.Uint())
	}
	return 0
}
