// Package ops implements array construction operations on top of a
// device.Backend: zeros/ones and their -like variants, clone, fill, linspace,
// range, split and setdiff1d.
package ops

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/23skdu/longbow-quiver/internal/device"
)

var (
	ErrNotTensor        = errors.New("not a tensor")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnsupportedDType = errors.New("unsupported dtype")
)

// Convert returns x as a tensor. x is either a device.Tensor, returned as-is
// with owned=false, or a tensor-like value (a scalar or nested slices/arrays
// of numbers, bools, complex numbers or strings) copied into a new tensor the
// caller owns. Floats map to Float32 and integers to Int32.
func Convert(b device.Backend, x any, arg, op string) (t device.Tensor, owned bool, err error) {
	if t, ok := x.(device.Tensor); ok && t != nil {
		return t, false, nil
	}
	notTensor := fmt.Errorf("%w: Argument '%s' passed to '%s' must be a Tensor or TensorLike, but got '%T'",
		ErrNotTensor, arg, op, x)
	if x == nil {
		return nil, false, notTensor
	}

	f := &flattener{}
	if err := f.walk(reflect.ValueOf(x), 0); err != nil {
		if errors.Is(err, errNotTensorLike) {
			return nil, false, notTensor
		}
		return nil, false, fmt.Errorf("%w: argument '%s' passed to '%s': %v", ErrInvalidArgument, arg, op, err)
	}
	if f.kind == leafNone {
		f.kind = staticKind(reflect.TypeOf(x))
		if f.kind == leafNone {
			return nil, false, notTensor
		}
	}

	shape := device.Shape(f.shape)
	var data any
	var dtype device.DType
	switch f.kind {
	case leafFloat:
		dtype = device.Float32
		vals := make([]float32, len(f.nums))
		for i, v := range f.nums {
			vals[i] = float32(v)
		}
		data = vals
	case leafInt:
		dtype = device.Int32
		vals := make([]int32, len(f.nums))
		for i, v := range f.nums {
			vals[i] = int32(v)
		}
		data = vals
	case leafBool:
		dtype = device.Bool
		data = f.bools
	case leafComplex:
		dtype = device.Complex64
		vals := make([]complex64, len(f.cplx))
		for i, v := range f.cplx {
			vals[i] = complex64(v)
		}
		data = vals
	case leafString:
		dtype = device.String
		data = f.strs
	}

	t, err = b.NewTensor(shape, dtype, data)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// convertScoped converts x and tracks the result in s when it was created here.
func convertScoped(s *device.Scope, b device.Backend, x any, arg, op string) (device.Tensor, error) {
	t, owned, err := Convert(b, x, arg, op)
	if err != nil {
		return nil, err
	}
	if owned {
		s.Track(t)
	}
	return t, nil
}

type leafKind int

const (
	leafNone leafKind = iota
	leafFloat
	leafInt
	leafBool
	leafComplex
	leafString
)

var (
	errNotTensorLike = errors.New("not tensor-like")
	errRagged        = errors.New("ragged nested sequence")
)

type flattener struct {
	shape    []int
	kind     leafKind
	leafSeen bool

	nums  []float64
	bools []uint8
	cplx  []complex128
	strs  []string
}

func (f *flattener) walk(v reflect.Value, depth int) error {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return errNotTensorLike
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		n := v.Len()
		switch {
		case depth < len(f.shape):
			if f.shape[depth] != n {
				return errRagged
			}
		case f.leafSeen:
			return errRagged
		default:
			f.shape = append(f.shape, n)
		}
		for i := 0; i < n; i++ {
			if err := f.walk(v.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	kind := kindOf(v.Kind())
	if kind == leafNone {
		return errNotTensorLike
	}
	if depth != len(f.shape) {
		return errRagged
	}
	if f.kind != leafNone && f.kind != kind {
		return fmt.Errorf("mixed element kinds %v and %v", f.kind, kind)
	}
	f.kind = kind
	f.leafSeen = true

	switch kind {
	case leafFloat:
		f.nums = append(f.nums, v.Float())
	case leafInt:
		// Integers land in an Int32 tensor and must not wrap.
		if v.CanInt() {
			n := v.Int()
			if n < math.MinInt32 || n > math.MaxInt32 {
				return fmt.Errorf("integer %d overflows int32", n)
			}
			f.nums = append(f.nums, float64(n))
		} else {
			n := v.Uint()
			if n > math.MaxInt32 {
				return fmt.Errorf("integer %d overflows int32", n)
			}
			f.nums = append(f.nums, float64(n))
		}
	case leafBool:
		var b uint8
		if v.Bool() {
			b = 1
		}
		f.bools = append(f.bools, b)
	case leafComplex:
		f.cplx = append(f.cplx, v.Complex())
	case leafString:
		f.strs = append(f.strs, v.String())
	}
	return nil
}

func kindOf(k reflect.Kind) leafKind {
	switch k {
	case reflect.Float32, reflect.Float64:
		return leafFloat
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return leafInt
	case reflect.Bool:
		return leafBool
	case reflect.Complex64, reflect.Complex128:
		return leafComplex
	case reflect.String:
		return leafString
	}
	return leafNone
}

// staticKind infers the element kind of an empty sequence from its type.
// Untyped ([]any) sequences default to float.
func staticKind(t reflect.Type) leafKind {
	for t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	if t.Kind() == reflect.Interface {
		return leafFloat
	}
	return kindOf(t.Kind())
}

func (k leafKind) String() string {
	switch k {
	case leafFloat:
		return "float"
	case leafInt:
		return "int"
	case leafBool:
		return "bool"
	case leafComplex:
		return "complex"
	case leafString:
		return "string"
	}
	return "none"
}

// hostData returns t's typed storage.
func hostData(t device.Tensor) any {
	switch t.DType() {
	case device.Float32:
		return t.Float32s()
	case device.Int32:
		return t.Int32s()
	case device.Bool:
		return t.Bools()
	case device.Complex64:
		return t.Complex64s()
	case device.String:
		return t.Strings()
	}
	return nil
}
