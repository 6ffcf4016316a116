package device

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnknownDType  = errors.New("unknown dtype")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrDataMismatch  = errors.New("data does not match dtype")
)

// DType is the element type tag of a tensor.
type DType int

const (
	Float32 DType = iota
	Int32
	Bool
	Complex64
	String
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Bool:
		return "bool"
	case Complex64:
		return "complex64"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// Size returns bytes per element. Strings are variable sized and report 0.
func (d DType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Bool:
		return 1
	case Complex64:
		return 8
	default:
		return 0
	}
}

// ParseDType accepts the names returned by DType.String.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(s) {
	case "float32", "":
		return Float32, nil
	case "int32":
		return Int32, nil
	case "bool":
		return Bool, nil
	case "complex64":
		return Complex64, nil
	case "string":
		return String, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDType, s)
}

// Shape is an ordered list of non-negative dimensions.
type Shape []int

func (s Shape) Rank() int { return len(s) }

// Size is the element count; the empty shape is a scalar of size 1.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// String formats the shape as "(4,1)".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// MaxElements bounds the element count of a single tensor.
const MaxElements = math.MaxInt32

// CheckedSize is Size with overflow detection. It fails when any dimension
// is negative or when the element count exceeds MaxElements.
func (s Shape) CheckedSize() (int, error) {
	n := 1
	zero := false
	for _, d := range s {
		switch {
		case d < 0:
			return 0, fmt.Errorf("%w: negative dimension in %s", ErrShapeMismatch, s)
		case d > MaxElements:
			return 0, fmt.Errorf("%w: dimension %d in %s exceeds %d elements", ErrShapeMismatch, d, s, MaxElements)
		case d == 0:
			zero = true
		case !zero:
			if n > MaxElements/d {
				return 0, fmt.Errorf("%w: %s exceeds %d elements", ErrShapeMismatch, s, MaxElements)
			}
			n *= d
		}
	}
	if zero {
		return 0, nil
	}
	return n, nil
}

func (s Shape) validate() error {
	_, err := s.CheckedSize()
	return err
}
