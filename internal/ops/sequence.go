package ops

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/23skdu/longbow-quiver/internal/device"
)

// Linspace returns num evenly spaced Float32 values from start to stop inclusive.
func Linspace(b device.Backend, start, stop float64, num int) (device.Tensor, error) {
	if num <= 0 {
		return nil, fmt.Errorf("%w: linspace requires a positive number of samples, got %d", ErrInvalidArgument, num)
	}
	if num == 1 {
		return b.NewTensor(device.Shape{1}, device.Float32, []float32{float32(start)})
	}

	vals := floats.Span(make([]float64, num), start, stop)
	out := make([]float32, num)
	for i, v := range vals {
		out[i] = float32(v)
	}
	return b.NewTensor(device.Shape{num}, device.Float32, out)
}

type rangeConfig struct {
	step    float64
	stepSet bool
	dtype   device.DType
}

// RangeOption configures Range.
type RangeOption func(*rangeConfig)

// WithStep sets the increment. Zero is rejected by Range.
func WithStep(step float64) RangeOption {
	return func(c *rangeConfig) {
		c.step = step
		c.stepSet = true
	}
}

// WithDType selects Float32 (default) or Int32 output.
func WithDType(dtype device.DType) RangeOption {
	return func(c *rangeConfig) {
		c.dtype = dtype
	}
}

// Range returns values from start toward stop (exclusive).
// Without WithStep the step is 1 when start < stop and -1 otherwise. A step
// pointing away from stop yields an empty tensor.
func Range(b device.Backend, start, stop float64, opts ...RangeOption) (device.Tensor, error) {
	cfg := rangeConfig{dtype: device.Float32}
	for _, opt := range opts {
		opt(&cfg)
	}

	step := cfg.step
	if !cfg.stepSet {
		step = 1
		if stop < start {
			step = -1
		}
	}
	if step == 0 {
		return nil, fmt.Errorf("%w: range cannot have a step of zero", ErrInvalidArgument)
	}
	if cfg.dtype != device.Float32 && cfg.dtype != device.Int32 {
		return nil, fmt.Errorf("%w: range of %v", ErrUnsupportedDType, cfg.dtype)
	}

	n := 0
	if (stop > start && step > 0) || (stop < start && step < 0) {
		n = int(math.Ceil(math.Abs((stop - start) / step)))
	}

	if cfg.dtype == device.Int32 {
		vals := make([]int32, n)
		for i := range vals {
			vals[i] = int32(start + float64(i)*step)
		}
		return b.NewTensor(device.Shape{n}, device.Int32, vals)
	}
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(start + float64(i)*step)
	}
	return b.NewTensor(device.Shape{n}, device.Float32, vals)
}
