// Package pixels converts between interleaved 8-bit pixel buffers and
// rank-3 int32 tensors, and encodes rank-2/3 tensors back to RGBA bytes.
package pixels

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-quiver/internal/device"
	"github.com/23skdu/longbow-quiver/internal/ops"
	"github.com/23skdu/longbow-quiver/internal/simd"
)

// DefaultChannels is used when Decode is asked for 0 channels.
const DefaultChannels = 3

// Codec decodes pixel sources into tensors and encodes tensors into pixels.
// It holds no per-call state; calls may run concurrently.
type Codec struct {
	backend device.Backend
}

func NewCodec(backend device.Backend) *Codec {
	return &Codec{backend: backend}
}

func (c *Codec) Backend() device.Backend {
	return c.backend
}

// Decode produces an int32 tensor of shape [height, width, numChannels] whose
// element [y][x][ch] is channel ch of source pixel (x, y). Channels past
// numChannels are dropped. numChannels 0 selects DefaultChannels.
func (c *Codec) Decode(ctx context.Context, src any, numChannels int) (t device.Tensor, err error) {
	start := time.Now()
	defer func() {
		codecDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())
		if err != nil {
			codecErrors.WithLabelValues("decode", Kind(err)).Inc()
		}
	}()

	if numChannels == 0 {
		numChannels = DefaultChannels
	}
	if numChannels < 1 || numChannels > 4 {
		return nil, fmt.Errorf("%w: numChannels must be 1-4, got %d", ErrUnsupportedChannelDepth, numChannels)
	}

	f, err := readSource(ctx, src)
	if err != nil {
		return nil, err
	}
	if numChannels > f.stride {
		return nil, fmt.Errorf("%w: requested %d channels from a %d channel source",
			ErrUnsupportedChannelDepth, numChannels, f.stride)
	}

	scope := device.NewScope(c.backend)
	defer scope.Close()

	out := scope.Track(c.backend.GetTensor(device.Shape{f.height, f.width, numChannels}, device.Int32))
	dst := out.Int32s()
	rowOut := f.width * numChannels
	rowIn := f.width * f.stride
	device.ParallelRows(f.height, func(startRow, endRow int) {
		simd.StridedCopy(dst[startRow*rowOut:endRow*rowOut], f.data[startRow*rowIn:endRow*rowIn], f.stride, numChannels)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scope.Keep(out)

	pixelsDecoded.WithLabelValues(strconv.Itoa(numChannels)).Inc()
	log.Debug().
		Int("width", f.width).
		Int("height", f.height).
		Int("channels", numChannels).
		Msg("Decoded pixels")
	return out, nil
}

// Encode converts a rank-2 ([h, w]) or rank-3 ([h, w, depth], depth 1, 3 or 4)
// tensor into h*w*4 RGBA bytes. Float32 values must lie in [0, 1] and are
// scaled by 255 and rounded half away from zero; int32 values must lie in
// [0, 255]. Depth 1 is replicated into RGB, and alpha is 255 below depth 4.
// Tensor-like inputs are cast to int32 first.
func (c *Codec) Encode(ctx context.Context, x any) (pix []uint8, err error) {
	start := time.Now()
	defer func() {
		codecDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())
		if err != nil {
			codecErrors.WithLabelValues("encode", Kind(err)).Inc()
		}
	}()

	// Every intermediate is released on return, success or not.
	scope := device.NewScope(c.backend)
	defer scope.Close()

	t, owned, err := ops.Convert(c.backend, x, "img", "toPixels")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInputKind, err)
	}
	if owned {
		scope.Track(t)
		if t, err = c.castInt32(scope, t); err != nil {
			return nil, err
		}
	}

	shape := t.Shape()
	if r := shape.Rank(); r != 2 && r != 3 {
		return nil, fmt.Errorf("%w: toPixels only supports rank 2 or 3 tensors, got rank %d", ErrInvalidRank, r)
	}
	if shape.Rank() == 3 {
		if depth := shape[2]; depth != 1 && depth != 3 && depth != 4 {
			return nil, fmt.Errorf("%w: toPixels only supports depth of size 1, 3 or 4 but got %d", ErrUnsupportedChannelDepth, depth)
		}
	}
	if dt := t.DType(); dt != device.Float32 && dt != device.Int32 {
		return nil, fmt.Errorf("%w: toPixels only supports float32 and int32 tensors, got %v", ErrUnsupportedDtype, dt)
	}
	if tooLarge(shape[1], shape[0]) {
		return nil, fmt.Errorf("%w: toPixels output for a %dx%d tensor exceeds %d pixels",
			ErrInvalidInputKind, shape[1], shape[0], maxPixels)
	}
	if shape.Rank() == 2 {
		// A [h, w] tensor encodes as grayscale [h, w, 1].
		if t, err = t.Reshape(device.Shape{shape[0], shape[1], 1}); err != nil {
			return nil, err
		}
		shape = t.Shape()
	}
	depth := shape[2]

	// Reading tensor data to the host is the suspension point.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.backend.Synchronize()
	snap := scope.Track(c.backend.GetTensor(shape, t.DType()))

	height, width := shape[0], shape[1]
	samples := make([]uint8, height*width*depth)
	switch t.DType() {
	case device.Float32:
		host := snap.Float32s()
		copy(host, t.Float32s())
		if lo, hi := simd.MinMaxFloat32(host); math.IsNaN(float64(lo)) || lo < 0 || hi > 1 {
			return nil, fmt.Errorf("%w: tensor values for a float32 tensor must be in the range [0 - 1] but got range [%v - %v]",
				ErrValueOutOfRange, lo, hi)
		}
		simd.ScaleToUint8(samples, host)
	case device.Int32:
		host := snap.Int32s()
		copy(host, t.Int32s())
		if lo, hi := simd.MinMaxInt32(host); lo < 0 || hi > 255 {
			return nil, fmt.Errorf("%w: tensor values for a int32 tensor must be in the range [0 - 255] but got range [%d - %d]",
				ErrValueOutOfRange, lo, hi)
		}
		simd.ClampToUint8(samples, host)
	}

	pix = make([]uint8, height*width*4)
	device.ParallelRows(height, func(startRow, endRow int) {
		expandRGBA(pix[startRow*width*4:endRow*width*4], samples[startRow*width*depth:endRow*width*depth], depth)
	})

	pixelsEncoded.WithLabelValues(t.DType().String()).Inc()
	log.Debug().
		Int("width", width).
		Int("height", height).
		Int("depth", depth).
		Str("dtype", t.DType().String()).
		Msg("Encoded pixels")
	return pix, nil
}

// castInt32 returns t as an int32 tensor tracked by scope.
func (c *Codec) castInt32(scope *device.Scope, t device.Tensor) (device.Tensor, error) {
	switch t.DType() {
	case device.Int32:
		return t, nil
	case device.Float32:
		out := scope.Track(c.backend.GetTensor(t.Shape(), device.Int32))
		dst := out.Int32s()
		for i, v := range t.Float32s() {
			dst[i] = int32(v)
		}
		return out, nil
	case device.Bool:
		out := scope.Track(c.backend.GetTensor(t.Shape(), device.Int32))
		dst := out.Int32s()
		for i, v := range t.Bools() {
			dst[i] = int32(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: cannot cast %v to int32", ErrUnsupportedDtype, t.DType())
}

// expandRGBA widens depth-channel samples to RGBA.
func expandRGBA(dst, src []uint8, depth int) {
	switch depth {
	case 1:
		for i, j := 0, 0; j < len(src); i, j = i+4, j+1 {
			v := src[j]
			dst[i], dst[i+1], dst[i+2], dst[i+3] = v, v, v, 255
		}
	case 3:
		for i, j := 0, 0; j < len(src); i, j = i+4, j+3 {
			dst[i], dst[i+1], dst[i+2], dst[i+3] = src[j], src[j+1], src[j+2], 255
		}
	case 4:
		copy(dst, src)
	}
}

// IsInputError reports whether err was caused by the pixel source itself
// rather than by tensor validation.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidInputKind) || errors.Is(err, ErrSourceNotReady)
}
