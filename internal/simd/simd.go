package simd

import "math"

// ScaleToUint8 writes round(v*255) clamped to [0, 255] for each src value.
// Rounding is half away from zero.
func ScaleToUint8(dst []uint8, src []float32) {
	// Unrolled loop for better pipelining
	i := 0
	for ; i <= len(src)-4; i += 4 {
		dst[i] = scaleByte(src[i])
		dst[i+1] = scaleByte(src[i+1])
		dst[i+2] = scaleByte(src[i+2])
		dst[i+3] = scaleByte(src[i+3])
	}
	// Handle remainder
	for ; i < len(src); i++ {
		dst[i] = scaleByte(src[i])
	}
}

// ClampToUint8 writes each src value clamped to [0, 255].
func ClampToUint8(dst []uint8, src []int32) {
	i := 0
	for ; i <= len(src)-4; i += 4 {
		dst[i] = clampByte(src[i])
		dst[i+1] = clampByte(src[i+1])
		dst[i+2] = clampByte(src[i+2])
		dst[i+3] = clampByte(src[i+3])
	}
	for ; i < len(src); i++ {
		dst[i] = clampByte(src[i])
	}
}

// MinMaxFloat32 returns the extrema of src. NaN is reported as both min and max
// so that range checks reject it. Empty input returns (0, 0).
func MinMaxFloat32(src []float32) (float32, float32) {
	if len(src) == 0 {
		return 0, 0
	}
	lo, hi := src[0], src[0]
	for _, v := range src {
		if v != v {
			return v, v
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// MinMaxInt32 returns the extrema of src. Empty input returns (0, 0).
func MinMaxInt32(src []int32) (int32, int32) {
	if len(src) == 0 {
		return 0, 0
	}
	lo, hi := src[0], src[0]
	for _, v := range src[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// StridedCopy copies the first n channels of each pixel from src, which holds
// stride channels per pixel, into dst as int32.
// len(dst) must be pixels*n.
func StridedCopy(dst []int32, src []uint8, stride, n int) {
	if n == stride {
		for i, v := range src[:len(dst)] {
			dst[i] = int32(v)
		}
		return
	}
	j := 0
	for i := 0; j < len(dst); i += stride {
		for c := 0; c < n; c++ {
			dst[j+c] = int32(src[i+c])
		}
		j += n
	}
}

func scaleByte(v float32) uint8 {
	r := math.Round(float64(v) * 255)
	if r <= 0 || r != r {
		return 0
	}
	if r >= 255 {
		return 255
	}
	return uint8(r)
}

func clampByte(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
