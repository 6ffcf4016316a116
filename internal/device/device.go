package device

// Tensor is an n-dimensional array owned by a Backend.
// Storage is typed by DType; the accessor for any other dtype returns nil.
type Tensor interface {
	// ID is unique per live allocation within a backend.
	ID() int64

	Shape() Shape
	DType() DType

	// Size returns the number of elements (product of the shape).
	Size() int

	Float32s() []float32
	Int32s() []int32
	// Bools returns 0/1 bytes.
	Bools() []uint8
	Complex64s() []complex64
	Strings() []string

	// Reshape returns a view sharing storage with a new shape of equal size.
	Reshape(shape Shape) (Tensor, error)
}

// MemoryInfo reports outstanding allocations of a backend.
type MemoryInfo struct {
	NumTensors int
	NumBytes   int64
}

// Backend creates tensors and accounts for their memory.
type Backend interface {
	Name() string

	// NewTensor allocates a tensor. data is nil (zero-filled) or a slice of
	// the dtype's element type with exactly shape.Size() elements; it is copied.
	NewTensor(shape Shape, dtype DType, data any) (Tensor, error)

	// GetTensor gets a zeroed tensor from the pool or creates a new one.
	// Shapes that fail CheckedSize are programmer errors and panic.
	GetTensor(shape Shape, dtype DType) Tensor

	// PutTensor releases a tensor back to the pool.
	PutTensor(t Tensor)

	Memory() MemoryInfo

	// Synchronize blocks until all queued operations are complete.
	Synchronize()
}
