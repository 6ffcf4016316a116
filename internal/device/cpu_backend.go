package device

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ensure interface compliance
var _ Backend = (*CPUBackend)(nil)
var _ Tensor = (*CPUTensor)(nil)

// numWorkers defines the default parallelism for CPU operations
var numWorkers = runtime.NumCPU()

// minRowsPerWorker keeps small images on a single goroutine.
const minRowsPerWorker = 64

type CPUBackend struct {
	pool   sync.Pool
	nextID atomic.Int64

	mu       sync.Mutex
	live     map[int64]int64 // id -> bytes
	numBytes int64
}

func NewCPUBackend() *CPUBackend {
	return &CPUBackend{
		pool: sync.Pool{
			New: func() interface{} {
				return &CPUTensor{}
			},
		},
		live: make(map[int64]int64),
	}
}

func (b *CPUBackend) Name() string {
	return "CPU"
}

func (b *CPUBackend) NewTensor(shape Shape, dtype DType, data any) (Tensor, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	size := shape.Size()
	t := &CPUTensor{
		backend: b,
		shape:   shape.Clone(),
		dtype:   dtype,
	}

	if data == nil {
		t.alloc(size)
	} else if err := t.fill(data, size); err != nil {
		return nil, err
	}

	b.track(t)
	return t, nil
}

func (b *CPUBackend) GetTensor(shape Shape, dtype DType) Tensor {
	if err := shape.validate(); err != nil {
		panic(fmt.Sprintf("GetTensor: %v", err))
	}

	v := b.pool.Get()
	ct, ok := v.(*CPUTensor)
	if !ok || ct == nil {
		ct = &CPUTensor{}
	}
	if ct.pooled {
		poolHits.Inc()
	} else {
		poolMisses.Inc()
	}

	// Initialize/reset the tensor
	ct.backend = b
	ct.pooled = false
	ct.view = false
	ct.shape = shape.Clone()
	ct.dtype = dtype
	ct.reset(shape.Size())

	b.track(ct)
	return ct
}

func (b *CPUBackend) PutTensor(t Tensor) {
	ct, ok := t.(*CPUTensor)
	if !ok || ct.backend != b || ct.view {
		return // Don't pool foreign tensors or views
	}
	if !b.untrack(ct) {
		return
	}

	ct.shape = nil
	ct.pooled = true
	if ct.dtype == String {
		// Drop string references so the pool doesn't pin them.
		for i := range ct.str {
			ct.str[i] = ""
		}
	}
	// Data is zeroed when retrieved by GetTensor
	b.pool.Put(ct)
}

func (b *CPUBackend) Memory() MemoryInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return MemoryInfo{NumTensors: len(b.live), NumBytes: b.numBytes}
}

func (b *CPUBackend) Synchronize() {
	// CPU is always synchronous
}

func (b *CPUBackend) track(t *CPUTensor) {
	t.id = b.nextID.Add(1)
	n := t.bytes()

	b.mu.Lock()
	b.live[t.id] = n
	b.numBytes += n
	b.mu.Unlock()

	tensorsLive.Inc()
	tensorBytesLive.Add(float64(n))
}

func (b *CPUBackend) untrack(t *CPUTensor) bool {
	b.mu.Lock()
	n, ok := b.live[t.id]
	if ok {
		delete(b.live, t.id)
		b.numBytes -= n
	}
	b.mu.Unlock()

	if ok {
		tensorsLive.Dec()
		tensorBytesLive.Sub(float64(n))
	}
	return ok
}

type CPUTensor struct {
	backend *CPUBackend
	id      int64
	shape   Shape
	dtype   DType
	view    bool // Reshape view sharing another tensor's storage
	pooled  bool

	f32 []float32
	i32 []int32
	b   []uint8
	c64 []complex64
	str []string
}

func (t *CPUTensor) ID() int64    { return t.id }
func (t *CPUTensor) Shape() Shape { return t.shape.Clone() }
func (t *CPUTensor) DType() DType { return t.dtype }
func (t *CPUTensor) Size() int    { return t.shape.Size() }

func (t *CPUTensor) Float32s() []float32 {
	if t.dtype != Float32 {
		return nil
	}
	return t.f32
}

func (t *CPUTensor) Int32s() []int32 {
	if t.dtype != Int32 {
		return nil
	}
	return t.i32
}

func (t *CPUTensor) Bools() []uint8 {
	if t.dtype != Bool {
		return nil
	}
	return t.b
}

func (t *CPUTensor) Complex64s() []complex64 {
	if t.dtype != Complex64 {
		return nil
	}
	return t.c64
}

func (t *CPUTensor) Strings() []string {
	if t.dtype != String {
		return nil
	}
	return t.str
}

func (t *CPUTensor) Reshape(shape Shape) (Tensor, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	if shape.Size() != t.Size() {
		return nil, fmt.Errorf("%w: cannot reshape %s into %s", ErrShapeMismatch, t.shape, shape)
	}
	return &CPUTensor{
		backend: t.backend,
		id:      t.id,
		shape:   shape.Clone(),
		dtype:   t.dtype,
		view:    true,
		f32:     t.f32,
		i32:     t.i32,
		b:       t.b,
		c64:     t.c64,
		str:     t.str,
	}, nil
}

func (t *CPUTensor) bytes() int64 {
	if t.dtype == String {
		var n int64
		for _, s := range t.str {
			n += int64(len(s))
		}
		return n
	}
	return int64(t.Size() * t.dtype.Size())
}

func (t *CPUTensor) alloc(size int) {
	switch t.dtype {
	case Float32:
		t.f32 = make([]float32, size)
	case Int32:
		t.i32 = make([]int32, size)
	case Bool:
		t.b = make([]uint8, size)
	case Complex64:
		t.c64 = make([]complex64, size)
	case String:
		t.str = make([]string, size)
	default:
		panic(fmt.Sprintf("alloc: %v", t.dtype))
	}
}

// reset reslices pooled storage, zeroing it.
func (t *CPUTensor) reset(size int) {
	switch t.dtype {
	case Float32:
		if cap(t.f32) < size {
			t.f32 = make([]float32, size)
			return
		}
		t.f32 = t.f32[:size]
		clear(t.f32)
	case Int32:
		if cap(t.i32) < size {
			t.i32 = make([]int32, size)
			return
		}
		t.i32 = t.i32[:size]
		clear(t.i32)
	case Bool:
		if cap(t.b) < size {
			t.b = make([]uint8, size)
			return
		}
		t.b = t.b[:size]
		clear(t.b)
	case Complex64:
		if cap(t.c64) < size {
			t.c64 = make([]complex64, size)
			return
		}
		t.c64 = t.c64[:size]
		clear(t.c64)
	case String:
		if cap(t.str) < size {
			t.str = make([]string, size)
			return
		}
		t.str = t.str[:size]
		clear(t.str)
	default:
		panic(fmt.Sprintf("reset: %v", t.dtype))
	}
}

func (t *CPUTensor) fill(data any, size int) error {
	n := -1
	switch d := data.(type) {
	case []float32:
		if t.dtype == Float32 && len(d) == size {
			t.f32 = make([]float32, size)
			copy(t.f32, d)
			return nil
		}
		n = len(d)
	case []int32:
		if t.dtype == Int32 && len(d) == size {
			t.i32 = make([]int32, size)
			copy(t.i32, d)
			return nil
		}
		n = len(d)
	case []uint8:
		if t.dtype == Bool && len(d) == size {
			t.b = make([]uint8, size)
			for i, v := range d {
				if v != 0 {
					t.b[i] = 1
				}
			}
			return nil
		}
		n = len(d)
	case []bool:
		if t.dtype == Bool && len(d) == size {
			t.b = make([]uint8, size)
			for i, v := range d {
				if v {
					t.b[i] = 1
				}
			}
			return nil
		}
		n = len(d)
	case []complex64:
		if t.dtype == Complex64 && len(d) == size {
			t.c64 = make([]complex64, size)
			copy(t.c64, d)
			return nil
		}
		n = len(d)
	case []string:
		if t.dtype == String && len(d) == size {
			t.str = make([]string, size)
			copy(t.str, d)
			return nil
		}
		n = len(d)
	}
	if n >= 0 && n != size {
		return fmt.Errorf("%w: %d values for shape %s", ErrShapeMismatch, n, t.shape)
	}
	return fmt.Errorf("%w: %T for %v", ErrDataMismatch, data, t.dtype)
}

// ParallelRows splits [0, rows) across workers, the way matmul rows were split.
// Small inputs run inline.
func ParallelRows(rows int, fn func(start, end int)) {
	if rows <= 0 {
		return
	}
	workers := numWorkers
	if limit := rows / minRowsPerWorker; limit < workers {
		workers = limit
	}
	if workers <= 1 {
		fn(0, rows)
		return
	}

	var wg sync.WaitGroup
	rowsPerWorker := (rows + workers - 1) / workers
	for w := 0; w < workers; w++ {
		startRow := w * rowsPerWorker
		endRow := startRow + rowsPerWorker
		if startRow >= rows {
			break
		}
		if endRow > rows {
			endRow = rows
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(startRow, endRow)
	}
	wg.Wait()
}
