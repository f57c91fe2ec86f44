package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a generic object pool.
type Pool[T any] struct {
	pool    sync.Pool
	newFunc func() T
	reset   func(*T)

	// Metrics
	gets   atomic.Int64
	puts   atomic.Int64
	news   atomic.Int64
	resets atomic.Int64
}

// NewPool creates a new object pool.
func NewPool[T any](newFunc func() T, resetFunc func(*T)) *Pool[T] {
	p := &Pool[T]{
		newFunc: newFunc,
		reset:   resetFunc,
	}
	p.pool.New = func() any {
		p.news.Add(1)
		return newFunc()
	}
	return p
}

// Get retrieves an object from the pool.
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool.
func (p *Pool[T]) Put(obj T) {
	p.puts.Add(1)
	if p.reset != nil {
		p.resets.Add(1)
		p.reset(&obj)
	}
	p.pool.Put(obj)
}

// Stats returns pool statistics.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Gets:   p.gets.Load(),
		Puts:   p.puts.Load(),
		News:   p.news.Load(),
		Resets: p.resets.Load(),
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Gets   int64 `json:"gets"`
	Puts   int64 `json:"puts"`
	News   int64 `json:"news"`
	Resets int64 `json:"resets"`
}

// HitRate returns the cache hit rate.
func (s PoolStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

// Float64Buffers hands out zeroed []float64 scratch buffers of a requested
// length. Buffers that are too small are grown on Get.
type Float64Buffers struct {
	pool  *Pool[*[]float64]
	grows atomic.Int64
}

// NewFloat64Buffers creates a buffer pool whose fresh buffers start with
// the given capacity.
func NewFloat64Buffers(initCap int) *Float64Buffers {
	return &Float64Buffers{
		pool: NewPool(
			func() *[]float64 {
				buf := make([]float64, 0, initCap)
				return &buf
			},
			func(b **[]float64) {
				**b = (**b)[:0]
			},
		),
	}
}

// Get returns a zeroed buffer of length n.
func (b *Float64Buffers) Get(n int) []float64 {
	ptr := b.pool.Get()
	buf := *ptr
	if cap(buf) < n {
		b.grows.Add(1)
		buf = make([]float64, n)
		return buf
	}
	buf = buf[:n]
	clear(buf)
	return buf
}

// Put returns a buffer to the pool.
func (b *Float64Buffers) Put(buf []float64) {
	if buf == nil {
		return
	}
	b.pool.Put(&buf)
}

// Stats returns pool statistics.
func (b *Float64Buffers) Stats() PoolStats {
	return b.pool.Stats()
}

// Grows returns how many Get calls had to allocate a larger buffer.
func (b *Float64Buffers) Grows() int64 {
	return b.grows.Load()
}

// Float64 is the shared scratch pool used by the convolution kernels.
var Float64 = NewFloat64Buffers(1 << 16)
