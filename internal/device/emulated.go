package device

import (
	"fmt"
	"sync"

	"github.com/born-ml/accel/internal/parallel"
)

// Config controls an emulated device.
type Config struct {
	Name       string          // Device name reported by Name()
	Capacity   int64           // Bytes available to live allocations; 0 means unlimited
	Async      bool            // Launch returns once queued; errors surface at Synchronize
	Poison     bool            // Fill fresh allocations with PoisonByte
	PoisonByte byte            // 0xFF makes uninitialized float memory read as NaN
	StreamSize int             // Queue depth of the device stream
	Parallel   parallel.Config // Worker fan-out used by Launch
}

// DefaultConfig returns a synchronous 1 GiB device that poisons fresh memory.
func DefaultConfig() Config {
	return Config{
		Name:       "emulated:0",
		Capacity:   1 << 30,
		Poison:     true,
		PoisonByte: 0xFF,
		StreamSize: 64,
		Parallel:   parallel.DefaultConfig(),
	}
}

// block is an emulated device allocation.
type block struct {
	id    uint64
	data  []byte
	owner *Emulated
}

// ID implements Allocation.
func (b *block) ID() uint64 { return b.id }

// Size implements Allocation.
func (b *block) Size() int { return len(b.data) }

// Emulated is a Memory backed by Go heap memory.
//
// It behaves like discrete device memory: contents are only reachable through
// Upload, Download and Launch, fresh allocations are not zeroed, and all work
// runs on a single in-order stream.
type Emulated struct {
	cfg    Config
	stream *stream

	mu      sync.Mutex
	live    map[uint64]*block
	pool    blockPool
	nextID  uint64
	stats   Stats
	pending error // First deferred async error since the last Synchronize
	closed  bool
}

// NewEmulated creates an emulated device.
func NewEmulated(cfg Config) *Emulated {
	if cfg.Name == "" {
		cfg.Name = "emulated:0"
	}
	if cfg.StreamSize <= 0 {
		cfg.StreamSize = 64
	}
	if cfg.Parallel.NumWorkers <= 0 {
		cfg.Parallel = parallel.DefaultConfig()
	}
	return &Emulated{
		cfg:    cfg,
		stream: newStream(cfg.StreamSize),
		live:   make(map[uint64]*block),
		stats:  Stats{Capacity: cfg.Capacity},
	}
}

// Name implements Memory.
func (e *Emulated) Name() string {
	return e.cfg.Name
}

// Alloc implements Memory.
func (e *Emulated) Alloc(size int) (Allocation, error) {
	if size < 0 {
		return nil, fmt.Errorf("%s: %w: %d", e.cfg.Name, ErrInvalidSize, size)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("%s: alloc: %w", e.cfg.Name, ErrClosed)
	}

	data := e.pool.take(size)
	if data != nil {
		e.stats.PoolHits++
	} else {
		reserve := int64(alignedSize(size))
		if e.cfg.Capacity > 0 {
			if e.stats.BytesInUse+reserve > e.cfg.Capacity {
				return nil, &AllocationError{
					Device:    e.cfg.Name,
					Requested: size,
					InUse:     e.stats.BytesInUse,
					Capacity:  e.cfg.Capacity,
				}
			}
			// Idle pooled blocks count against capacity; release them first.
			e.pool.shrink(e.cfg.Capacity - e.stats.BytesInUse - reserve)
		}
		data = make([]byte, size, reserve)
		e.stats.PoolMisses++
	}

	if e.cfg.Poison {
		for i := range data {
			data[i] = e.cfg.PoisonByte
		}
	}

	e.nextID++
	b := &block{id: e.nextID, data: data, owner: e}
	e.live[b.id] = b

	e.stats.Allocs++
	e.stats.BytesInUse += int64(cap(data))
	e.stats.PeakBytes = max(e.stats.PeakBytes, e.stats.BytesInUse)
	e.stats.PooledBytes = e.pool.bytes

	return b, nil
}

// Free implements Memory.
func (e *Emulated) Free(a Allocation) error {
	e.mu.Lock()
	b, err := e.lookupLocked(a)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("free: %w", err)
	}
	delete(e.live, b.id)
	e.stats.Frees++
	e.stats.BytesInUse -= int64(cap(b.data))

	data := b.data
	b.data = nil
	if !e.cfg.Async {
		e.pool.put(data)
		e.stats.PooledBytes = e.pool.bytes
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	// Queued work may still read the block; recycle it in stream order.
	e.stream.submit(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.closed {
			e.pool.put(data)
			e.stats.PooledBytes = e.pool.bytes
		}
	})
	return nil
}

// Upload implements Memory.
func (e *Emulated) Upload(dst Allocation, src []byte) error {
	b, err := e.lookup(dst)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if len(src) > len(b.data) {
		return fmt.Errorf("%s: upload: %w: %d bytes into %d-byte allocation",
			e.cfg.Name, ErrInvalidSize, len(src), len(b.data))
	}
	e.count(func(s *Stats) { s.Uploads++ })
	data := b.data
	return e.stream.submitWait(func() error {
		copy(data, src)
		return nil
	})
}

// Download implements Memory.
func (e *Emulated) Download(dst []byte, src Allocation) error {
	b, err := e.lookup(src)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if len(dst) > len(b.data) {
		return fmt.Errorf("%s: download: %w: %d bytes from %d-byte allocation",
			e.cfg.Name, ErrInvalidSize, len(dst), len(b.data))
	}
	e.count(func(s *Stats) { s.Downloads++ })
	data := b.data
	return e.stream.submitWait(func() error {
		copy(dst, data)
		return nil
	})
}

// Launch implements Memory.
func (e *Emulated) Launch(job Job) error {
	out, err := e.lookup(job.Out)
	if err != nil {
		return fmt.Errorf("launch %s: output: %w", job.Name, err)
	}
	ins := make([][]byte, len(job.Ins))
	for i, a := range job.Ins {
		b, err := e.lookup(a)
		if err != nil {
			return fmt.Errorf("launch %s: input %d: %w", job.Name, i, err)
		}
		ins[i] = b.data
	}
	e.count(func(s *Stats) { s.Launches++ })

	outData := out.data
	task := func() error {
		return job.finish(runChunks(job, outData, ins, e.cfg.Parallel))
	}
	if !e.cfg.Async {
		return e.stream.submitWait(task)
	}

	e.stream.submit(func() {
		if err := task(); err != nil {
			e.mu.Lock()
			if e.pending == nil {
				e.pending = err
			}
			e.mu.Unlock()
		}
	})
	return nil
}

// Synchronize implements Memory.
func (e *Emulated) Synchronize() error {
	e.stream.wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.pending
	e.pending = nil
	return err
}

// Stats implements Memory.
func (e *Emulated) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Close implements Memory. Live allocations become invalid.
func (e *Emulated) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	e.stream.wait()
	e.stream.close()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.pool.clear()
	e.live = make(map[uint64]*block)
	e.stats.PooledBytes = 0
	return nil
}

// PooledBlocks returns the number of idle blocks kept for reuse.
func (e *Emulated) PooledBlocks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.count()
}

func (e *Emulated) lookup(a Allocation) (*block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lookupLocked(a)
}

// lookupLocked resolves a to a live block owned by e (must hold mu).
func (e *Emulated) lookupLocked(a Allocation) (*block, error) {
	if e.closed {
		return nil, fmt.Errorf("%s: %w", e.cfg.Name, ErrClosed)
	}
	b, ok := a.(*block)
	if !ok || b == nil || b.owner != e {
		return nil, fmt.Errorf("%s: %w: foreign allocation %T", e.cfg.Name, ErrInvalidAllocation, a)
	}
	if _, live := e.live[b.id]; !live {
		return nil, fmt.Errorf("%s: %w: allocation %d", e.cfg.Name, ErrInvalidAllocation, b.id)
	}
	return b, nil
}

func (e *Emulated) count(f func(*Stats)) {
	e.mu.Lock()
	f(&e.stats)
	e.mu.Unlock()
}

// runChunks fans a job out over disjoint output ranges and returns the first error.
func runChunks(job Job, out []byte, ins [][]byte, cfg parallel.Config) error {
	var (
		mu       sync.Mutex
		firstErr error
	)
	parallel.ForRange(job.N, func(lo, hi int) {
		if err := job.Run(out, ins, lo, hi); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}
	}, cfg)
	return firstErr
}
