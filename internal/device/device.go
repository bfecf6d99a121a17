// Package device implements the memory spaces that device buffers live in.
//
// A Memory allocates opaque device blocks, moves bytes between host and device,
// and runs elementwise jobs against device-resident blocks. All work issued to
// one Memory executes in issue order. Memories are safe for use by multiple
// goroutines, but a single Allocation must not be written concurrently.
package device

// Allocation is an opaque handle to a block of device memory.
type Allocation interface {
	// ID is unique per Memory for the lifetime of the process.
	ID() uint64
	// Size is the usable size in bytes.
	Size() int
}

// Memory is a device memory space.
type Memory interface {
	// Name identifies the device, e.g. "emulated:0" or "webgpu:NVIDIA ...".
	Name() string

	// Alloc reserves size bytes without initializing them.
	// Returns an *AllocationError when the device is out of memory.
	Alloc(size int) (Allocation, error)

	// Free releases an allocation. Freeing twice returns ErrInvalidAllocation.
	Free(a Allocation) error

	// Upload copies src into the start of dst. Blocks until complete.
	Upload(dst Allocation, src []byte) error

	// Download copies the start of src into dst. Blocks until complete.
	Download(dst []byte, src Allocation) error

	// Launch runs an elementwise job. On asynchronous devices it returns once
	// the job is queued, and execution errors are reported by Synchronize.
	Launch(job Job) error

	// Synchronize waits for all issued work and returns the first deferred
	// error raised since the previous call.
	Synchronize() error

	// Stats returns a snapshot of allocation and transfer counters.
	Stats() Stats

	// Close releases every resource held by the device.
	Close() error
}

// Job is one batched elementwise kernel invocation over N output elements.
type Job struct {
	Name string       // Kernel name, for errors and diagnostics
	N    int          // Number of output elements
	Out  Allocation   // Output block
	Ins  []Allocation // Device-resident inputs, in operand order

	// Run evaluates output elements [lo, hi) given the raw bytes of Out and Ins.
	// It is called concurrently on disjoint ranges.
	Run func(out []byte, ins [][]byte, lo, hi int) error

	// Shader optionally describes the job as a float32 WGSL expression so a
	// GPU device can run it natively. Devices that cannot use it call Run.
	Shader *Shader

	// Done, if set, is called once after every range has run, with the first
	// error or nil. Calls are made in issue order.
	Done func(err error)
}

// finish reports the outcome of a job to its Done hook and returns err.
func (j Job) finish(err error) error {
	if j.Done != nil {
		j.Done(err)
	}
	return err
}

// Shader is a same-shape float32 elementwise expression over operands a, b, c.
type Shader struct {
	Expr  string
	Arity int
}

// Stats contains device counters.
type Stats struct {
	Allocs      uint64 // Successful Alloc calls
	Frees       uint64 // Successful Free calls
	PoolHits    uint64 // Allocs served from previously freed blocks
	PoolMisses  uint64 // Allocs that reserved new memory
	Uploads     uint64
	Downloads   uint64
	Launches    uint64
	BytesInUse  int64 // Bytes held by live allocations
	PeakBytes   int64 // High-water mark of BytesInUse
	PooledBytes int64 // Bytes held by idle pooled blocks
	Capacity    int64 // 0 means unlimited
}
