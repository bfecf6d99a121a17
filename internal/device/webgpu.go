//go:build windows

package device

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// workgroupSize is the number of invocations per compute workgroup.
const workgroupSize = 256

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// gpuBlock is a WebGPU storage buffer allocation.
type gpuBlock struct {
	id      uint64
	buffer  *wgpu.Buffer
	size    int
	aligned uint64 // Buffer size rounded up to COPY_BUFFER_ALIGNMENT
	owner   *WebGPU
}

// ID implements Allocation.
func (b *gpuBlock) ID() uint64 { return b.id }

// Size implements Allocation.
func (b *gpuBlock) Size() int { return b.size }

// WebGPU is a Memory backed by GPU storage buffers.
//
// WebGPU zero-initializes buffers, so fresh allocations read as zero here;
// callers must still treat them as undefined.
type WebGPU struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	capacity int64

	mu        sync.Mutex
	live      map[uint64]*gpuBlock
	nextID    uint64
	stats     Stats
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	closed    bool
}

// IsWebGPUAvailable checks whether a WebGPU adapter can be acquired.
func IsWebGPUAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// NewWebGPU opens the high-performance WebGPU adapter as a Memory.
// capacity bounds live allocations in bytes; 0 means unlimited.
func NewWebGPU(capacity int64) (mem Memory, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			mem = nil
			err = fmt.Errorf("webgpu: %w: native library not available: %v", ErrUnavailable, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: %w: failed to request adapter: %w", ErrUnavailable, adapterErr)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: %w: failed to request device: %w", ErrUnavailable, deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: %w: failed to get queue", ErrUnavailable)
	}

	return &WebGPU{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		capacity:  capacity,
		live:      make(map[uint64]*gpuBlock),
		stats:     Stats{Capacity: capacity},
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// Name implements Memory.
func (w *WebGPU) Name() string {
	return "webgpu:0"
}

// Alloc implements Memory.
func (w *WebGPU) Alloc(size int) (Allocation, error) {
	if size < 0 {
		return nil, fmt.Errorf("webgpu: %w: %d", ErrInvalidSize, size)
	}
	aligned := alignBuffer(size)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, fmt.Errorf("webgpu: alloc: %w", ErrClosed)
	}
	if w.capacity > 0 && w.stats.BytesInUse+int64(aligned) > w.capacity { //nolint:gosec // G115: aligned fits in int64
		return nil, &AllocationError{
			Device:    w.Name(),
			Requested: size,
			InUse:     w.stats.BytesInUse,
			Capacity:  w.capacity,
		}
	}

	buffer := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: storageUsage,
		Size:  aligned,
	})
	if buffer == nil {
		return nil, &AllocationError{Device: w.Name(), Requested: size, InUse: w.stats.BytesInUse, Capacity: w.capacity}
	}

	w.nextID++
	b := &gpuBlock{id: w.nextID, buffer: buffer, size: size, aligned: aligned, owner: w}
	w.live[b.id] = b

	w.stats.Allocs++
	w.stats.PoolMisses++
	w.stats.BytesInUse += int64(aligned) //nolint:gosec // G115: aligned fits in int64
	w.stats.PeakBytes = max(w.stats.PeakBytes, w.stats.BytesInUse)
	return b, nil
}

// Free implements Memory.
func (w *WebGPU) Free(a Allocation) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, err := w.lookupLocked(a)
	if err != nil {
		return fmt.Errorf("free: %w", err)
	}
	delete(w.live, b.id)
	b.buffer.Release()
	w.stats.Frees++
	w.stats.BytesInUse -= int64(b.aligned) //nolint:gosec // G115: aligned fits in int64
	return nil
}

// Upload implements Memory. Data goes through a mapped staging buffer.
func (w *WebGPU) Upload(dst Allocation, src []byte) error {
	b, err := w.lookup(dst)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if len(src) > b.size {
		return fmt.Errorf("webgpu: upload: %w: %d bytes into %d-byte allocation", ErrInvalidSize, len(src), b.size)
	}
	if len(src) == 0 {
		return nil
	}
	w.count(func(s *Stats) { s.Uploads++ })

	staging := w.createMapped(src, wgpu.BufferUsageCopySrc)
	defer staging.Release()

	encoder := w.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, b.buffer, 0, alignBuffer(len(src)))
	cmdBuffer := encoder.Finish(nil)
	w.queue.Submit(cmdBuffer)
	return nil
}

// Download implements Memory.
func (w *WebGPU) Download(dst []byte, src Allocation) error {
	b, err := w.lookup(src)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if len(dst) > b.size {
		return fmt.Errorf("webgpu: download: %w: %d bytes from %d-byte allocation", ErrInvalidSize, len(dst), b.size)
	}
	if len(dst) == 0 {
		return nil
	}
	w.count(func(s *Stats) { s.Downloads++ })

	data, err := w.readBuffer(b.buffer, alignBuffer(len(dst)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// Launch implements Memory. Shader jobs are dispatched as compute passes;
// other jobs round-trip through host memory.
func (w *WebGPU) Launch(job Job) error {
	out, err := w.lookup(job.Out)
	if err != nil {
		return fmt.Errorf("launch %s: output: %w", job.Name, err)
	}
	ins := make([]*gpuBlock, len(job.Ins))
	for i, a := range job.Ins {
		if ins[i], err = w.lookup(a); err != nil {
			return fmt.Errorf("launch %s: input %d: %w", job.Name, i, err)
		}
	}
	w.count(func(s *Stats) { s.Launches++ })

	if job.Shader != nil && job.Shader.Arity == len(ins) && job.N > 0 {
		return job.finish(w.dispatch(job, out, ins))
	}
	return job.finish(w.hostFallback(job, out, ins))
}

// Synchronize implements Memory. Submissions execute in queue order and
// readback blocks on mapping, so there is no deferred work to wait for.
func (w *WebGPU) Synchronize() error {
	return nil
}

// Stats implements Memory.
func (w *WebGPU) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Close implements Memory.
func (w *WebGPU) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	for _, b := range w.live {
		b.buffer.Release()
	}
	w.live = nil
	for _, p := range w.pipelines {
		p.Release()
	}
	for _, s := range w.shaders {
		s.Release()
	}
	if w.queue != nil {
		w.queue.Release()
	}
	if w.device != nil {
		w.device.Release()
	}
	if w.adapter != nil {
		w.adapter.Release()
	}
	if w.instance != nil {
		w.instance.Release()
	}
	return nil
}

func (w *WebGPU) dispatch(job Job, out *gpuBlock, ins []*gpuBlock) error {
	pipeline := w.pipeline(job.Shader)

	params := make([]byte, 16) // 16-byte aligned
	binary.LittleEndian.PutUint32(params[0:4], uint32(job.N)) //nolint:gosec // G115: element count fits in u32 for dispatch
	bufferParams := w.createMapped(params, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	defer bufferParams.Release()

	n := uint32(len(ins)) //nolint:gosec // G115: at most three operands
	entries := make([]wgpu.BindGroupEntry, 0, n+2)
	for i, b := range ins {
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), b.buffer, 0, b.aligned)) //nolint:gosec // G115: binding index is small
	}
	entries = append(entries,
		wgpu.BufferBindingEntry(n, out.buffer, 0, out.aligned),
		wgpu.BufferBindingEntry(n+1, bufferParams, 0, 16),
	)

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := w.device.CreateBindGroupSimple(bindGroupLayout, entries)
	defer bindGroup.Release()

	encoder := w.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)

	workgroups := uint32((job.N + workgroupSize - 1) / workgroupSize) //nolint:gosec // G115: workgroup count is non-negative
	computePass.DispatchWorkgroups(workgroups, 1, 1)
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	w.queue.Submit(cmdBuffer)
	return nil
}

func (w *WebGPU) hostFallback(job Job, out *gpuBlock, ins []*gpuBlock) error {
	hostIns := make([][]byte, len(ins))
	for i, b := range ins {
		data, err := w.readBuffer(b.buffer, b.aligned)
		if err != nil {
			return fmt.Errorf("launch %s: input %d: %w", job.Name, i, err)
		}
		hostIns[i] = data[:b.size]
	}
	hostOut := make([]byte, out.size)
	if err := job.Run(hostOut, hostIns, 0, job.N); err != nil {
		return err
	}
	if out.size == 0 {
		return nil
	}

	staging := w.createMapped(hostOut, wgpu.BufferUsageCopySrc)
	defer staging.Release()

	encoder := w.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, out.buffer, 0, alignBuffer(out.size))
	cmdBuffer := encoder.Finish(nil)
	w.queue.Submit(cmdBuffer)
	return nil
}

// pipeline returns a cached compute pipeline for the shader expression.
func (w *WebGPU) pipeline(s *Shader) *wgpu.ComputePipeline {
	key := fmt.Sprintf("%d:%s", s.Arity, s.Expr)

	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pipelines[key]; ok {
		return p
	}
	shader := w.device.CreateShaderModuleWGSL(elementwiseWGSL(s))
	w.shaders[key] = shader
	p := w.device.CreateComputePipelineSimple(nil, shader, "main")
	w.pipelines[key] = p
	return p
}

// createMapped creates a buffer initialized with data via MappedAtCreation.
func (w *WebGPU) createMapped(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := alignBuffer(len(data))
	buffer := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// readBuffer reads data back from a GPU buffer to CPU memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (w *WebGPU) readBuffer(srcBuffer *wgpu.Buffer, size uint64) ([]byte, error) {
	stagingBuffer := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer stagingBuffer.Release()

	encoder := w.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(srcBuffer, 0, stagingBuffer, 0, size)
	cmdBuffer := encoder.Finish(nil)
	w.queue.Submit(cmdBuffer)

	if err := stagingBuffer.MapAsync(w.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}

	mappedPtr := stagingBuffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	stagingBuffer.Unmap()

	return result, nil
}

func (w *WebGPU) lookup(a Allocation) (*gpuBlock, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lookupLocked(a)
}

func (w *WebGPU) lookupLocked(a Allocation) (*gpuBlock, error) {
	if w.closed {
		return nil, fmt.Errorf("webgpu: %w", ErrClosed)
	}
	b, ok := a.(*gpuBlock)
	if !ok || b == nil || b.owner != w {
		return nil, fmt.Errorf("webgpu: %w: foreign allocation %T", ErrInvalidAllocation, a)
	}
	if _, live := w.live[b.id]; !live {
		return nil, fmt.Errorf("webgpu: %w: allocation %d", ErrInvalidAllocation, b.id)
	}
	return b, nil
}

func (w *WebGPU) count(f func(*Stats)) {
	w.mu.Lock()
	f(&w.stats)
	w.mu.Unlock()
}

// alignBuffer rounds size up to 4 bytes with a 4-byte minimum.
func alignBuffer(size int) uint64 {
	n := uint64(max(size, 4)) //nolint:gosec // G115: size is non-negative
	return (n + 3) &^ 3
}

// elementwiseWGSL renders a compute shader evaluating s.Expr per element.
func elementwiseWGSL(s *Shader) string {
	names := []string{"a", "b", "c"}[:s.Arity]
	var sb strings.Builder
	for i, n := range names {
		fmt.Fprintf(&sb, "@group(0) @binding(%d) var<storage, read> in_%s: array<f32>;\n", i, n)
	}
	fmt.Fprintf(&sb, "@group(0) @binding(%d) var<storage, read_write> result: array<f32>;\n", s.Arity)
	sb.WriteString("\nstruct Params {\n    size: u32,\n}\n")
	fmt.Fprintf(&sb, "@group(0) @binding(%d) var<uniform> params: Params;\n\n", s.Arity+1)
	fmt.Fprintf(&sb, "@compute @workgroup_size(%d)\n", workgroupSize)
	sb.WriteString("fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {\n")
	sb.WriteString("    let idx = global_id.x;\n")
	sb.WriteString("    if (idx < params.size) {\n")
	for _, n := range names {
		fmt.Fprintf(&sb, "        let %s = in_%s[idx];\n", n, n)
	}
	fmt.Fprintf(&sb, "        result[idx] = %s;\n", s.Expr)
	sb.WriteString("    }\n}\n")
	return sb.String()
}
