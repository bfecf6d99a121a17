package device

// sizeClass represents different block size categories for pooling.
type sizeClass int

const (
	// smallClass for blocks < 4KB.
	smallClass sizeClass = iota
	// mediumClass for blocks 4KB-1MB.
	mediumClass
	// largeClass for blocks > 1MB.
	largeClass
)

const (
	// Size thresholds for block categories.
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPoolSize     = 100         // Max blocks per category

	// blockAlignment rounds reserved sizes up to a cache line.
	blockAlignment = 64
)

// blockPool keeps freed blocks for reuse. Not safe for concurrent use;
// the owning device holds its lock.
type blockPool struct {
	classes [3][][]byte
	bytes   int64
}

// categorize determines the size category for a block.
func categorize(size int) sizeClass {
	if size < smallThreshold {
		return smallClass
	}
	if size < mediumThreshold {
		return mediumClass
	}
	return largeClass
}

// alignedSize rounds size up to blockAlignment.
func alignedSize(size int) int {
	return (size + blockAlignment - 1) &^ (blockAlignment - 1)
}

// take returns a pooled block able to hold size bytes, or nil.
// Blocks more than twice the requested size are left for larger requests.
func (p *blockPool) take(size int) []byte {
	c := categorize(alignedSize(size))
	pool := p.classes[c]
	for i, buf := range pool {
		if cap(buf) >= size && cap(buf) <= 2*alignedSize(size) {
			p.classes[c] = append(pool[:i], pool[i+1:]...)
			p.bytes -= int64(cap(buf))
			return buf[:size]
		}
	}
	return nil
}

// put returns a block to the pool. Reports false if the category is full,
// in which case the caller drops the block.
func (p *blockPool) put(buf []byte) bool {
	c := categorize(cap(buf))
	if len(p.classes[c]) >= maxPoolSize {
		return false
	}
	p.classes[c] = append(p.classes[c], buf[:0])
	p.bytes += int64(cap(buf))
	return true
}

// shrink drops pooled blocks, largest category first, until at most
// target bytes remain pooled.
func (p *blockPool) shrink(target int64) {
	for c := largeClass; c >= smallClass && p.bytes > target; c-- {
		for len(p.classes[c]) > 0 && p.bytes > target {
			last := p.classes[c][len(p.classes[c])-1]
			p.classes[c] = p.classes[c][:len(p.classes[c])-1]
			p.bytes -= int64(cap(last))
		}
	}
}

// clear drops every pooled block.
func (p *blockPool) clear() {
	p.shrink(0)
}

// count returns the number of pooled blocks.
func (p *blockPool) count() int {
	return len(p.classes[smallClass]) + len(p.classes[mediumClass]) + len(p.classes[largeClass])
}
