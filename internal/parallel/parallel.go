// Package parallel provides the data-parallel loop used by host-side kernel execution.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1024, // Elementwise bodies are cheap; keep chunks large.
	}
}

// Sequential returns a Config that always runs on the calling goroutine.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}
}

// Chunks splits [0, n) into the contiguous ranges ForRange hands to workers.
func Chunks(n int, cfg Config) [][2]int {
	if n <= 0 {
		return nil
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinChunkSize {
		return [][2]int{{0, n}}
	}
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)
	chunks := make([][2]int, 0, (n+chunkSize-1)/chunkSize)
	for start := 0; start < n; start += chunkSize {
		chunks = append(chunks, [2]int{start, min(start+chunkSize, n)})
	}
	return chunks
}

// ForRange executes f(lo, hi) over disjoint ranges covering [0, n).
// Falls back to a single sequential call if parallelism is disabled or n is too small.
func ForRange(n int, f func(lo, hi int), cfg Config) {
	chunks := Chunks(n, cfg)
	if len(chunks) == 1 {
		f(chunks[0][0], chunks[0][1])
		return
	}

	var wg sync.WaitGroup
	for _, c := range chunks {
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(c[0], c[1])
	}
	wg.Wait()
}
