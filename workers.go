package fir

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/alitto/pond"
)

// nWorkers is observed once at startup and does not change during a run.
// Per-worker scratch buffers (the Siddon path arrays) are sized from it.
var nWorkers = runtime.NumCPU()

// pool is the fixed worker pool shared by every parallel kernel.
var pool = pond.New(nWorkers, 0, pond.MinWorkers(nWorkers))

// NWorkers returns the number of workers in the process pool.
func NWorkers() int {
	return nWorkers
}

// runChunks splits [0, n) into one contiguous chunk per worker and runs
// fn(worker, lo, hi) for each non-empty chunk on the pool. The worker id is
// stable within the call and can be used to index per-worker scratch.
// It returns once every chunk has completed.
func runChunks(n int, fn func(worker, lo, hi int)) {
	if n <= 0 {
		return
	}

	chunk := (n + nWorkers - 1) / nWorkers

	var wg sync.WaitGroup
	for worker := 0; worker*chunk < n; worker++ {
		w := worker
		lo := w * chunk
		hi := lo + chunk
		if hi > n {
			hi = n
		}

		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			fn(w, lo, hi)
		})
	}

	wg.Wait()
}

// atomicAddFloat32 accumulates delta into *addr with a compare-and-swap
// loop over the bit pattern. Back-projection updates overlapping voxels
// from many workers at once; the result is associativity-dependent on the
// schedule, which is accepted for this domain.
func atomicAddFloat32(addr *float32, delta float32) {
	p := (*uint32)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint32(p)
		upd := math.Float32bits(math.Float32frombits(old) + delta)
		if atomic.CompareAndSwapUint32(p, old, upd) {
			return
		}
	}
}
