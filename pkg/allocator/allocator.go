// Package allocator implements a free-list memory allocator over a fixed
// address space [0, total): first/best/worst/next fit placement, split
// on partial allocation, and coalescing of adjacent free blocks on
// deallocation. Grounded on the original source's memory_manager module,
// which keeps running total_allocated/total_free counters rather than
// recomputing by walking the list on every query — this implementation
// keeps the same counters, so Stats() is O(1); Fragmentation() still
// scans the block list for the largest free block.
package allocator

import (
	"sort"
	"sync"

	"github.com/Snider/Fabric/pkg/ferrors"
)

// Fit selects the placement algorithm.
type Fit int

const (
	FirstFit Fit = iota
	BestFit
	WorstFit
	NextFit
)

type block struct {
	start     int
	size      int
	allocated bool
	ownerPID  string
}

// Allocator manages a singly linked (slice-backed, start-ordered) list of
// blocks spanning [0, total).
type Allocator struct {
	mu     sync.Mutex
	total  int
	blocks []*block // kept sorted by start
	owners map[string]*block

	cursor int // next-fit scan position, an index into blocks

	totalAllocated int
	totalFree      int
}

// New returns an Allocator managing total bytes, initially one free
// block.
func New(total int) *Allocator {
	return &Allocator{
		total:     total,
		blocks:    []*block{{start: 0, size: total, allocated: false}},
		owners:    make(map[string]*block),
		totalFree: total,
	}
}

// Allocate finds a free block per fit for pid's size-byte request,
// splitting it if larger than needed, and returns the starting address.
// Rejects if pid already holds memory.
func (a *Allocator) Allocate(pid string, size int, fit Fit) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.owners[pid]; exists {
		return 0, ferrors.Validation("pid %q already holds memory", pid)
	}
	if size <= 0 {
		return 0, ferrors.Validation("allocation size must be positive")
	}

	idx := a.findBlockLocked(size, fit)
	if idx < 0 {
		return 0, ferrors.ExecutionError("no free block large enough for %d bytes", size)
	}

	target := a.blocks[idx]
	if target.size == size {
		target.allocated = true
		target.ownerPID = pid
		a.owners[pid] = target
	} else {
		allocated := &block{start: target.start, size: size, allocated: true, ownerPID: pid}
		target.start += size
		target.size -= size

		newBlocks := make([]*block, 0, len(a.blocks)+1)
		newBlocks = append(newBlocks, a.blocks[:idx]...)
		newBlocks = append(newBlocks, allocated, target)
		newBlocks = append(newBlocks, a.blocks[idx+1:]...)
		a.blocks = newBlocks
		a.owners[pid] = allocated
		idx++ // the free remainder is now at idx
	}

	a.totalAllocated += size
	a.totalFree -= size
	a.cursor = idx
	return a.owners[pid].start, nil
}

// findBlockLocked returns the index of the chosen free block, or -1.
func (a *Allocator) findBlockLocked(size int, fit Fit) int {
	switch fit {
	case FirstFit:
		for i, b := range a.blocks {
			if !b.allocated && b.size >= size {
				return i
			}
		}
		return -1
	case BestFit:
		best := -1
		for i, b := range a.blocks {
			if !b.allocated && b.size >= size {
				if best < 0 || b.size < a.blocks[best].size {
					best = i
				}
			}
		}
		return best
	case WorstFit:
		worst := -1
		for i, b := range a.blocks {
			if !b.allocated && b.size >= size {
				if worst < 0 || b.size > a.blocks[worst].size {
					worst = i
				}
			}
		}
		return worst
	case NextFit:
		n := len(a.blocks)
		for i := 0; i < n; i++ {
			idx := (a.cursor + i) % n
			b := a.blocks[idx]
			if !b.allocated && b.size >= size {
				return idx
			}
		}
		return -1
	default:
		return -1
	}
}

// Deallocate frees pid's block and coalesces adjacent free blocks.
func (a *Allocator) Deallocate(pid string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.owners[pid]
	if !ok {
		return ferrors.NotFound("pid %q holds no memory", pid)
	}

	b.allocated = false
	b.ownerPID = ""
	delete(a.owners, pid)
	a.totalAllocated -= b.size
	a.totalFree += b.size

	a.coalesceLocked()
	return nil
}

// coalesceLocked merges adjacent free blocks. Must be called with the
// lock held.
func (a *Allocator) coalesceLocked() {
	sort.Slice(a.blocks, func(i, j int) bool { return a.blocks[i].start < a.blocks[j].start })

	merged := a.blocks[:0:0]
	for _, b := range a.blocks {
		if n := len(merged); n > 0 {
			prev := merged[n-1]
			if !prev.allocated && !b.allocated && prev.start+prev.size == b.start {
				prev.size += b.size
				continue
			}
		}
		merged = append(merged, b)
	}
	a.blocks = merged
	a.cursor = 0
}

// Fragmentation reports 1 − (largest_free / total_free), or 0 when
// total_free is 0.
func (a *Allocator) Fragmentation() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.totalFree == 0 {
		return 0
	}
	largest := 0
	for _, b := range a.blocks {
		if !b.allocated && b.size > largest {
			largest = b.size
		}
	}
	return 1 - float64(largest)/float64(a.totalFree)
}

// Stats reports the running allocated/free byte totals.
func (a *Allocator) Stats() (allocated, free int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalAllocated, a.totalFree
}

// BlockInfo describes one block for inspection/testing.
type BlockInfo struct {
	Start     int
	Size      int
	Allocated bool
	OwnerPID  string
}

// Blocks returns a snapshot of the free list, ordered by start.
func (a *Allocator) Blocks() []BlockInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]BlockInfo, len(a.blocks))
	for i, b := range a.blocks {
		out[i] = BlockInfo{Start: b.start, Size: b.size, Allocated: b.allocated, OwnerPID: b.ownerPID}
	}
	return out
}
