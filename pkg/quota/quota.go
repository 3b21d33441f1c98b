// Package quota tracks per-peer resource consumption limits: a sliding
// window of recent CPU-task timestamps, a cap on memory-store keys, and
// a running counter of storage bytes used. Modeled on the teacher's
// RateLimiter (background cleanup goroutine, per-client bookkeeping
// behind one mutex), generalized from a single token bucket to the three
// caps the original source's quota module tracks.
package quota

import (
	"sync"
	"time"

	"github.com/Snider/Fabric/pkg/ferrors"
)

// Limits configures the three caps this package enforces.
type Limits struct {
	MaxCPUTasksPerWindow int
	CPUWindow            time.Duration
	MaxMemoryKeys        int
	MaxStorageBytes       int64
}

// Quota tracks consumption against Limits.
type Quota struct {
	mu sync.Mutex

	limits Limits

	cpuTimestamps []time.Time
	storageBytes  int64

	stop chan struct{}
}

// New returns a Quota enforcing limits and starts a background goroutine
// that trims expired CPU-window timestamps periodically.
func New(limits Limits) *Quota {
	q := &Quota{limits: limits, stop: make(chan struct{})}
	go q.cleanupLoop()
	return q
}

func (q *Quota) cleanupLoop() {
	interval := q.limits.CPUWindow
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.trimExpired()
		}
	}
}

// Stop halts the background cleanup goroutine.
func (q *Quota) Stop() {
	close(q.stop)
}

func (q *Quota) trimExpired() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.trimExpiredLocked()
}

func (q *Quota) trimExpiredLocked() {
	if q.limits.CPUWindow <= 0 {
		return
	}
	cutoff := time.Now().Add(-q.limits.CPUWindow)
	i := 0
	for i < len(q.cpuTimestamps) && q.cpuTimestamps[i].Before(cutoff) {
		i++
	}
	q.cpuTimestamps = q.cpuTimestamps[i:]
}

// CheckAndRecordCPUTask admits a CPU task if the sliding window has
// capacity, recording the timestamp and returning nil; otherwise returns
// QuotaExceeded without recording.
func (q *Quota) CheckAndRecordCPUTask() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.trimExpiredLocked()
	if q.limits.MaxCPUTasksPerWindow > 0 && len(q.cpuTimestamps) >= q.limits.MaxCPUTasksPerWindow {
		return ferrors.QuotaExceeded("CPU task rate limit exceeded")
	}
	q.cpuTimestamps = append(q.cpuTimestamps, time.Now())
	return nil
}

// CheckMemoryKeys rejects with QuotaExceeded if adding one more key would
// exceed the configured cap.
func (q *Quota) CheckMemoryKeys(currentKeys int) error {
	if q.limits.MaxMemoryKeys > 0 && currentKeys >= q.limits.MaxMemoryKeys {
		return ferrors.QuotaExceeded("memory key limit exceeded")
	}
	return nil
}

// ReserveStorageBytes rejects with QuotaExceeded if adding size bytes
// would exceed the configured cap; otherwise commits the reservation.
func (q *Quota) ReserveStorageBytes(size int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limits.MaxStorageBytes > 0 && q.storageBytes+size > q.limits.MaxStorageBytes {
		return ferrors.QuotaExceeded("storage byte limit exceeded")
	}
	q.storageBytes += size
	return nil
}

// ReleaseStorageBytes gives back size bytes, e.g. after a file delete.
func (q *Quota) ReleaseStorageBytes(size int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.storageBytes -= size
	if q.storageBytes < 0 {
		q.storageBytes = 0
	}
}

// StorageBytesUsed returns the current running total.
func (q *Quota) StorageBytesUsed() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.storageBytes
}
