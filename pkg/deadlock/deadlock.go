// Package deadlock implements a banker's-algorithm resource allocator
// with request-time safety checking, plus a read-only wait-for-graph
// cycle detector usable independently of the allocation path (including
// states reached by test-only direct injection). Grounded on the
// teacher's single-mutex bookkeeping services (pkg/tracker): one
// exported struct, one lock, plain map state.
package deadlock

import (
	"sort"
	"sync"

	"github.com/Snider/Fabric/pkg/ferrors"
)

// Resource tracks total/available units and per-process allocation.
type Resource struct {
	ID           string
	Type         string
	TotalUnits   int
	Allocated    map[string]int // pid -> units held
}

type process struct {
	pid        string
	allocation map[string]int // resource id -> units held
	maxNeed    map[string]int // resource id -> declared maximum
}

func (p *process) need(resID string) int {
	return p.maxNeed[resID] - p.allocation[resID]
}

// Manager is the banker's-algorithm allocator and wait-for-graph
// detector over a fixed set of registered resources and processes.
type Manager struct {
	mu        sync.Mutex
	resources map[string]*Resource
	processes map[string]*process
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{
		resources: make(map[string]*Resource),
		processes: make(map[string]*process),
	}
}

// RegisterResource declares a resource with totalUnits, all initially
// available.
func (m *Manager) RegisterResource(id, resType string, totalUnits int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.resources[id]; exists {
		return ferrors.Validation("resource %q already registered", id)
	}
	m.resources[id] = &Resource{
		ID:         id,
		Type:       resType,
		TotalUnits: totalUnits,
		Allocated:  make(map[string]int),
	}
	return nil
}

// RegisterProcess declares a process and its declared maximum need per
// resource. maxNeed entries for unknown resources are rejected.
func (m *Manager) RegisterProcess(pid string, maxNeed map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.processes[pid]; exists {
		return ferrors.Validation("process %q already registered", pid)
	}
	for resID := range maxNeed {
		if _, ok := m.resources[resID]; !ok {
			return ferrors.Validation("unknown resource %q in max_need", resID)
		}
	}
	need := make(map[string]int, len(maxNeed))
	for k, v := range maxNeed {
		need[k] = v
	}
	m.processes[pid] = &process{
		pid:        pid,
		allocation: make(map[string]int),
		maxNeed:    need,
	}
	return nil
}

func (m *Manager) availableLocked(resID string) int {
	res := m.resources[resID]
	used := 0
	for _, units := range res.Allocated {
		used += units
	}
	return res.TotalUnits - used
}

// Request attempts to grant units of res to pid. It rejects requests
// exceeding the declared need or available supply, tentatively applies
// the grant, runs the banker's safety check, and rolls back with
// UnsafeState if the resulting state has no finish sequence.
func (m *Manager) Request(pid, resID string, units int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	proc, ok := m.processes[pid]
	if !ok {
		return ferrors.Validation("unknown process %q", pid)
	}
	res, ok := m.resources[resID]
	if !ok {
		return ferrors.Validation("unknown resource %q", resID)
	}

	if units > proc.need(resID) {
		return ferrors.ProgramError("process %q requested %d units of %q exceeding declared need", pid, units, resID)
	}
	if units > m.availableLocked(resID) {
		return ferrors.ProgramError("process %q requested %d units of %q exceeding availability", pid, units, resID)
	}

	res.Allocated[pid] += units
	proc.allocation[resID] += units

	if !m.isSafeLocked() {
		res.Allocated[pid] -= units
		if res.Allocated[pid] == 0 {
			delete(res.Allocated, pid)
		}
		proc.allocation[resID] -= units
		return ferrors.UnsafeState("granting %d units of %q to %q would leave no safe finish sequence", units, resID, pid)
	}

	return nil
}

// Release gives units of res back from pid. Never blocks or fails on a
// well-formed call; releasing more than held clamps to the held amount.
func (m *Manager) Release(pid, resID string, units int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	proc, ok := m.processes[pid]
	if !ok {
		return ferrors.Validation("unknown process %q", pid)
	}
	res, ok := m.resources[resID]
	if !ok {
		return ferrors.Validation("unknown resource %q", resID)
	}

	held := proc.allocation[resID]
	if units > held {
		units = held
	}

	proc.allocation[resID] -= units
	if proc.allocation[resID] == 0 {
		delete(proc.allocation, resID)
	}
	res.Allocated[pid] -= units
	if res.Allocated[pid] == 0 {
		delete(res.Allocated, pid)
	}
	return nil
}

// isSafeLocked runs the banker's safety check over the current
// allocation state. Must be called with the lock held.
func (m *Manager) isSafeLocked() bool {
	work := make(map[string]int, len(m.resources))
	for id := range m.resources {
		work[id] = m.availableLocked(id)
	}

	finished := make(map[string]bool, len(m.processes))
	remaining := len(m.processes)

	for remaining > 0 {
		progressed := false
		for pid, proc := range m.processes {
			if finished[pid] {
				continue
			}
			if !needFitsLocked(proc, work) {
				continue
			}
			for resID, units := range proc.allocation {
				work[resID] += units
			}
			finished[pid] = true
			remaining--
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return remaining == 0
}

func needFitsLocked(proc *process, work map[string]int) bool {
	for resID := range proc.maxNeed {
		if proc.need(resID) > work[resID] {
			return false
		}
	}
	return true
}

// InjectAllocation directly sets pid's allocation of resID, bypassing
// the banker's safety check. For test and diagnostic use: DetectDeadlock
// must be able to observe states unreachable via Request.
func (m *Manager) InjectAllocation(pid, resID string, units int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	proc, ok := m.processes[pid]
	if !ok {
		return ferrors.Validation("unknown process %q", pid)
	}
	res, ok := m.resources[resID]
	if !ok {
		return ferrors.Validation("unknown resource %q", resID)
	}
	proc.allocation[resID] = units
	res.Allocated[pid] = units
	return nil
}

// DetectDeadlock builds the wait-for graph (P_i -> P_j when P_i still
// needs a resource P_j currently holds) and runs DFS. On a back edge to
// a node still on the traversal stack it flags that node and every node
// above it on the stack (the cycle), not the path that led into it.
// Result is a deduplicated, sorted set of deadlocked pids.
func (m *Manager) DetectDeadlock() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	waitsFor := m.buildWaitForGraphLocked()

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(m.processes))
	for pid := range m.processes {
		color[pid] = white
	}

	deadlocked := make(map[string]bool)
	var stack []string

	var visit func(pid string)
	visit = func(pid string) {
		color[pid] = gray
		stack = append(stack, pid)

		for _, next := range waitsFor[pid] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				// Back edge: flag every node currently on the stack from
				// next's position onward.
				for i := len(stack) - 1; i >= 0; i-- {
					deadlocked[stack[i]] = true
					if stack[i] == next {
						break
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[pid] = black
	}

	pids := make([]string, 0, len(m.processes))
	for pid := range m.processes {
		pids = append(pids, pid)
	}
	sort.Strings(pids)

	for _, pid := range pids {
		if color[pid] == white {
			visit(pid)
		}
	}

	result := make([]string, 0, len(deadlocked))
	for pid := range deadlocked {
		result = append(result, pid)
	}
	sort.Strings(result)
	return result
}

// buildWaitForGraphLocked returns pid -> sorted list of pids it waits
// on. Must be called with the lock held.
func (m *Manager) buildWaitForGraphLocked() map[string][]string {
	holders := make(map[string][]string) // resource id -> holding pids
	for resID, res := range m.resources {
		for pid, units := range res.Allocated {
			if units > 0 {
				holders[resID] = append(holders[resID], pid)
			}
		}
	}

	graph := make(map[string][]string, len(m.processes))
	for pid, proc := range m.processes {
		seen := make(map[string]bool)
		for resID := range proc.maxNeed {
			if proc.need(resID) <= 0 {
				continue
			}
			for _, holder := range holders[resID] {
				if holder == pid || seen[holder] {
					continue
				}
				seen[holder] = true
				graph[pid] = append(graph[pid], holder)
			}
		}
		sort.Strings(graph[pid])
	}
	return graph
}
