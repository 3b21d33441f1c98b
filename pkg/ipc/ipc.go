// Package ipc implements bounded, receiver-scoped message queues and
// cooperative counting semaphores. Grounded on
// original_source/ipc.py's MessageQueue/Semaphore: queues accept a
// message for any receiver and push mismatches back to the tail rather
// than filtering at enqueue time, and semaphores never suspend a
// goroutine -- Wait reports whether the caller must block, leaving
// actual suspension/resumption to the caller, exactly as the original's
// waiting_processes ticketing does.
package ipc

import (
	"fmt"
	"sync"
	"time"

	"github.com/Snider/Fabric/pkg/value"
)

// BroadcastReceiver matches any Receive call regardless of the
// requested receiver.
const BroadcastReceiver = "*"

// Message is one item on a Queue.
type Message struct {
	ID        string
	Sender    string
	Receiver  string
	Type      string
	Payload   value.Value
	Timestamp time.Time
}

// Queue is a bounded, FIFO message channel. Fairness across receivers
// under contention is not guaranteed: a message destined for a
// different receiver is pushed back to the tail rather than held at the
// front, matching the accepted limitation in the original.
type Queue struct {
	id   string
	ch   chan Message
	cap  int

	mu       sync.Mutex
	msgCount int

	createdAt time.Time
}

// NewQueue returns a Queue bounded at capacity messages.
func NewQueue(id string, capacity int) *Queue {
	return &Queue{
		id:        id,
		ch:        make(chan Message, capacity),
		cap:       capacity,
		createdAt: time.Now(),
	}
}

// Send enqueues msg, blocking up to timeout for room if the queue is
// full. timeout <= 0 means try once and fail immediately if full.
// Returns false if no room was found within timeout.
func (q *Queue) Send(msg Message, timeout time.Duration) bool {
	if msg.ID == "" {
		q.mu.Lock()
		msg.ID = fmt.Sprintf("MSG%d", q.msgCount)
		q.msgCount++
		q.mu.Unlock()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	if timeout <= 0 {
		select {
		case q.ch <- msg:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.ch <- msg:
		return true
	case <-timer.C:
		return false
	}
}

// Receive dequeues the next message addressed to receiver (or the
// broadcast marker), blocking up to timeout. A message for a different
// receiver is requeued at the tail and the scan continues within the
// remaining timeout budget. With timeout <= 0 it looks at each message
// queued at the time of the call once and returns false if none matches.
func (q *Queue) Receive(receiver string, timeout time.Duration) (Message, bool) {
	deadline := time.Now().Add(timeout)
	scans := len(q.ch)

	for {
		var remaining time.Duration
		if timeout > 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return Message{}, false
			}
		} else {
			if scans == 0 {
				return Message{}, false
			}
			scans--
		}

		msg, ok := q.pop(remaining, timeout > 0)
		if !ok {
			return Message{}, false
		}
		if msg.Receiver == receiver || msg.Receiver == BroadcastReceiver {
			return msg, true
		}

		select {
		case q.ch <- msg:
		default:
			// A concurrent sender filled the queue in the gap; the
			// mismatched message is dropped rather than block forever.
		}
	}
}

func (q *Queue) pop(remaining time.Duration, bounded bool) (Message, bool) {
	if !bounded {
		select {
		case msg := <-q.ch:
			return msg, true
		default:
			return Message{}, false
		}
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case msg := <-q.ch:
		return msg, true
	case <-timer.C:
		return Message{}, false
	}
}

// Peek returns the next message without removing it from receive order,
// by popping and immediately requeuing at the tail -- the same
// non-atomic approximation the original implementation uses.
func (q *Queue) Peek() (Message, bool) {
	msg, ok := q.pop(0, false)
	if !ok {
		return Message{}, false
	}
	select {
	case q.ch <- msg:
	default:
	}
	return msg, true
}

// Stats describes a Queue's current occupancy.
type Stats struct {
	QueueID      string
	Size         int
	Capacity     int
	MessageCount int
	CreatedAt    time.Time
}

// Statistics reports current queue occupancy.
func (q *Queue) Statistics() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		QueueID:      q.id,
		Size:         len(q.ch),
		Capacity:     q.cap,
		MessageCount: q.msgCount,
		CreatedAt:    q.createdAt,
	}
}

// Semaphore is a counting semaphore that never suspends a caller: Wait
// reports whether the caller was granted the resource or must wait,
// leaving actual blocking/wakeup to the caller (cooperative ticketing).
type Semaphore struct {
	mu        sync.Mutex
	id        string
	value     int
	waiting   []string
	opCount   int
	createdAt time.Time
}

// NewSemaphore returns a Semaphore starting at initial.
func NewSemaphore(id string, initial int) *Semaphore {
	return &Semaphore{id: id, value: initial, createdAt: time.Now()}
}

// Wait (P) attempts to acquire one unit for pid. Returns blocked=false
// if acquired; blocked=true if pid was appended to the waiters list (or
// was already on it).
func (s *Semaphore) Wait(pid string) (blocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opCount++

	if s.value > 0 {
		s.value--
		return false
	}
	for _, w := range s.waiting {
		if w == pid {
			return true
		}
	}
	s.waiting = append(s.waiting, pid)
	return true
}

// Signal (V) releases one unit. If a waiter is queued, the head waiter
// is dequeued and reported as woken rather than incrementing value;
// otherwise value is incremented.
func (s *Semaphore) Signal() (woken string, hadWaiter bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opCount++

	if len(s.waiting) > 0 {
		woken = s.waiting[0]
		s.waiting = s.waiting[1:]
		return woken, true
	}
	s.value++
	return "", false
}

// Value reports the current semaphore count.
func (s *Semaphore) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// SemaphoreStats describes a Semaphore's current state.
type SemaphoreStats struct {
	SemaphoreID string
	Value       int
	Waiting     int
	OpCount     int
	CreatedAt   time.Time
}

// Statistics reports current semaphore state.
func (s *Semaphore) Statistics() SemaphoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SemaphoreStats{
		SemaphoreID: s.id,
		Value:       s.value,
		Waiting:     len(s.waiting),
		OpCount:     s.opCount,
		CreatedAt:   s.createdAt,
	}
}

// Manager owns named queues and semaphores.
type Manager struct {
	mu         sync.Mutex
	queues     map[string]*Queue
	semaphores map[string]*Semaphore
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		queues:     make(map[string]*Queue),
		semaphores: make(map[string]*Semaphore),
	}
}

// CreateQueue registers a new queue, returning false if queueID exists.
func (m *Manager) CreateQueue(queueID string, capacity int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.queues[queueID]; exists {
		return false
	}
	m.queues[queueID] = NewQueue(queueID, capacity)
	return true
}

// Queue returns the named queue, or nil if it does not exist.
func (m *Manager) Queue(queueID string) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queues[queueID]
}

// DeleteQueue removes a queue, returning false if it did not exist.
func (m *Manager) DeleteQueue(queueID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.queues[queueID]; !exists {
		return false
	}
	delete(m.queues, queueID)
	return true
}

// CreateSemaphore registers a new semaphore, returning false if semID
// exists.
func (m *Manager) CreateSemaphore(semID string, initial int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.semaphores[semID]; exists {
		return false
	}
	m.semaphores[semID] = NewSemaphore(semID, initial)
	return true
}

// Semaphore returns the named semaphore, or nil if it does not exist.
func (m *Manager) Semaphore(semID string) *Semaphore {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.semaphores[semID]
}

// DeleteSemaphore removes a semaphore, returning false if it did not
// exist.
func (m *Manager) DeleteSemaphore(semID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.semaphores[semID]; !exists {
		return false
	}
	delete(m.semaphores, semID)
	return true
}
