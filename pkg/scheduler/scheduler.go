package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Snider/Fabric/pkg/logging"
)

// Algorithm selects the ordering rule applied to the pending queue.
type Algorithm string

const (
	// FCFS preserves arrival order regardless of priority or burst.
	FCFS Algorithm = "FCFS"
	// SJF re-sorts by EstimatedBurst ascending on every insert.
	SJF Algorithm = "SJF"
	// Priority re-sorts by Priority descending on every insert, FIFO
	// within a priority band.
	Priority Algorithm = "PRIORITY"
	// RR is the non-preemptive round-robin variant: identical ordering
	// to Priority (spec §4.3.4: "RR: identical to §4.3.3").
	RR Algorithm = "RR"
)

// FleetStats are cumulative completion metrics across every Job this
// Scheduler has run.
type FleetStats struct {
	Completed        int
	AverageWaiting    time.Duration
	AverageTurnaround time.Duration
	Throughput        float64 // completed per second since first arrival
}

// Scheduler drains a single pending queue with one worker goroutine,
// re-sortable on every insert per Algorithm, hot-swappable via
// SetAlgorithm.
type Scheduler struct {
	mu           sync.Mutex
	algorithm    Algorithm
	pending      []*Job
	active       map[string]*Job
	firstArrival time.Time

	completed        int
	totalWaiting      time.Duration
	totalTurnaround   time.Duration

	wakeup chan struct{}
	stop   chan struct{}
	done   chan struct{}

	logger *logging.Logger
}

// New constructs a Scheduler running algorithm and starts its worker.
func New(algorithm Algorithm, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.GetGlobal()
	}
	s := &Scheduler{
		algorithm: algorithm,
		active:    make(map[string]*Job),
		logger:    logger.WithComponent("scheduler"),
	}
	s.startWorker()
	return s
}

func (s *Scheduler) startWorker() {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.wakeup = make(chan struct{}, 1)
	go s.run(s.stop, s.done, s.wakeup)
}

// Submit enqueues job per the current algorithm's ordering and wakes the
// worker.
func (s *Scheduler) Submit(job *Job) {
	s.mu.Lock()
	if job.Arrival.IsZero() {
		job.Arrival = time.Now()
	}
	if s.firstArrival.IsZero() {
		s.firstArrival = job.Arrival
	}
	s.pending = append(s.pending, job)
	s.reorderLocked()
	s.active[job.ID] = job
	s.mu.Unlock()

	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

func (s *Scheduler) reorderLocked() {
	switch s.algorithm {
	case SJF:
		sort.SliceStable(s.pending, func(i, j int) bool {
			return s.pending[i].EstimatedBurst < s.pending[j].EstimatedBurst
		})
	case Priority, RR:
		sort.SliceStable(s.pending, func(i, j int) bool {
			return s.pending[i].Priority > s.pending[j].Priority
		})
	case FCFS:
		// Arrival order is preserved by append; no re-sort.
	}
}

// Cancel cancels a pending or not-yet-completed task by ID.
func (s *Scheduler) Cancel(taskID string) bool {
	s.mu.Lock()
	job, ok := s.active[taskID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return job.Cancel()
}

// QueueLoad reports min(0.95, queue_len*0.1); zero when the queue is
// empty.
func (s *Scheduler) QueueLoad() float64 {
	s.mu.Lock()
	n := len(s.pending)
	s.mu.Unlock()
	load := float64(n) * 0.1
	if load > 0.95 {
		return 0.95
	}
	return load
}

// Stats returns cumulative fleet averages and throughput.
func (s *Scheduler) Stats() FleetStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := FleetStats{Completed: s.completed}
	if s.completed > 0 {
		stats.AverageWaiting = s.totalWaiting / time.Duration(s.completed)
		stats.AverageTurnaround = s.totalTurnaround / time.Duration(s.completed)
	}
	if !s.firstArrival.IsZero() {
		elapsed := time.Since(s.firstArrival).Seconds()
		if elapsed > 0 {
			stats.Throughput = float64(s.completed) / elapsed
		}
	}
	return stats
}

func (s *Scheduler) dequeue() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	job := s.pending[0]
	s.pending = s.pending[1:]
	return job
}

// run is the single worker loop. It re-checks cancellation immediately
// before and after executing a job; a flagged job never invokes the
// callback. It checks stop before taking each job, so a stop signal lets
// the running job finish and leaves queued jobs pending.
func (s *Scheduler) run(stop <-chan struct{}, done chan<- struct{}, wakeup <-chan struct{}) {
	defer close(done)
	ctx := context.Background()

	for {
		select {
		case <-stop:
			return
		default:
		}

		job := s.dequeue()
		if job == nil {
			select {
			case <-stop:
				return
			case <-wakeup:
				continue
			}
		}

		if job.isCancelled() {
			s.mu.Lock()
			delete(s.active, job.ID)
			s.mu.Unlock()
			continue
		}

		result, err := job.Run(ctx)

		if !job.markCompleted() {
			s.mu.Lock()
			delete(s.active, job.ID)
			s.mu.Unlock()
			continue
		}

		turnaround := time.Since(job.Arrival)
		waiting := turnaround - job.EstimatedBurst
		if waiting < 0 {
			waiting = 0
		}

		s.mu.Lock()
		s.completed++
		s.totalWaiting += waiting
		s.totalTurnaround += turnaround
		delete(s.active, job.ID)
		s.mu.Unlock()

		if job.OnComplete != nil {
			job.OnComplete(CompletionResult{
				TaskID:      job.ID,
				Result:      result,
				Err:         err,
				WaitingTime: waiting,
				Turnaround:  turnaround,
			})
		}
	}
}

// SetAlgorithm hot-swaps the ordering algorithm. The currently running
// job (if any) is allowed to finish — this implementation resolves the
// "lossy algorithm change" open question by letting it finish rather
// than dropping in-flight work, then re-sorting the pending backlog under the
// new algorithm before restarting the worker.
func (s *Scheduler) SetAlgorithm(algorithm Algorithm) {
	close(s.stop)
	<-s.done

	s.mu.Lock()
	s.algorithm = algorithm
	s.reorderLocked()
	s.mu.Unlock()

	s.startWorker()
}

// Close stops the worker permanently. The running job finishes; queued
// jobs that have not started are not run.
func (s *Scheduler) Close() {
	close(s.stop)
	<-s.done
}
