package peerserver

import (
	"context"
	"fmt"
	"time"

	"github.com/Snider/Fabric/pkg/cache"
	"github.com/Snider/Fabric/pkg/client"
	"github.com/Snider/Fabric/pkg/executor"
	"github.com/Snider/Fabric/pkg/ferrors"
	"github.com/Snider/Fabric/pkg/history"
	"github.com/Snider/Fabric/pkg/procmgr"
	"github.com/Snider/Fabric/pkg/scheduler"
	"github.com/Snider/Fabric/pkg/value"
	"github.com/Snider/Fabric/pkg/wire"
)

// dispatchTask implements §4.3.2: a confidential task always runs on the
// peer it was submitted to. Otherwise the submitting peer asks the
// tracker for the least-loaded peer (CORE #1) and opens a direct
// connection to it, unless the tracker names this peer itself. A
// forwarded task (Forwarded already true) never re-dispatches — forwarding
// is always exactly one hop — so it always runs locally at the receiver.
func (p *Peer) dispatchTask(ctx context.Context, req wire.CPUTaskBody) (wire.CPUResultBody, error) {
	if req.Confidential || req.Forwarded || p.tracker == nil {
		return p.runTask(ctx, req)
	}

	target, err := p.tracker.RequestCPU()
	if err != nil {
		return wire.CPUResultBody{}, err
	}
	targetAddr := fmt.Sprintf("%s:%d", target.IP, target.Port)
	if target.IP == "" || targetAddr == p.cfg.SelfAddress {
		return p.runTask(ctx, req)
	}

	forwarded := req
	forwarded.Forwarded = true
	return client.NewPeer(targetAddr).CPUTask(forwarded)
}

// runTask implements the CPU_TASK ingestion pipeline (§4.3.1): fingerprint
// check, quota check, process entry, scheduler submission, and a
// deadline-bounded wait for the completion callback. It always executes
// here — dispatchTask has already decided this is the peer that should
// run it. Role is LOCAL when this peer is also where the client
// originally submitted (Forwarded is false), EXECUTOR when it's running
// a task forwarded to it from the submitting peer.
func (p *Peer) runTask(ctx context.Context, req wire.CPUTaskBody) (wire.CPUResultBody, error) {
	role := history.RoleLocal
	if req.Forwarded {
		role = history.RoleExecutor
	}

	fingerprint := cache.Fingerprint(req.ProgramSource, req.FunctionName, req.Args)

	if result, ok := p.resultCache.Get(fingerprint); ok {
		p.history.Record(history.Record{
			TaskID:      req.TaskID,
			Success:     true,
			ElapsedMS:   0,
			ExecutedBy:  p.cfg.SelfAddress,
			Role:        role,
			CompletedAt: time.Now(),
		})
		return wire.CPUResultBody{
			Type:       wire.TypeCPUResult,
			TaskID:     req.TaskID,
			Result:     result,
			ExecutedBy: p.cfg.SelfAddress,
			FromCache:  true,
		}, nil
	}

	if err := p.quota.CheckAndRecordCPUTask(); err != nil {
		return wire.CPUResultBody{}, err
	}

	pid, err := p.procs.Create(map[string]interface{}{"priority": req.Priority}, "", "")
	if err != nil {
		return wire.CPUResultBody{}, err
	}
	p.procs.SetState(pid, procmgr.StateReady)

	timeout := p.cfg.TaskTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}

	done := make(chan scheduler.CompletionResult, 1)
	job := &scheduler.Job{
		ID:             req.TaskID,
		Priority:       req.Priority,
		EstimatedBurst: 0,
		Run: func(ctx context.Context) (value.Value, error) {
			p.procs.SetState(pid, procmgr.StateRunning)
			return executor.Evaluate(ctx, p.registry, req.FunctionName, req.Args, req.MaxRetries)
		},
		OnComplete: func(res scheduler.CompletionResult) {
			p.procs.SetState(pid, procmgr.StateTerminated)
			p.history.Record(history.Record{
				TaskID:      req.TaskID,
				Success:     res.Err == nil,
				ElapsedMS:   res.Turnaround.Milliseconds(),
				ExecutedBy:  p.cfg.SelfAddress,
				Role:        role,
				CompletedAt: time.Now(),
			})
			if res.Err == nil {
				p.resultCache.Put(fingerprint, res.Result)
			}
			done <- res
		},
	}
	p.scheduler.Submit(job)

	select {
	case res := <-done:
		if res.Err != nil {
			return wire.CPUResultBody{}, res.Err
		}
		return wire.CPUResultBody{
			Type:       wire.TypeCPUResult,
			TaskID:     req.TaskID,
			Result:     res.Result,
			ExecutedBy: p.cfg.SelfAddress,
			ElapsedMS:  res.Turnaround.Milliseconds(),
		}, nil
	case <-time.After(timeout):
		job.Cancel()
		p.history.Record(history.Record{
			TaskID:      req.TaskID,
			Success:     false,
			ExecutedBy:  p.cfg.SelfAddress,
			Role:        role,
			CompletedAt: time.Now(),
		})
		return wire.CPUResultBody{}, ferrors.Timeout("task %q did not complete within %s", req.TaskID, timeout)
	}
}

func (p *Peer) handleCPUTask(ctx context.Context, body []byte) ([]byte, error) {
	var req wire.CPUTaskBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	if req.TaskID == "" {
		return nil, ferrors.Validation("task_id is required")
	}
	result, err := p.dispatchTask(ctx, req)
	if err != nil {
		return nil, err
	}
	return wire.EncodeMessage(result)
}

func (p *Peer) handleCancelTask(body []byte) ([]byte, error) {
	var req wire.CancelTaskBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	cancelled := p.scheduler.Cancel(req.TaskID)
	return wire.EncodeMessage(wire.CancelTaskResponse{Type: wire.TypeCancelTask, Cancelled: cancelled})
}

// handleBatchTask runs each task in the batch sequentially through the
// same pipeline as a single CPU_TASK, stopping at the first failure —
// a batch is all-or-nothing rather than partial-results, since the wire
// payload has no per-task error slot.
func (p *Peer) handleBatchTask(ctx context.Context, body []byte) ([]byte, error) {
	var req wire.BatchTaskBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	results := make([]wire.CPUResultBody, 0, len(req.Tasks))
	for _, task := range req.Tasks {
		result, err := p.dispatchTask(ctx, task)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return wire.EncodeMessage(wire.BatchResultBody{Type: wire.TypeBatchResult, Results: results})
}

func (p *Peer) handleTaskHistory(body []byte) ([]byte, error) {
	var req wire.TaskHistoryBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	records := p.history.Recent(req.Limit)
	entries := make([]wire.TaskHistoryEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, wire.TaskHistoryEntry{
			TaskID:      r.TaskID,
			Success:     r.Success,
			ElapsedMS:   r.ElapsedMS,
			ExecutedBy:  r.ExecutedBy,
			Role:        string(r.Role),
			CompletedAt: r.CompletedAt.Unix(),
		})
	}
	return wire.EncodeMessage(wire.TaskHistoryResponse{Type: wire.TypeTaskHistory, Entries: entries})
}
