package peerserver

import (
	"github.com/Snider/Fabric/pkg/allocator"
	"github.com/Snider/Fabric/pkg/ferrors"
	"github.com/Snider/Fabric/pkg/ipc"
	"github.com/Snider/Fabric/pkg/procmgr"
	"github.com/Snider/Fabric/pkg/scheduler"
	"github.com/Snider/Fabric/pkg/wire"
)

// handleCreateProcess registers a process entry. The wire body carries
// free-form string metadata rather than procmgr's taskData map, so the
// process is created bare and each metadata entry is attached afterward.
func (p *Peer) handleCreateProcess(body []byte) ([]byte, error) {
	var req wire.CreateProcessBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	pid, err := p.procs.Create(nil, req.Parent, req.Group)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Metadata {
		if err := p.procs.SetMetadata(pid, k, v); err != nil {
			return nil, err
		}
	}
	return wire.EncodeMessage(wire.CreateProcessResponse{Type: wire.TypeCreateProcess, PID: pid})
}

func (p *Peer) handleTerminateProcess(body []byte) ([]byte, error) {
	var req wire.TerminateProcessBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	if err := p.procs.Terminate(req.PID); err != nil {
		return nil, err
	}
	return wire.EncodeMessage(wire.Envelope{Type: wire.TypeTerminateProcess})
}

func convertTree(t *procmgr.Tree) *wire.ProcessTreeNode {
	if t == nil {
		return nil
	}
	node := &wire.ProcessTreeNode{PID: t.PID, PPID: t.PPID, State: string(t.State), Priority: t.Priority}
	for _, child := range t.Children {
		node.Children = append(node.Children, convertTree(child))
	}
	return node
}

func (p *Peer) handleProcessTree(body []byte) ([]byte, error) {
	var req wire.ProcessTreeBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	tree, roots, err := p.procs.GetProcessTree(req.Root)
	if err != nil {
		return nil, err
	}
	resp := wire.ProcessTreeResponse{Type: wire.TypeProcessTree}
	if tree != nil {
		resp.Tree = convertTree(tree)
	}
	for _, r := range roots {
		resp.Roots = append(resp.Roots, convertTree(r))
	}
	stats := p.procs.Statistics()
	resp.TotalProcesses = stats.TotalProcesses
	return wire.EncodeMessage(resp)
}

func (p *Peer) handleCreateGroup(body []byte) ([]byte, error) {
	var req wire.CreateGroupBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	p.procs.CreateGroup(req.Group, req.PIDs)
	return wire.EncodeMessage(wire.Envelope{Type: wire.TypeCreateGroup})
}

func (p *Peer) handleKillGroup(body []byte) ([]byte, error) {
	var req wire.KillGroupBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	count := p.procs.KillGroup(req.Group)
	return wire.EncodeMessage(wire.KillGroupResponse{Type: wire.TypeKillGroup, Count: count})
}

func (p *Peer) handleRequestResource(body []byte) ([]byte, error) {
	var req wire.RequestResourceBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	if err := p.registerProcessForBanker(req.PID); err != nil {
		return nil, err
	}
	if err := p.banker.Request(req.PID, req.ResourceID, req.Units); err != nil {
		return nil, err
	}
	return wire.EncodeMessage(wire.Envelope{Type: wire.TypeRequestResource})
}

func (p *Peer) handleReleaseResource(body []byte) ([]byte, error) {
	var req wire.ReleaseResourceBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	if err := p.registerProcessForBanker(req.PID); err != nil {
		return nil, err
	}
	if err := p.banker.Release(req.PID, req.ResourceID, req.Units); err != nil {
		return nil, err
	}
	return wire.EncodeMessage(wire.Envelope{Type: wire.TypeReleaseResource})
}

func (p *Peer) handleDeadlockCheck() ([]byte, error) {
	pids := p.banker.DetectDeadlock()
	return wire.EncodeMessage(wire.DeadlockCheckResponse{
		Type:       wire.TypeDeadlockCheck,
		Deadlocked: len(pids) > 0,
		PIDs:       pids,
	})
}

// handleAllocateMemory always uses first-fit placement — the wire body
// carries no fit-strategy field.
func (p *Peer) handleAllocateMemory(body []byte) ([]byte, error) {
	var req wire.AllocateMemoryBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	addr, err := p.memAlloc.Allocate(req.PID, req.Size, allocator.FirstFit)
	if err != nil {
		return nil, err
	}
	return wire.EncodeMessage(wire.AllocateMemoryResponse{Type: wire.TypeAllocateMemory, Address: addr})
}

func (p *Peer) handleDeallocateMemory(body []byte) ([]byte, error) {
	var req wire.DeallocateMemoryBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	if err := p.memAlloc.Deallocate(req.PID); err != nil {
		return nil, err
	}
	return wire.EncodeMessage(wire.Envelope{Type: wire.TypeDeallocateMemory})
}

// handleCreateQueue generates the queue's ID server-side — the wire body
// has no client-supplied identifier.
func (p *Peer) handleCreateQueue(body []byte) ([]byte, error) {
	var req wire.CreateQueueBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	id := p.newQueueID()
	p.ipcMgr.CreateQueue(id, req.Capacity)
	return wire.EncodeMessage(wire.CreateQueueResponse{Type: wire.TypeCreateQueue, QueueID: id})
}

// handleSendMessage tries once and fails immediately if the queue is
// full — the wire body carries no blocking-timeout field.
func (p *Peer) handleSendMessage(body []byte) ([]byte, error) {
	var req wire.SendMessageBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	q := p.ipcMgr.Queue(req.QueueID)
	if q == nil {
		return nil, ferrors.NotFound("queue %q not found", req.QueueID)
	}
	msg := ipc.Message{Receiver: req.Receiver, Payload: req.Payload}
	if !q.Send(msg, 0) {
		return nil, ferrors.QuotaExceeded("queue %q is full", req.QueueID)
	}
	return wire.EncodeMessage(wire.Envelope{Type: wire.TypeSendMessage})
}

// handleReceiveMessage tries once and reports Found=false immediately if
// nothing is queued for the receiver.
func (p *Peer) handleReceiveMessage(body []byte) ([]byte, error) {
	var req wire.ReceiveMessageBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	q := p.ipcMgr.Queue(req.QueueID)
	if q == nil {
		return nil, ferrors.NotFound("queue %q not found", req.QueueID)
	}
	msg, ok := q.Receive(req.Receiver, 0)
	return wire.EncodeMessage(wire.ReceiveMessageResponse{Type: wire.TypeReceiveMessage, Found: ok, Payload: msg.Payload})
}

func (p *Peer) handleCreateSemaphore(body []byte) ([]byte, error) {
	var req wire.CreateSemaphoreBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	id := p.newSemaphoreID()
	p.ipcMgr.CreateSemaphore(id, req.Count)
	return wire.EncodeMessage(wire.CreateSemaphoreResponse{Type: wire.TypeCreateSemaphore, SemaphoreID: id})
}

func (p *Peer) handleSemaphoreWait(body []byte) ([]byte, error) {
	var req wire.SemaphoreWaitBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	sem := p.ipcMgr.Semaphore(req.SemaphoreID)
	if sem == nil {
		return nil, ferrors.NotFound("semaphore %q not found", req.SemaphoreID)
	}
	blocked := sem.Wait(req.PID)
	return wire.EncodeMessage(wire.SemaphoreWaitResponse{Type: wire.TypeSemaphoreWait, Blocked: blocked})
}

func (p *Peer) handleSemaphoreSignal(body []byte) ([]byte, error) {
	var req wire.SemaphoreSignalBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	sem := p.ipcMgr.Semaphore(req.SemaphoreID)
	if sem == nil {
		return nil, ferrors.NotFound("semaphore %q not found", req.SemaphoreID)
	}
	sem.Signal()
	return wire.EncodeMessage(wire.Envelope{Type: wire.TypeSemaphoreSignal})
}

func (p *Peer) handleSetScheduler(body []byte) ([]byte, error) {
	var req wire.SetSchedulerBody
	if err := wire.DecodeMessage(body, &req); err != nil {
		return nil, err
	}
	p.scheduler.SetAlgorithm(scheduler.Algorithm(req.Algorithm))
	return wire.EncodeMessage(wire.Envelope{Type: wire.TypeSetScheduler})
}
