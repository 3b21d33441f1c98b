package client

import (
	"time"

	"github.com/Snider/Fabric/pkg/value"
	"github.com/Snider/Fabric/pkg/wire"
)

// Peer is a typed client for every Client<->Peer and OS-plane message
// kind a peer server answers.
type Peer struct {
	Addr    string
	Timeout time.Duration
}

// NewPeer returns a Peer client dialing addr with DefaultTimeout.
func NewPeer(addr string) *Peer {
	return &Peer{Addr: addr, Timeout: DefaultTimeout}
}

func (p *Peer) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultTimeout
}

// CPUTask submits one task for execution and waits for its result.
func (p *Peer) CPUTask(task wire.CPUTaskBody) (wire.CPUResultBody, error) {
	task.Type = wire.TypeCPUTask
	var resp wire.CPUResultBody
	err := call(p.Addr, p.timeout(), task, &resp)
	return resp, err
}

// CancelTask requests cancellation of a pending or running task.
func (p *Peer) CancelTask(taskID string) (bool, error) {
	req := wire.CancelTaskBody{Type: wire.TypeCancelTask, TaskID: taskID}
	var resp wire.CancelTaskResponse
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp.Cancelled, err
}

// BatchTask submits multiple tasks in one request.
func (p *Peer) BatchTask(tasks []wire.CPUTaskBody) ([]wire.CPUResultBody, error) {
	req := wire.BatchTaskBody{Type: wire.TypeBatchTask, Tasks: tasks}
	var resp wire.BatchResultBody
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp.Results, err
}

// TaskHistory returns up to limit recent completed-task entries.
func (p *Peer) TaskHistory(limit int) ([]wire.TaskHistoryEntry, error) {
	req := wire.TaskHistoryBody{Type: wire.TypeTaskHistory, Limit: limit}
	var resp wire.TaskHistoryResponse
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp.Entries, err
}

// SetMem stores key/value in the peer's in-memory store.
func (p *Peer) SetMem(key string, val value.Value) error {
	req := wire.SetMemBody{Type: wire.TypeSetMem, Key: key, Value: val}
	var resp wire.Envelope
	return call(p.Addr, p.timeout(), req, &resp)
}

// GetMem reads key from the peer's in-memory store.
func (p *Peer) GetMem(key string) (wire.MemResponseBody, error) {
	req := wire.GetMemBody{Type: wire.TypeGetMem, Key: key}
	var resp wire.MemResponseBody
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp, err
}

// PutFile uploads a public file replica, content already base64-encoded.
func (p *Peer) PutFile(filename, contentBase64 string) error {
	req := wire.PutFileBody{Type: wire.TypePutFile, Filename: filename, ContentBase64: contentBase64}
	var resp wire.Envelope
	return call(p.Addr, p.timeout(), req, &resp)
}

// GetFile downloads a public file replica, refusing owner-custodied
// filenames with OwnedFileForbidden.
func (p *Peer) GetFile(filename string) (wire.FileResponseBody, error) {
	req := wire.GetFileBody{Type: wire.TypeGetFile, Filename: filename}
	var resp wire.FileResponseBody
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp, err
}

// UploadToPeer places an already-obfuscated owned file on this storage
// peer on behalf of owner.
func (p *Peer) UploadToPeer(filename, ciphertextBase64, ownerIP string, ownerPort int) (wire.UploadToPeerResponse, error) {
	req := wire.UploadToPeerBody{
		Type:             wire.TypeUploadToPeer,
		Filename:         filename,
		CiphertextBase64: ciphertextBase64,
		OwnerIP:          ownerIP,
		OwnerPort:        ownerPort,
	}
	var resp wire.UploadToPeerResponse
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp, err
}

// GetOwnedFile retrieves the ciphertext of a filename custodied for
// requesterIP/requesterPort.
func (p *Peer) GetOwnedFile(filename, requesterIP string, requesterPort int) (wire.GetOwnedFileResponse, error) {
	req := wire.GetOwnedFileBody{
		Type:          wire.TypeGetOwnedFile,
		Filename:      filename,
		RequesterIP:   requesterIP,
		RequesterPort: requesterPort,
	}
	var resp wire.GetOwnedFileResponse
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp, err
}

// CreateProcess registers a new process entry.
func (p *Peer) CreateProcess(parent, group string, metadata map[string]string) (string, error) {
	req := wire.CreateProcessBody{Type: wire.TypeCreateProcess, Parent: parent, Group: group, Metadata: metadata}
	var resp wire.CreateProcessResponse
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp.PID, err
}

// TerminateProcess terminates pid and its descendants.
func (p *Peer) TerminateProcess(pid string) error {
	req := wire.TerminateProcessBody{Type: wire.TypeTerminateProcess, PID: pid}
	var resp wire.Envelope
	return call(p.Addr, p.timeout(), req, &resp)
}

// ProcessTree returns the tree rooted at root, or the full forest if
// root is empty.
func (p *Peer) ProcessTree(root string) (wire.ProcessTreeResponse, error) {
	req := wire.ProcessTreeBody{Type: wire.TypeProcessTree, Root: root}
	var resp wire.ProcessTreeResponse
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp, err
}

// CreateGroup adds pids to group.
func (p *Peer) CreateGroup(group string, pids []string) error {
	req := wire.CreateGroupBody{Type: wire.TypeCreateGroup, Group: group, PIDs: pids}
	var resp wire.Envelope
	return call(p.Addr, p.timeout(), req, &resp)
}

// KillGroup terminates every process in group, returning the count
// terminated.
func (p *Peer) KillGroup(group string) (int, error) {
	req := wire.KillGroupBody{Type: wire.TypeKillGroup, Group: group}
	var resp wire.KillGroupResponse
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp.Count, err
}

// RequestResource runs the banker's-algorithm request for pid/resourceID.
func (p *Peer) RequestResource(pid, resourceID string, units int) error {
	req := wire.RequestResourceBody{Type: wire.TypeRequestResource, PID: pid, ResourceID: resourceID, Units: units}
	var resp wire.Envelope
	return call(p.Addr, p.timeout(), req, &resp)
}

// ReleaseResource releases units of resourceID held by pid.
func (p *Peer) ReleaseResource(pid, resourceID string, units int) error {
	req := wire.ReleaseResourceBody{Type: wire.TypeReleaseResource, PID: pid, ResourceID: resourceID, Units: units}
	var resp wire.Envelope
	return call(p.Addr, p.timeout(), req, &resp)
}

// DeadlockCheck runs the wait-for-graph cycle detector.
func (p *Peer) DeadlockCheck() (wire.DeadlockCheckResponse, error) {
	req := wire.DeadlockCheckBody{Type: wire.TypeDeadlockCheck}
	var resp wire.DeadlockCheckResponse
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp, err
}

// AllocateMemory reserves size bytes for pid, returning its start
// address.
func (p *Peer) AllocateMemory(pid string, size int) (int, error) {
	req := wire.AllocateMemoryBody{Type: wire.TypeAllocateMemory, PID: pid, Size: size}
	var resp wire.AllocateMemoryResponse
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp.Address, err
}

// DeallocateMemory frees pid's allocation.
func (p *Peer) DeallocateMemory(pid string) error {
	req := wire.DeallocateMemoryBody{Type: wire.TypeDeallocateMemory, PID: pid}
	var resp wire.Envelope
	return call(p.Addr, p.timeout(), req, &resp)
}

// CreateQueue registers a new bounded message queue.
func (p *Peer) CreateQueue(capacity int) (string, error) {
	req := wire.CreateQueueBody{Type: wire.TypeCreateQueue, Capacity: capacity}
	var resp wire.CreateQueueResponse
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp.QueueID, err
}

// SendMessage enqueues a payload on queueID addressed to receiver.
func (p *Peer) SendMessage(queueID, receiver string, payload value.Value) error {
	req := wire.SendMessageBody{Type: wire.TypeSendMessage, QueueID: queueID, Receiver: receiver, Payload: payload}
	var resp wire.Envelope
	return call(p.Addr, p.timeout(), req, &resp)
}

// ReceiveMessage dequeues the next message for receiver from queueID.
func (p *Peer) ReceiveMessage(queueID, receiver string) (wire.ReceiveMessageResponse, error) {
	req := wire.ReceiveMessageBody{Type: wire.TypeReceiveMessage, QueueID: queueID, Receiver: receiver}
	var resp wire.ReceiveMessageResponse
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp, err
}

// CreateSemaphore registers a new counting semaphore.
func (p *Peer) CreateSemaphore(count int) (string, error) {
	req := wire.CreateSemaphoreBody{Type: wire.TypeCreateSemaphore, Count: count}
	var resp wire.CreateSemaphoreResponse
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp.SemaphoreID, err
}

// SemaphoreWait attempts to acquire semaphoreID for pid.
func (p *Peer) SemaphoreWait(semaphoreID, pid string) (bool, error) {
	req := wire.SemaphoreWaitBody{Type: wire.TypeSemaphoreWait, SemaphoreID: semaphoreID, PID: pid}
	var resp wire.SemaphoreWaitResponse
	err := call(p.Addr, p.timeout(), req, &resp)
	return resp.Blocked, err
}

// SemaphoreSignal releases semaphoreID.
func (p *Peer) SemaphoreSignal(semaphoreID string) error {
	req := wire.SemaphoreSignalBody{Type: wire.TypeSemaphoreSignal, SemaphoreID: semaphoreID}
	var resp wire.Envelope
	return call(p.Addr, p.timeout(), req, &resp)
}

// SetScheduler hot-swaps the peer's scheduling algorithm.
func (p *Peer) SetScheduler(algorithm string) error {
	req := wire.SetSchedulerBody{Type: wire.TypeSetScheduler, Algorithm: algorithm}
	var resp wire.Envelope
	return call(p.Addr, p.timeout(), req, &resp)
}
