package peerserver

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/Snider/Fabric/pkg/executor"
	"github.com/Snider/Fabric/pkg/ferrors"
	"github.com/Snider/Fabric/pkg/quota"
	"github.com/Snider/Fabric/pkg/value"
	"github.com/Snider/Fabric/pkg/wire"
)

func newTestPeerWithConfig(t *testing.T, cfg Config) *Peer {
	t.Helper()
	dir := t.TempDir()
	cfg.SelfAddress = "127.0.0.1:9100"
	cfg.PublicRoot = dir + "/public"
	cfg.OwnedRoot = dir + "/owned"

	reg := executor.NewRegistry()
	reg.Register("add", func(ctx context.Context, args []value.Value) (value.Value, error) {
		a, _ := args[0].AsInt()
		b, _ := args[1].AsInt()
		return value.Int(a + b), nil
	})
	reg.Register("boom", func(ctx context.Context, args []value.Value) (value.Value, error) {
		return value.Null(), ferrors.Internal("task failed")
	})

	p, err := New(cfg, reg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func newTestPeer(t *testing.T) *Peer {
	t.Helper()
	return newTestPeerWithConfig(t, Config{})
}

func dispatch(t *testing.T, p *Peer, req interface{}) []byte {
	t.Helper()
	body, err := wire.EncodeMessage(req)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	resp, err := p.Dispatch(context.Background(), body)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	return resp
}

func TestCPUTaskHappyPathAndCacheHit(t *testing.T) {
	p := newTestPeer(t)

	req := wire.CPUTaskBody{
		Type:         wire.TypeCPUTask,
		TaskID:       "t1",
		FunctionName: "add",
		Args:         []value.Value{value.Int(1), value.Int(2)},
	}
	body, _ := wire.EncodeMessage(req)
	resp, err := p.Dispatch(context.Background(), body)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var result wire.CPUResultBody
	if err := wire.DecodeMessage(resp, &result); err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	n, _ := result.Result.AsInt()
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
	if result.FromCache {
		t.Fatalf("first call should not be served from cache")
	}
	if result.ExecutedBy != "127.0.0.1:9100" {
		t.Fatalf("expected executed_by to be this peer, got %q", result.ExecutedBy)
	}

	req.TaskID = "t2"
	body, _ = wire.EncodeMessage(req)
	resp, err = p.Dispatch(context.Background(), body)
	if err != nil {
		t.Fatalf("Dispatch (repeat): %v", err)
	}
	wire.DecodeMessage(resp, &result)
	if !result.FromCache {
		t.Fatalf("identical fingerprint should be served from cache")
	}
}

func TestCPUTaskFunctionErrorPropagates(t *testing.T) {
	p := newTestPeer(t)
	req := wire.CPUTaskBody{Type: wire.TypeCPUTask, TaskID: "t1", FunctionName: "boom"}
	body, _ := wire.EncodeMessage(req)
	_, err := p.Dispatch(context.Background(), body)
	if err == nil {
		t.Fatalf("expected error from failing task")
	}
}

func TestPutFileThenGetFile(t *testing.T) {
	p := newTestPeer(t)
	content := base64.StdEncoding.EncodeToString([]byte("hello world"))

	dispatch(t, p, wire.PutFileBody{Type: wire.TypePutFile, Filename: "doc.txt", ContentBase64: content})

	resp := dispatch(t, p, wire.GetFileBody{Type: wire.TypeGetFile, Filename: "doc.txt"})
	var fr wire.FileResponseBody
	wire.DecodeMessage(resp, &fr)
	got, _ := base64.StdEncoding.DecodeString(fr.ContentBase64)
	if string(got) != "hello world" {
		t.Fatalf("expected round-tripped content, got %q", got)
	}
}

func TestGetFileRefusesOwnedFilename(t *testing.T) {
	p := newTestPeer(t)
	ciphertext := base64.StdEncoding.EncodeToString([]byte("obfuscated-bytes"))
	dispatch(t, p, wire.UploadToPeerBody{
		Type:             wire.TypeUploadToPeer,
		Filename:         "secret.bin",
		CiphertextBase64: ciphertext,
		OwnerIP:          "10.0.0.5",
		OwnerPort:        9001,
	})

	body, _ := wire.EncodeMessage(wire.GetFileBody{Type: wire.TypeGetFile, Filename: "secret.bin"})
	_, err := p.Dispatch(context.Background(), body)
	if err == nil {
		t.Fatalf("expected OwnedFileForbidden for a custodied filename")
	}
	fe := ferrors.AsFabricError(err)
	if fe.Code != ferrors.CodeOwnedForbidden {
		t.Fatalf("expected OwnedFileForbidden, got %s", fe.Code)
	}
}

func TestUploadAndRetrieveOwnedFile(t *testing.T) {
	p := newTestPeer(t)
	ciphertext := base64.StdEncoding.EncodeToString([]byte("obfuscated-bytes"))
	resp := dispatch(t, p, wire.UploadToPeerBody{
		Type:             wire.TypeUploadToPeer,
		Filename:         "secret.bin",
		CiphertextBase64: ciphertext,
		OwnerIP:          "10.0.0.5",
		OwnerPort:        9001,
	})
	var uploadResp wire.UploadToPeerResponse
	wire.DecodeMessage(resp, &uploadResp)
	if len(uploadResp.Stored) != 1 || uploadResp.Stored[0].Port != 9100 {
		t.Fatalf("expected a single-element stored ack naming this peer, got %+v", uploadResp.Stored)
	}

	resp = dispatch(t, p, wire.GetOwnedFileBody{
		Type:          wire.TypeGetOwnedFile,
		Filename:      "secret.bin",
		RequesterIP:   "10.0.0.5",
		RequesterPort: 9001,
	})
	var ownedResp wire.GetOwnedFileResponse
	wire.DecodeMessage(resp, &ownedResp)
	got, _ := base64.StdEncoding.DecodeString(ownedResp.CiphertextBase64)
	if string(got) != "obfuscated-bytes" {
		t.Fatalf("expected recovered ciphertext, got %q", got)
	}
}

func TestQuotaExceededOnStorage(t *testing.T) {
	p := newTestPeerWithConfig(t, Config{Quota: quota.Limits{MaxStorageBytes: 4}})

	content := base64.StdEncoding.EncodeToString([]byte("way too long for the quota"))
	body, _ := wire.EncodeMessage(wire.PutFileBody{Type: wire.TypePutFile, Filename: "big.txt", ContentBase64: content})
	_, err := p.Dispatch(context.Background(), body)
	if err == nil {
		t.Fatalf("expected quota-exceeded error")
	}
	fe := ferrors.AsFabricError(err)
	if fe.Code != ferrors.CodeQuotaExceeded {
		t.Fatalf("expected QuotaExceeded, got %s", fe.Code)
	}
}

func TestMemoryAllocateAndDeallocate(t *testing.T) {
	p := newTestPeer(t)
	resp := dispatch(t, p, wire.AllocateMemoryBody{Type: wire.TypeAllocateMemory, PID: "P1", Size: 1024})
	var allocResp wire.AllocateMemoryResponse
	wire.DecodeMessage(resp, &allocResp)
	if allocResp.Address != 0 {
		t.Fatalf("expected first allocation to start at 0, got %d", allocResp.Address)
	}
	dispatch(t, p, wire.DeallocateMemoryBody{Type: wire.TypeDeallocateMemory, PID: "P1"})
}

// TestDeadlockDetectsCycle drives the classic circular-wait: P1 takes the
// entire CPU resource over REQUEST_RESOURCE, and P2 is given the entire
// MEM resource through the banker's InjectAllocation. Lazy process
// registration declares each pid's max_need as the full total of every
// registered resource (see registerProcessForBanker), so the banker
// refuses P2's grant over REQUEST_RESOURCE as unsafe; once injected, P1's
// remaining need for MEM and P2's remaining need for CPU form a cycle in
// the wait-for graph.
func TestDeadlockDetectsCycle(t *testing.T) {
	p := newTestPeer(t)

	dispatch(t, p, wire.RequestResourceBody{Type: wire.TypeRequestResource, PID: "P1", ResourceID: "CPU", Units: 4})
	if err := p.registerProcessForBanker("P2"); err != nil {
		t.Fatalf("register P2: %v", err)
	}
	if err := p.banker.InjectAllocation("P2", "MEM", 4); err != nil {
		t.Fatalf("InjectAllocation P2/MEM: %v", err)
	}

	resp := dispatch(t, p, wire.DeadlockCheckBody{Type: wire.TypeDeadlockCheck})
	var dr wire.DeadlockCheckResponse
	if err := wire.DecodeMessage(resp, &dr); err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if !dr.Deadlocked {
		t.Fatalf("expected a deadlock to be detected, got %+v", dr)
	}
	want := map[string]bool{"P1": true, "P2": true}
	if len(dr.PIDs) != 2 {
		t.Fatalf("expected exactly P1 and P2 flagged, got %+v", dr.PIDs)
	}
	for _, pid := range dr.PIDs {
		if !want[pid] {
			t.Fatalf("unexpected pid %q in deadlock set %+v", pid, dr.PIDs)
		}
	}
}

func TestQueueSendReceiveRoundTrip(t *testing.T) {
	p := newTestPeer(t)
	resp := dispatch(t, p, wire.CreateQueueBody{Type: wire.TypeCreateQueue, Capacity: 4})
	var cq wire.CreateQueueResponse
	wire.DecodeMessage(resp, &cq)
	if cq.QueueID == "" {
		t.Fatalf("expected a generated queue id")
	}

	dispatch(t, p, wire.SendMessageBody{Type: wire.TypeSendMessage, QueueID: cq.QueueID, Receiver: "worker", Payload: value.String("hi")})

	resp = dispatch(t, p, wire.ReceiveMessageBody{Type: wire.TypeReceiveMessage, QueueID: cq.QueueID, Receiver: "worker"})
	var rm wire.ReceiveMessageResponse
	wire.DecodeMessage(resp, &rm)
	if !rm.Found {
		t.Fatalf("expected a message to be available")
	}
	got, _ := rm.Payload.AsString()
	if got != "hi" {
		t.Fatalf("expected payload 'hi', got %q", got)
	}
}

func TestSemaphoreWaitSignal(t *testing.T) {
	p := newTestPeer(t)
	resp := dispatch(t, p, wire.CreateSemaphoreBody{Type: wire.TypeCreateSemaphore, Count: 1})
	var cs wire.CreateSemaphoreResponse
	wire.DecodeMessage(resp, &cs)

	resp = dispatch(t, p, wire.SemaphoreWaitBody{Type: wire.TypeSemaphoreWait, SemaphoreID: cs.SemaphoreID, PID: "P1"})
	var w1 wire.SemaphoreWaitResponse
	wire.DecodeMessage(resp, &w1)
	if w1.Blocked {
		t.Fatalf("first waiter on a count-1 semaphore should acquire immediately")
	}

	resp = dispatch(t, p, wire.SemaphoreWaitBody{Type: wire.TypeSemaphoreWait, SemaphoreID: cs.SemaphoreID, PID: "P2"})
	var w2 wire.SemaphoreWaitResponse
	wire.DecodeMessage(resp, &w2)
	if !w2.Blocked {
		t.Fatalf("second waiter should block with the semaphore exhausted")
	}

	dispatch(t, p, wire.SemaphoreSignalBody{Type: wire.TypeSemaphoreSignal, SemaphoreID: cs.SemaphoreID})
}

func TestProcessTreeRoundTrip(t *testing.T) {
	p := newTestPeer(t)
	resp := dispatch(t, p, wire.CreateProcessBody{Type: wire.TypeCreateProcess, Metadata: map[string]string{"k": "v"}})
	var cp wire.CreateProcessResponse
	wire.DecodeMessage(resp, &cp)

	resp = dispatch(t, p, wire.ProcessTreeBody{Type: wire.TypeProcessTree, Root: cp.PID})
	var tree wire.ProcessTreeResponse
	wire.DecodeMessage(resp, &tree)
	if tree.Tree == nil || tree.Tree.PID != cp.PID {
		t.Fatalf("expected tree rooted at %s, got %+v", cp.PID, tree.Tree)
	}
}
