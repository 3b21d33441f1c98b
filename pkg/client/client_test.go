package client

import (
	"context"
	"testing"
	"time"

	"github.com/Snider/Fabric/pkg/ferrors"
	"github.com/Snider/Fabric/pkg/rpc"
	"github.com/Snider/Fabric/pkg/value"
	"github.com/Snider/Fabric/pkg/wire"
)

func encodeErr(err error) []byte {
	fe := ferrors.AsFabricError(err)
	body, _ := wire.EncodeMessage(wire.NewErrorBody(string(fe.Code), fe.Message))
	return body
}

func setupServer(t *testing.T, handler rpc.Handler) string {
	t.Helper()
	srv, err := rpc.NewServer("127.0.0.1:0", handler, encodeErr, 2*time.Second, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv.Addr().String()
}

func TestTrackerRegisterRoundTrip(t *testing.T) {
	addr := setupServer(t, func(ctx context.Context, body []byte) ([]byte, error) {
		var req wire.RegisterBody
		if err := wire.DecodeMessage(body, &req); err != nil {
			return nil, err
		}
		if req.IP != "10.0.0.1" || req.Port != 9001 {
			t.Fatalf("unexpected register body: %+v", req)
		}
		return wire.EncodeMessage(wire.RegisterResponse{Type: wire.TypeRegister, PeerCount: 3})
	})

	tr := NewTracker(addr)
	count, err := tr.Register("10.0.0.1", 9001, 0.2, "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected peer count 3, got %d", count)
	}
}

func TestTrackerRequestCPUSurfacesErrorFrame(t *testing.T) {
	addr := setupServer(t, func(ctx context.Context, body []byte) ([]byte, error) {
		return nil, ferrors.NoPeersAvailable()
	})

	tr := NewTracker(addr)
	_, err := tr.RequestCPU()
	if err == nil {
		t.Fatalf("expected error from empty tracker")
	}
	fe := ferrors.AsFabricError(err)
	if fe.Code != ferrors.CodeNoPeersAvail {
		t.Fatalf("expected NO_PEERS_AVAILABLE, got %s", fe.Code)
	}
}

func TestTrackerStatusRoundTrip(t *testing.T) {
	addr := setupServer(t, func(ctx context.Context, body []byte) ([]byte, error) {
		return wire.EncodeMessage(wire.TrackerStatusResponse{Type: wire.TypeStatus, PeerCount: 5, AverageLoad: 0.4})
	})

	tr := NewTracker(addr)
	status, err := tr.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.PeerCount != 5 || status.AverageLoad != 0.4 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestPeerCPUTaskRoundTrip(t *testing.T) {
	addr := setupServer(t, func(ctx context.Context, body []byte) ([]byte, error) {
		var req wire.CPUTaskBody
		if err := wire.DecodeMessage(body, &req); err != nil {
			return nil, err
		}
		return wire.EncodeMessage(wire.CPUResultBody{
			Type:       wire.TypeCPUResult,
			TaskID:     req.TaskID,
			Result:     value.Int(42),
			ExecutedBy: "peer-1",
			ElapsedMS:  5,
		})
	})

	pc := NewPeer(addr)
	result, err := pc.CPUTask(wire.CPUTaskBody{TaskID: "t1", FunctionName: "add", Args: []value.Value{value.Int(1), value.Int(2)}})
	if err != nil {
		t.Fatalf("CPUTask: %v", err)
	}
	n, _ := result.Result.AsInt()
	if n != 42 {
		t.Fatalf("expected result 42, got %d", n)
	}
}

func TestPeerSetGetMemRoundTrip(t *testing.T) {
	store := map[string]value.Value{}
	addr := setupServer(t, func(ctx context.Context, body []byte) ([]byte, error) {
		var env wire.Envelope
		if err := wire.DecodeMessage(body, &env); err != nil {
			return nil, err
		}
		switch env.Type {
		case wire.TypeSetMem:
			var req wire.SetMemBody
			wire.DecodeMessage(body, &req)
			store[req.Key] = req.Value
			return wire.EncodeMessage(wire.Envelope{Type: wire.TypeSetMem})
		case wire.TypeGetMem:
			var req wire.GetMemBody
			wire.DecodeMessage(body, &req)
			v, found := store[req.Key]
			return wire.EncodeMessage(wire.MemResponseBody{Type: wire.TypeMemResponse, Key: req.Key, Value: v, Found: found})
		default:
			return nil, ferrors.UnknownMessage(string(env.Type))
		}
	})

	pc := NewPeer(addr)
	if err := pc.SetMem("k1", value.String("v1")); err != nil {
		t.Fatalf("SetMem: %v", err)
	}
	resp, err := pc.GetMem("k1")
	if err != nil {
		t.Fatalf("GetMem: %v", err)
	}
	got, _ := resp.Value.AsString()
	if !resp.Found || got != "v1" {
		t.Fatalf("expected found v1, got %+v", resp)
	}
}

func TestPeerDeadlockCheckRoundTrip(t *testing.T) {
	addr := setupServer(t, func(ctx context.Context, body []byte) ([]byte, error) {
		return wire.EncodeMessage(wire.DeadlockCheckResponse{Type: wire.TypeDeadlockCheck, Deadlocked: true, PIDs: []string{"P1", "P2"}})
	})

	pc := NewPeer(addr)
	resp, err := pc.DeadlockCheck()
	if err != nil {
		t.Fatalf("DeadlockCheck: %v", err)
	}
	if !resp.Deadlocked || len(resp.PIDs) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
