package peerserver

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/Snider/Fabric/pkg/client"
	"github.com/Snider/Fabric/pkg/executor"
	"github.com/Snider/Fabric/pkg/ferrors"
	"github.com/Snider/Fabric/pkg/rpc"
	"github.com/Snider/Fabric/pkg/tracker"
	"github.com/Snider/Fabric/pkg/value"
	"github.com/Snider/Fabric/pkg/wire"
)

func testEncodeError(err error) []byte {
	fe := ferrors.AsFabricError(err)
	body, _ := wire.EncodeMessage(wire.NewErrorBody(string(fe.Code), fe.Message))
	return body
}

// freeLoopbackAddr reserves and immediately releases an ephemeral port so
// a caller can know its own future listen address before constructing the
// thing that will bind it.
func freeLoopbackAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func startDispatchPeer(t *testing.T, selfAddr, trackerAddr string) *Peer {
	t.Helper()
	dir := t.TempDir()
	reg := executor.NewRegistry()
	reg.Register("square", func(ctx context.Context, args []value.Value) (value.Value, error) {
		n, _ := args[0].AsInt()
		return value.Int(n * n), nil
	})

	p, err := New(Config{
		SelfAddress:    selfAddr,
		TrackerAddress: trackerAddr,
		PublicRoot:     dir + "/public",
		OwnedRoot:      dir + "/owned",
	}, reg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Close)

	srv, err := rpc.NewServer(selfAddr, p.Dispatch, testEncodeError, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return p
}

func startDispatchTracker(t *testing.T) string {
	t.Helper()
	trk := tracker.New(time.Minute, "", nil)
	addr := freeLoopbackAddr(t)
	srv, err := rpc.NewServer(addr, trk.Dispatch, testEncodeError, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return addr
}

// TestCPUTaskDispatchesToLeastLoadedPeer exercises scenario E1: a client
// submits a non-confidential task to the more-loaded peer P, the tracker
// names the less-loaded peer Q, and P forwards the task to Q rather than
// running it itself.
func TestCPUTaskDispatchesToLeastLoadedPeer(t *testing.T) {
	trackerAddr := startDispatchTracker(t)
	trClient := client.NewTracker(trackerAddr)

	pAddr := freeLoopbackAddr(t)
	qAddr := freeLoopbackAddr(t)
	startDispatchPeer(t, pAddr, trackerAddr)
	startDispatchPeer(t, qAddr, trackerAddr)

	pHost, pPort := splitAddr(t, pAddr)
	qHost, qPort := splitAddr(t, qAddr)
	if _, err := trClient.Register(pHost, pPort, 0.2, "", ""); err != nil {
		t.Fatalf("register P: %v", err)
	}
	if _, err := trClient.Register(qHost, qPort, 0.0, "", ""); err != nil {
		t.Fatalf("register Q: %v", err)
	}

	pClient := client.NewPeer(pAddr)
	resp, err := pClient.CPUTask(wire.CPUTaskBody{
		TaskID:       "e1",
		FunctionName: "square",
		Args:         []value.Value{value.Int(7)},
	})
	if err != nil {
		t.Fatalf("CPUTask: %v", err)
	}
	n, _ := resp.Result.AsInt()
	if n != 49 {
		t.Fatalf("expected 49, got %d", n)
	}
	if resp.ExecutedBy != qAddr {
		t.Fatalf("expected the less-loaded peer %q to execute, got %q", qAddr, resp.ExecutedBy)
	}
}

// TestCPUTaskConfidentialStaysLocal exercises scenario E3: a confidential
// task submitted to P always executes on P, regardless of relative loads.
func TestCPUTaskConfidentialStaysLocal(t *testing.T) {
	trackerAddr := startDispatchTracker(t)
	trClient := client.NewTracker(trackerAddr)

	pAddr := freeLoopbackAddr(t)
	qAddr := freeLoopbackAddr(t)
	startDispatchPeer(t, pAddr, trackerAddr)
	startDispatchPeer(t, qAddr, trackerAddr)

	pHost, pPort := splitAddr(t, pAddr)
	qHost, qPort := splitAddr(t, qAddr)
	if _, err := trClient.Register(pHost, pPort, 0.8, "", ""); err != nil {
		t.Fatalf("register P: %v", err)
	}
	if _, err := trClient.Register(qHost, qPort, 0.0, "", ""); err != nil {
		t.Fatalf("register Q: %v", err)
	}

	pClient := client.NewPeer(pAddr)
	resp, err := pClient.CPUTask(wire.CPUTaskBody{
		TaskID:       "e3",
		FunctionName: "square",
		Args:         []value.Value{value.Int(7)},
		Confidential: true,
	})
	if err != nil {
		t.Fatalf("CPUTask: %v", err)
	}
	if resp.ExecutedBy != pAddr {
		t.Fatalf("confidential task should stay on %q regardless of load, got %q", pAddr, resp.ExecutedBy)
	}
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort(%q): %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port %q: %v", portStr, err)
	}
	return host, port
}
