package ipc

import (
	"testing"
	"time"

	"github.com/Snider/Fabric/pkg/value"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	q := NewQueue("q1", 4)
	if !q.Send(Message{Sender: "P1", Receiver: "P2", Payload: value.String("hi")}, 0) {
		t.Fatalf("expected send to succeed with room available")
	}
	msg, ok := q.Receive("P2", 0)
	if !ok {
		t.Fatalf("expected receive to find the message")
	}
	got, _ := msg.Payload.AsString()
	if got != "hi" {
		t.Fatalf("expected payload %q, got %q", "hi", got)
	}
}

func TestSendFailsWhenFullWithoutTimeout(t *testing.T) {
	q := NewQueue("q1", 1)
	if !q.Send(Message{Receiver: "P1"}, 0) {
		t.Fatalf("expected first send to succeed")
	}
	if q.Send(Message{Receiver: "P1"}, 0) {
		t.Fatalf("expected second send to fail when queue is full")
	}
}

func TestSendBlocksUntilRoomWithinTimeout(t *testing.T) {
	q := NewQueue("q1", 1)
	if !q.Send(Message{Receiver: "P1"}, 0) {
		t.Fatalf("expected first send to succeed")
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Receive("P1", 0)
	}()
	if !q.Send(Message{Receiver: "P1"}, 200*time.Millisecond) {
		t.Fatalf("expected send to succeed once room freed within timeout")
	}
}

func TestReceiveRequeuesMismatchedReceiver(t *testing.T) {
	q := NewQueue("q1", 4)
	q.Send(Message{ID: "m1", Receiver: "P1"}, 0)
	q.Send(Message{ID: "m2", Receiver: "P2"}, 0)

	msg, ok := q.Receive("P2", 10*time.Millisecond)
	if !ok || msg.ID != "m2" {
		t.Fatalf("expected to receive m2 for P2, got %+v ok=%v", msg, ok)
	}

	// m1 should still be available for P1, having been requeued.
	msg, ok = q.Receive("P1", 10*time.Millisecond)
	if !ok || msg.ID != "m1" {
		t.Fatalf("expected to receive requeued m1 for P1, got %+v ok=%v", msg, ok)
	}
}

func TestReceiveBroadcastMatchesAnyReceiver(t *testing.T) {
	q := NewQueue("q1", 4)
	q.Send(Message{ID: "m1", Receiver: BroadcastReceiver}, 0)

	msg, ok := q.Receive("anyone", 0)
	if !ok || msg.ID != "m1" {
		t.Fatalf("expected broadcast message delivered to any receiver, got %+v ok=%v", msg, ok)
	}
}

func TestReceiveTimesOutWhenEmpty(t *testing.T) {
	q := NewQueue("q1", 4)
	_, ok := q.Receive("P1", 20*time.Millisecond)
	if ok {
		t.Fatalf("expected receive on empty queue to time out")
	}
}

func TestSemaphoreWaitDecrementsWhenPositive(t *testing.T) {
	s := NewSemaphore("s1", 1)
	if blocked := s.Wait("P1"); blocked {
		t.Fatalf("expected first wait to acquire immediately")
	}
	if v := s.Value(); v != 0 {
		t.Fatalf("expected value 0 after acquire, got %d", v)
	}
}

func TestSemaphoreWaitBlocksWhenZero(t *testing.T) {
	s := NewSemaphore("s1", 0)
	if blocked := s.Wait("P1"); !blocked {
		t.Fatalf("expected wait on zero-value semaphore to block")
	}
	stats := s.Statistics()
	if stats.Waiting != 1 {
		t.Fatalf("expected 1 waiter recorded, got %d", stats.Waiting)
	}
}

func TestSemaphoreSignalWakesWaiterInsteadOfIncrementing(t *testing.T) {
	s := NewSemaphore("s1", 0)
	s.Wait("P1")
	s.Wait("P2")

	woken, hadWaiter := s.Signal()
	if !hadWaiter || woken != "P1" {
		t.Fatalf("expected P1 woken first (FIFO), got %q hadWaiter=%v", woken, hadWaiter)
	}
	if v := s.Value(); v != 0 {
		t.Fatalf("expected value to remain 0 when a waiter was woken, got %d", v)
	}

	woken, hadWaiter = s.Signal()
	if !hadWaiter || woken != "P2" {
		t.Fatalf("expected P2 woken second, got %q hadWaiter=%v", woken, hadWaiter)
	}
}

func TestSemaphoreSignalIncrementsWhenNoWaiters(t *testing.T) {
	s := NewSemaphore("s1", 0)
	woken, hadWaiter := s.Signal()
	if hadWaiter || woken != "" {
		t.Fatalf("expected no waiter woken, got %q hadWaiter=%v", woken, hadWaiter)
	}
	if v := s.Value(); v != 1 {
		t.Fatalf("expected value incremented to 1, got %d", v)
	}
}

func TestManagerCreateQueueRejectsDuplicateID(t *testing.T) {
	m := NewManager()
	if !m.CreateQueue("q1", 10) {
		t.Fatalf("expected first creation to succeed")
	}
	if m.CreateQueue("q1", 10) {
		t.Fatalf("expected duplicate creation to fail")
	}
}

func TestManagerCreateSemaphoreRejectsDuplicateID(t *testing.T) {
	m := NewManager()
	if !m.CreateSemaphore("s1", 1) {
		t.Fatalf("expected first creation to succeed")
	}
	if m.CreateSemaphore("s1", 1) {
		t.Fatalf("expected duplicate creation to fail")
	}
}

func TestManagerDeleteRemovesQueueAndSemaphore(t *testing.T) {
	m := NewManager()
	m.CreateQueue("q1", 10)
	m.CreateSemaphore("s1", 1)

	if !m.DeleteQueue("q1") {
		t.Fatalf("expected delete of existing queue to succeed")
	}
	if m.Queue("q1") != nil {
		t.Fatalf("expected queue removed")
	}
	if !m.DeleteSemaphore("s1") {
		t.Fatalf("expected delete of existing semaphore to succeed")
	}
	if m.Semaphore("s1") != nil {
		t.Fatalf("expected semaphore removed")
	}
}
