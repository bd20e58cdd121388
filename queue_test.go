package apns

import (
	"context"
	"testing"
	"time"
)

func TestDispatchQueueFIFOOrder(t *testing.T) {
	q := newDispatchQueue(10)
	for _, b := range [][]byte{{1}, {2}, {3}} {
		if !q.offer(b) {
			t.Fatalf("offer(%v) unexpectedly rejected", b)
		}
	}

	ctx := context.Background()
	for _, want := range [][]byte{{1}, {2}, {3}} {
		got, ok := q.take(ctx)
		if !ok || got[0] != want[0] {
			t.Fatalf("take() = %v, %v, want %v, true", got, ok, want)
		}
	}
}

func TestDispatchQueueOfferRejectsAtCapacity(t *testing.T) {
	q := newDispatchQueue(2)
	if !q.offer([]byte{1}) || !q.offer([]byte{2}) {
		t.Fatal("expected both offers under capacity to succeed")
	}
	if q.offer([]byte{3}) {
		t.Fatal("expected offer beyond capacity to be rejected")
	}
}

func TestDispatchQueuePrependBypassesCapacity(t *testing.T) {
	q := newDispatchQueue(1)
	if !q.offer([]byte{1}) {
		t.Fatal("expected initial offer to succeed")
	}
	// prepend must never drop a frame the worker already accepted,
	// even though doing so pushes the queue over its configured cap.
	q.prepend([][]byte{{9}})

	ctx := context.Background()
	first, _ := q.take(ctx)
	if first[0] != 9 {
		t.Fatalf("first frame after prepend = %v, want the requeued frame", first)
	}
	second, _ := q.take(ctx)
	if second[0] != 1 {
		t.Fatalf("second frame = %v, want the originally queued frame", second)
	}
}

func TestDispatchQueuePollTimesOut(t *testing.T) {
	q := newDispatchQueue(10)
	start := time.Now()
	_, ok := q.poll(context.Background(), 50*time.Millisecond)
	if ok {
		t.Fatal("expected poll to time out on an empty queue")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("poll returned too early: %v", elapsed)
	}
}

func TestDispatchQueueTakeUnblocksOnContextCancel(t *testing.T) {
	q := newDispatchQueue(10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_, ok := q.take(ctx)
		if ok {
			t.Error("expected take to report no frame after cancellation")
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("take did not unblock after context cancellation")
	}
}
