package apns

import (
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"
)

func testOptions() Options {
	opts := NewOptions()
	opts.QueueCapacity = 4
	opts.ConnectTimeout = 2 * time.Second
	opts.IdleTimeout = 200 * time.Millisecond
	opts.ObserverPoolSize = 2
	return opts
}

func TestServiceEnqueueDeliversResponseObserver(t *testing.T) {
	identity, trust := testIdentity(t)

	addr := testListener(t, identity, trust, func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 512)
		conn.Read(buf)
		conn.Write([]byte{commandResponse, byte(StatusMissingPayload), 0, 0, 0, 55})
	})

	svc := NewService(identity, trust, Endpoints{PushAddr: addr}, testOptions(), testLogger(t))
	responses := make(chan Response, 1)
	svc.SetResponseObserver(func(r Response) { responses <- r })
	svc.Start()
	defer svc.Stop()

	if _, err := svc.Enqueue(Token{}, []byte("x"), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case resp := <-responses:
		if resp.Status != StatusMissingPayload {
			t.Fatalf("got status %v, want %v", resp.Status, StatusMissingPayload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the response observer to fire")
	}
}

func TestServiceEnqueueRejectsOversizedPayload(t *testing.T) {
	identity, trust := testIdentity(t)
	svc := NewService(identity, trust, Endpoints{PushAddr: "127.0.0.1:0"}, testOptions(), testLogger(t))
	svc.Start()
	defer svc.Stop()

	big := make([]byte, DefaultMaxPayloadSize+1)
	if _, err := svc.Enqueue(Token{}, big, time.Now()); err == nil {
		t.Fatal("expected InvalidInput error for an oversized payload")
	}
}

func TestServiceEnqueueFailsWhenNotStarted(t *testing.T) {
	identity, trust := testIdentity(t)
	svc := NewService(identity, trust, Endpoints{PushAddr: "127.0.0.1:0"}, testOptions(), testLogger(t))

	if _, err := svc.Enqueue(Token{}, nil, time.Now()); err == nil {
		t.Fatal("expected an error enqueueing before Start")
	}
}

func TestServiceQueueFullReturnsQueueFullKind(t *testing.T) {
	identity, trust := testIdentity(t)
	opts := testOptions()
	opts.QueueCapacity = 1

	// No listener at all: the worker will never manage to open a
	// session, so frames pile up in the queue rather than draining.
	svc := NewService(identity, trust, Endpoints{PushAddr: "127.0.0.1:1"}, opts, testLogger(t))
	svc.Start()
	defer svc.Stop()

	if _, err := svc.Enqueue(Token{}, nil, time.Now()); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	var lastErr error
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		_, lastErr = svc.Enqueue(Token{}, nil, time.Now())
		if lastErr != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if lastErr == nil {
		t.Fatal("expected the queue to eventually report QueueFull")
	}
	apnsErr, ok := lastErr.(*Error)
	if !ok || apnsErr.Kind != KindQueueFull {
		t.Fatalf("got %v, want a KindQueueFull *Error", lastErr)
	}
}

func TestServiceFetchUnreachableRejectsConcurrentPolls(t *testing.T) {
	identity, trust := testIdentity(t)
	release := make(chan struct{})

	addr := testListener(t, identity, trust, func(conn net.Conn) {
		defer conn.Close()
		// Finish the handshake so the client's dial succeeds and its
		// drain blocks reading an empty stream until release.
		conn.(*tls.Conn).Handshake()
		<-release
	})

	svc := NewService(identity, trust, Endpoints{FeedbackAddr: addr}, testOptions(), testLogger(t))

	errs := make(chan error, 1)
	go func() {
		_, err := svc.FetchUnreachable(context.Background())
		errs <- err
	}()
	time.Sleep(100 * time.Millisecond)

	_, err := svc.FetchUnreachable(context.Background())
	if err == nil {
		t.Fatal("expected AlreadyPolling while the first drain is in flight")
	}
	apnsErr, ok := err.(*Error)
	if !ok || apnsErr.Kind != KindAlreadyPolling {
		t.Fatalf("got %v, want a KindAlreadyPolling *Error", err)
	}

	close(release)
	if err := <-errs; err != nil {
		t.Fatalf("first FetchUnreachable: %v", err)
	}
}

func TestServiceFetchUnreachableReturnsFeedbackRecords(t *testing.T) {
	identity, trust := testIdentity(t)

	rec := FeedbackRecord{Timestamp: 1650000000}
	rec.Token[0] = 0x42
	wire := encodeFeedbackRecord(rec)

	addr := testListener(t, identity, trust, func(conn net.Conn) {
		defer conn.Close()
		conn.Write(wire)
	})

	svc := NewService(identity, trust, Endpoints{FeedbackAddr: addr}, testOptions(), testLogger(t))
	result, err := svc.FetchUnreachable(context.Background())
	if err != nil {
		t.Fatalf("FetchUnreachable: %v", err)
	}
	if _, ok := result[rec.Token]; !ok {
		t.Fatalf("expected token %s in result, got %v", rec.Token, result)
	}
}
