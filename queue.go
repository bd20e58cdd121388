package apns

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// dispatchQueue is the bounded FIFO of encoded notification frames
// the dispatch worker drains. Producers call offer, which never
// blocks; the single dispatch worker calls take/poll to consume, and
// prepend to put failed frames back at the head ahead of anything
// enqueued while they were in flight.
//
// Grounded on the original APNQueue.java's BlockingQueue/LinkedList
// pair (apnQueue + deadQueue), generalized from Java's
// take()/poll(timeout) to a context-cancellable equivalent. Failed
// frames go back to the head rather than the tail, unlike the
// original's apnQueue.addAll(deadQueue) tail-append — a frame that
// already lost its place in line shouldn't lose it twice.
type dispatchQueue struct {
	mu       sync.Mutex
	items    [][]byte
	capacity int
	notify   chan struct{}
}

func newDispatchQueue(capacity int) *dispatchQueue {
	return &dispatchQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// offer appends frame to the tail if the queue has room. Never
// blocks; returns false (QueueFull) if the queue is at capacity.
func (q *dispatchQueue) offer(frame []byte) bool {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, frame)
	q.mu.Unlock()
	q.signal()
	return true
}

// prepend puts frames back at the head of the queue, ahead of
// anything already waiting. Used only for requeuing frames that
// failed to send; it deliberately ignores capacity, since dropping a
// frame the worker already accepted would mean silently losing a
// notification the caller was told was queued.
func (q *dispatchQueue) prepend(frames [][]byte) {
	if len(frames) == 0 {
		return
	}
	q.mu.Lock()
	merged := make([][]byte, 0, len(frames)+len(q.items))
	merged = append(merged, frames...)
	merged = append(merged, q.items...)
	q.items = merged
	q.mu.Unlock()
	q.signal()
}

func (q *dispatchQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *dispatchQueue) popFront() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// take blocks until a frame is available or ctx is done.
func (q *dispatchQueue) take(ctx context.Context) ([]byte, bool) {
	for {
		if item, ok := q.popFront(); ok {
			return item, true
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// poll blocks until a frame is available, timeout elapses, or ctx is
// done — the worker's "wait up to the idle timeout for the next
// frame" step between sends on an already-open session.
func (q *dispatchQueue) poll(ctx context.Context, timeout time.Duration) ([]byte, bool) {
	return q.pollUntil(ctx, timeout, nil)
}

// pollUntil is poll with an extra wake channel: it also returns
// (nil, false) as soon as wake fires, so a waiting worker can be
// pulled out of an idle wait by something other than a new frame or
// the idle timeout — specifically, a reconfiguration that should
// close the session immediately rather than whenever the next frame
// happens to arrive.
func (q *dispatchQueue) pollUntil(ctx context.Context, timeout time.Duration, wake <-chan struct{}) ([]byte, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if item, ok := q.popFront(); ok {
			return item, true
		}
		select {
		case <-q.notify:
		case <-timer.C:
			return nil, false
		case <-ctx.Done():
			return nil, false
		case <-wake:
			return nil, false
		}
	}
}

func (q *dispatchQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// reconnectBackoff is the fixed pause between a failed connect
// attempt and the worker's next try. This is the minimum delay needed
// to keep a gateway outage from turning into a hot retry loop, not a
// real backoff policy — there's no growth, and no cap to grow toward.
const reconnectBackoff = 1 * time.Second

// dispatchWorker runs the single consumer loop against a Service's
// queue and configuration. There is at most one of these alive per
// Service at a time (enforced by Service.Start).
type dispatchWorker struct {
	svc *Service
}

func (w *dispatchWorker) run(ctx context.Context) {
	svc := w.svc
	var session *gatewaySession
	var sessionGen int64

	defer func() {
		if session != nil {
			w.finishSession(session)
		}
		svc.workerDone()
	}()

	for {
		frame, ok := svc.queue.take(ctx)
		if !ok {
			return
		}

		for {
			if session == nil {
				var err error
				session, sessionGen, err = w.openSession(ctx)
				if err != nil {
					svc.logger.Warn("push session connect failed, requeueing frame", zap.Error(err))
					svc.queue.prepend([][]byte{frame})
					select {
					case <-time.After(reconnectBackoff):
					case <-ctx.Done():
						return
					}
					break
				}
			}

			if err := session.write(frame); err != nil {
				svc.logger.Warn("push session write failed, requeueing frame", zap.Error(err))
				svc.queue.prepend([][]byte{frame})
				w.finishSession(session)
				session = nil
				break
			}

			// Configure was called while this session was warm: close it
			// now, at the first safe point after the frame it was mid-way
			// through, so the next frame reopens under the new config.
			if svc.configGeneration() != sessionGen {
				w.finishSession(session)
				session = nil
				break
			}

			next, ok := svc.queue.pollUntil(ctx, svc.idleTimeout(), svc.configChanged())
			if !ok {
				w.finishSession(session)
				session = nil
				break
			}
			frame = next
		}
	}
}

func (w *dispatchWorker) openSession(ctx context.Context) (*gatewaySession, int64, error) {
	identity, trust, endpoints, timeout, gen := w.svc.snapshotConfig()
	session, err := openGatewaySession(ctx, endpoints.PushAddr, identity, trust, timeout, w.svc.logger)
	if err != nil {
		return nil, 0, err
	}
	return session, gen, nil
}

// finishSession closes session and, if the gateway left a decodable
// error-response frame behind, delivers it to the response observer
// off the worker goroutine.
func (w *dispatchWorker) finishSession(session *gatewaySession) {
	resp, ok := session.close()
	if !ok {
		return
	}
	observer := w.svc.responseObserver()
	if observer == nil {
		return
	}
	w.svc.observers.submit(func() {
		observer(resp)
	})
}
