package apns

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ResponseObserver receives every decoded gateway error-response frame
// the dispatch worker manages to read back, off the worker goroutine.
// The success case — the gateway simply never answers — never reaches
// this callback; only sends-then-rejected is observable in this
// protocol.
type ResponseObserver func(Response)

// UnreachableObserver receives the result of a feedback drain, off
// the goroutine that ran it, in addition to FetchUnreachable's
// synchronous return value.
type UnreachableObserver func(UnreachableMap)

// Service is the public façade over the dispatch queue, the push and
// feedback sessions, and the observer fan-out pool. Callers construct
// one per identity/endpoint pair, Start it, Enqueue notifications and
// occasionally FetchUnreachable, and Stop it when done.
type Service struct {
	logger *zap.Logger

	mu           sync.Mutex
	identity     Identity
	trust        TrustStore
	endpoints    Endpoints
	opts         Options
	configGen    int64
	configSignal chan struct{}

	queue     *dispatchQueue
	observers *observerPool

	observerMu  sync.RWMutex
	onResponse  ResponseObserver
	onUnreach   UnreachableObserver

	running      aBool
	workerCancel context.CancelFunc
	workerWG     sync.WaitGroup

	polling aBool
}

// NewService constructs a Service. logger may be nil, in which case
// all logging is discarded.
func NewService(identity Identity, trust TrustStore, endpoints Endpoints, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logger:       logger,
		identity:     identity,
		trust:        trust,
		endpoints:    endpoints,
		opts:         opts,
		queue:        newDispatchQueue(opts.QueueCapacity),
		observers:    newObserverPool(opts.ObserverPoolSize, logger),
		configSignal: make(chan struct{}),
	}
}

// Configure atomically replaces the identity, trust store, and
// endpoints a Service dials, and signals the dispatch worker to close
// its currently open push session at the next safe point — after its
// in-flight frame, before it would otherwise send the next one — so
// that session reopens under the new configuration rather than
// continuing to dispatch under the old one until it next idles out or
// fails to write.
func (s *Service) Configure(identity Identity, trust TrustStore, endpoints Endpoints) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
	s.trust = trust
	s.endpoints = endpoints
	s.configGen++
	close(s.configSignal)
	s.configSignal = make(chan struct{})
}

// SetResponseObserver installs the callback invoked for every decoded
// gateway error-response frame. Passing nil is equivalent to
// ClearResponseObserver.
func (s *Service) SetResponseObserver(observer ResponseObserver) {
	s.observerMu.Lock()
	s.onResponse = observer
	s.observerMu.Unlock()
}

// ClearResponseObserver removes any previously installed response
// observer.
func (s *Service) ClearResponseObserver() {
	s.SetResponseObserver(nil)
}

// SetUnreachableObserver installs the callback invoked after a
// successful FetchUnreachable, in addition to that call's own return
// value.
func (s *Service) SetUnreachableObserver(observer UnreachableObserver) {
	s.observerMu.Lock()
	s.onUnreach = observer
	s.observerMu.Unlock()
}

func (s *Service) responseObserver() ResponseObserver {
	s.observerMu.RLock()
	defer s.observerMu.RUnlock()
	return s.onResponse
}

func (s *Service) unreachableObserver() UnreachableObserver {
	s.observerMu.RLock()
	defer s.observerMu.RUnlock()
	return s.onUnreach
}

func (s *Service) snapshotConfig() (Identity, TrustStore, Endpoints, time.Duration, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.trust, s.endpoints, s.opts.ConnectTimeout, s.configGen
}

// configGeneration reports the current configuration generation
// without taking a full snapshot, so the worker can cheaply check
// whether its open session has gone stale after each frame.
func (s *Service) configGeneration() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configGen
}

// configChanged returns the channel Configure will close the next
// time it's called, letting the worker wake up from an idle wait
// immediately instead of only noticing a reconfiguration once the
// next frame arrives.
func (s *Service) configChanged() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configSignal
}

func (s *Service) idleTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.IdleTimeout
}

func (s *Service) maxPayloadSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.MaxPayloadSize
}

func (s *Service) nextIdentifier() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.IdentifierSupplier()
}

func (s *Service) workerDone() {
	s.workerWG.Done()
}

// Start launches the dispatch worker. Calling Start while already
// running is a no-op; at most one worker ever runs at a time.
func (s *Service) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.workerCancel = cancel
	s.workerWG.Add(1)
	worker := &dispatchWorker{svc: s}
	go worker.run(ctx)
}

// Stop asks the dispatch worker to finish its in-flight frame, close
// any open session, and return. It blocks until the worker has
// exited. Calling Stop when not running is a no-op. Frames still
// waiting in the queue when Stop is called are not sent; they stay in
// memory only — this package keeps no durable outbox.
func (s *Service) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.workerCancel()
	s.workerWG.Wait()
	s.observers.stop()
}

// Enqueue builds a notification frame for token/payload/expiry,
// assigns it an identifier, and hands it to the dispatch queue. It
// returns the assigned identifier so the caller can correlate a later
// ResponseObserver callback back to this call.
func (s *Service) Enqueue(token Token, payload []byte, expiry time.Time) (uint32, error) {
	if !s.running.Is() {
		return 0, newError("Enqueue", KindTransportError, ErrClientClosed)
	}
	if len(payload) > s.maxPayloadSize() {
		return 0, newError("Enqueue", KindInvalidInput, nil)
	}

	identifier := s.nextIdentifier()
	frame, err := EncodeNotification(token.Bytes(), payload, uint32(expiry.Unix()), identifier)
	if err != nil {
		return 0, err
	}

	if !s.queue.offer(frame) {
		return 0, newError("Enqueue", KindQueueFull, ErrQueueFull)
	}
	return identifier, nil
}

// FetchUnreachable drains the feedback service once and returns the
// set of device tokens it reported as undeliverable. Only one drain
// may be in flight at a time; a concurrent call returns
// ErrAlreadyPolling immediately rather than queuing or blocking.
func (s *Service) FetchUnreachable(ctx context.Context) (UnreachableMap, error) {
	if !s.polling.CompareAndSwap(false, true) {
		return nil, newError("FetchUnreachable", KindAlreadyPolling, ErrAlreadyPolling)
	}
	defer s.polling.Set(false)

	identity, trust, endpoints, timeout, _ := s.snapshotConfig()
	result, err := drainFeedback(ctx, endpoints.FeedbackAddr, identity, trust, timeout, s.logger)
	if err != nil {
		return nil, err
	}

	if observer := s.unreachableObserver(); observer != nil {
		s.observers.submit(func() {
			observer(result)
		})
	}
	return result, nil
}
