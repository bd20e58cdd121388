package apns

import "go.uber.org/zap"

// observerPool fans callbacks out onto a small fixed set of
// goroutines, so that a slow or misbehaving response/unreachable
// callback can never block the dispatch worker or the feedback
// drain.
type observerPool struct {
	jobs   chan func()
	done   chan struct{}
	logger *zap.Logger
}

func newObserverPool(size int, logger *zap.Logger) *observerPool {
	if size < 1 {
		size = 1
	}
	p := &observerPool{
		jobs:   make(chan func(), size*4),
		done:   make(chan struct{}),
		logger: logger,
	}
	for i := 0; i < size; i++ {
		go p.run()
	}
	return p
}

func (p *observerPool) run() {
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.invoke(job)
		case <-p.done:
			return
		}
	}
}

// invoke runs job, recovering a panic so a broken observer cannot
// take down the pool or whatever goroutine submitted the job.
func (p *observerPool) invoke(job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("observer callback panicked", zap.Any("recovered", r))
		}
	}()
	job()
}

// submit enqueues job for asynchronous execution. If the pool's
// backlog is full, submit runs the job on a fresh goroutine rather
// than dropping it silently or blocking the caller.
func (p *observerPool) submit(job func()) {
	select {
	case p.jobs <- job:
	default:
		go p.invoke(job)
	}
}

func (p *observerPool) stop() {
	close(p.done)
}
