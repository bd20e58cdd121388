package apns

import "time"

// Endpoints is the immutable tuple of addresses and TLS protocol name
// a Service dials. Replacing it via Service.Configure makes the
// dispatch worker close its open push session at the next safe point
// and reopen it against the new endpoints.
type Endpoints struct {
	PushAddr     string
	FeedbackAddr string
	TLSProtocol  string // informational; crypto/tls negotiates the highest mutually supported version
}

// Named endpoint defaults, matching the gateway's three historical
// deployments.
var (
	EndpointsSandbox = Endpoints{
		PushAddr:     hostApnsSandbox,
		FeedbackAddr: hostFeedbackSandbox,
		TLSProtocol:  "tls1.x",
	}
	EndpointsProduction = Endpoints{
		PushAddr:     hostApnsProduction,
		FeedbackAddr: hostFeedbackProduction,
		TLSProtocol:  "tls1.x",
	}
	EndpointsLocal = Endpoints{
		PushAddr:     hostApnsLocal,
		FeedbackAddr: hostFeedbackLocal,
		TLSProtocol:  "tls1.x",
	}
)

// IdentifierSupplier produces the 32-bit identifier assigned to a
// notification at enqueue time. Identifiers need not be unique; the
// default is a monotonic counter, which collides far less often than
// a plain uniform-random draw would.
type IdentifierSupplier func() uint32

// Options configures a Service. Zero value Options is invalid; use
// NewOptions to get defaults, then override selectively.
type Options struct {
	// MaxPayloadSize bounds the serialized payload size Enqueue will
	// accept. Apple's historical limit for this protocol is 256
	// bytes; raising it is an explicit escape hatch.
	MaxPayloadSize int

	// IdleTimeout is how long the dispatch worker keeps the push
	// session open after the last successfully sent frame before
	// closing it.
	IdleTimeout time.Duration

	// QueueCapacity bounds the dispatch queue's FIFO.
	QueueCapacity int

	// ConnectTimeout bounds the TLS handshake when opening either
	// session.
	ConnectTimeout time.Duration

	// IdentifierSupplier generates the identifier assigned to each
	// notification at enqueue time.
	IdentifierSupplier IdentifierSupplier

	// ObserverPoolSize is the number of goroutines used to deliver
	// response/unreachable observer callbacks off the dispatch
	// worker and the feedback-drain goroutine.
	ObserverPoolSize int
}

// NewOptions returns an Options populated with the package defaults.
func NewOptions() Options {
	return Options{
		MaxPayloadSize:     DefaultMaxPayloadSize,
		IdleTimeout:        DefaultIdleTimeout,
		QueueCapacity:      DefaultQueueCapacity,
		ConnectTimeout:     DefaultConnectTimeout,
		IdentifierSupplier: newCounterSupplier(),
		ObserverPoolSize:   DefaultObserverPoolSize,
	}
}

func newCounterSupplier() IdentifierSupplier {
	var counter = randomSeed32()
	return func() uint32 {
		counter++
		return counter
	}
}
