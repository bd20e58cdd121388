package apns

import "time"

// Wire protocol constants for the legacy enhanced-format binary
// gateway protocol (see codec.go for the byte layouts).
const (
	commandNotification = 0x01
	commandResponse      = 0x08

	tokenSize         = 32
	notificationHdr   = 1 + 4 + 4 + 2 // command + identifier + expiry + token length
	responseFrameSize = 1 + 1 + 4
	feedbackRecordSize = 4 + 2 + tokenSize
)

// Default push/feedback hostnames, matching the three named endpoint
// sets the gateway has historically exposed.
const (
	hostApnsProduction      = "gateway.push.apple.com:2195"
	hostApnsSandbox         = "gateway.sandbox.push.apple.com:2195"
	hostFeedbackProduction  = "feedback.push.apple.com:2196"
	hostFeedbackSandbox     = "feedback.sandbox.push.apple.com:2196"
	hostApnsLocal           = "localhost:2195"
	hostFeedbackLocal       = "localhost:2196"
)

// Defaults for Options, overridable by setting Options fields or via
// config.Load.
const (
	// DefaultMaxPayloadSize is Apple's historical payload ceiling for
	// the legacy gateway protocol.
	DefaultMaxPayloadSize = 256

	// DefaultIdleTimeout is how long the dispatch worker keeps the
	// push session open after the last successfully sent frame.
	DefaultIdleTimeout = 10 * time.Minute

	// DefaultQueueCapacity bounds the dispatch queue's FIFO.
	DefaultQueueCapacity = 10000

	// DefaultConnectTimeout bounds the TLS handshake when opening a
	// session to either endpoint.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultObserverPoolSize is the number of goroutines used to
	// fan out response/unreachable observer callbacks off the
	// dispatch worker.
	DefaultObserverPoolSize = 4
)
