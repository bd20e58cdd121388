// Package apns implements a client for Apple's legacy binary Push
// Notification gateway and its companion Feedback service.
//
// The client keeps a single persistent, mutually authenticated TLS
// connection to the gateway warm while notifications are flowing,
// tears it down after an idle period, and requeues any notification
// that fails to send. A second, short-lived TLS connection drains the
// Feedback service on demand to learn which device tokens have gone
// stale.
//
// This package speaks the old enhanced-format binary protocol with
// 32-byte device tokens. It does not speak HTTP/2 or token-based push.
package apns
