package apns

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// dial performs the full mutually authenticated TLS handshake to addr
// synchronously from the caller's perspective: split the host for
// SNI, build a single-certificate tls.Config, and dial with a bounded
// timeout.
//
// Framing discipline (message boundaries, partial reads/writes) is
// entirely the caller's responsibility — dial only hands back a
// plain, authenticated byte stream.
func dial(ctx context.Context, addr string, identity Identity, trust TrustStore, timeout time.Duration) (*tls.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, newError("dial", KindTransportError, err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{identity.Certificate},
		ServerName:   host,
		RootCAs:      trust.Pool,
		MinVersion:   tls.VersionTLS12,
	}

	dialer := &net.Dialer{Timeout: timeout}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newError("dial", KindTransportError, err)
	}

	conn := tls.Client(rawConn, tlsConfig)
	if err := conn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, newError("dial", KindTransportError, err)
	}
	return conn, nil
}
