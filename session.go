package apns

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// gatewaySession owns one live push connection. It is single-writer
// by contract: only the dispatch worker calls write. The read side
// runs its own goroutine for the lifetime of the connection,
// accumulating bytes so that the gateway's error-response frame —
// sent immediately before the peer closes — is available at close
// time even though the peer may not leave it readable after the TCP
// connection itself is gone. Reading eagerly like this avoids relying
// on trailing post-close bytes being readable at all.
type gatewaySession struct {
	conn   *tls.Conn
	logger *zap.Logger

	mu          sync.Mutex
	tail        []byte
	readLoopEnd chan struct{}
}

// openGatewaySession dials addr and starts the background reader.
func openGatewaySession(ctx context.Context, addr string, identity Identity, trust TrustStore, timeout time.Duration, logger *zap.Logger) (*gatewaySession, error) {
	conn, err := dial(ctx, addr, identity, trust, timeout)
	if err != nil {
		return nil, err
	}
	s := &gatewaySession{
		conn:        conn,
		logger:      logger.With(zap.String("session_id", uuid.NewString())),
		readLoopEnd: make(chan struct{}),
	}
	s.logger.Debug("push session opened", zap.String("addr", addr))
	go s.readLoop()
	return s, nil
}

func (s *gatewaySession) readLoop() {
	defer close(s.readLoopEnd)
	buf := make([]byte, 256)
	var acc []byte
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			if len(acc) > responseFrameSize {
				acc = acc[len(acc)-responseFrameSize:]
			}
		}
		if err != nil {
			break
		}
	}
	s.mu.Lock()
	s.tail = acc
	s.mu.Unlock()
}

// write sends one notification frame. The caller (the dispatch
// worker) is the only writer for the lifetime of this session.
func (s *gatewaySession) write(frame []byte) error {
	_, err := s.conn.Write(frame)
	if err != nil {
		return newError("gatewaySession.write", KindTransportError, err)
	}
	return nil
}

// close tears the session down and, if the gateway sent a complete
// 6-byte error-response frame before closing, decodes and returns it.
// Calling close more than once is safe; a later call returns the same
// result as the first.
func (s *gatewaySession) close() (Response, bool) {
	s.conn.Close()
	<-s.readLoopEnd

	s.mu.Lock()
	tail := s.tail
	s.mu.Unlock()

	if len(tail) != responseFrameSize {
		return Response{}, false
	}
	resp, err := DecodeResponse(tail)
	if err != nil {
		s.logger.Debug("gateway closed with unparseable trailing bytes", zap.Int("n", len(tail)))
		return Response{}, false
	}
	return resp, true
}
