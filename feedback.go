package apns

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnreachableMap maps a device token to the earliest time the
// gateway observed it had become undeliverable.
type UnreachableMap map[Token]time.Time

// drainFeedback opens one TLS connection to addr, reads until the
// peer closes, and returns the deduplicated token→timestamp mapping
// (earliest timestamp wins, ties broken by arrival order — which
// FeedbackParser already preserves since it emits records in stream
// order).
func drainFeedback(ctx context.Context, addr string, identity Identity, trust TrustStore, timeout time.Duration, logger *zap.Logger) (UnreachableMap, error) {
	conn, err := dial(ctx, addr, identity, trust, timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	logger = logger.With(zap.String("drain_id", uuid.NewString()))
	logger.Debug("feedback drain started", zap.String("addr", addr))
	return readFeedbackStream(conn, logger)
}

func readFeedbackStream(r io.Reader, logger *zap.Logger) (UnreachableMap, error) {
	result := make(UnreachableMap)
	var parser FeedbackParser
	buf := make([]byte, 4096)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, rec := range parser.Feed(buf[:n]) {
				ts := time.Unix(int64(rec.Timestamp), 0)
				if existing, ok := result[rec.Token]; !ok || ts.Before(existing) {
					result[rec.Token] = ts
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return result, newError("drainFeedback", KindTransportError, err)
		}
	}

	if pending := parser.Pending(); pending > 0 {
		logger.Warn("feedback stream closed with trailing unparsed bytes", zap.Int("bytes", pending))
	}
	return result, nil
}
