package apns

import (
	"encoding/binary"
)

// Status is the gateway's verdict on a previously sent notification,
// decoded from a 6-byte response frame.
type Status uint8

const (
	StatusSuccess             Status = 0
	StatusProcessingError     Status = 1
	StatusMissingDeviceToken  Status = 2
	StatusMissingTopic        Status = 3
	StatusMissingPayload      Status = 4
	StatusInvalidTokenSize    Status = 5
	StatusInvalidTopicSize    Status = 6
	StatusInvalidPayloadSize  Status = 7
	StatusInvalidToken        Status = 8
	StatusUnknown             Status = 255
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusProcessingError:
		return "processing_error"
	case StatusMissingDeviceToken:
		return "missing_device_token"
	case StatusMissingTopic:
		return "missing_topic"
	case StatusMissingPayload:
		return "missing_payload"
	case StatusInvalidTokenSize:
		return "invalid_token_size"
	case StatusInvalidTopicSize:
		return "invalid_topic_size"
	case StatusInvalidPayloadSize:
		return "invalid_payload_size"
	case StatusInvalidToken:
		return "invalid_token"
	case StatusUnknown:
		return "unknown"
	default:
		return "unrecognized"
	}
}

func validStatus(b byte) bool {
	switch Status(b) {
	case StatusSuccess, StatusProcessingError, StatusMissingDeviceToken,
		StatusMissingTopic, StatusMissingPayload, StatusInvalidTokenSize,
		StatusInvalidTopicSize, StatusInvalidPayloadSize, StatusInvalidToken,
		StatusUnknown:
		return true
	default:
		return false
	}
}

// Response is a decoded 6-byte gateway error-response frame.
type Response struct {
	Status     Status
	Identifier uint32
}

// EncodeNotification builds the wire bytes for one outbound
// notification frame:
//
//	offset size field
//	0      1    command = 0x01
//	1      4    identifier
//	5      4    expiry (unix seconds)
//	9      2    token_length = 32
//	11     32   token
//	43     2    payload_length
//	45     N    payload
//
// token must be exactly 32 bytes; payload must fit in a uint16.
func EncodeNotification(token []byte, payload []byte, expirySeconds uint32, identifier uint32) ([]byte, error) {
	if len(token) != tokenSize {
		return nil, newError("EncodeNotification", KindInvalidInput, nil)
	}
	if len(payload) > 65535 {
		return nil, newError("EncodeNotification", KindInvalidInput, nil)
	}

	buf := make([]byte, notificationHdr+tokenSize+2+len(payload))
	buf[0] = commandNotification
	binary.BigEndian.PutUint32(buf[1:5], identifier)
	binary.BigEndian.PutUint32(buf[5:9], expirySeconds)
	binary.BigEndian.PutUint16(buf[9:11], tokenSize)
	copy(buf[11:11+tokenSize], token)
	binary.BigEndian.PutUint16(buf[43:45], uint16(len(payload)))
	copy(buf[45:], payload)
	return buf, nil
}

// DecodeResponse parses a 6-byte gateway response frame. The caller
// is responsible for having read exactly 6 bytes; any command other
// than 0x08 or any unrecognized status byte is InvalidInput.
func DecodeResponse(frame []byte) (Response, error) {
	if len(frame) != responseFrameSize {
		return Response{}, newError("DecodeResponse", KindInvalidInput, nil)
	}
	if frame[0] != commandResponse {
		return Response{}, newError("DecodeResponse", KindInvalidInput, nil)
	}
	if !validStatus(frame[1]) {
		return Response{}, newError("DecodeResponse", KindInvalidInput, nil)
	}
	return Response{
		Status:     Status(frame[1]),
		Identifier: binary.BigEndian.Uint32(frame[2:6]),
	}, nil
}

// FeedbackRecord is one decoded entry from the feedback stream: a
// device token the gateway has deemed undeliverable, and the time the
// gateway first observed that.
type FeedbackRecord struct {
	Timestamp uint32
	Token     Token
}

// FeedbackParser is a stateful, restartable parser for the feedback
// record stream:
//
//	offset size field
//	0      4    unix_seconds
//	4      2    token_length = 32
//	6      32   token
//
// Feed accepts arbitrary byte chunks and returns any complete records
// found; a trailing partial record is retained internally and
// prepended to the next call's input. A full record is either wholly
// consumed or wholly retained — it is never half-emitted.
type FeedbackParser struct {
	pending []byte
}

// Feed appends chunk to any previously retained partial record and
// returns every complete record now available, in stream order.
func (p *FeedbackParser) Feed(chunk []byte) []FeedbackRecord {
	buf := append(p.pending, chunk...)

	var records []FeedbackRecord
	off := 0
	for len(buf)-off >= feedbackRecordSize {
		rec := buf[off : off+feedbackRecordSize]
		var r FeedbackRecord
		r.Timestamp = binary.BigEndian.Uint32(rec[0:4])
		copy(r.Token[:], rec[6:6+tokenSize])
		records = append(records, r)
		off += feedbackRecordSize
	}

	if rest := len(buf) - off; rest > 0 {
		p.pending = append(p.pending[:0:0], buf[off:]...)
	} else {
		p.pending = nil
	}
	return records
}

// Pending returns the number of bytes of a partial record currently
// retained across calls to Feed. Used to log trailing unparsed bytes
// at stream close.
func (p *FeedbackParser) Pending() int { return len(p.pending) }
