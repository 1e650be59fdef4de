package websocket

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yanun0323/eventsocket/pkg/scanner"
)

// FrameType is the `type` discriminator of a wire message.
type FrameType string

const (
	FrameConnectionInit     FrameType = "connection_init"
	FrameConnectionAck      FrameType = "connection_ack"
	FrameKeepAlive          FrameType = "ka"
	FrameSubscribe          FrameType = "subscribe"
	FrameUnsubscribe        FrameType = "unsubscribe"
	FramePublish            FrameType = "publish"
	FrameData               FrameType = "data"
	FramePublishSuccess     FrameType = "publish_success"
	FramePublishError       FrameType = "publish_error"
	FrameSubscribeSuccess   FrameType = "subscribe_success"
	FrameSubscribeError     FrameType = "subscribe_error"
	FrameUnsubscribeSuccess FrameType = "unsubscribe_success"
	FrameUnsubscribeError   FrameType = "unsubscribe_error"
	FrameBroadcastError     FrameType = "broadcast_error"
	FrameError              FrameType = "error"
)

// DefaultConnectionTimeout applies when connection_ack carries no usable
// connectionTimeoutMs.
const DefaultConnectionTimeout = 300_000 * time.Millisecond

// operationScoped reports whether frames of this type carry an operation id.
func (t FrameType) operationScoped() bool {
	switch t {
	case FrameData, FramePublishSuccess, FramePublishError,
		FrameSubscribeSuccess, FrameSubscribeError,
		FrameUnsubscribeSuccess, FrameUnsubscribeError,
		FrameBroadcastError, FrameError:
		return true
	default:
		return false
	}
}

// ErrorEntry is one broker-reported error.
type ErrorEntry struct {
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
}

// PublishedEvent identifies an event the broker accepted.
type PublishedEvent struct {
	Identifier string `json:"identifier"`
	Index      int    `json:"index"`
}

// FailedEvent identifies an event the broker rejected.
type FailedEvent struct {
	Identifier   string `json:"identifier"`
	Index        int    `json:"index"`
	ErrorCode    *int   `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// AckPayload is the payload of connection_ack.
type AckPayload struct {
	ConnectionTimeoutMs json.RawMessage `json:"connectionTimeoutMs,omitempty"`
}

// Frame is an inbound wire message. Only the fields belonging to Type are set.
type Frame struct {
	Type FrameType `json:"type"`
	ID   string    `json:"id,omitempty"`

	// connection_ack
	Payload             *AckPayload     `json:"payload,omitempty"`
	ConnectionTimeoutMs json.RawMessage `json:"connectionTimeoutMs,omitempty"`

	// data
	Event string `json:"event,omitempty"`

	// *_error, error
	Errors []ErrorEntry `json:"errors,omitempty"`

	// publish_success
	Successful []PublishedEvent `json:"successful,omitempty"`
	Failed     []FailedEvent    `json:"failed,omitempty"`
}

// keepAliveScanLimit bounds the payloads isKeepAlive looks at. A ka frame
// is a bare {"type":"ka"}.
const keepAliveScanLimit = 64

var typeKey = []byte(`"type"`)

// isKeepAlive recognizes a ka frame without decoding it.
func isKeepAlive(data []byte) bool {
	if len(data) > keepAliveScanLimit {
		return false
	}
	t, ok := scanner.ScanStringField(data, typeKey)
	return ok && FrameType(t) == FrameKeepAlive
}

// DecodeFrame parses one inbound message. A message without a type is
// rejected.
func DecodeFrame(data []byte) (Frame, bool) {
	var f Frame
	if err := sonic.Unmarshal(data, &f); err != nil {
		return Frame{}, false
	}
	if f.Type == "" {
		return Frame{}, false
	}
	return f, true
}

// ConnectionTimeout returns the keep-alive interval advertised by
// connection_ack, or DefaultConnectionTimeout when it is missing or invalid.
func (f Frame) ConnectionTimeout() time.Duration {
	raw := f.ConnectionTimeoutMs
	if f.Payload != nil && len(f.Payload.ConnectionTimeoutMs) != 0 {
		raw = f.Payload.ConnectionTimeoutMs
	}
	if len(raw) == 0 {
		return DefaultConnectionTimeout
	}
	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || ms <= 0 {
		return DefaultConnectionTimeout
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// FirstError returns the first reported error entry.
func (f Frame) FirstError() ErrorEntry {
	if len(f.Errors) == 0 {
		return ErrorEntry{ErrorType: "UnknownError", Message: "the broker reported an error without details"}
	}
	return f.Errors[0]
}

// ConnectionInitMessage opens the protocol after the socket is upgraded.
type ConnectionInitMessage struct {
	Type FrameType `json:"type"`
}

// SubscribeMessage starts a subscription.
type SubscribeMessage struct {
	Type          FrameType         `json:"type"`
	ID            string            `json:"id"`
	Channel       string            `json:"channel"`
	Authorization map[string]string `json:"authorization"`
}

// UnsubscribeMessage stops a subscription.
type UnsubscribeMessage struct {
	Type FrameType `json:"type"`
	ID   string    `json:"id"`
}

// PublishMessage publishes a batch of pre-serialized events.
type PublishMessage struct {
	Type          FrameType         `json:"type"`
	ID            string            `json:"id"`
	Channel       string            `json:"channel"`
	Events        []string          `json:"events"`
	Authorization map[string]string `json:"authorization"`
}

func newSubscribeMessage(id, channel string, authorization map[string]string) SubscribeMessage {
	return SubscribeMessage{Type: FrameSubscribe, ID: id, Channel: channel, Authorization: nonNilHeaders(authorization)}
}

func newUnsubscribeMessage(id string) UnsubscribeMessage {
	return UnsubscribeMessage{Type: FrameUnsubscribe, ID: id}
}

func newPublishMessage(id, channel string, events []string, authorization map[string]string) PublishMessage {
	return PublishMessage{Type: FramePublish, ID: id, Channel: channel, Events: events, Authorization: nonNilHeaders(authorization)}
}

func nonNilHeaders(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}

// subscribeBody and publishBody are the request bodies handed to the
// Authorizer; the broker signs these exact documents.
type subscribeBody struct {
	Channel string `json:"channel"`
}

type publishBody struct {
	Channel string   `json:"channel"`
	Events  []string `json:"events"`
}

func encodeMessage(v any) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(v)
}
