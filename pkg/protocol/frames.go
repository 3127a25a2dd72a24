package protocol

import "encoding/json"

// ProtocolVersion is the wire protocol version reported by /health and the
// connect handshake.
const ProtocolVersion = 1

// FrameType discriminates the three frame shapes that travel over the
// gateway's WebSocket connection.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"
)

// RequestFrame is a client-to-server RPC call.
type RequestFrame struct {
	Type   FrameType       `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorPayload describes an RPC failure.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseFrame answers a RequestFrame by ID.
type ResponseFrame struct {
	Type    FrameType     `json:"type"`
	ID      string        `json:"id"`
	OK      bool          `json:"ok"`
	Payload interface{}   `json:"payload,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`
}

// EventFrame is an unsolicited server-to-client push.
type EventFrame struct {
	Type    FrameType   `json:"type"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// RPC error codes used in ErrorPayload.Code.
const (
	ErrInvalidRequest = "invalid_request"
	ErrUnauthorized   = "unauthorized"
	ErrForbidden      = "forbidden"
	ErrNotFound       = "not_found"
	ErrRateLimited    = "rate_limited"
	ErrInternal       = "internal_error"
)

// NewOKResponse builds a successful ResponseFrame for request id.
func NewOKResponse(id string, payload interface{}) *ResponseFrame {
	return &ResponseFrame{Type: FrameTypeResponse, ID: id, OK: true, Payload: payload}
}

// NewErrorResponse builds a failed ResponseFrame for request id.
func NewErrorResponse(id, code, message string) *ResponseFrame {
	return &ResponseFrame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    false,
		Error: &ErrorPayload{Code: code, Message: message},
	}
}

// NewEvent builds an EventFrame.
func NewEvent(event string, payload interface{}) *EventFrame {
	return &EventFrame{Type: FrameTypeEvent, Event: event, Payload: payload}
}

// frameTypePeek is used only to read the "type" field out of a raw frame.
type frameTypePeek struct {
	Type FrameType `json:"type"`
}

// ParseFrameType sniffs a raw WebSocket message's frame type without fully
// decoding it, so the caller can dispatch to the right concrete type.
func ParseFrameType(raw []byte) (FrameType, error) {
	var peek frameTypePeek
	if err := json.Unmarshal(raw, &peek); err != nil {
		return "", err
	}
	return peek.Type, nil
}
