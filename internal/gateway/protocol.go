package gateway

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/oriys/optionspulse/internal/domain"
)

// Frame is the one-event-per-frame wire format required by §6: JSON text
// frames of the shape {"event": "...", "data": {...}}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeFrame wraps an already-marshaled data payload under event.
func EncodeFrame(event string, data []byte) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Data: data})
}

// encodeValue marshals v and wraps it as a Frame in one step.
func encodeValue(event string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return EncodeFrame(event, data)
}

// RoomRequest is the decoded body of a subscribe/unsubscribe operation.
type RoomRequest struct {
	Kind   string `json:"kind"`
	Symbol string `json:"symbol"`
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{1,16}$`)

// Validate checks kind/symbol against §4.3.1's input validation rule.
func (r RoomRequest) Validate() error {
	switch domain.RoomKind(r.Kind) {
	case domain.RoomProduct, domain.RoomChain:
	default:
		return fmt.Errorf("invalid room kind %q", r.Kind)
	}
	if !symbolPattern.MatchString(r.Symbol) {
		return fmt.Errorf("invalid symbol %q", r.Symbol)
	}
	return nil
}

// ConnectedPayload is sent immediately after a connection is accepted.
type ConnectedPayload struct {
	ClientID string   `json:"client_id"`
	Rooms    []string `json:"rooms"`
}

// SubscribedPayload confirms a room join or leave.
type SubscribedPayload struct {
	Room string `json:"room"`
}

// ErrorPayload reports a client-visible protocol error.
type ErrorPayload struct {
	Message string `json:"message"`
}
