package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the wire envelope for the status channel. The type set
// is closed: anything outside it is rejected at the boundary instead
// of being re-broadcast.
type Message struct {
	Type      string          `json:"type"`
	Source    string          `json:"source,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Message types.
const (
	MessageTypeGateStatus  = "GATE_STATUS"
	MessageTypePrintStatus = "PRINT_STATUS"
	MessageTypeError       = "ERROR"
	MessageTypeRegister    = "REGISTER"
)

var validTypes = map[string]bool{
	MessageTypeGateStatus:  true,
	MessageTypePrintStatus: true,
	MessageTypeError:       true,
	MessageTypeRegister:    true,
}

// GateStatusData is the GATE_STATUS payload.
type GateStatusData struct {
	Lane      string `json:"lane"`
	Status    string `json:"status"` // open | closed | error
	Timestamp int64  `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// PrintStatusData is the PRINT_STATUS payload.
type PrintStatusData struct {
	Status    string `json:"status"` // success | failed
	Barcode   string `json:"barcode,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// ErrorData is the ERROR payload.
type ErrorData struct {
	Code    int    `json:"code"`
	Device  string `json:"device,omitempty"`
	Message string `json:"message"`
}

// RegisterData is the REGISTER payload a client sends after connect.
type RegisterData struct {
	Source string `json:"source"`
}

// NewMessage builds an envelope with the payload marshalled in.
func NewMessage(msgType string, data interface{}) (*Message, error) {
	if !validTypes[msgType] {
		return nil, fmt.Errorf("unknown message type %q", msgType)
	}
	msg := &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return msg, nil
}

// ParseMessage decodes and validates one inbound envelope.
func ParseMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message type missing")
	}
	if !validTypes[msg.Type] {
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
	return &msg, nil
}
