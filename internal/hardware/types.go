package hardware

import (
	"time"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
)

// DeviceType classifies the physical device classes the manager
// multiplexes.
type DeviceType string

const (
	DeviceGate    DeviceType = "gate"
	DeviceCamera  DeviceType = "camera"
	DevicePrinter DeviceType = "printer"
	DeviceScanner DeviceType = "scanner"
	DeviceTrigger DeviceType = "trigger"
)

// Lane distinguishes the entry and exit sides of the node.
type Lane string

const (
	LaneEntry Lane = "entry"
	LaneExit  Lane = "exit"
)

// DeviceState is the coarse health of a device.
type DeviceState string

const (
	StateOnline  DeviceState = "online"
	StateOffline DeviceState = "offline"
	StateError   DeviceState = "error"
)

// EventType tags the HardwareEvent variants.
type EventType string

const (
	EventReady       EventType = "ready"
	EventError       EventType = "error"
	EventScannerData EventType = "scanner_data"
	EventTrigger     EventType = "trigger"
	EventGateOpened  EventType = "gate_opened"
	EventGateClosed  EventType = "gate_closed"
	EventPrinted     EventType = "printed"
)

// HardwareEvent is the tagged variant emitted by the manager. Every
// event carries the emitting device identity and a per-device monotonic
// sequence; consumers may rely on ordering within one device's stream
// only, never across devices.
type HardwareEvent struct {
	Type       EventType             `json:"type"`
	DeviceType DeviceType            `json:"device_type"`
	DeviceID   string                `json:"device_id"`
	Sequence   uint64                `json:"sequence"`
	Timestamp  time.Time             `json:"timestamp"`
	Err        *errors.HardwareError `json:"error,omitempty"`

	// Variant payloads
	Payload string `json:"payload,omitempty"` // scanner barcode
	Active  bool   `json:"active,omitempty"`  // trigger level
	Lane    Lane   `json:"lane,omitempty"`    // gate events
}

// GateStatus tracks one lane's barrier. isOpen transitions only through
// the manager's resilience-wrapped open/close calls so tracked and
// physical state cannot drift.
type GateStatus struct {
	Lane          Lane      `json:"lane"`
	IsOpen        bool      `json:"is_open"`
	LastOperation time.Time `json:"last_operation"`
	OperatedBy    string    `json:"operated_by,omitempty"`
}

// HardwareStatus is the per-device health record refreshed on every
// operation attempt.
type HardwareStatus struct {
	DeviceType  DeviceType  `json:"device_type"`
	DeviceID    string      `json:"device_id"`
	Status      DeviceState `json:"status"`
	LastChecked time.Time   `json:"last_checked"`
	LastError   string      `json:"last_error,omitempty"`
}
