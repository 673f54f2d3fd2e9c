package point

import (
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/hardware"
)

// Notifier receives controller status for republication to WebSocket
// subscribers. Implementations must not block; the controllers call
// these inline from workflow goroutines.
type Notifier interface {
	GateStatus(lane hardware.Lane, status string, errMsg string)
	PrintStatus(status string, barcode string, errMsg string)
	Error(err *errors.HardwareError)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) GateStatus(hardware.Lane, string, string) {}
func (NopNotifier) PrintStatus(string, string, string)       {}
func (NopNotifier) Error(*errors.HardwareError)              {}

// Gate status values carried in GATE_STATUS messages.
const (
	GateStatusOpen   = "open"
	GateStatusClosed = "closed"
	GateStatusError  = "error"
)

// Print status values carried in PRINT_STATUS messages.
const (
	PrintStatusSuccess = "success"
	PrintStatusFailed  = "failed"
)
