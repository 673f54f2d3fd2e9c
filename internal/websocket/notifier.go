package websocket

import (
	"time"

	"go.uber.org/zap"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/hardware"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
)

// StatusNotifier republishes controller and hardware status onto the
// hub, and optionally mirrors every message up to the backend uplink.
type StatusNotifier struct {
	hub    *Hub
	uplink *Uplink
	logger *zap.Logger
}

func NewStatusNotifier(hub *Hub, uplink *Uplink) *StatusNotifier {
	return &StatusNotifier{
		hub:    hub,
		uplink: uplink,
		logger: logger.WithModule("websocket"),
	}
}

func (n *StatusNotifier) publish(msgType string, data interface{}) {
	msg, err := NewMessage(msgType, data)
	if err != nil {
		n.logger.Error("build status message failed", zap.Error(err))
		return
	}
	logger.LogWebSocketMessage("out", msgType, data)
	n.hub.Broadcast(msg)
	if n.uplink != nil {
		n.uplink.Send(msg)
	}
}

// GateStatus implements point.Notifier.
func (n *StatusNotifier) GateStatus(lane hardware.Lane, status string, errMsg string) {
	n.publish(MessageTypeGateStatus, GateStatusData{
		Lane:      string(lane),
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
		Error:     errMsg,
	})
}

// PrintStatus implements point.Notifier.
func (n *StatusNotifier) PrintStatus(status string, barcode string, errMsg string) {
	n.publish(MessageTypePrintStatus, PrintStatusData{
		Status:    status,
		Barcode:   barcode,
		Timestamp: time.Now().UnixMilli(),
		Error:     errMsg,
	})
}

// Error implements point.Notifier.
func (n *StatusNotifier) Error(err *errors.HardwareError) {
	if err == nil {
		return
	}
	n.publish(MessageTypeError, ErrorData{
		Code:    int(err.Code),
		Device:  err.Device,
		Message: err.Error(),
	})
}

// PumpHardwareEvents republishes manager events as status messages
// until the channel closes or done is signalled.
func (n *StatusNotifier) PumpHardwareEvents(events <-chan hardware.HardwareEvent, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case hardware.EventGateOpened:
				n.GateStatus(ev.Lane, "open", "")
			case hardware.EventGateClosed:
				n.GateStatus(ev.Lane, "closed", "")
			case hardware.EventError:
				n.Error(ev.Err)
			}
		}
	}
}
