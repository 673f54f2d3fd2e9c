package hardware

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
	"github.com/tarm/serial"
	"go.uber.org/zap"
)

// Single-byte barrier protocol shared by the supported gate boards.
const (
	gateCmdOpen  byte = 0x01
	gateCmdClose byte = 0x02
)

// SerialPortExists reports whether the serial device node is present.
func SerialPortExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// isDisconnectError detects a vanished or faulted serial device from
// the raw error text.
func isDisconnectError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "no such file") ||
		strings.Contains(errStr, "file already closed")
}

// SerialGate drives a barrier motor over a one-byte serial command
// protocol.
type SerialGate struct {
	mu     sync.Mutex
	cfg    config.GateDeviceConfig
	lane   Lane
	port   *serial.Port
	logger *zap.Logger
}

// NewSerialGate builds the driver for one lane.
func NewSerialGate(lane Lane, cfg config.GateDeviceConfig) *SerialGate {
	return &SerialGate{
		cfg:    cfg,
		lane:   lane,
		logger: logger.WithModule("hardware").With(zap.String("device", "gate-"+string(lane))),
	}
}

// Connect opens the serial port.
func (g *SerialGate) Connect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectLocked()
}

func (g *SerialGate) connectLocked() error {
	if g.port != nil {
		return nil
	}
	if !SerialPortExists(g.cfg.Port) {
		return errors.Newf(errors.ErrSerialPortOpen, "port %s not present", g.cfg.Port)
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        g.cfg.Port,
		Baud:        g.cfg.BaudRate,
		ReadTimeout: g.cfg.ReadTimeout,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrSerialPortOpen)
	}

	g.port = port
	g.logger.Info("gate connected",
		zap.String("port", g.cfg.Port),
		zap.Int("baud", g.cfg.BaudRate))
	return nil
}

// Disconnect closes the port. Safe to call twice.
func (g *SerialGate) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.port == nil {
		return nil
	}
	err := g.port.Close()
	g.port = nil
	return err
}

// Open raises the barrier.
func (g *SerialGate) Open(ctx context.Context) error {
	return g.command(ctx, gateCmdOpen, errors.ErrGateOpenFailed)
}

// Close lowers the barrier.
func (g *SerialGate) Close(ctx context.Context) error {
	return g.command(ctx, gateCmdClose, errors.ErrGateCloseFailed)
}

func (g *SerialGate) command(ctx context.Context, cmd byte, code errors.ErrorCode) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCanceled)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.port == nil {
		// reopen after a detected disconnect so a retried command can
		// succeed once the device node is back
		if err := g.connectLocked(); err != nil {
			return errors.Wrap(err, errors.ErrDeviceOffline)
		}
	}

	n, err := g.port.Write([]byte{cmd})
	if err != nil {
		if isDisconnectError(err) {
			// drop the handle so the next attempt reopens the port
			g.port.Close()
			g.port = nil
			return errors.Wrap(err, errors.ErrDeviceOffline)
		}
		return errors.Wrap(err, errors.ErrSerialWrite)
	}
	if n != 1 {
		return errors.Newf(code, "short write: %d bytes", n)
	}

	if err := g.port.Flush(); err != nil && isDisconnectError(err) {
		g.port.Close()
		g.port = nil
		return errors.Wrap(err, errors.ErrDeviceOffline)
	}

	return nil
}
