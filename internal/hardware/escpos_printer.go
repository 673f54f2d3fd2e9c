package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
)

// EscposPrinter drives a thermal receipt printer over a serial line.
// Jobs are written as complete ESC/POS buffers, one write per job.
type EscposPrinter struct {
	cfg  config.SerialDeviceConfig
	mu   sync.Mutex
	port *serial.Port
}

func NewEscposPrinter(cfg config.SerialDeviceConfig) *EscposPrinter {
	return &EscposPrinter{cfg: cfg}
}

func (p *EscposPrinter) connectLocked() error {
	c := &serial.Config{
		Name:        p.cfg.Port,
		Baud:        p.cfg.BaudRate,
		ReadTimeout: time.Second,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return errors.Wrap(err, errors.ErrSerialPortOpen, "open printer port "+p.cfg.Port).
			WithDevice(string(DevicePrinter)).WithOp("connect")
	}
	p.port = port
	logger.WithModule("hardware").Sugar().Infow("printer connected", "port", p.cfg.Port, "baud", p.cfg.BaudRate)
	return nil
}

func (p *EscposPrinter) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port != nil {
		return nil
	}
	return p.connectLocked()
}

func (p *EscposPrinter) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "close printer port").
			WithDevice(string(DevicePrinter)).WithOp("disconnect")
	}
	return nil
}

// Print writes one complete job buffer. A short-write or I/O error
// drops the handle so the next attempt reopens the port and resends
// the whole buffer from the start.
func (p *EscposPrinter) Print(ctx context.Context, job []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCanceled, "print canceled").
			WithDevice(string(DevicePrinter)).WithOp("print")
	}
	if len(job) == 0 {
		return errors.New(errors.ErrInvalidParam, "empty print job").
			WithDevice(string(DevicePrinter)).WithOp("print")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		if err := p.connectLocked(); err != nil {
			return errors.Wrap(err, errors.ErrDeviceOffline, "printer reconnect failed").
				WithDevice(string(DevicePrinter)).WithOp("print")
		}
	}

	n, err := p.port.Write(job)
	if err != nil {
		if isDisconnectError(err) {
			p.port.Close()
			p.port = nil
		}
		return errors.Wrap(err, errors.ErrPrintFailed, "write print job").
			WithDevice(string(DevicePrinter)).WithOp("print")
	}
	if n != len(job) {
		p.port.Close()
		p.port = nil
		return errors.Newf(errors.ErrPrintFailed, "short write: %d of %d bytes", n, len(job)).
			WithDevice(string(DevicePrinter)).WithOp("print")
	}
	return nil
}
