package hardware

import (
	"bufio"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
)

// SerialScanner reads newline-terminated barcodes from a USB-serial
// barcode scanner and delivers them on a channel. The read loop
// reconnects with backoff when the device drops off the bus.
type SerialScanner struct {
	cfg       config.SerialDeviceConfig
	mu        sync.Mutex
	port      *serial.Port
	barcodes  chan string
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewSerialScanner(cfg config.SerialDeviceConfig) *SerialScanner {
	return &SerialScanner{
		cfg:      cfg,
		barcodes: make(chan string, 16),
	}
}

func (s *SerialScanner) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return nil
	}
	if err := s.openLocked(); err != nil {
		return err
	}
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.readLoop()
	return nil
}

func (s *SerialScanner) openLocked() error {
	c := &serial.Config{
		Name:        s.cfg.Port,
		Baud:        s.cfg.BaudRate,
		ReadTimeout: 500 * time.Millisecond,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return errors.Wrap(err, errors.ErrSerialPortOpen, "open scanner port "+s.cfg.Port).
			WithDevice(string(DeviceScanner)).WithOp("connect")
	}
	s.port = port
	logger.WithModule("hardware").Sugar().Infow("scanner connected", "port", s.cfg.Port, "baud", s.cfg.BaudRate)
	return nil
}

func (s *SerialScanner) Disconnect() error {
	s.mu.Lock()
	if s.done != nil {
		close(s.done)
		s.done = nil
		if s.port != nil {
			s.port.Close()
			s.port = nil
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	// closing the stream unblocks consumers ranging over it
	s.closeOnce.Do(func() { close(s.barcodes) })
	return nil
}

// Barcodes returns the channel carrying scanned codes. The channel
// stays open across port-level reconnects and is closed by
// Disconnect.
func (s *SerialScanner) Barcodes() <-chan string {
	return s.barcodes
}

func (s *SerialScanner) readLoop() {
	defer s.wg.Done()
	log := logger.WithModule("hardware").Sugar()

	for {
		s.mu.Lock()
		done := s.done
		port := s.port
		s.mu.Unlock()
		if done == nil {
			return
		}

		if port == nil {
			select {
			case <-done:
				return
			case <-time.After(2 * time.Second):
			}
			s.mu.Lock()
			if s.done != nil {
				if err := s.openLocked(); err != nil {
					log.Warnw("scanner reconnect failed", "error", err)
				}
			}
			s.mu.Unlock()
			continue
		}

		reader := bufio.NewReader(port)
		for {
			select {
			case <-done:
				return
			default:
			}

			line, err := reader.ReadString('\n')
			if err != nil {
				if isDisconnectError(err) {
					log.Warnw("scanner disconnected", "port", s.cfg.Port, "error", err)
					s.mu.Lock()
					if s.port != nil {
						s.port.Close()
						s.port = nil
					}
					s.mu.Unlock()
					break
				}
				// read timeout, keep whatever partial line buffered codes
				if code := strings.TrimSpace(line); code != "" {
					s.deliver(code)
				}
				continue
			}
			if code := strings.TrimSpace(line); code != "" {
				s.deliver(code)
			}
		}
	}
}

func (s *SerialScanner) deliver(code string) {
	select {
	case s.barcodes <- code:
		logger.WithModule("hardware").Sugar().Debugw("barcode scanned", "barcode", code)
	default:
		logger.WithModule("hardware").Sugar().Warnw("barcode dropped, consumer slow", "barcode", code)
	}
}
