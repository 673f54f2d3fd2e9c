package hardware

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
)

const gpioRoot = "/sys/class/gpio"

// GpioTrigger reads a vehicle-presence loop detector through the
// sysfs GPIO interface. Read returns the raw electrical level; the
// active-low inversion happens in the polling layer.
type GpioTrigger struct {
	mu       sync.Mutex
	exported map[int]bool
}

func NewGpioTrigger() *GpioTrigger {
	return &GpioTrigger{exported: make(map[int]bool)}
}

func (t *GpioTrigger) Connect() error {
	return nil
}

func (t *GpioTrigger) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for pin := range t.exported {
		unexport := filepath.Join(gpioRoot, "unexport")
		if err := os.WriteFile(unexport, []byte(strconv.Itoa(pin)), 0o644); err != nil {
			logger.WithModule("hardware").Sugar().Warnw("gpio unexport failed", "pin", pin, "error", err)
		}
	}
	t.exported = make(map[int]bool)
	return nil
}

func (t *GpioTrigger) exportLocked(pin int) error {
	if t.exported[pin] {
		return nil
	}
	pinDir := filepath.Join(gpioRoot, fmt.Sprintf("gpio%d", pin))
	if _, err := os.Stat(pinDir); os.IsNotExist(err) {
		export := filepath.Join(gpioRoot, "export")
		if err := os.WriteFile(export, []byte(strconv.Itoa(pin)), 0o644); err != nil {
			return errors.Wrapf(err, errors.ErrDeviceOffline, "export gpio %d", pin).
				WithDevice(string(DeviceTrigger)).WithOp("export")
		}
	}
	direction := filepath.Join(gpioRoot, fmt.Sprintf("gpio%d", pin), "direction")
	if err := os.WriteFile(direction, []byte("in"), 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrDeviceOffline, "set gpio %d direction", pin).
			WithDevice(string(DeviceTrigger)).WithOp("export")
	}
	t.exported[pin] = true
	logger.WithModule("hardware").Sugar().Infow("gpio pin exported", "pin", pin)
	return nil
}

// Read returns the raw level of the pin. The pin is exported on
// first use.
func (t *GpioTrigger) Read(pin int) (bool, error) {
	t.mu.Lock()
	if err := t.exportLocked(pin); err != nil {
		t.mu.Unlock()
		return false, err
	}
	t.mu.Unlock()

	value := filepath.Join(gpioRoot, fmt.Sprintf("gpio%d", pin), "value")
	raw, err := os.ReadFile(value)
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrSerialRead, "read gpio %d", pin).
			WithDevice(string(DeviceTrigger)).WithOp("read")
	}
	return strings.TrimSpace(string(raw)) == "1", nil
}
