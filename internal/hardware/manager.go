package hardware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/repository"
)

const eventBufferSize = 256

// Drivers bundles the device handles the manager owns. Nil entries are
// treated as absent devices; operations against them fail with
// ErrNotInitialized instead of panicking.
type Drivers struct {
	EntryGate  GateDriver
	ExitGate   GateDriver
	Camera     CameraDriver
	ExitCamera CameraDriver
	Printer    PrinterDriver
	Scanner    ScannerDriver
	Trigger    TriggerDriver
}

// Manager is the single owner of all device handles. Workflow
// controllers only ever talk to hardware through it, so gate state,
// retry policy and event sequencing stay in one place.
type Manager struct {
	cfg     *config.Config
	drivers Drivers
	retry   RetryConfig
	logger  *zap.Logger

	mu          sync.Mutex
	initialized map[DeviceType]bool
	disposed    bool
	gates       map[Lane]*GateStatus
	autoClose   map[Lane]*time.Timer
	statuses    map[string]*HardwareStatus
	sequences   map[string]uint64
	lastTrigger bool

	events   chan HardwareEvent
	barcodes chan string

	// optional persistence, nil in tests that don't need it
	eventRepo repository.DeviceEventRepository
	gateOps   repository.GateOperationRepository
}

// NewManager wires the manager around the given driver set.
func NewManager(cfg *config.Config, drivers Drivers) *Manager {
	return &Manager{
		cfg:         cfg,
		drivers:     drivers,
		retry:       DefaultRetryConfig(),
		logger:      logger.WithModule("hardware"),
		initialized: make(map[DeviceType]bool),
		gates: map[Lane]*GateStatus{
			LaneEntry: {Lane: LaneEntry},
			LaneExit:  {Lane: LaneExit},
		},
		autoClose: make(map[Lane]*time.Timer),
		statuses:  make(map[string]*HardwareStatus),
		sequences: make(map[string]uint64),
		events:    make(chan HardwareEvent, eventBufferSize),
		barcodes:  make(chan string, 16),
	}
}

// NewManagerFromConfig builds the production driver set from config.
// Disabled devices stay nil and report offline.
func NewManagerFromConfig(cfg *config.Config) *Manager {
	d := Drivers{}
	if cfg.Devices.EntryGate.Enabled {
		d.EntryGate = NewSerialGate(LaneEntry, cfg.Devices.EntryGate)
	}
	if cfg.Devices.ExitGate.Enabled {
		d.ExitGate = NewSerialGate(LaneExit, cfg.Devices.ExitGate)
	}
	if cfg.Devices.Camera.Enabled {
		d.Camera = NewHttpCamera(cfg.Devices.Camera)
	}
	if cfg.Devices.ExitCamera.Enabled {
		d.ExitCamera = NewHttpCamera(cfg.Devices.ExitCamera)
	}
	if cfg.Devices.Printer.Enabled {
		d.Printer = NewEscposPrinter(cfg.Devices.Printer)
	}
	if cfg.Devices.Scanner.Enabled {
		d.Scanner = NewSerialScanner(cfg.Devices.Scanner)
	}
	if cfg.Devices.Trigger.Enabled {
		d.Trigger = NewGpioTrigger()
	}
	return NewManager(cfg, d)
}

// SetRepositories enables event and gate audit persistence.
func (m *Manager) SetRepositories(events repository.DeviceEventRepository, gateOps repository.GateOperationRepository) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventRepo = events
	m.gateOps = gateOps
}

// SetRetryConfig overrides the resilience policy. Tests shrink the
// backoff to keep runs fast.
func (m *Manager) SetRetryConfig(cfg RetryConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retry = cfg
}

// InitDevices connects every configured device. Initialization is
// idempotent per device class and never leaves a partially connected
// class behind: a driver whose Connect fails holds no handle and the
// class stays uninitialized for a later retry. Failures are reported
// as events, not returned, so one dead peripheral does not stop the
// node from serving the others.
func (m *Manager) InitDevices() {
	type initTarget struct {
		dt      DeviceType
		ids     []string
		connect func() error
	}

	// Gates report per lane so each lane keeps its own event sequence.
	gateIDs := []string{}
	if m.drivers.EntryGate != nil {
		gateIDs = append(gateIDs, gateID(LaneEntry))
	}
	if m.drivers.ExitGate != nil {
		gateIDs = append(gateIDs, gateID(LaneExit))
	}

	targets := []initTarget{}
	if len(gateIDs) > 0 {
		targets = append(targets, initTarget{DeviceGate, gateIDs, func() error {
			if m.drivers.EntryGate != nil {
				if err := m.drivers.EntryGate.Connect(); err != nil {
					return err
				}
			}
			if m.drivers.ExitGate != nil {
				if err := m.drivers.ExitGate.Connect(); err != nil {
					if m.drivers.EntryGate != nil {
						m.drivers.EntryGate.Disconnect()
					}
					return err
				}
			}
			return nil
		}})
	}
	if m.drivers.Camera != nil || m.drivers.ExitCamera != nil {
		targets = append(targets, initTarget{DeviceCamera, []string{"camera"}, func() error {
			if m.drivers.Camera != nil {
				if err := m.drivers.Camera.Connect(); err != nil {
					return err
				}
			}
			if m.drivers.ExitCamera != nil {
				if err := m.drivers.ExitCamera.Connect(); err != nil {
					if m.drivers.Camera != nil {
						m.drivers.Camera.Disconnect()
					}
					return err
				}
			}
			return nil
		}})
	}
	if m.drivers.Printer != nil {
		targets = append(targets, initTarget{DevicePrinter, []string{"printer"}, m.drivers.Printer.Connect})
	}
	if m.drivers.Scanner != nil {
		targets = append(targets, initTarget{DeviceScanner, []string{"scanner"}, m.drivers.Scanner.Connect})
	}
	if m.drivers.Trigger != nil {
		targets = append(targets, initTarget{DeviceTrigger, []string{"trigger"}, m.drivers.Trigger.Connect})
	}

	for _, t := range targets {
		m.mu.Lock()
		already := m.initialized[t.dt]
		m.mu.Unlock()
		if already {
			continue
		}

		if err := t.connect(); err != nil {
			hwErr := errors.Wrap(err, errors.ErrNotInitialized).
				WithDevice(string(t.dt)).WithOp("init")
			for _, id := range t.ids {
				m.setStatus(t.dt, id, StateError, hwErr)
				m.emit(HardwareEvent{Type: EventError, DeviceType: t.dt, DeviceID: id, Err: hwErr})
			}
			m.logger.Error("device init failed",
				zap.String("device", string(t.dt)), zap.Error(hwErr))
			continue
		}

		m.mu.Lock()
		m.initialized[t.dt] = true
		m.mu.Unlock()
		for _, id := range t.ids {
			m.setStatus(t.dt, id, StateOnline, nil)
			m.emit(HardwareEvent{Type: EventReady, DeviceType: t.dt, DeviceID: id})
		}
		m.logger.Info("device ready", zap.String("device", string(t.dt)))
	}

	if m.drivers.Scanner != nil && m.isInitialized(DeviceScanner) {
		go m.forwardBarcodes()
	}
}

func (m *Manager) isInitialized(dt DeviceType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized[dt]
}

// forwardBarcodes is the single reader of the scanner driver channel.
// Each read is republished as a hardware event and fanned out to the
// exit controller via the manager's own barcode channel.
func (m *Manager) forwardBarcodes() {
	for code := range m.drivers.Scanner.Barcodes() {
		m.emit(HardwareEvent{
			Type:       EventScannerData,
			DeviceType: DeviceScanner,
			DeviceID:   "scanner",
			Payload:    code,
		})
		select {
		case m.barcodes <- code:
		default:
			m.logger.Warn("barcode dropped, exit controller slow",
				zap.String("barcode", code))
		}
	}
}

// Barcodes delivers scanner reads to the exit controller. With no
// scanner configured the channel is never written, which blocks
// cleanly inside a select loop.
func (m *Manager) Barcodes() <-chan string {
	return m.barcodes
}

// CaptureImage grabs one frame from the lane's camera.
func (m *Manager) CaptureImage(ctx context.Context, lane Lane) ([]byte, error) {
	driver := m.drivers.Camera
	if lane == LaneExit && m.drivers.ExitCamera != nil {
		driver = m.drivers.ExitCamera
	}
	if driver == nil || !m.isInitialized(DeviceCamera) {
		return nil, errors.New(errors.ErrNotInitialized, "camera not initialized").
			WithDevice(string(DeviceCamera)).WithOp("capture")
	}

	var image []byte
	err := WithRetry(ctx, m.retry, string(DeviceCamera), "capture", errors.ErrCaptureFailed,
		func(ctx context.Context) error {
			data, err := driver.Capture(ctx)
			if err != nil {
				return err
			}
			image = data
			return nil
		})
	if err != nil {
		m.reportDeviceError(DeviceCamera, "camera", err)
		return nil, err
	}
	m.setStatus(DeviceCamera, "camera", StateOnline, nil)
	return image, nil
}

// PrintTicket renders and prints the entry ticket. The job buffer is
// rebuilt inside the retry closure so a retried print restarts from
// ESC @ instead of resuming a torn stream.
func (m *Manager) PrintTicket(ctx context.Context, ticket *models.TicketData) error {
	return m.print(ctx, func() []byte {
		return BuildEntryTicket(ticket, m.siteName())
	})
}

// PrintReceipt prints the payment receipt at exit.
func (m *Manager) PrintReceipt(ctx context.Context, ticket *models.TicketData, amount int64, paidAt time.Time) error {
	return m.print(ctx, func() []byte {
		return BuildExitReceipt(ticket, amount, m.cfg.Rates.Currency, paidAt)
	})
}

func (m *Manager) print(ctx context.Context, render func() []byte) error {
	if m.drivers.Printer == nil || !m.isInitialized(DevicePrinter) {
		return errors.New(errors.ErrNotInitialized, "printer not initialized").
			WithDevice(string(DevicePrinter)).WithOp("print")
	}

	err := WithRetry(ctx, m.retry, string(DevicePrinter), "print", errors.ErrPrintFailed,
		func(ctx context.Context) error {
			return m.drivers.Printer.Print(ctx, render())
		})
	if err != nil {
		m.reportDeviceError(DevicePrinter, "printer", err)
		return err
	}
	m.setStatus(DevicePrinter, "printer", StateOnline, nil)
	m.emit(HardwareEvent{Type: EventPrinted, DeviceType: DevicePrinter, DeviceID: "printer"})
	return nil
}

func (m *Manager) gateDriver(lane Lane) GateDriver {
	if lane == LaneExit {
		return m.drivers.ExitGate
	}
	return m.drivers.EntryGate
}

func (m *Manager) autoCloseDelay(lane Lane) time.Duration {
	if lane == LaneExit {
		return m.cfg.Devices.ExitGate.AutoCloseDelay
	}
	return m.cfg.Devices.EntryGate.AutoCloseDelay
}

// OpenGate raises the lane's barrier. Opening an already-open gate is
// a no-op that still reschedules the auto-close timer, so a second
// vehicle following closely gets the full window. The tracked IsOpen
// flips only after the driver reports success.
func (m *Manager) OpenGate(ctx context.Context, lane Lane, operatedBy, barcode string) error {
	driver := m.gateDriver(lane)
	if driver == nil || !m.isInitialized(DeviceGate) {
		return errors.New(errors.ErrNotInitialized, "gate not initialized").
			WithDevice(string(DeviceGate)).WithOp("open")
	}

	m.mu.Lock()
	alreadyOpen := m.gates[lane].IsOpen
	m.mu.Unlock()

	if !alreadyOpen {
		err := WithRetry(ctx, m.retry, string(DeviceGate), "open", errors.ErrGateOpenFailed,
			func(ctx context.Context) error { return driver.Open(ctx) })
		m.auditGate(lane, "open", operatedBy, barcode, err)
		if err != nil {
			m.reportDeviceError(DeviceGate, gateID(lane), err)
			return err
		}
	}

	m.mu.Lock()
	st := m.gates[lane]
	st.IsOpen = true
	st.LastOperation = time.Now()
	st.OperatedBy = operatedBy
	m.scheduleAutoCloseLocked(lane)
	m.mu.Unlock()

	m.setStatus(DeviceGate, gateID(lane), StateOnline, nil)
	m.emit(HardwareEvent{Type: EventGateOpened, DeviceType: DeviceGate, DeviceID: gateID(lane), Lane: lane})
	m.logger.Info("gate opened",
		zap.String("lane", string(lane)),
		zap.String("operated_by", operatedBy),
		zap.Bool("was_open", alreadyOpen))
	return nil
}

// CloseGate lowers the barrier and cancels any pending auto-close.
// Closing an already-closed gate is a no-op.
func (m *Manager) CloseGate(ctx context.Context, lane Lane, operatedBy string) error {
	driver := m.gateDriver(lane)
	if driver == nil || !m.isInitialized(DeviceGate) {
		return errors.New(errors.ErrNotInitialized, "gate not initialized").
			WithDevice(string(DeviceGate)).WithOp("close")
	}

	m.mu.Lock()
	if !m.gates[lane].IsOpen {
		m.cancelAutoCloseLocked(lane)
		m.mu.Unlock()
		return nil
	}
	m.cancelAutoCloseLocked(lane)
	m.mu.Unlock()

	err := WithRetry(ctx, m.retry, string(DeviceGate), "close", errors.ErrGateCloseFailed,
		func(ctx context.Context) error { return driver.Close(ctx) })
	m.auditGate(lane, "close", operatedBy, "", err)
	if err != nil {
		m.reportDeviceError(DeviceGate, gateID(lane), err)
		return err
	}

	m.mu.Lock()
	st := m.gates[lane]
	st.IsOpen = false
	st.LastOperation = time.Now()
	st.OperatedBy = operatedBy
	m.mu.Unlock()

	m.setStatus(DeviceGate, gateID(lane), StateOnline, nil)
	m.emit(HardwareEvent{Type: EventGateClosed, DeviceType: DeviceGate, DeviceID: gateID(lane), Lane: lane})
	m.logger.Info("gate closed", zap.String("lane", string(lane)), zap.String("operated_by", operatedBy))
	return nil
}

// auditGate records one physical gate command in the audit trail,
// successes and failures alike. The write is best effort: a failed
// insert is logged and never blocks the gate.
func (m *Manager) auditGate(lane Lane, operation, operatedBy, barcode string, opErr error) {
	m.mu.Lock()
	repo := m.gateOps
	m.mu.Unlock()
	if repo == nil {
		return
	}

	row := &models.GateOperation{
		Lane:       string(lane),
		Operation:  operation,
		OperatedBy: operatedBy,
		Barcode:    barcode,
		Success:    opErr == nil,
	}
	if opErr != nil {
		row.ErrorMsg = opErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := repo.Create(ctx, row); err != nil {
		m.logger.Warn("gate audit persist failed",
			zap.String("lane", string(lane)),
			zap.String("operation", operation),
			zap.Error(err))
	}
}

// scheduleAutoCloseLocked arms the lane's auto-close timer, replacing
// any pending one. Caller holds m.mu.
func (m *Manager) scheduleAutoCloseLocked(lane Lane) {
	delay := m.autoCloseDelay(lane)
	if delay <= 0 {
		return
	}
	if t := m.autoClose[lane]; t != nil {
		t.Stop()
	}
	m.autoClose[lane] = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.CloseGate(ctx, lane, "auto-close"); err != nil {
			m.logger.Error("auto-close failed",
				zap.String("lane", string(lane)), zap.Error(err))
		}
	})
}

func (m *Manager) cancelAutoCloseLocked(lane Lane) {
	if t := m.autoClose[lane]; t != nil {
		t.Stop()
		m.autoClose[lane] = nil
	}
}

// GateState returns a copy of the lane's tracked barrier state.
func (m *Manager) GateState(lane Lane) GateStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.gates[lane]
}

// ReadTriggerState samples the vehicle-present input with polarity
// applied. It never returns an error: a failed read reports inactive
// and surfaces the fault as an event, so the polling loop sees a safe
// level instead of a phantom vehicle.
func (m *Manager) ReadTriggerState(pin int) bool {
	if m.drivers.Trigger == nil || !m.isInitialized(DeviceTrigger) {
		return false
	}
	level, err := m.drivers.Trigger.Read(pin)
	if err != nil {
		hwErr := errors.Wrap(err, errors.ErrSerialRead).
			WithDevice(string(DeviceTrigger)).WithOp("read")
		m.reportDeviceError(DeviceTrigger, "trigger", hwErr)
		return false
	}
	m.setStatus(DeviceTrigger, "trigger", StateOnline, nil)
	if m.cfg.Devices.Trigger.ActiveLow {
		level = !level
	}

	m.mu.Lock()
	changed := level != m.lastTrigger
	m.lastTrigger = level
	m.mu.Unlock()
	if changed {
		m.emit(HardwareEvent{
			Type:       EventTrigger,
			DeviceType: DeviceTrigger,
			DeviceID:   "trigger",
			Active:     level,
		})
	}
	return level
}

// Events returns the manager's event stream. The channel is bounded;
// when observers fall behind the oldest event is dropped so device
// operations never stall on a slow consumer.
func (m *Manager) Events() <-chan HardwareEvent {
	return m.events
}

func (m *Manager) emit(ev HardwareEvent) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	key := string(ev.DeviceType) + "/" + ev.DeviceID
	m.sequences[key]++
	ev.Sequence = m.sequences[key]
	repo := m.eventRepo
	m.mu.Unlock()

	ev.Timestamp = time.Now()

	select {
	case m.events <- ev:
	default:
		select {
		case <-m.events:
		default:
		}
		select {
		case m.events <- ev:
		default:
		}
	}

	if repo != nil {
		row := &models.DeviceEvent{
			DeviceType: string(ev.DeviceType),
			DeviceID:   ev.DeviceID,
			EventType:  string(ev.Type),
			Sequence:   ev.Sequence,
			Timestamp:  ev.Timestamp.UnixMilli(),
		}
		if ev.Err != nil {
			row.ErrorCode = int(ev.Err.Code)
			row.Message = ev.Err.Error()
		} else if ev.Payload != "" {
			row.Message = ev.Payload
		} else if ev.Type == EventTrigger {
			row.Message = strconv.FormatBool(ev.Active)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := repo.Create(ctx, row); err != nil {
			m.logger.Warn("device event persist failed", zap.Error(err))
		}
	}
}

func (m *Manager) reportDeviceError(dt DeviceType, id string, err error) {
	hwErr := errors.Wrap(err, errors.ErrUnknown)
	m.setStatus(dt, id, StateError, hwErr)
	m.emit(HardwareEvent{Type: EventError, DeviceType: dt, DeviceID: id, Err: hwErr})
}

func (m *Manager) setStatus(dt DeviceType, id string, state DeviceState, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(dt) + "/" + id
	st, ok := m.statuses[key]
	if !ok {
		st = &HardwareStatus{DeviceType: dt, DeviceID: id}
		m.statuses[key] = st
	}
	st.Status = state
	st.LastChecked = time.Now()
	if err != nil {
		st.LastError = err.Error()
	} else {
		st.LastError = ""
	}
}

// StatusReport snapshots every known device's health.
func (m *Manager) StatusReport() []HardwareStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HardwareStatus, 0, len(m.statuses))
	for _, st := range m.statuses {
		out = append(out, *st)
	}
	return out
}

// StartHealthMonitor periodically marks devices that have not been
// touched by an operation recently as stale offline. It holds no
// device I/O of its own; health is inferred from operation outcomes.
// Each online-to-offline transition is published on the event stream
// so observers see the device drop, not just a changed status report.
func (m *Manager) StartHealthMonitor(ctx context.Context, interval, staleAfter time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				type staleDevice struct {
					dt DeviceType
					id string
				}
				var stale []staleDevice

				m.mu.Lock()
				now := time.Now()
				for _, st := range m.statuses {
					if st.Status == StateOnline && staleAfter > 0 && now.Sub(st.LastChecked) > staleAfter {
						st.Status = StateOffline
						stale = append(stale, staleDevice{st.DeviceType, st.DeviceID})
					}
				}
				m.mu.Unlock()

				// emit takes m.mu itself
				for _, d := range stale {
					hwErr := errors.Newf(errors.ErrDeviceOffline,
						"no activity for %s", staleAfter).
						WithDevice(string(d.dt)).WithOp("health")
					m.emit(HardwareEvent{Type: EventError, DeviceType: d.dt, DeviceID: d.id, Err: hwErr})
					m.logger.Warn("device marked offline",
						zap.String("device", string(d.dt)),
						zap.String("device_id", d.id))
				}
			}
		}
	}()
}

// Dispose releases every device in reverse acquisition order. Failures
// are logged and do not stop the remaining teardown.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	for lane := range m.autoClose {
		m.cancelAutoCloseLocked(lane)
	}
	m.mu.Unlock()

	type target struct {
		name string
		fn   func() error
	}
	targets := []target{}
	if m.drivers.Trigger != nil {
		targets = append(targets, target{"trigger", m.drivers.Trigger.Disconnect})
	}
	if m.drivers.Scanner != nil {
		targets = append(targets, target{"scanner", m.drivers.Scanner.Disconnect})
	}
	if m.drivers.Printer != nil {
		targets = append(targets, target{"printer", m.drivers.Printer.Disconnect})
	}
	if m.drivers.ExitCamera != nil {
		targets = append(targets, target{"exit_camera", m.drivers.ExitCamera.Disconnect})
	}
	if m.drivers.Camera != nil {
		targets = append(targets, target{"camera", m.drivers.Camera.Disconnect})
	}
	if m.drivers.ExitGate != nil {
		targets = append(targets, target{"exit_gate", m.drivers.ExitGate.Disconnect})
	}
	if m.drivers.EntryGate != nil {
		targets = append(targets, target{"entry_gate", m.drivers.EntryGate.Disconnect})
	}

	for _, t := range targets {
		if err := t.fn(); err != nil {
			m.logger.Warn("device disconnect failed",
				zap.String("device", t.name), zap.Error(err))
		}
	}

	m.mu.Lock()
	m.initialized = make(map[DeviceType]bool)
	m.mu.Unlock()
	m.logger.Info("hardware disposed")
}

func gateID(lane Lane) string {
	return "gate-" + string(lane)
}

func (m *Manager) siteName() string {
	if m.cfg.Backend.Uplink.Source != "" {
		return m.cfg.Backend.Uplink.Source
	}
	return "PARKING"
}
