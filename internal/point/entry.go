package point

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/backend"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/hardware"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/recognizer"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/syncer"
)

// EntryState is the entry controller's workflow phase.
type EntryState string

const (
	EntryIdle        EntryState = "idle"
	EntryCapturing   EntryState = "capturing"
	EntryRecognizing EntryState = "recognizing"
	EntryTicketing   EntryState = "ticketing"
)

// EntryPoint drives the inbound lane: a debounced vehicle-present
// trigger starts capture, recognition, ticket creation, printing and
// gate open. One workflow at a time; triggers arriving while one is
// in flight are dropped, not queued.
type EntryPoint struct {
	cfg      *config.Config
	hw       *hardware.Manager
	rec      recognizer.Recognizer
	api      backend.TicketAPI
	syncer   *syncer.Syncer
	notifier Notifier
	logger   *zap.Logger

	guard atomic.Bool

	mu    sync.Mutex
	state EntryState
}

func NewEntryPoint(cfg *config.Config, hw *hardware.Manager, rec recognizer.Recognizer, api backend.TicketAPI, sy *syncer.Syncer, notifier Notifier) *EntryPoint {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &EntryPoint{
		cfg:      cfg,
		hw:       hw,
		rec:      rec,
		api:      api,
		syncer:   sy,
		notifier: notifier,
		logger:   logger.WithModule("entry"),
		state:    EntryIdle,
	}
}

// State returns the current workflow phase.
func (e *EntryPoint) State() EntryState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsProcessing reports whether a workflow currently holds the guard.
func (e *EntryPoint) IsProcessing() bool {
	return e.guard.Load()
}

func (e *EntryPoint) setState(next EntryState, event string) {
	e.mu.Lock()
	prev := e.state
	e.state = next
	e.mu.Unlock()
	logger.LogStateTransition("entry", string(prev), string(next), event)
}

// StartTriggerLoop polls the vehicle-present input and starts a
// workflow on each debounced rising edge. Only a level stable for the
// full debounce window counts; bounce bursts shorter than the window
// never reach the workflow.
func (e *EntryPoint) StartTriggerLoop(ctx context.Context) {
	trig := e.cfg.Devices.Trigger
	if trig.PollInterval <= 0 {
		e.logger.Info("trigger loop disabled, no poll interval configured")
		return
	}
	go func() {
		ticker := time.NewTicker(trig.PollInterval)
		defer ticker.Stop()

		var lastRaw, accepted bool
		lastChange := time.Now()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			raw := e.hw.ReadTriggerState(trig.Pin)
			now := time.Now()
			if raw != lastRaw {
				lastRaw = raw
				lastChange = now
				continue
			}
			if raw == accepted || now.Sub(lastChange) < trig.DebounceTime {
				continue
			}

			accepted = raw
			if !accepted {
				continue
			}
			if err := e.Trigger("trigger"); err != nil {
				// guard held: this vehicle's bounce or a tailgater, drop it
				e.logger.Debug("trigger dropped", zap.Error(err))
			}
		}
	}()
	e.logger.Info("trigger loop started",
		zap.Int("pin", trig.Pin),
		zap.Duration("poll", trig.PollInterval),
		zap.Duration("debounce", trig.DebounceTime))
}

// Trigger starts one entry workflow. A workflow already in flight
// rejects with a busy error instead of queueing.
func (e *EntryPoint) Trigger(operator string) error {
	if !e.guard.CompareAndSwap(false, true) {
		return errors.New(errors.ErrWorkflowBusy, "entry workflow in flight")
	}
	if operator == "" {
		operator = e.cfg.Backend.OperatorID
	}
	go e.run(operator)
	return nil
}

// run executes one workflow under the hard timeout. The timeout
// abandons, it does not abort: in-flight hardware calls run to
// completion and their results are discarded, so no driver is left
// mid-operation.
func (e *EntryPoint) run(operator string) {
	// settled flips exactly once, by completion or by timeout.
	var settled atomic.Bool

	timeout := e.cfg.Entry.WorkflowTimeout
	timer := time.AfterFunc(timeout, func() {
		if !settled.CompareAndSwap(false, true) {
			return
		}
		err := errors.Newf(errors.ErrWorkflowTimeout, "entry workflow exceeded %s", timeout)
		e.logger.Error("entry workflow timed out", zap.Error(err))
		e.notifier.Error(err)
		e.setState(EntryIdle, "timeout")
		e.guard.Store(false)
	})
	defer timer.Stop()

	e.pipeline(&settled, operator)

	if settled.CompareAndSwap(false, true) {
		e.setState(EntryIdle, "done")
		e.guard.Store(false)
	}
}

func (e *EntryPoint) pipeline(settled *atomic.Bool, operator string) {
	ctx := context.Background()

	e.setState(EntryCapturing, "vehicle present")
	image, err := e.hw.CaptureImage(ctx, hardware.LaneEntry)
	if err != nil {
		e.fail(settled, errors.Wrap(err, errors.ErrCaptureFailed))
		return
	}
	if settled.Load() {
		return
	}

	e.setState(EntryRecognizing, "image captured")
	plate, err := e.rec.Recognize(ctx, image)
	if err != nil {
		if errors.GetCode(err) == errors.ErrOCRNoText {
			// negative outcome, not a fault: no ticket, back to idle
			e.logger.Info("no plate recognized", zap.Error(err))
			return
		}
		e.fail(settled, errors.Wrap(err, errors.ErrOCRFailed))
		return
	}
	if settled.Load() {
		return
	}

	e.setState(EntryTicketing, "plate "+plate)
	ticket := &models.TicketData{
		Barcode:     GenerateBarcode(),
		PlateNumber: plate,
		VehicleType: e.cfg.Entry.VehicleType,
		EntryTime:   time.Now().UTC(),
		OperatorID:  operator,
	}

	if _, err := e.api.CreateTicket(ctx, ticket); err != nil {
		// backend unreachable: persist for replay, the vehicle still
		// gets its ticket and the gate still opens
		e.logger.Warn("ticket create failed, queueing for replay",
			zap.String("barcode", ticket.Barcode), zap.Error(err))
		if qErr := e.syncer.EnqueueTicket(ctx, ticket); qErr != nil {
			e.fail(settled, errors.Wrap(qErr, errors.ErrSyncFailed))
			return
		}
	}
	if settled.Load() {
		return
	}

	if err := e.hw.PrintTicket(ctx, ticket); err != nil {
		// a stuck vehicle is worse than a missing ticket stub
		e.logger.Error("ticket print failed, opening gate anyway",
			zap.String("barcode", ticket.Barcode), zap.Error(err))
		e.notifier.PrintStatus(PrintStatusFailed, ticket.Barcode, err.Error())
	} else {
		e.notifier.PrintStatus(PrintStatusSuccess, ticket.Barcode, "")
	}
	if settled.Load() {
		return
	}

	// successful open/close status reaches the hub via the manager's
	// own event stream; only the failure is reported from here
	if err := e.hw.OpenGate(ctx, hardware.LaneEntry, operator, ticket.Barcode); err != nil {
		e.notifier.GateStatus(hardware.LaneEntry, GateStatusError, err.Error())
		e.fail(settled, errors.Wrap(err, errors.ErrGateOpenFailed))
		return
	}

	e.logger.Info("vehicle admitted",
		zap.String("barcode", ticket.Barcode),
		zap.String("plate", plate),
		zap.String("operator", operator))
}

func (e *EntryPoint) fail(settled *atomic.Bool, err *errors.HardwareError) {
	if settled.Load() {
		return
	}
	e.logger.Error("entry workflow failed", zap.Error(err))
	e.notifier.Error(err)
}

// GenerateBarcode builds a collision-resistant ticket barcode from a
// second-resolution timestamp plus uuid entropy.
func GenerateBarcode() string {
	entropy := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:6]
	return "T" + time.Now().Format("060102150405") + entropy
}
