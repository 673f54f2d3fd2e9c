package point

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/backend"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/hardware"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/syncer"
)

// ExitState is the exit controller's workflow phase.
type ExitState string

const (
	ExitIdle           ExitState = "idle"
	ExitValidating     ExitState = "validating"
	ExitFeeCalculated  ExitState = "fee_calculated"
	ExitPaymentPending ExitState = "payment_pending"
	ExitPaid           ExitState = "paid"
)

// ExitSession is the in-flight exit: one validated ticket and its
// computed fee, awaiting payment confirmation.
type ExitSession struct {
	Ticket       *models.TicketData `json:"ticket"`
	Fee          Fee                `json:"fee"`
	Duration     time.Duration      `json:"duration"`
	CalculatedAt time.Time          `json:"calculatedAt"`
}

// ExitPoint drives the outbound lane: a scanned or manually entered
// barcode is validated against the backend, priced, settled and the
// gate opened. At most one ticket is current at a time; a second scan
// while one is in flight is rejected as busy.
type ExitPoint struct {
	cfg      *config.Config
	hw       *hardware.Manager
	api      backend.TicketAPI
	syncer   *syncer.Syncer
	notifier Notifier
	logger   *zap.Logger

	mu      sync.Mutex
	state   ExitState
	session *ExitSession
	rates   config.RatesConfig
}

func NewExitPoint(cfg *config.Config, hw *hardware.Manager, api backend.TicketAPI, sy *syncer.Syncer, notifier Notifier) *ExitPoint {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ExitPoint{
		cfg:      cfg,
		hw:       hw,
		api:      api,
		syncer:   sy,
		notifier: notifier,
		logger:   logger.WithModule("exit"),
		state:    ExitIdle,
		rates:    cfg.Rates,
	}
}

// SetRates swaps the rate table. Applied by config hot-reload; an
// in-flight session keeps the fee it was quoted.
func (x *ExitPoint) SetRates(rates config.RatesConfig) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.rates = rates
}

func (x *ExitPoint) currentRates() config.RatesConfig {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.rates
}

// State returns the current workflow phase.
func (x *ExitPoint) State() ExitState {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state
}

// Session returns the in-flight session, nil when idle.
func (x *ExitPoint) Session() *ExitSession {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.session
}

func (x *ExitPoint) setState(next ExitState, event string) {
	prev := x.state
	x.state = next
	logger.LogStateTransition("exit", string(prev), string(next), event)
}

// StartScannerLoop consumes scanner reads. Validation failures are
// logged and surfaced over the status channel; the loop itself never
// stops on a bad barcode.
func (x *ExitPoint) StartScannerLoop(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case code, ok := <-x.hw.Barcodes():
				if !ok {
					return
				}
				if _, err := x.HandleBarcode(ctx, code); err != nil {
					x.logger.Warn("scan rejected",
						zap.String("barcode", code), zap.Error(err))
				}
			}
		}
	}()
	x.logger.Info("scanner loop started")
}

// HandleBarcode validates a ticket and computes its fee. Unknown and
// already-used tickets are domain outcomes that return the controller
// to idle; they are never retried or queued. A stale unpaid session
// past the session TTL is discarded in favor of the new scan.
func (x *ExitPoint) HandleBarcode(ctx context.Context, barcode string) (*ExitSession, error) {
	x.mu.Lock()
	if x.state != ExitIdle {
		stale := x.state == ExitFeeCalculated &&
			x.cfg.Exit.SessionTTL > 0 &&
			x.session != nil &&
			time.Since(x.session.CalculatedAt) > x.cfg.Exit.SessionTTL
		if !stale {
			x.mu.Unlock()
			return nil, errors.Newf(errors.ErrWorkflowBusy, "ticket %s in flight", x.currentBarcodeLocked())
		}
		x.logger.Warn("discarding stale unpaid session",
			zap.String("barcode", x.session.Ticket.Barcode))
		x.session = nil
		x.setState(ExitIdle, "session expired")
	}
	x.setState(ExitValidating, "barcode "+barcode)
	x.mu.Unlock()

	ticket, err := x.api.GetTicket(ctx, barcode)
	if err != nil {
		x.reset("validation failed")
		if errors.GetCode(err) == errors.ErrTicketNotFound {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrSyncFailed, "validate "+barcode)
	}
	if ticket.IsExited() {
		x.reset("already exited")
		return nil, errors.Newf(errors.ErrTicketUsed, "ticket %s already exited at %s",
			barcode, ticket.ExitTime.Format(time.RFC3339))
	}

	tier, err := RateFor(x.currentRates(), ticket.VehicleType, x.cfg.Entry.VehicleType)
	if err != nil {
		x.reset("no rate")
		return nil, err
	}

	now := time.Now()
	duration := ticket.Duration(now)
	fee := CalculateFee(duration, tier)

	session := &ExitSession{
		Ticket:       ticket,
		Fee:          fee,
		Duration:     duration,
		CalculatedAt: now,
	}

	x.mu.Lock()
	x.session = session
	x.setState(ExitFeeCalculated, "fee computed")
	x.mu.Unlock()

	x.logger.Info("fee calculated",
		zap.String("barcode", barcode),
		zap.String("plate", ticket.PlateNumber),
		zap.Duration("duration", duration),
		zap.Int64("amount", fee.Amount),
		zap.String("unit", fee.Unit))
	return session, nil
}

// ConfirmPayment settles the current session's fee. Failure keeps the
// session in FeeCalculated so the operator retries; the vehicle never
// leaves unpaid on a declined or failed settlement.
func (x *ExitPoint) ConfirmPayment(ctx context.Context, method string) (*backend.PaymentResult, error) {
	session, err := x.takeSessionForPayment()
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = x.cfg.Exit.PaymentMethod
	}

	result, err := x.api.CreatePayment(ctx, &backend.PaymentRequest{
		TicketID:      session.Ticket.ID,
		Amount:        session.Fee.Amount,
		Duration:      session.Duration,
		PaymentMethod: method,
	})
	if err != nil {
		// back to FeeCalculated, retryable
		x.releaseSessionForPayment()
		x.logger.Error("payment failed, session kept",
			zap.String("barcode", session.Ticket.Barcode), zap.Error(err))
		return nil, err
	}

	x.settle(ctx, session, method)
	return result, nil
}

// ConfirmOfflinePayment records a cash payment taken while the backend
// is unreachable. The settlement is queued durably for replay before
// the gate opens; without that queue write the session stays active.
func (x *ExitPoint) ConfirmOfflinePayment(ctx context.Context, method string) error {
	session, err := x.takeSessionForPayment()
	if err != nil {
		return err
	}
	if method == "" {
		method = x.cfg.Exit.PaymentMethod
	}

	err = x.syncer.EnqueuePayment(ctx, &backend.PaymentRequest{
		TicketID:      session.Ticket.ID,
		Amount:        session.Fee.Amount,
		Duration:      session.Duration,
		PaymentMethod: method,
	}, session.Ticket.Barcode)
	if err != nil {
		x.releaseSessionForPayment()
		x.logger.Error("offline payment enqueue failed, session kept",
			zap.String("barcode", session.Ticket.Barcode), zap.Error(err))
		return errors.Wrap(err, errors.ErrSyncFailed, "queue offline payment")
	}

	x.settle(ctx, session, method)
	return nil
}

// takeSessionForPayment claims the pending session for settlement.
// The state flips to PaymentPending inside the critical section, so a
// second concurrent confirmation is rejected instead of charging the
// ticket twice.
func (x *ExitPoint) takeSessionForPayment() (*ExitSession, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state == ExitPaymentPending {
		return nil, errors.New(errors.ErrWorkflowBusy, "payment already in flight")
	}
	if x.state != ExitFeeCalculated || x.session == nil {
		return nil, errors.Newf(errors.ErrInvalidParam, "no fee pending, state %s", x.state)
	}
	x.setState(ExitPaymentPending, "settling")
	return x.session, nil
}

// releaseSessionForPayment undoes the claim after a failed settlement
// so the operator can retry.
func (x *ExitPoint) releaseSessionForPayment() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state == ExitPaymentPending && x.session != nil {
		x.setState(ExitFeeCalculated, "settlement failed")
	}
}

// settle completes a paid exit: receipt, gate, back to idle.
func (x *ExitPoint) settle(ctx context.Context, session *ExitSession, method string) {
	now := time.Now()
	session.Ticket.ExitTime = &now
	session.Ticket.PaymentAmount = &session.Fee.Amount

	x.mu.Lock()
	x.setState(ExitPaid, "payment "+method)
	x.mu.Unlock()

	if err := x.hw.PrintReceipt(ctx, session.Ticket, session.Fee.Amount, now); err != nil {
		x.logger.Error("receipt print failed, opening gate anyway",
			zap.String("barcode", session.Ticket.Barcode), zap.Error(err))
		x.notifier.PrintStatus(PrintStatusFailed, session.Ticket.Barcode, err.Error())
	} else {
		x.notifier.PrintStatus(PrintStatusSuccess, session.Ticket.Barcode, "")
	}

	operator := session.Ticket.OperatorID
	if operator == "" {
		operator = x.cfg.Backend.OperatorID
	}
	// open/closed status reaches the hub via the manager's event
	// stream; only the failure is reported from here
	if err := x.hw.OpenGate(ctx, hardware.LaneExit, operator, session.Ticket.Barcode); err != nil {
		x.logger.Error("exit gate open failed", zap.Error(err))
		x.notifier.GateStatus(hardware.LaneExit, GateStatusError, err.Error())
		x.notifier.Error(errors.Wrap(err, errors.ErrGateOpenFailed))
	}

	x.logger.Info("vehicle released",
		zap.String("barcode", session.Ticket.Barcode),
		zap.Int64("amount", session.Fee.Amount),
		zap.String("method", method))

	x.mu.Lock()
	x.session = nil
	x.setState(ExitIdle, "done")
	x.mu.Unlock()
}

// Cancel abandons the in-flight session without charging.
func (x *ExitPoint) Cancel() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state == ExitIdle {
		return
	}
	barcode := x.currentBarcodeLocked()
	x.session = nil
	x.setState(ExitIdle, "cancelled")
	x.logger.Info("exit session cancelled", zap.String("barcode", barcode))
}

func (x *ExitPoint) reset(event string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.session = nil
	x.setState(ExitIdle, event)
}

func (x *ExitPoint) currentBarcodeLocked() string {
	if x.session != nil {
		return x.session.Ticket.Barcode
	}
	return "unknown"
}
