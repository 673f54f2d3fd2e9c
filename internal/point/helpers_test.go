package point

import (
	"context"
	"sync"
	"time"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/backend"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/hardware"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/repository"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/syncer"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Backend.OperatorID = "OP-001"
	cfg.Devices.EntryGate.AutoCloseDelay = 30 * time.Millisecond
	cfg.Devices.ExitGate.AutoCloseDelay = 30 * time.Millisecond
	cfg.Devices.Trigger.Pin = 17
	cfg.Devices.Trigger.ActiveLow = false
	cfg.Devices.Trigger.PollInterval = 5 * time.Millisecond
	cfg.Devices.Trigger.DebounceTime = 30 * time.Millisecond
	cfg.Entry.WorkflowTimeout = 2 * time.Second
	cfg.Entry.VehicleType = "car"
	cfg.Exit.PaymentMethod = "cash"
	cfg.Exit.SessionTTL = time.Minute
	cfg.OCR.Engine = "remote"
	cfg.Rates.Currency = "IDR"
	cfg.Rates.Vehicles = map[string]config.RateTier{
		"car":        {Hourly: 5000, Daily: 40000, Weekly: 200000},
		"motorcycle": {Hourly: 2000, Daily: 15000, Weekly: 75000},
	}
	cfg.Sync.ReplayInterval = 10 * time.Millisecond
	cfg.Sync.MaxBackoff = time.Minute
	cfg.Sync.BatchSize = 10
	return cfg
}

// fakeRecognizer returns a scripted plate, optionally after a delay.
type fakeRecognizer struct {
	plate string
	err   error
	delay time.Duration
}

func (f *fakeRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.plate, nil
}

// fakeTicketAPI is an in-memory ticket backend shared by entry and
// exit tests so round trips cross a single source of truth.
type fakeTicketAPI struct {
	mu           sync.Mutex
	tickets      map[string]*models.TicketData
	failCreates  int
	failPayments int
	paymentDelay time.Duration
	payments     []*backend.PaymentRequest
}

func newFakeTicketAPI() *fakeTicketAPI {
	return &fakeTicketAPI{tickets: make(map[string]*models.TicketData)}
}

func (f *fakeTicketAPI) CreateTicket(ctx context.Context, ticket *models.TicketData) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates > 0 {
		f.failCreates--
		return "", errors.New(errors.ErrSyncFailed, "backend unreachable")
	}
	cp := *ticket
	cp.ID = "id-" + ticket.Barcode
	f.tickets[ticket.Barcode] = &cp
	return ticket.Barcode, nil
}

func (f *fakeTicketAPI) GetTicket(ctx context.Context, barcode string) (*models.TicketData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[barcode]
	if !ok {
		return nil, errors.Newf(errors.ErrTicketNotFound, "barcode %s", barcode)
	}
	cp := *ticket
	return &cp, nil
}

func (f *fakeTicketAPI) CreatePayment(ctx context.Context, payment *backend.PaymentRequest) (*backend.PaymentResult, error) {
	if f.paymentDelay > 0 {
		time.Sleep(f.paymentDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPayments > 0 {
		f.failPayments--
		return nil, errors.New(errors.ErrSyncFailed, "backend unreachable")
	}
	f.payments = append(f.payments, payment)
	for _, ticket := range f.tickets {
		if "id-"+ticket.Barcode == payment.TicketID {
			now := time.Now()
			ticket.ExitTime = &now
			ticket.PaymentAmount = &payment.Amount
		}
	}
	return &backend.PaymentResult{TransactionID: "txn-1", Status: "success"}, nil
}

func (f *fakeTicketAPI) paymentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payments)
}

func (f *fakeTicketAPI) ticketCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickets)
}

func (f *fakeTicketAPI) firstTicket() *models.TicketData {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		cp := *t
		return &cp
	}
	return nil
}

// recordingNotifier captures controller notifications.
type recordingNotifier struct {
	mu          sync.Mutex
	gateStatus  []string
	printStatus []string
	errs        []*errors.HardwareError
}

func (n *recordingNotifier) GateStatus(lane hardware.Lane, status, errMsg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gateStatus = append(n.gateStatus, string(lane)+":"+status)
}

func (n *recordingNotifier) PrintStatus(status, barcode, errMsg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.printStatus = append(n.printStatus, status)
}

func (n *recordingNotifier) Error(err *errors.HardwareError) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, err)
}

func (n *recordingNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errs)
}

// testRig assembles a full controller stack over mock hardware.
type testRig struct {
	cfg      *config.Config
	gate     *hardware.MockGate
	exitGate *hardware.MockGate
	camera   *hardware.MockCamera
	printer  *hardware.MockPrinter
	scanner  *hardware.MockScanner
	trigger  *hardware.MockTrigger
	hw       *hardware.Manager
	api      *fakeTicketAPI
	rec      *fakeRecognizer
	jobs     repository.SyncJobRepository
	syncer   *syncer.Syncer
	notifier *recordingNotifier
}

func newTestRig() *testRig {
	cfg := testConfig()
	r := &testRig{
		cfg:      cfg,
		gate:     hardware.NewMockGate(),
		exitGate: hardware.NewMockGate(),
		camera:   hardware.NewMockCamera([]byte("jpeg-bytes")),
		printer:  hardware.NewMockPrinter(),
		scanner:  hardware.NewMockScanner(),
		trigger:  hardware.NewMockTrigger(),
		api:      newFakeTicketAPI(),
		rec:      &fakeRecognizer{plate: "B1234XY"},
		notifier: &recordingNotifier{},
	}
	r.hw = hardware.NewManager(cfg, hardware.Drivers{
		EntryGate: r.gate,
		ExitGate:  r.exitGate,
		Camera:    r.camera,
		Printer:   r.printer,
		Scanner:   r.scanner,
		Trigger:   r.trigger,
	})
	r.hw.SetRetryConfig(hardware.RetryConfig{MaxAttempts: 2, Backoff: []time.Duration{time.Millisecond}})
	r.hw.InitDevices()

	r.jobs = repository.NewSyncJobRepository(repository.SetupTestDB())
	r.syncer = syncer.New(cfg.Sync, r.jobs, r.api)
	return r
}

func (r *testRig) entry() *EntryPoint {
	return NewEntryPoint(r.cfg, r.hw, r.rec, r.api, r.syncer, r.notifier)
}

func (r *testRig) exit() *ExitPoint {
	return NewExitPoint(r.cfg, r.hw, r.api, r.syncer, r.notifier)
}
