package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/backend"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/hardware"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/point"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/repository"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/syncer"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/websocket"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Backend.OperatorID = "OP-001"
	cfg.Devices.EntryGate.AutoCloseDelay = 30 * time.Millisecond
	cfg.Devices.ExitGate.AutoCloseDelay = 30 * time.Millisecond
	cfg.Entry.WorkflowTimeout = 2 * time.Second
	cfg.Entry.VehicleType = "car"
	cfg.Exit.PaymentMethod = "cash"
	cfg.Exit.SessionTTL = time.Minute
	cfg.Rates.Currency = "IDR"
	cfg.Rates.Vehicles = map[string]config.RateTier{
		"car": {Hourly: 5000, Daily: 40000, Weekly: 200000},
	}
	cfg.Sync.ReplayInterval = 10 * time.Millisecond
	cfg.Sync.MaxBackoff = time.Minute
	cfg.Sync.BatchSize = 10
	return cfg
}

type fakeRecognizer struct {
	plate string
}

func (f *fakeRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	return f.plate, nil
}

type fakeTicketAPI struct {
	mu      sync.Mutex
	tickets map[string]*models.TicketData
}

func newFakeTicketAPI() *fakeTicketAPI {
	return &fakeTicketAPI{tickets: make(map[string]*models.TicketData)}
}

func (f *fakeTicketAPI) CreateTicket(ctx context.Context, ticket *models.TicketData) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ticket := range f.tickets {
		if "id-"+ticket.Barcode == payment.TicketID {
			now := time.Now()
			ticket.ExitTime = &now
			ticket.PaymentAmount = &payment.Amount
		}
	}
	return &backend.PaymentResult{TransactionID: "txn-1", Status: "success"}, nil
}

type RouterTestSuite struct {
	suite.Suite

	cfg      *config.Config
	gate     *hardware.MockGate
	exitGate *hardware.MockGate
	hw       *hardware.Manager
	api      *fakeTicketAPI
	hub      *websocket.Hub
	srv      *httptest.Server
}

func TestRouterSuite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(RouterTestSuite))
}

func (s *RouterTestSuite) SetupTest() {
	s.cfg = testConfig()
	s.gate = hardware.NewMockGate()
	s.exitGate = hardware.NewMockGate()
	s.api = newFakeTicketAPI()

	s.hw = hardware.NewManager(s.cfg, hardware.Drivers{
		EntryGate: s.gate,
		ExitGate:  s.exitGate,
		Camera:    hardware.NewMockCamera([]byte("jpeg-bytes")),
		Printer:   hardware.NewMockPrinter(),
	})
	s.hw.SetRetryConfig(hardware.RetryConfig{MaxAttempts: 2, Backoff: []time.Duration{time.Millisecond}})
	s.hw.InitDevices()

	db := repository.SetupTestDB()
	jobs := repository.NewSyncJobRepository(db)
	events := repository.NewDeviceEventRepository(db)
	gateOps := repository.NewGateOperationRepository(db)
	s.hw.SetRepositories(events, gateOps)

	sy := syncer.New(s.cfg.Sync, jobs, s.api)
	entry := point.NewEntryPoint(s.cfg, s.hw, &fakeRecognizer{plate: "B1234XY"}, s.api, sy, nil)
	exit := point.NewExitPoint(s.cfg, s.hw, s.api, sy, nil)

	s.hub = websocket.NewHub(nil)
	go s.hub.Run()

	router := NewRouter(Deps{
		Hardware: s.hw,
		Entry:    entry,
		Exit:     exit,
		Hub:      s.hub,
		SyncJobs: jobs,
		Events:   events,
		GateOps:  gateOps,
	})
	s.srv = httptest.NewServer(router.Engine())
}

func (s *RouterTestSuite) TearDownTest() {
	s.srv.Close()
	s.hub.Stop()
	s.hw.Dispose()
}

func (s *RouterTestSuite) postJSON(path string, body interface{}) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.T(), json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(s.srv.URL+path, "application/json", &buf)
	require.NoError(s.T(), err)
	return resp
}

func (s *RouterTestSuite) getJSON(path string, out interface{}) *http.Response {
	resp, err := http.Get(s.srv.URL + path)
	require.NoError(s.T(), err)
	if out != nil {
		require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(out))
	}
	resp.Body.Close()
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (s *RouterTestSuite) seedTicket(barcode string, parked time.Duration) {
	entry := time.Now().Add(-parked)
	_, err := s.api.CreateTicket(context.Background(), &models.TicketData{
		Barcode:     barcode,
		PlateNumber: "B1234XY",
		VehicleType: "car",
		EntryTime:   entry,
		OperatorID:  "OP-001",
	})
	require.NoError(s.T(), err)
}

func (s *RouterTestSuite) TestHealth() {
	var body map[string]interface{}
	resp := s.getJSON("/health", &body)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(s.T(), "ok", body["status"])
	assert.Equal(s.T(), "idle", body["entry_state"])
	assert.Equal(s.T(), "idle", body["exit_state"])
}

func (s *RouterTestSuite) TestHardwareStatus() {
	var body map[string]interface{}
	resp := s.getJSON("/api/v1/hardware/status", &body)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	data := body["data"].(map[string]interface{})
	devices := data["devices"].([]interface{})
	assert.NotEmpty(s.T(), devices)

	gates := data["gates"].(map[string]interface{})
	entryGate := gates["entry"].(map[string]interface{})
	assert.Equal(s.T(), false, entryGate["is_open"])
}

func (s *RouterTestSuite) TestManualGateOpenClose() {
	resp := s.postJSON("/api/v1/gate/entry/open", map[string]string{"operatorId": "op-7"})
	body := decodeBody(s.T(), resp)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	data := body["data"].(map[string]interface{})
	assert.Equal(s.T(), true, data["is_open"])
	assert.Equal(s.T(), "op-7", data["operated_by"])
	assert.Equal(s.T(), 1, s.gate.OpenCount)

	resp = s.postJSON("/api/v1/gate/entry/close", nil)
	resp.Body.Close()
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.False(s.T(), s.hw.GateState(hardware.LaneEntry).IsOpen)
}

func (s *RouterTestSuite) TestUnknownLaneRejected() {
	resp := s.postJSON("/api/v1/gate/side/open", nil)
	body := decodeBody(s.T(), resp)
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
	assert.Equal(s.T(), false, body["success"])
}

func (s *RouterTestSuite) TestEntryCaptureRunsWorkflow() {
	resp := s.postJSON("/api/v1/entry/capture", map[string]string{"operatorId": "op-9"})
	resp.Body.Close()
	require.Equal(s.T(), http.StatusAccepted, resp.StatusCode)

	assert.Eventually(s.T(), func() bool {
		s.api.mu.Lock()
		defer s.api.mu.Unlock()
		return len(s.api.tickets) == 1
	}, time.Second, 10*time.Millisecond, "workflow should issue a ticket")
}

func (s *RouterTestSuite) TestEntryCaptureBusy() {
	resp := s.postJSON("/api/v1/entry/capture", nil)
	resp.Body.Close()
	require.Equal(s.T(), http.StatusAccepted, resp.StatusCode)

	// second capture while the first is in flight, or after it already
	// settled; only the in-flight case conflicts
	resp = s.postJSON("/api/v1/entry/capture", nil)
	resp.Body.Close()
	assert.Contains(s.T(), []int{http.StatusAccepted, http.StatusConflict}, resp.StatusCode)
}

func (s *RouterTestSuite) TestExitTicketAndPayment() {
	s.seedTicket("T260830091500ABCDEF", 3*time.Hour+10*time.Minute)

	resp := s.postJSON("/api/v1/exit/ticket", map[string]string{"barcode": "T260830091500ABCDEF"})
	body := decodeBody(s.T(), resp)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	data := body["data"].(map[string]interface{})
	fee := data["fee"].(map[string]interface{})
	assert.Equal(s.T(), float64(20000), fee["amount"])

	resp = s.postJSON("/api/v1/exit/payment", map[string]string{"paymentMethod": "cash"})
	body = decodeBody(s.T(), resp)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	result := body["data"].(map[string]interface{})
	assert.Equal(s.T(), "txn-1", result["transactionId"])
	assert.Equal(s.T(), 1, s.exitGate.OpenCount)
}

func (s *RouterTestSuite) TestExitUnknownBarcode() {
	resp := s.postJSON("/api/v1/exit/ticket", map[string]string{"barcode": "NOPE12345"})
	resp.Body.Close()
	assert.Equal(s.T(), http.StatusNotFound, resp.StatusCode)
	assert.Equal(s.T(), 0, s.exitGate.OpenCount)
}

func (s *RouterTestSuite) TestExitPaymentWithoutSession() {
	resp := s.postJSON("/api/v1/exit/payment", nil)
	resp.Body.Close()
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
}

func (s *RouterTestSuite) TestExitCancel() {
	s.seedTicket("T260830091500ABCDEF", time.Hour)
	resp := s.postJSON("/api/v1/exit/ticket", map[string]string{"barcode": "T260830091500ABCDEF"})
	resp.Body.Close()
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	resp = s.postJSON("/api/v1/exit/cancel", nil)
	resp.Body.Close()
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	// a fresh scan is accepted after cancel
	resp = s.postJSON("/api/v1/exit/ticket", map[string]string{"barcode": "T260830091500ABCDEF"})
	resp.Body.Close()
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
}

func (s *RouterTestSuite) TestDeviceEventsEndpoint() {
	require.NoError(s.T(), s.hw.OpenGate(context.Background(), hardware.LaneEntry, "op", ""))

	var body map[string]interface{}
	resp := s.getJSON("/api/v1/events", &body)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(s.T(), true, body["success"])
}

func (s *RouterTestSuite) TestGateAuditEndpoint() {
	require.NoError(s.T(), s.hw.OpenGate(context.Background(), hardware.LaneEntry, "op", ""))

	var body map[string]interface{}
	resp := s.getJSON("/api/v1/gate/entry/audit", &body)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	rows := body["data"].([]interface{})
	require.NotEmpty(s.T(), rows)
	first := rows[0].(map[string]interface{})
	assert.Equal(s.T(), "open", first["operation"])
}

func (s *RouterTestSuite) TestBadSinceRejected() {
	var body map[string]interface{}
	resp := s.getJSON("/api/v1/events?since=yesterday", &body)
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
}

func (s *RouterTestSuite) TestWebsocketUpgrade() {
	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	conn, _, err := gws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(s.T(), err)
	defer conn.Close()

	assert.Eventually(s.T(), func() bool {
		return s.hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)
}
