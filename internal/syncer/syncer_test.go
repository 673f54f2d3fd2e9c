package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/backend"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/repository"
)

// fakeAPI fails a configurable number of calls before accepting.
type fakeAPI struct {
	mu           sync.Mutex
	failTickets  int
	failPayments int
	tickets      []*models.TicketData
	payments     []*backend.PaymentRequest
}

func (f *fakeAPI) CreateTicket(ctx context.Context, ticket *models.TicketData) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTickets > 0 {
		f.failTickets--
		return "", errors.New(errors.ErrSyncFailed, "backend unreachable")
	}
	f.tickets = append(f.tickets, ticket)
	return ticket.Barcode, nil
}

func (f *fakeAPI) GetTicket(ctx context.Context, barcode string) (*models.TicketData, error) {
	return nil, errors.New(errors.ErrTicketNotFound, barcode)
}

func (f *fakeAPI) CreatePayment(ctx context.Context, payment *backend.PaymentRequest) (*backend.PaymentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPayments > 0 {
		f.failPayments--
		return nil, errors.New(errors.ErrSyncFailed, "backend unreachable")
	}
	f.payments = append(f.payments, payment)
	return &backend.PaymentResult{TransactionID: "txn", Status: "success"}, nil
}

type SyncerTestSuite struct {
	suite.Suite
	repo   repository.SyncJobRepository
	api    *fakeAPI
	syncer *Syncer
}

func (s *SyncerTestSuite) SetupTest() {
	db := repository.SetupTestDB()
	s.repo = repository.NewSyncJobRepository(db)
	s.api = &fakeAPI{}
	s.syncer = New(config.SyncConfig{
		ReplayInterval: 10 * time.Millisecond,
		MaxBackoff:     time.Minute,
		BatchSize:      10,
	}, s.repo, s.api)
}

func (s *SyncerTestSuite) TestReplayTicket() {
	ctx := context.Background()
	s.Require().NoError(s.syncer.EnqueueTicket(ctx, &models.TicketData{
		Barcode:     "T111222333",
		PlateNumber: "B1234XYZ",
		VehicleType: "car",
		EntryTime:   time.Now().UTC(),
		OperatorID:  "OP-001",
	}))

	s.syncer.DrainOnce(ctx)

	s.Require().Len(s.api.tickets, 1)
	s.Equal("T111222333", s.api.tickets[0].Barcode)
	s.Equal("B1234XYZ", s.api.tickets[0].PlateNumber)

	pending, err := s.repo.CountPending(ctx)
	s.Require().NoError(err)
	s.EqualValues(0, pending)
}

func (s *SyncerTestSuite) TestFailedReplayKeepsJob() {
	ctx := context.Background()
	s.api.failTickets = 1
	s.Require().NoError(s.syncer.EnqueueTicket(ctx, &models.TicketData{Barcode: "T1", EntryTime: time.Now()}))

	s.syncer.DrainOnce(ctx)

	pending, err := s.repo.CountPending(ctx)
	s.Require().NoError(err)
	s.EqualValues(1, pending, "failed job must stay queued")

	jobs, err := s.repo.FindByBarcode(ctx, "T1")
	s.Require().NoError(err)
	s.Require().Len(jobs, 1)
	s.Equal(1, jobs[0].Attempts)
	s.Contains(jobs[0].LastError, "unreachable")
	s.True(jobs[0].NextAttempt.After(time.Now()), "backoff must defer the next attempt")
}

func (s *SyncerTestSuite) TestReplayRecoversAfterBackendReturns() {
	ctx := context.Background()
	s.api.failTickets = 1
	s.Require().NoError(s.syncer.EnqueueTicket(ctx, &models.TicketData{Barcode: "T2", EntryTime: time.Now()}))

	s.syncer.DrainOnce(ctx)
	s.Len(s.api.tickets, 0)

	// due again once the backoff elapses
	jobs, err := s.repo.FindByBarcode(ctx, "T2")
	s.Require().NoError(err)
	s.Require().NoError(s.repo.MarkFailed(ctx, jobs[0].ID, "test", time.Now().Add(-time.Second)))

	s.syncer.DrainOnce(ctx)
	s.Require().Len(s.api.tickets, 1)
}

func (s *SyncerTestSuite) TestReplayPayment() {
	ctx := context.Background()
	s.Require().NoError(s.syncer.EnqueuePayment(ctx, &backend.PaymentRequest{
		TicketID:      "tkt-1",
		Amount:        20000,
		DurationMins:  195,
		PaymentMethod: "cash",
	}, "T3"))

	s.syncer.DrainOnce(ctx)

	s.Require().Len(s.api.payments, 1)
	s.EqualValues(20000, s.api.payments[0].Amount)
}

func (s *SyncerTestSuite) TestReplayPaymentKeepsDuration() {
	ctx := context.Background()
	s.Require().NoError(s.syncer.EnqueuePayment(ctx, &backend.PaymentRequest{
		TicketID:      "tkt-2",
		Amount:        15000,
		Duration:      2*time.Hour + 30*time.Minute,
		PaymentMethod: "cash",
	}, "T5"))

	s.syncer.DrainOnce(ctx)

	// the parked duration must survive the queue round-trip
	s.Require().Len(s.api.payments, 1)
	s.EqualValues(150, s.api.payments[0].DurationMins)
}

func (s *SyncerTestSuite) TestBackoffDoublesAndCaps() {
	s.Equal(10*time.Millisecond, s.syncer.backoffFor(1))
	s.Equal(20*time.Millisecond, s.syncer.backoffFor(2))
	s.Equal(40*time.Millisecond, s.syncer.backoffFor(3))
	s.Equal(time.Minute, s.syncer.backoffFor(30), "backoff is capped")
}

func (s *SyncerTestSuite) TestStartStopLoop() {
	ctx := context.Background()
	s.Require().NoError(s.syncer.EnqueueTicket(ctx, &models.TicketData{Barcode: "T4", EntryTime: time.Now()}))

	s.syncer.Start(ctx)
	s.Eventually(func() bool {
		s.api.mu.Lock()
		defer s.api.mu.Unlock()
		return len(s.api.tickets) == 1
	}, time.Second, 10*time.Millisecond)
	s.syncer.Stop()
}

func TestSyncerTestSuite(t *testing.T) {
	suite.Run(t, new(SyncerTestSuite))
}
