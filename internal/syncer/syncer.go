package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/backend"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/repository"
)

// Syncer replays failed backend calls from the local queue. Delivery
// is at-least-once: a job leaves the queue only on confirmed success,
// so a crash between the remote call and MarkSynced redelivers.
type Syncer struct {
	cfg    config.SyncConfig
	repo   repository.SyncJobRepository
	api    backend.TicketAPI
	logger *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(cfg config.SyncConfig, repo repository.SyncJobRepository, api backend.TicketAPI) *Syncer {
	return &Syncer{
		cfg:    cfg,
		repo:   repo,
		api:    api,
		logger: logger.WithModule("syncer"),
	}
}

// EnqueueTicket queues a ticket creation that failed against the
// backend. The full payload is stored so replay needs no other state.
func (s *Syncer) EnqueueTicket(ctx context.Context, ticket *models.TicketData) error {
	payload, err := toPayload(ticket)
	if err != nil {
		return err
	}
	job := &models.SyncJob{
		Kind:        models.SyncJobTicket,
		Status:      models.SyncJobPending,
		Payload:     payload,
		NextAttempt: time.Now(),
		Barcode:     ticket.Barcode,
		OperatorID:  ticket.OperatorID,
	}
	if err := s.repo.Enqueue(ctx, job); err != nil {
		return err
	}
	s.logger.Warn("ticket queued for replay", zap.String("barcode", ticket.Barcode))
	return nil
}

// EnqueuePayment queues a payment settlement for replay.
func (s *Syncer) EnqueuePayment(ctx context.Context, payment *backend.PaymentRequest, barcode string) error {
	// Duration is not part of the wire payload; fold it into the
	// minutes field now so the replayed request carries it.
	if payment.Duration > 0 {
		payment.DurationMins = int64(payment.Duration / time.Minute)
	}
	payload, err := toPayload(payment)
	if err != nil {
		return err
	}
	job := &models.SyncJob{
		Kind:        models.SyncJobPayment,
		Status:      models.SyncJobPending,
		Payload:     payload,
		NextAttempt: time.Now(),
		Barcode:     barcode,
	}
	if err := s.repo.Enqueue(ctx, job); err != nil {
		return err
	}
	s.logger.Warn("payment queued for replay", zap.String("barcode", barcode))
	return nil
}

// Start runs the replay loop until ctx is cancelled or Stop is called.
func (s *Syncer) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	interval := s.cfg.ReplayInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.DrainOnce(ctx)
			}
		}
	}()
	s.logger.Info("sync replay worker started", zap.Duration("interval", interval))
}

// Stop halts the replay loop and waits for the in-flight pass.
func (s *Syncer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// DrainOnce replays every currently due job, one batch.
func (s *Syncer) DrainOnce(ctx context.Context) {
	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = 20
	}

	jobs, err := s.repo.FindDue(ctx, time.Now(), batch)
	if err != nil {
		s.logger.Error("replay scan failed", zap.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	s.logger.Info("replaying queued jobs", zap.Int("count", len(jobs)))
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		s.replay(ctx, job)
	}
}

func (s *Syncer) replay(ctx context.Context, job *models.SyncJob) {
	var err error
	switch job.Kind {
	case models.SyncJobTicket:
		err = s.replayTicket(ctx, job)
	case models.SyncJobPayment:
		err = s.replayPayment(ctx, job)
	default:
		s.logger.Error("unknown sync job kind, leaving in queue",
			zap.Uint("id", job.ID), zap.String("kind", string(job.Kind)))
		return
	}

	if err != nil {
		next := time.Now().Add(s.backoffFor(job.Attempts + 1))
		if mErr := s.repo.MarkFailed(ctx, job.ID, err.Error(), next); mErr != nil {
			s.logger.Error("mark failed errored", zap.Uint("id", job.ID), zap.Error(mErr))
		}
		s.logger.Warn("replay attempt failed",
			zap.Uint("id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.Int("attempts", job.Attempts+1),
			zap.Time("next_attempt", next),
			zap.Error(err))
		return
	}

	if err := s.repo.MarkSynced(ctx, job.ID); err != nil {
		// job stays pending and replays again; at-least-once
		s.logger.Error("mark synced failed", zap.Uint("id", job.ID), zap.Error(err))
		return
	}
	s.logger.Info("job replayed",
		zap.Uint("id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("barcode", job.Barcode))
}

func (s *Syncer) replayTicket(ctx context.Context, job *models.SyncJob) error {
	var ticket models.TicketData
	if err := fromPayload(job.Payload, &ticket); err != nil {
		return err
	}
	_, err := s.api.CreateTicket(ctx, &ticket)
	return err
}

func (s *Syncer) replayPayment(ctx context.Context, job *models.SyncJob) error {
	var payment backend.PaymentRequest
	if err := fromPayload(job.Payload, &payment); err != nil {
		return err
	}
	_, err := s.api.CreatePayment(ctx, &payment)
	return err
}

// backoffFor doubles per attempt from the replay interval up to the
// configured cap.
func (s *Syncer) backoffFor(attempts int) time.Duration {
	base := s.cfg.ReplayInterval
	if base <= 0 {
		base = 30 * time.Second
	}
	max := s.cfg.MaxBackoff
	if max <= 0 {
		max = 10 * time.Minute
	}

	backoff := base
	for i := 1; i < attempts; i++ {
		backoff *= 2
		if backoff >= max {
			return max
		}
	}
	if backoff > max {
		return max
	}
	return backoff
}

func toPayload(v interface{}) (models.JSONData, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var payload models.JSONData
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func fromPayload(payload models.JSONData, v interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
