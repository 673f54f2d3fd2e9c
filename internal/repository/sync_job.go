package repository

import (
	"context"
	"time"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
	"gorm.io/gorm"
)

// SyncJobRepository is the failed-sync store. Enqueue is called by the
// point controllers when a backend call fails; the replay worker drains
// due jobs with FindDue / MarkSynced / MarkFailed.
type SyncJobRepository interface {
	Enqueue(ctx context.Context, job *models.SyncJob) error
	FindDue(ctx context.Context, now time.Time, limit int) ([]*models.SyncJob, error)
	MarkSynced(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, cause string, nextAttempt time.Time) error
	CountPending(ctx context.Context) (int64, error)
	FindByBarcode(ctx context.Context, barcode string) ([]*models.SyncJob, error)
}

type syncJobRepo struct {
	*BaseRepo
}

// NewSyncJobRepository builds the store over the local database.
func NewSyncJobRepository(db *gorm.DB) SyncJobRepository {
	return &syncJobRepo{BaseRepo: NewBaseRepo(db)}
}

func (r *syncJobRepo) Enqueue(ctx context.Context, job *models.SyncJob) error {
	if job.Status == "" {
		job.Status = models.SyncJobPending
	}
	if job.NextAttempt.IsZero() {
		job.NextAttempt = time.Now()
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *syncJobRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]*models.SyncJob, error) {
	var jobs []*models.SyncJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt <= ?", models.SyncJobPending, now).
		Order("next_attempt ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *syncJobRepo) MarkSynced(ctx context.Context, id uint) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.SyncJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    models.SyncJobDone,
			"synced_at": &now,
		}).Error
}

func (r *syncJobRepo) MarkFailed(ctx context.Context, id uint, cause string, nextAttempt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.SyncJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   cause,
			"next_attempt": nextAttempt,
		}).Error
}

func (r *syncJobRepo) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SyncJob{}).
		Where("status = ?", models.SyncJobPending).
		Count(&count).Error
	return count, err
}

func (r *syncJobRepo) FindByBarcode(ctx context.Context, barcode string) ([]*models.SyncJob, error) {
	var jobs []*models.SyncJob
	err := r.db.WithContext(ctx).
		Where("barcode = ?", barcode).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}
