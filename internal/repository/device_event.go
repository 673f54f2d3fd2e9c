package repository

import (
	"context"
	"time"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
	"gorm.io/gorm"
)

// DeviceEventRepository persists the hardware event log.
type DeviceEventRepository interface {
	Create(ctx context.Context, event *models.DeviceEvent) error
	CreateBatch(ctx context.Context, events []*models.DeviceEvent) error
	FindByDevice(ctx context.Context, deviceID string, limit int) ([]*models.DeviceEvent, error)
	FindSince(ctx context.Context, since time.Time, limit int) ([]*models.DeviceEvent, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type deviceEventRepo struct {
	*BaseRepo
}

// NewDeviceEventRepository builds the event log store.
func NewDeviceEventRepository(db *gorm.DB) DeviceEventRepository {
	return &deviceEventRepo{BaseRepo: NewBaseRepo(db)}
}

func (r *deviceEventRepo) Create(ctx context.Context, event *models.DeviceEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *deviceEventRepo) CreateBatch(ctx context.Context, events []*models.DeviceEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(events, 100).Error
}

func (r *deviceEventRepo) FindByDevice(ctx context.Context, deviceID string, limit int) ([]*models.DeviceEvent, error) {
	var events []*models.DeviceEvent
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("sequence DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *deviceEventRepo) FindSince(ctx context.Context, since time.Time, limit int) ([]*models.DeviceEvent, error) {
	var events []*models.DeviceEvent
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *deviceEventRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&models.DeviceEvent{})
	return result.RowsAffected, result.Error
}

// GateOperationRepository records gate actuations for audit.
type GateOperationRepository interface {
	Create(ctx context.Context, op *models.GateOperation) error
	FindByLane(ctx context.Context, lane string, limit int) ([]*models.GateOperation, error)
}

type gateOperationRepo struct {
	*BaseRepo
}

// NewGateOperationRepository builds the audit store.
func NewGateOperationRepository(db *gorm.DB) GateOperationRepository {
	return &gateOperationRepo{BaseRepo: NewBaseRepo(db)}
}

func (r *gateOperationRepo) Create(ctx context.Context, op *models.GateOperation) error {
	return r.db.WithContext(ctx).Create(op).Error
}

func (r *gateOperationRepo) FindByLane(ctx context.Context, lane string, limit int) ([]*models.GateOperation, error) {
	var ops []*models.GateOperation
	err := r.db.WithContext(ctx).
		Where("lane = ?", lane).
		Order("created_at DESC").
		Limit(limit).
		Find(&ops).Error
	return ops, err
}
