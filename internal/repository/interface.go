package repository

import (
	"context"

	"gorm.io/gorm"
)

// BaseRepo carries the shared database handle.
type BaseRepo struct {
	db *gorm.DB
}

// NewBaseRepo wraps a gorm handle.
func NewBaseRepo(db *gorm.DB) *BaseRepo {
	return &BaseRepo{db: db}
}

// GetDB exposes the handle for composition.
func (r *BaseRepo) GetDB() *gorm.DB {
	return r.db
}

// Transaction runs fn inside one transaction.
func (r *BaseRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
