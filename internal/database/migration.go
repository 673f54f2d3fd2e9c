package database

import (
	"fmt"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
	"go.uber.org/zap"
)

// AutoMigrate creates or updates the local store tables.
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	migrationModels := []interface{}{
		&models.SyncJob{},
		&models.DeviceEvent{},
		&models.GateOperation{},
	}

	for _, model := range migrationModels {
		if err := DB.AutoMigrate(model); err != nil {
			logger.Error("migration failed",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err))
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}

	logger.Info("database migration complete",
		zap.Int("models", len(migrationModels)))
	return nil
}
