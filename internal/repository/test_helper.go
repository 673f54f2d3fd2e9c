package repository

import (
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens an in-memory sqlite database migrated with the
// local store models.
func SetupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	err = db.AutoMigrate(
		&models.SyncJob{},
		&models.DeviceEvent{},
		&models.GateOperation{},
	)
	if err != nil {
		panic(err)
	}

	return db
}
