package models

import (
	"time"

	"gorm.io/gorm"
)

// DeviceEvent is the persisted hardware event log used for operator
// diagnostics. One row per emitted HardwareEvent.
type DeviceEvent struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	DeviceType string `gorm:"type:varchar(20);index;not null" json:"device_type"`
	DeviceID   string `gorm:"type:varchar(64);index;not null" json:"device_id"`
	EventType  string `gorm:"type:varchar(32);index;not null" json:"event_type"`

	ErrorCode int    `gorm:"default:0" json:"error_code,omitempty"`
	Message   string `gorm:"type:text" json:"message,omitempty"`

	// Monotonic ordering within one device's stream
	Sequence  uint64 `gorm:"index" json:"sequence"`
	Timestamp int64  `gorm:"index;not null" json:"timestamp"` // unix millis
}

// TableName pins the table name.
func (DeviceEvent) TableName() string {
	return "device_events"
}

// GateOperation is the audit row for each gate actuation.
type GateOperation struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`

	Lane       string `gorm:"type:varchar(10);index;not null" json:"lane"` // entry | exit
	Operation  string `gorm:"type:varchar(10);not null" json:"operation"`  // open | close
	OperatedBy string `gorm:"type:varchar(64)" json:"operated_by"`
	Barcode    string `gorm:"type:varchar(64);index" json:"barcode,omitempty"`
	Success    bool   `gorm:"default:true" json:"success"`
	ErrorMsg   string `gorm:"type:text" json:"error_msg,omitempty"`
}

// TableName pins the table name.
func (GateOperation) TableName() string {
	return "gate_operations"
}
