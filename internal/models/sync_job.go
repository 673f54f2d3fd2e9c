package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// SyncJobKind names the remote call a queued payload belongs to.
type SyncJobKind string

const (
	SyncJobTicket  SyncJobKind = "TICKET"
	SyncJobPayment SyncJobKind = "PAYMENT"
)

// SyncJobStatus is the replay lifecycle of a queued payload.
type SyncJobStatus string

const (
	SyncJobPending SyncJobStatus = "PENDING"
	SyncJobDone    SyncJobStatus = "DONE"
)

// JSONData stores structured payloads in a single column.
type JSONData map[string]interface{}

// Value implements driver.Valuer.
func (j JSONData) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner.
func (j *JSONData) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		strVal, ok := value.(string)
		if !ok {
			return nil
		}
		bytes = []byte(strVal)
	}
	return json.Unmarshal(bytes, j)
}

// SyncJob is one outbound call that failed against the backend and is
// held locally for replay. Jobs are never deleted on failure, only the
// attempt counter and next-attempt time advance, so no payload is ever
// silently dropped.
type SyncJob struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Kind    SyncJobKind   `gorm:"type:varchar(20);index;not null" json:"kind"`
	Status  SyncJobStatus `gorm:"type:varchar(20);index;default:PENDING" json:"status"`
	Payload JSONData      `gorm:"type:json;not null" json:"payload"`

	// Replay bookkeeping
	Attempts    int        `gorm:"default:0" json:"attempts"`
	NextAttempt time.Time  `gorm:"index" json:"next_attempt"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	SyncedAt    *time.Time `json:"synced_at,omitempty"`

	// Correlation back to the originating workflow
	Barcode    string `gorm:"type:varchar(64);index" json:"barcode,omitempty"`
	OperatorID string `gorm:"type:varchar(64)" json:"operator_id,omitempty"`
}

// TableName pins the table name.
func (SyncJob) TableName() string {
	return "sync_jobs"
}
