package models

import "time"

// TicketData is the parking ticket as exchanged with the backend
// collaborator. The core creates it on entry, mutates the exit fields
// once on exit, and never persists it locally; the barcode is the
// primary external key.
type TicketData struct {
	ID            string     `json:"id,omitempty"`
	Barcode       string     `json:"barcode"`
	PlateNumber   string     `json:"plateNumber"`
	VehicleType   string     `json:"vehicleType"`
	EntryTime     time.Time  `json:"entryTime"`
	OperatorID    string     `json:"operatorId"`
	ExitTime      *time.Time `json:"exitTime,omitempty"`
	PaymentAmount *int64     `json:"paymentAmount,omitempty"`
}

// IsExited reports whether the ticket already carries an exit time.
func (t *TicketData) IsExited() bool {
	return t.ExitTime != nil && !t.ExitTime.IsZero()
}

// Duration returns the parked duration at the given instant.
func (t *TicketData) Duration(now time.Time) time.Duration {
	return now.Sub(t.EntryTime)
}
