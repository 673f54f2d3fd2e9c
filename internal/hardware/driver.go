package hardware

import "context"

// Drivers wrap one physical device each. Connect/Disconnect bracket the
// handle lifecycle; the operation set is intentionally small so vendor
// protocols stay pluggable behind these interfaces. Each driver handle
// is owned exclusively by one Manager instance.

// GateDriver actuates one barrier motor.
type GateDriver interface {
	Connect() error
	Disconnect() error
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// CameraDriver captures still frames.
type CameraDriver interface {
	Connect() error
	Disconnect() error
	Capture(ctx context.Context) ([]byte, error)
}

// PrinterDriver consumes a complete ESC/POS byte stream per job. The
// whole buffer is written in one call so a retried job is regenerated,
// never resumed mid-stream.
type PrinterDriver interface {
	Connect() error
	Disconnect() error
	Print(ctx context.Context, job []byte) error
}

// ScannerDriver delivers line-terminated barcode reads on a channel.
// The channel closes on Disconnect.
type ScannerDriver interface {
	Connect() error
	Disconnect() error
	Barcodes() <-chan string
}

// TriggerDriver reads the vehicle-present input level. Read returns the
// raw electrical level; polarity is applied by the caller.
type TriggerDriver interface {
	Connect() error
	Disconnect() error
	Read(pin int) (bool, error)
}
