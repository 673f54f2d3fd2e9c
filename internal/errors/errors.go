package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode identifies a failure class. Codes are grouped per subsystem
// so logs and the status channel can route them without string matching.
type ErrorCode int

const (
	// Generic (1000-1999)
	ErrUnknown      ErrorCode = 1000
	ErrInvalidParam ErrorCode = 1001
	ErrNotFound     ErrorCode = 1002
	ErrTimeout      ErrorCode = 1003
	ErrCanceled     ErrorCode = 1004
	ErrBusy         ErrorCode = 1005

	// Hardware (3000-3999)
	ErrNotInitialized  ErrorCode = 3000
	ErrCaptureFailed   ErrorCode = 3001
	ErrPrintFailed     ErrorCode = 3002
	ErrGateOpenFailed  ErrorCode = 3003
	ErrGateCloseFailed ErrorCode = 3004
	ErrScanTimeout     ErrorCode = 3005
	ErrSerialPortOpen  ErrorCode = 3006
	ErrSerialWrite     ErrorCode = 3007
	ErrSerialRead      ErrorCode = 3008
	ErrDeviceOffline   ErrorCode = 3009
	ErrDeviceBusy      ErrorCode = 3010

	// Recognition (4000-4999)
	ErrOCRFailed ErrorCode = 4000
	ErrOCRNoText ErrorCode = 4001

	// Remote collaborators (5000-5999)
	ErrSyncFailed      ErrorCode = 5000
	ErrTicketNotFound  ErrorCode = 5001
	ErrTicketUsed      ErrorCode = 5002
	ErrPaymentRejected ErrorCode = 5003

	// Workflow (6000-6999)
	ErrWorkflowTimeout ErrorCode = 6000
	ErrWorkflowBusy    ErrorCode = 6001

	// Database (7000-7999)
	ErrDatabaseConnect ErrorCode = 7000
	ErrDatabaseQuery   ErrorCode = 7001

	// Config (8000-8999)
	ErrConfigLoad     ErrorCode = 8000
	ErrConfigValidate ErrorCode = 8001
)

var errorMessages = map[ErrorCode]string{
	ErrUnknown:      "unknown error",
	ErrInvalidParam: "invalid parameter",
	ErrNotFound:     "not found",
	ErrTimeout:      "operation timed out",
	ErrCanceled:     "operation canceled",
	ErrBusy:         "resource busy",

	ErrNotInitialized:  "device not initialized",
	ErrCaptureFailed:   "image capture failed",
	ErrPrintFailed:     "print failed",
	ErrGateOpenFailed:  "gate open failed",
	ErrGateCloseFailed: "gate close failed",
	ErrScanTimeout:     "scanner read timed out",
	ErrSerialPortOpen:  "serial port open failed",
	ErrSerialWrite:     "serial write failed",
	ErrSerialRead:      "serial read failed",
	ErrDeviceOffline:   "device offline",
	ErrDeviceBusy:      "device busy",

	ErrOCRFailed: "plate recognition failed",
	ErrOCRNoText: "no plate recognized",

	ErrSyncFailed:      "remote sync failed",
	ErrTicketNotFound:  "ticket not found",
	ErrTicketUsed:      "ticket already used",
	ErrPaymentRejected: "payment rejected",

	ErrWorkflowTimeout: "workflow timed out",
	ErrWorkflowBusy:    "workflow already in progress",

	ErrDatabaseConnect: "database connection failed",
	ErrDatabaseQuery:   "database query failed",

	ErrConfigLoad:     "config load failed",
	ErrConfigValidate: "config validation failed",
}

// HardwareError is the typed error surfaced to controllers and the
// status channel. Device and Op always identify which physical device
// and which logical operation failed.
type HardwareError struct {
	Code    ErrorCode `json:"code"`
	Device  string    `json:"device,omitempty"`
	Op      string    `json:"op,omitempty"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

func (e *HardwareError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", e.Code, e.Message)
	if e.Device != "" {
		fmt.Fprintf(&b, " device=%s", e.Device)
	}
	if e.Op != "" {
		fmt.Fprintf(&b, " op=%s", e.Op)
	}
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	return b.String()
}

func (e *HardwareError) Unwrap() error {
	return e.Cause
}

// WithDevice tags the error with the emitting device identity.
func (e *HardwareError) WithDevice(device string) *HardwareError {
	e.Device = device
	return e
}

// WithOp tags the error with the logical operation name.
func (e *HardwareError) WithOp(op string) *HardwareError {
	e.Op = op
	return e
}

// WithCause attaches the underlying error.
func (e *HardwareError) WithCause(cause error) *HardwareError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New creates a HardwareError for the given code.
func New(code ErrorCode, details ...string) *HardwareError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &HardwareError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}
	return err
}

// Newf creates a HardwareError with formatted details.
func Newf(code ErrorCode, format string, args ...interface{}) *HardwareError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap converts err into a HardwareError with the given code. An err
// that already is a HardwareError keeps its original code.
func Wrap(err error, code ErrorCode, details ...string) *HardwareError {
	if err == nil {
		return nil
	}

	if hwErr, ok := err.(*HardwareError); ok {
		if len(details) > 0 {
			hwErr.Details = strings.Join(details, "; ") + "; " + hwErr.Details
		}
		return hwErr
	}

	hwErr := New(code, details...)
	hwErr.Cause = err
	if hwErr.Details == "" {
		hwErr.Details = err.Error()
	}
	return hwErr
}

// Wrapf wraps with formatted details.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *HardwareError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	hwErr, ok := err.(*HardwareError)
	return ok && hwErr.Code == code
}

// GetCode extracts the code from err, ErrUnknown for foreign errors.
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}
	if hwErr, ok := err.(*HardwareError); ok {
		return hwErr.Code
	}
	return ErrUnknown
}

// IsRetryable reports whether the resilience wrapper should retry the
// failed call. Domain outcomes (no plate, ticket used) never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch GetCode(err) {
	case ErrTimeout,
		ErrScanTimeout,
		ErrSerialPortOpen,
		ErrSerialWrite,
		ErrSerialRead,
		ErrCaptureFailed,
		ErrPrintFailed,
		ErrDeviceOffline,
		ErrDeviceBusy,
		ErrSyncFailed,
		ErrDatabaseConnect:
		return true
	default:
		return false
	}
}

// ErrorResponse is the JSON error envelope returned by the HTTP API.
type ErrorResponse struct {
	Success   bool           `json:"success"`
	Error     *HardwareError `json:"error,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// NewErrorResponse wraps err for an API reply.
func NewErrorResponse(err *HardwareError) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		Timestamp: time.Now().Unix(),
	}
}

// HTTPStatus maps the code onto an HTTP status for API handlers.
func (e *HardwareError) HTTPStatus() int {
	switch {
	case e.Code == ErrInvalidParam:
		return 400
	case e.Code == ErrNotFound || e.Code == ErrTicketNotFound:
		return 404
	case e.Code == ErrTicketUsed:
		return 409
	case e.Code == ErrBusy || e.Code == ErrWorkflowBusy || e.Code == ErrDeviceBusy:
		return 409
	case e.Code == ErrTimeout || e.Code == ErrWorkflowTimeout:
		return 408
	case e.Code >= 7000 && e.Code <= 7999:
		return 503
	default:
		return 500
	}
}
