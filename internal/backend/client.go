package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
)

// Client talks to the admin backend that owns tickets and payments.
// Every call is bounded by the configured request timeout on top of
// the caller's context.
type Client struct {
	baseURL    string
	operatorID string
	http       *http.Client
	logger     *zap.Logger
}

// TicketAPI is the surface the exit controller and syncer need. The
// concrete Client satisfies it; tests swap in fakes.
type TicketAPI interface {
	CreateTicket(ctx context.Context, ticket *models.TicketData) (string, error)
	GetTicket(ctx context.Context, barcode string) (*models.TicketData, error)
	CreatePayment(ctx context.Context, payment *PaymentRequest) (*PaymentResult, error)
}

// PaymentRequest is the settlement posted at exit.
type PaymentRequest struct {
	TicketID      string        `json:"ticketId"`
	Amount        int64         `json:"amount"`
	Duration      time.Duration `json:"-"`
	DurationMins  int64         `json:"duration"`
	PaymentMethod string        `json:"paymentMethod"`
}

// PaymentResult is the backend's settlement acknowledgement.
type PaymentResult struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

func NewClient(cfg config.BackendConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.ServerURL, "/"),
		operatorID: cfg.OperatorID,
		http:       &http.Client{Timeout: timeout},
		logger:     logger.WithModule("backend"),
	}
}

// OperatorID returns the identity this node authenticates operations as.
func (c *Client) OperatorID() string {
	return c.operatorID
}

type createTicketRequest struct {
	Barcode     string    `json:"barcode"`
	PlateNumber string    `json:"plateNumber"`
	VehicleType string    `json:"vehicleType"`
	EntryTime   time.Time `json:"entryTime"`
	OperatorID  string    `json:"operatorId"`
}

type createTicketResponse struct {
	Barcode string `json:"barcode"`
}

// CreateTicket registers a new entry ticket. The returned barcode is
// the backend's canonical key, normally echoing the request.
func (c *Client) CreateTicket(ctx context.Context, ticket *models.TicketData) (string, error) {
	req := createTicketRequest{
		Barcode:     ticket.Barcode,
		PlateNumber: ticket.PlateNumber,
		VehicleType: ticket.VehicleType,
		EntryTime:   ticket.EntryTime,
		OperatorID:  ticket.OperatorID,
	}

	var resp createTicketResponse
	if err := c.post(ctx, "/api/tickets", req, &resp); err != nil {
		return "", errors.Wrap(err, errors.ErrSyncFailed, "create ticket "+ticket.Barcode)
	}
	if resp.Barcode == "" {
		resp.Barcode = ticket.Barcode
	}
	c.logger.Info("ticket created", zap.String("barcode", resp.Barcode))
	return resp.Barcode, nil
}

// GetTicket fetches a ticket by barcode. A 404 maps to
// ErrTicketNotFound so the exit controller can treat it as a domain
// outcome instead of a transport fault.
func (c *Client) GetTicket(ctx context.Context, barcode string) (*models.TicketData, error) {
	if barcode == "" {
		return nil, errors.New(errors.ErrInvalidParam, "empty barcode")
	}

	var ticket models.TicketData
	err := c.get(ctx, "/api/tickets/"+barcode, &ticket)
	if err != nil {
		if errors.GetCode(err) == errors.ErrNotFound {
			return nil, errors.Newf(errors.ErrTicketNotFound, "barcode %s", barcode)
		}
		return nil, errors.Wrap(err, errors.ErrSyncFailed, "get ticket "+barcode)
	}
	return &ticket, nil
}

// CreatePayment settles a calculated fee.
func (c *Client) CreatePayment(ctx context.Context, payment *PaymentRequest) (*PaymentResult, error) {
	// requests restored from the replay queue arrive with a zero
	// Duration and the minutes already filled in
	if payment.Duration > 0 {
		payment.DurationMins = int64(payment.Duration / time.Minute)
	}
	if payment.PaymentMethod == "" {
		payment.PaymentMethod = "cash"
	}

	var result PaymentResult
	if err := c.post(ctx, "/api/payments", payment, &result); err != nil {
		return nil, errors.Wrap(err, errors.ErrSyncFailed, "create payment for "+payment.TicketID)
	}
	if result.Status != "" && !strings.EqualFold(result.Status, "success") && !strings.EqualFold(result.Status, "completed") {
		return nil, errors.Newf(errors.ErrPaymentRejected, "payment status %q", result.Status)
	}
	c.logger.Info("payment settled",
		zap.String("ticket_id", payment.TicketID),
		zap.Int64("amount", payment.Amount),
		zap.String("transaction_id", result.TransactionID))
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, errors.ErrInvalidParam, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.ErrInvalidParam, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrInvalidParam, "build request")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrSyncFailed, "request failed")
	}
	defer resp.Body.Close()

	c.logger.Debug("backend call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrNotFound, req.URL.Path)
	case resp.StatusCode >= 400:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Newf(errors.ErrSyncFailed, "status %d: %s", resp.StatusCode, truncate(string(payload), 200))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrSyncFailed, "decode response")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
