package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/hardware"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/point"
)

// respondError writes the typed error envelope with its mapped status.
func respondError(c *gin.Context, err error) {
	hwErr := errors.Wrap(err, errors.ErrUnknown)
	c.JSON(hwErr.HTTPStatus(), errors.NewErrorResponse(hwErr))
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().Unix(),
	})
}

func (r *Router) healthCheck(c *gin.Context) {
	pending := int64(-1)
	if r.syncJobs != nil {
		if n, err := r.syncJobs.CountPending(c.Request.Context()); err == nil {
			pending = n
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"entry_state":  string(r.entry.State()),
		"exit_state":   string(r.exit.State()),
		"sync_pending": pending,
		"timestamp":    time.Now().Unix(),
	})
}

func (r *Router) hardwareStatus(c *gin.Context) {
	respondOK(c, gin.H{
		"devices": r.hw.StatusReport(),
		"gates": gin.H{
			"entry": r.hw.GateState(hardware.LaneEntry),
			"exit":  r.hw.GateState(hardware.LaneExit),
		},
	})
}

type captureRequest struct {
	OperatorID string `json:"operatorId"`
}

// entryCapture starts an entry workflow from the UI instead of the
// vehicle-present loop.
func (r *Router) entryCapture(c *gin.Context) {
	var req captureRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.Wrap(err, errors.ErrInvalidParam, "decode body"))
			return
		}
	}
	if err := r.entry.Trigger(req.OperatorID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success":   true,
		"message":   "entry workflow started",
		"timestamp": time.Now().Unix(),
	})
}

type gateRequest struct {
	OperatorID string `json:"operatorId"`
}

func laneParam(c *gin.Context) (hardware.Lane, error) {
	switch c.Param("lane") {
	case "entry":
		return hardware.LaneEntry, nil
	case "exit":
		return hardware.LaneExit, nil
	default:
		return "", errors.Newf(errors.ErrInvalidParam, "unknown lane %q", c.Param("lane"))
	}
}

func (r *Router) gateOpen(c *gin.Context) {
	lane, err := laneParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req gateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.Wrap(err, errors.ErrInvalidParam, "decode body"))
			return
		}
	}
	if req.OperatorID == "" {
		req.OperatorID = "manual"
	}
	if err := r.hw.OpenGate(c.Request.Context(), lane, req.OperatorID, ""); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, r.hw.GateState(lane))
}

func (r *Router) gateClose(c *gin.Context) {
	lane, err := laneParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req gateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.Wrap(err, errors.ErrInvalidParam, "decode body"))
			return
		}
	}
	if req.OperatorID == "" {
		req.OperatorID = "manual"
	}
	if err := r.hw.CloseGate(c.Request.Context(), lane, req.OperatorID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, r.hw.GateState(lane))
}

type exitTicketRequest struct {
	Barcode string `json:"barcode" binding:"required"`
}

// exitTicket validates a manually entered barcode, the keyboard
// fallback for a failed scan.
func (r *Router) exitTicket(c *gin.Context) {
	var req exitTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrInvalidParam, "barcode required"))
		return
	}
	session, err := r.exit.HandleBarcode(c.Request.Context(), req.Barcode)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, session)
}

type exitPaymentRequest struct {
	PaymentMethod string `json:"paymentMethod"`
	Offline       bool   `json:"offline"`
}

func (r *Router) exitPayment(c *gin.Context) {
	var req exitPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.Wrap(err, errors.ErrInvalidParam, "decode body"))
			return
		}
	}

	if req.Offline {
		if err := r.exit.ConfirmOfflinePayment(c.Request.Context(), req.PaymentMethod); err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, gin.H{"queued": true})
		return
	}

	result, err := r.exit.ConfirmPayment(c.Request.Context(), req.PaymentMethod)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

func (r *Router) exitCancel(c *gin.Context) {
	r.exit.Cancel()
	respondOK(c, gin.H{"state": string(point.ExitIdle)})
}

// deviceEvents returns the recent device event log for diagnostics.
func (r *Router) deviceEvents(c *gin.Context) {
	if r.events == nil {
		respondOK(c, []interface{}{})
		return
	}
	since := time.Now().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, errors.Wrap(err, errors.ErrInvalidParam, "since must be RFC3339"))
			return
		}
		since = parsed
	}
	rows, err := r.events.FindSince(c.Request.Context(), since, 200)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, rows)
}

// gateAudit returns the recent gate operation audit for a lane.
func (r *Router) gateAudit(c *gin.Context) {
	lane, err := laneParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if r.gateOps == nil {
		respondOK(c, []interface{}{})
		return
	}
	rows, err := r.gateOps.FindByLane(c.Request.Context(), string(lane), 100)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, rows)
}
