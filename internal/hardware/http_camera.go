package hardware

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
)

// HttpCamera captures stills from an IP camera snapshot endpoint.
// Most ANPR cameras expose a JPEG snapshot URL with basic auth.
type HttpCamera struct {
	cfg    config.CameraConfig
	client *http.Client
}

func NewHttpCamera(cfg config.CameraConfig) *HttpCamera {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HttpCamera{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HttpCamera) Connect() error {
	if c.cfg.SnapshotURL == "" {
		return errors.New(errors.ErrInvalidParam, "camera snapshot_url not configured").
			WithDevice(string(DeviceCamera)).WithOp("connect")
	}
	return nil
}

func (c *HttpCamera) Disconnect() error {
	c.client.CloseIdleConnections()
	return nil
}

// Capture fetches one snapshot. An empty body counts as a failed
// capture so callers never hand zero-byte frames to recognition.
func (c *HttpCamera) Capture(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.SnapshotURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidParam, "build snapshot request").
			WithDevice(string(DeviceCamera)).WithOp("capture")
	}
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCaptureFailed, "snapshot request failed").
			WithDevice(string(DeviceCamera)).WithOp("capture")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrCaptureFailed, "snapshot returned status %d from %s", resp.StatusCode, c.cfg.SnapshotURL).
			WithDevice(string(DeviceCamera)).WithOp("capture")
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCaptureFailed, "read snapshot body").
			WithDevice(string(DeviceCamera)).WithOp("capture")
	}
	if len(image) == 0 {
		return nil, errors.New(errors.ErrCaptureFailed, "snapshot body empty").
			WithDevice(string(DeviceCamera)).WithOp("capture")
	}

	logger.WithModule("hardware").Sugar().Debugw("snapshot captured",
		"bytes", len(image), "elapsed", time.Since(start))
	return image, nil
}
