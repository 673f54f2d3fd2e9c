package recognizer

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"context"

	"go.uber.org/zap"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
)

// RemoteRecognizer delegates plate reading to the backend's
// recognition endpoint. The image travels base64-encoded in JSON.
type RemoteRecognizer struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

type recognizeRequest struct {
	Image string `json:"image"`
}

type recognizeResponse struct {
	PlateNumber string `json:"plateNumber"`
}

func NewRemoteRecognizer(serverURL string, timeout time.Duration) *RemoteRecognizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteRecognizer{
		endpoint: strings.TrimRight(serverURL, "/") + "/api/recognize-plate",
		client:   &http.Client{Timeout: timeout},
		logger:   logger.WithModule("recognizer"),
	}
}

func (r *RemoteRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New(errors.ErrInvalidParam, "empty image")
	}

	body, err := json.Marshal(recognizeRequest{
		Image: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrOCRFailed, "encode recognize request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrOCRFailed, "build recognize request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrOCRFailed, "recognize request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrOCRFailed, "recognize returned status %d", resp.StatusCode)
	}

	var out recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, errors.ErrOCRFailed, "decode recognize response")
	}

	plate, err := ValidatePlate(out.PlateNumber)
	if err != nil {
		return "", err
	}

	r.logger.Debug("plate recognized",
		zap.String("plate", plate),
		zap.Duration("elapsed", time.Since(start)))
	return plate, nil
}
