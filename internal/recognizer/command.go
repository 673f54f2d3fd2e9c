package recognizer

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
)

// CommandRecognizer shells out to a local OCR binary, tesseract by
// default. The frame is written to a temp file, the command reads it
// and prints the recognized text on stdout.
type CommandRecognizer struct {
	command  string
	language string
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCommandRecognizer(cfg config.OCRConfig) *CommandRecognizer {
	command := cfg.Command
	if command == "" {
		command = "tesseract"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CommandRecognizer{
		command:  command,
		language: cfg.Language,
		timeout:  timeout,
		logger:   logger.WithModule("recognizer"),
	}
}

func (r *CommandRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New(errors.ErrInvalidParam, "empty image")
	}

	tmp, err := os.CreateTemp("", "plate-*.jpg")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrOCRFailed, "create temp frame")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, errors.ErrOCRFailed, "write temp frame")
	}
	tmp.Close()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{tmp.Name(), "stdout", "--psm", "7"}
	if r.language != "" {
		args = append(args, "-l", r.language)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.Wrap(ctx.Err(), errors.ErrTimeout, "ocr command timed out")
		}
		return "", errors.Wrapf(err, errors.ErrOCRFailed, "ocr command failed: %s", stderr.String())
	}

	plate, err := ValidatePlate(stdout.String())
	if err != nil {
		return "", err
	}

	r.logger.Debug("plate recognized",
		zap.String("plate", plate),
		zap.String("engine", r.command),
		zap.Duration("elapsed", time.Since(start)))
	return plate, nil
}
