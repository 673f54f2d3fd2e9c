package recognizer

import (
	"context"
	"regexp"
	"strings"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
)

// plateRe accepts normalized plates only: 5 to 10 upper-case
// alphanumerics, no separators.
var plateRe = regexp.MustCompile(`^[A-Z0-9]{5,10}$`)

// Recognizer extracts a licence plate from a captured frame.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// New selects the engine from config.
func New(cfg config.OCRConfig, serverURL string) (Recognizer, error) {
	switch cfg.Engine {
	case "remote":
		return NewRemoteRecognizer(serverURL, cfg.Timeout), nil
	case "command":
		return NewCommandRecognizer(cfg), nil
	default:
		return nil, errors.Newf(errors.ErrInvalidParam, "unknown ocr engine %q", cfg.Engine)
	}
}

// NormalizePlate upper-cases the raw OCR text and strips everything
// that is not a letter or digit, so "b 1234 xy" becomes "B1234XY".
func NormalizePlate(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidatePlate normalizes raw text and rejects anything outside the
// plate alphabet and length bounds.
func ValidatePlate(raw string) (string, error) {
	plate := NormalizePlate(raw)
	if !plateRe.MatchString(plate) {
		return "", errors.Newf(errors.ErrOCRNoText, "no valid plate in %q", raw)
	}
	return plate, nil
}
