package recognizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
)

func TestNormalizePlate(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"b 1234 xy", "B1234XY"},
		{"B-1234-XY", "B1234XY"},
		{"  ab 123 cd\n", "AB123CD"},
		{"B1234XY", "B1234XY"},
		{"!!##", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizePlate(c.raw), "raw=%q", c.raw)
	}
}

func TestValidatePlate(t *testing.T) {
	plate, err := ValidatePlate("b 1234 xy")
	require.NoError(t, err)
	assert.Equal(t, "B1234XY", plate)

	// too short after normalization
	_, err = ValidatePlate("B12")
	assert.Error(t, err)
	assert.Equal(t, errors.ErrOCRNoText, errors.GetCode(err))

	// too long
	_, err = ValidatePlate("ABCDEFGHIJK")
	assert.Error(t, err)

	_, err = ValidatePlate("")
	assert.Error(t, err)
}

func TestRemoteRecognizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/recognize-plate", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req["image"])

		json.NewEncoder(w).Encode(map[string]string{"plateNumber": "b 1234 xyz"})
	}))
	defer srv.Close()

	rec := NewRemoteRecognizer(srv.URL, 2*time.Second)
	plate, err := rec.Recognize(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "B1234XYZ", plate, "response must come back normalized")
}

func TestRemoteRecognizerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := NewRemoteRecognizer(srv.URL, 2*time.Second)
	_, err := rec.Recognize(context.Background(), []byte("jpeg-bytes"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrOCRFailed, errors.GetCode(err))
}

func TestRemoteRecognizerGarbagePlate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"plateNumber": "??"})
	}))
	defer srv.Close()

	rec := NewRemoteRecognizer(srv.URL, 2*time.Second)
	_, err := rec.Recognize(context.Background(), []byte("jpeg-bytes"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrOCRNoText, errors.GetCode(err))
}

func TestRemoteRecognizerEmptyImage(t *testing.T) {
	rec := NewRemoteRecognizer("http://localhost:1", time.Second)
	_, err := rec.Recognize(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidParam, errors.GetCode(err))
}

func TestNewSelectsEngine(t *testing.T) {
	r, err := New(config.OCRConfig{Engine: "remote"}, "http://localhost:3000")
	require.NoError(t, err)
	assert.IsType(t, &RemoteRecognizer{}, r)

	r, err = New(config.OCRConfig{Engine: "command"}, "")
	require.NoError(t, err)
	assert.IsType(t, &CommandRecognizer{}, r)

	_, err = New(config.OCRConfig{Engine: "cloud"}, "")
	assert.Error(t, err)
}
