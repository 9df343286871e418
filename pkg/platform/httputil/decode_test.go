package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "warden/pkg/domain-errors"
)

type outcomeRequest struct {
	IP         string `json:"ip"`
	Passed     bool   `json:"passed"`
	normalized bool
}

func (r *outcomeRequest) Normalize() {
	r.IP = strings.TrimSpace(r.IP)
	r.normalized = true
}

func (r *outcomeRequest) Validate() error {
	if r.IP == "" {
		return errors.New("ip is required")
	}
	return nil
}

type strictRequest struct {
	Fingerprint string `json:"fingerprint"`
}

func (r *strictRequest) Validate() error {
	if r.Fingerprint == "" {
		return dErrors.New(dErrors.CodeBadRequest, "fingerprint is required")
	}
	return nil
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("normalizes and validates", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"ip":" 10.0.0.1 ","passed":true}`))
		w := httptest.NewRecorder()

		req, ok := DecodeAndPrepare[outcomeRequest](w, r, logger, ctx, "rid")
		require.True(t, ok)
		assert.Equal(t, "10.0.0.1", req.IP)
		assert.True(t, req.normalized)
	})

	t.Run("malformed json is bad_request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{nope`))
		w := httptest.NewRecorder()

		req, ok := DecodeAndPrepare[outcomeRequest](w, r, logger, ctx, "rid")
		assert.False(t, ok)
		assert.Nil(t, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decodeError(t, w)["error"])
	})

	t.Run("empty and concatenated bodies are rejected", func(t *testing.T) {
		for body, want := range map[string]string{
			"":                                   "request body is required",
			`{"ip":"10.0.0.1"}{"ip":"10.0.0.2"}`: "request body must contain a single JSON object",
		} {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			w := httptest.NewRecorder()

			_, ok := DecodeAndPrepare[outcomeRequest](w, r, logger, ctx, "rid")
			assert.False(t, ok)
			assert.Equal(t, want, decodeError(t, w)["error_description"])
		}
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"ip":"10.0.0.1","role":"BOSS"}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[outcomeRequest](w, r, logger, ctx, "rid")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("plain validation error maps to validation_error", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"ip":"  "}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[outcomeRequest](w, r, logger, ctx, "rid")
		assert.False(t, ok)
		resp := decodeError(t, w)
		assert.Equal(t, "validation_error", resp["error"])
		assert.Contains(t, resp["error_description"], "ip is required")
	})

	t.Run("domain validation error keeps its code", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[strictRequest](w, r, logger, ctx, "rid")
		assert.False(t, ok)
		assert.Equal(t, "bad_request", decodeError(t, w)["error"])
	})
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{dErrors.New(dErrors.CodeNotFound, "no ban"), http.StatusNotFound, "not_found"},
		{dErrors.StoreUnavailable("ban", errors.New("dial")), http.StatusServiceUnavailable, "store_unavailable"},
		{dErrors.New(dErrors.CodeUnauthorized, ""), http.StatusUnauthorized, "unauthorized"},
		{dErrors.SignalError("vpn", errors.New("timeout")), http.StatusServiceUnavailable, "signal_unavailable"},
		{errors.New("raw"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w)["error"])
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestWriteErrorHidesServerSideMessages(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, dErrors.StoreUnavailable("ban", errors.New("dial tcp 10.0.0.5:6379: refused")))

	body := decodeError(t, w)
	assert.NotContains(t, body, "error_description")
	assert.Equal(t, "5", w.Header().Get("Retry-After"))

	w = httptest.NewRecorder()
	WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "ip is required"))
	assert.Equal(t, "ip is required", decodeError(t, w)["error_description"])
	assert.Empty(t, w.Header().Get("Retry-After"))
}
