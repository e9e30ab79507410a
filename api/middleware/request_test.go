package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

func TestRequestIDEchoesOrMints(t *testing.T) {
	var seen string
	h := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(requestIDHeader)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "edge-7f3a")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "edge-7f3a", rec.Header().Get(requestIDHeader))
	require.Equal(t, "edge-7f3a", seen)

	for _, bad := range []string{"", "has space", "line\nbreak", string(bytes.Repeat([]byte("a"), maxRequestIDLen+1))} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, bad)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
		require.NoError(t, err, "id %q should be replaced", bad)
	}
}

func TestRecovererWritesInternalErrorWithRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{Output: buf})
	h := RequestID(logg)(Recoverer(logg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"INTERNAL_ERROR"`)
	require.NotContains(t, rec.Body.String(), "nil map write")
	require.Contains(t, buf.String(), `"request_id":"req-42"`)
	require.Contains(t, buf.String(), "nil map write")
}

func TestRecovererRepanicsOnAbort(t *testing.T) {
	h := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
