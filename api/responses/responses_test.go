package responses

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorEnvelope {
	t.Helper()
	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	return body
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"order_number": "ORD-20260101-ABC123"})

	if got := w.Code; got != http.StatusCreated {
		t.Fatalf("expected status 201 but got %d", got)
	}
	var body SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["order_number"] != "ORD-20260101-ABC123" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteErrorKeepsStateConflictMessage(t *testing.T) {
	w := httptest.NewRecorder()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	err := pkgerrors.New(pkgerrors.CodeStateConflict, `Only 3 items available in stock for "Tea"`)
	WriteError(context.Background(), logg, w, err)

	if got := w.Code; got != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 but got %d", got)
	}
	body := decodeError(t, w)
	if body.Error.Message != `Only 3 items available in stock for "Tea"` {
		t.Fatalf("unexpected message %q", body.Error.Message)
	}
}

func TestWriteErrorMapsValidationDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
		WithDetails(map[string]string{"full_name": "is required"})
	WriteError(context.Background(), nil, w, err)

	if got := w.Code; got != http.StatusBadRequest {
		t.Fatalf("expected status 400 but got %d", got)
	}
	body := decodeError(t, w)
	if body.Error.Code != string(pkgerrors.CodeValidation) || body.Error.Details == nil {
		t.Fatalf("unexpected envelope %+v", body.Error)
	}
}

func TestWriteErrorHidesDependencyCause(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("square: 500 internal"), "payment provider unavailable")
	WriteError(context.Background(), nil, w, err)

	if got := w.Code; got != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 but got %d", got)
	}
	body := decodeError(t, w)
	if body.Error.Message == "payment provider unavailable" || body.Error.Message == "" {
		t.Fatalf("expected generic public message, got %q", body.Error.Message)
	}
}

func TestWriteErrorDefaultsToInternalForUntypedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("boom"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}
	body := decodeError(t, w)
	if body.Error.Code != string(pkgerrors.CodeInternal) || body.Error.Details != nil {
		t.Fatalf("unexpected envelope %+v", body.Error)
	}
}
