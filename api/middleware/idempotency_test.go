package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	// beforeWrite runs ahead of each Set or Del.
	beforeWrite func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	if f.beforeWrite != nil {
		f.beforeWrite()
	}
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if f.beforeWrite != nil {
		f.beforeWrite()
	}
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func orderRequest(body, key string) *http.Request {
	req := requestWithPattern(http.MethodPost, "/api/v1/orders", "/api/v1/orders", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestPolicyFor(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		pattern  string
		ttl      time.Duration
		required bool
		ok       bool
	}{
		{"buyer order", http.MethodPost, "/api/v1/orders", criticalIdempotencyTTL, true, true},
		{"buyer order trailing slash", http.MethodPost, "/api/v1/orders/", criticalIdempotencyTTL, true, true},
		{"guest order", http.MethodPost, "/api/v1/orders/guest", criticalIdempotencyTTL, false, true},
		{"cancel", http.MethodPut, "/api/v1/orders/{orderId}/cancel", defaultIdempotencyTTL, false, true},
		{"payment retry", http.MethodPost, "/api/v1/payments/retry", defaultIdempotencyTTL, false, true},
		{"list orders", http.MethodGet, "/api/v1/orders", 0, false, false},
		{"webhook", http.MethodPost, "/api/v1/payments/webhook", 0, false, false},
	}
	for _, tt := range tests {
		policy, ok := policyFor(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && (policy.ttl != tt.ttl || policy.required != tt.required) {
			t.Fatalf("%s: unexpected policy %+v", tt.name, policy)
		}
	}
}

func TestIdempotencyRequiresHeaderOnOrderCreate(t *testing.T) {
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	resp := httptest.NewRecorder()
	Idempotency(newFakeStore(), nil)(handler).ServeHTTP(resp, orderRequest(`{"notes":"x"}`, ""))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyOptionalRoutePassesWithoutHeader(t *testing.T) {
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})
	req := requestWithPattern(http.MethodPost, "/api/v1/orders/guest", "/api/v1/orders/guest", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	Idempotency(newFakeStore(), nil)(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated || calls != 1 {
		t.Fatalf("expected handler to run once, code=%d calls=%d", resp.Code, calls)
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"order_number":"ORD-1"}}`))
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, orderRequest(`{"notes":"x"}`, "abc"))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", resp.Code)
	}

	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, orderRequest(`{"notes":"x"}`, "abc"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" || rec.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay headers, got %v", rec.Header())
	}
	if strings.TrimSpace(rec.Body.String()) != `{"data":{"order_number":"ORD-1"}}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyScopesKeysPerUser(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		req := orderRequest(`{}`, "same-key")
		req = req.WithContext(WithIdentity(req.Context(), uuid.New(), enums.RoleBuyer))
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected distinct users to execute independently, got %d calls", calls)
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), orderRequest(`{"notes":"a"}`, "xyz"))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, orderRequest(`{"notes":"b"}`, "xyz"))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if code := errorCode(t, resp.Body.Bytes()); code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, code)
	}
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var inner *httptest.ResponseRecorder
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = httptest.NewRecorder()
		mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("duplicate must not reach the handler")
		})).ServeHTTP(inner, orderRequest(`{}`, "dup"))
		w.WriteHeader(http.StatusCreated)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), orderRequest(`{}`, "dup"))

	if inner.Code != http.StatusConflict {
		t.Fatalf("expected in-flight duplicate to get 409, got %d", inner.Code)
	}
	if code := errorCode(t, inner.Body.Bytes()); code != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %s", code)
	}
}

func TestIdempotencyDuplicateWhileStoringResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	dup := httptest.NewRecorder()
	store.beforeWrite = func() {
		store.beforeWrite = nil
		mw(handler).ServeHTTP(dup, orderRequest(`{}`, "swap"))
	}
	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, orderRequest(`{}`, "swap"))

	if first.Code != http.StatusCreated || calls != 1 {
		t.Fatalf("expected one execution, code=%d calls=%d", first.Code, calls)
	}
	if dup.Code != http.StatusConflict {
		t.Fatalf("expected duplicate to get 409, got %d", dup.Code)
	}
	if code := errorCode(t, dup.Body.Bytes()); code != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %s", code)
	}

	replay := httptest.NewRecorder()
	mw(handler).ServeHTTP(replay, orderRequest(`{}`, "swap"))
	if replay.Code != http.StatusCreated || replay.Header().Get("Idempotent-Replayed") != "true" || calls != 1 {
		t.Fatalf("expected stored replay, code=%d calls=%d", replay.Code, calls)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	status := http.StatusServiceUnavailable
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), orderRequest(`{}`, "retry-me"))
	if len(store.data) != 0 {
		t.Fatalf("expected key released after 5xx, store=%v", store.data)
	}
	status = http.StatusCreated
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, orderRequest(`{}`, "retry-me"))
	if resp.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("expected retry to execute, code=%d calls=%d", resp.Code, calls)
	}
}
