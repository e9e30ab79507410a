package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/marketplace-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

// inFlight marks a reserved key whose handler has not finished.
const inFlight = `{"status":0}`

type keyPolicy struct {
	ttl      time.Duration
	required bool
}

// idempotentRoutes is keyed by method and chi route pattern.
var idempotentRoutes = map[string]keyPolicy{
	"POST /api/v1/orders":                        {ttl: criticalIdempotencyTTL, required: true},
	"POST /api/v1/orders/guest":                  {ttl: criticalIdempotencyTTL},
	"PUT /api/v1/orders/{orderId}/cancel":        {ttl: defaultIdempotencyTTL},
	"POST /api/v1/payments/create-order":         {ttl: defaultIdempotencyTTL},
	"POST /api/v1/payments/retry":                {ttl: defaultIdempotencyTTL},
	"PUT /api/v1/seller-orders/{orderId}/status": {ttl: defaultIdempotencyTTL},
}

func policyFor(method, pattern string) (keyPolicy, bool) {
	if pattern != "/" {
		pattern = strings.TrimSuffix(pattern, "/")
	}
	policy, ok := idempotentRoutes[method+" "+pattern]
	return policy, ok
}

// storedResponse is what a finished request leaves behind under its key.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// The key is reserved before the handler runs so a concurrent duplicate is
// rejected with CONFLICT. A 5xx response releases the key for a retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := policyFor(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				if policy.required {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := fingerprintOf(body)
			key := store.IdempotencyKey(callerScope(r), clientKey)

			reserved, err := store.SetNX(ctx, key, inFlight, policy.ttl)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				prior, err := loadStored(r, store, key)
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				if prior.Fingerprint != fingerprint {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				prior.replay(w)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			status := capture.statusCode()

			// a 5xx is not a final answer, free the key
			if status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "idempotency.release_failed", err)
				}
				return
			}
			record, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				Fingerprint: fingerprint,
			})
			if err == nil {
				// overwrite in place so the reservation never lapses
				err = store.Set(ctx, key, string(record), policy.ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "idempotency.persist_failed", err)
			}
		})
	}
}

// loadStored reads a finished response. A missing or in-flight record means
// the first request is still running.
func loadStored(r *http.Request, store pkgredis.IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(r.Context(), key)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency key")
	}
	var stored storedResponse
	if raw == "" || json.Unmarshal([]byte(raw), &stored) != nil || stored.Status == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress")
	}
	return &stored, nil
}

func (s *storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// callerScope keeps keys from different callers and endpoints apart.
func callerScope(r *http.Request) string {
	caller := "anonymous"
	if userID, ok := UserIDFromContext(r.Context()); ok {
		caller = userID.String()
	}
	return caller + "|" + r.Method + "|" + r.URL.Path
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
