package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type windowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// GuestRateLimitPolicy throttles anonymous traffic per client IP and per guest email.
type GuestRateLimitPolicy struct {
	Name       string
	Window     time.Duration
	IPLimit    int
	EmailLimit int
}

func (p GuestRateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.IPLimit > 0 || p.EmailLimit > 0)
}

func (p GuestRateLimitPolicy) name() string {
	if n := strings.ToLower(strings.TrimSpace(p.Name)); n != "" {
		return n
	}
	return "guest"
}

// GuestRateLimit counts requests in fixed windows. The email is read from the
// `email` query parameter or from `email`/`guest_info.email` in a JSON body.
func GuestRateLimit(policy GuestRateLimitPolicy, limiter windowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if policy.IPLimit > 0 {
				if ip := clientIP(r); ip != "" {
					scope := policy.name() + ":ip:" + ip
					if !checkLimit(ctx, w, logg, limiter, scope, policy.IPLimit, policy.Window) {
						return
					}
				}
			}
			if policy.EmailLimit > 0 {
				email, err := requestEmail(r)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
					return
				}
				if email != "" {
					scope := policy.name() + ":email:" + hashValue(email)
					if !checkLimit(ctx, w, logg, limiter, scope, policy.EmailLimit, policy.Window) {
						return
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkLimit(ctx context.Context, w http.ResponseWriter, logg *logger.Logger, limiter windowLimiter, scope string, limit int, window time.Duration) bool {
	allowed, count, err := limiter.FixedWindowAllow(ctx, scope, int64(limit), window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
		return false
	}
	if allowed {
		return true
	}
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"scope":          scope,
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(window.Seconds()),
		}), "guest.rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
	return false
}

func requestEmail(r *http.Request) (string, error) {
	if email := normalizeEmail(r.URL.Query().Get("email")); email != "" {
		return email, nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		Email     string `json:"email"`
		GuestInfo struct {
			Email string `json:"email"`
		} `json:"guest_info"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}
	if payload.GuestInfo.Email != "" {
		return normalizeEmail(payload.GuestInfo.Email), nil
	}
	return normalizeEmail(payload.Email), nil
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
