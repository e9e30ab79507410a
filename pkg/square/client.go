package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

var hosts = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// log fields whose names contain one of these are masked
var sensitiveFields = []string{"card", "nonce", "token", "cvv", "secret", "email", "phone", "address"}

// Client registers marketplace orders with the Square Orders API.
type Client struct {
	sdk        *sqclient.Client
	locationID string
	logg       *logger.Logger
}

type settings struct {
	host, token, location string
}

// readSettings reports every missing or invalid Square setting at once.
func readSettings(cfg config.SquareConfig) (settings, error) {
	var s settings
	var errs error
	env := cfg.Environment()
	if host, ok := hosts[env]; ok {
		s.host = host
	} else {
		errs = multierr.Append(errs, fmt.Errorf("square environment %q is not sandbox or production", env))
	}
	if s.token = strings.TrimSpace(cfg.AccessToken); s.token == "" {
		errs = multierr.Append(errs, errors.New("square access token is required"))
	}
	if s.location = strings.TrimSpace(cfg.LocationID); s.location == "" {
		errs = multierr.Append(errs, errors.New("square location id is required"))
	}
	return s, errs
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	s, err := readSettings(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{
		sdk:        sqclient.NewClient(sqoption.WithBaseURL(s.host), sqoption.WithToken(s.token)),
		locationID: s.location,
		logg:       logg,
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"square_host": s.host, "location_id": s.location}), "square.ready")
	return c, nil
}

// CreateOrder registers a payable order. Square replays the first response
// for a repeated idempotency key, so callers derive the key from the order
// and attempt rather than generating a fresh one.
func (c *Client) CreateOrder(ctx context.Context, params OrderCreateParams) (*sq.Order, error) {
	if c == nil || c.sdk == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square client not configured")
	}
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square order requires an idempotency key")
	}
	if strings.TrimSpace(params.LocationID) == "" {
		params.LocationID = c.locationID
	}
	req := params.toSquareRequest(params.IdempotencyKey)
	ctx = c.logg.WithFields(ctx, masked(map[string]any{
		"operation":    "orders.create",
		"location_id":  params.LocationID,
		"reference_id": params.ReferenceID,
		"amount_minor": params.AmountMinor,
		"line_items":   len(req.Order.LineItems),
	}))

	resp, err := c.sdk.Orders.Create(ctx, req)
	if err != nil {
		mapped := classify(err, "create order")
		c.logg.Error(ctx, "square.call_failed", mapped)
		return nil, mapped
	}
	order := resp.GetOrder()
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square create order returned no order")
	}
	if id := order.GetID(); id != nil {
		ctx = c.logg.WithField(ctx, "square_order_id", *id)
	}
	c.logg.Info(ctx, "square.order_created")
	return order, nil
}

func masked(fields map[string]any) map[string]any {
	for key := range fields {
		lower := strings.ToLower(key)
		for _, word := range sensitiveFields {
			if strings.Contains(lower, word) {
				fields[key] = "[REDACTED]"
				break
			}
		}
	}
	return fields
}

// classify turns an SDK failure into a domain error. The HTTP status picks
// the default code; specific Square error codes in the body override it.
func classify(err error, op string) error {
	msg := "square " + op + " failed"
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
	code := codeForStatus(apiErr.StatusCode)
	for _, detail := range apiErrors(apiErr) {
		switch {
		case detail == nil:
		case detail.Code == sq.ErrorCodeIdempotencyKeyReused:
			return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, msg)
		case detail.Category == sq.ErrorCategoryAuthenticationError:
			return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg)
		}
	}
	return pkgerrors.Wrap(code, err, msg)
}

// apiErrors decodes the {"errors": [...]} body the SDK keeps as the cause.
func apiErrors(apiErr *sqcore.APIError) []*sq.Error {
	cause := apiErr.Unwrap()
	if cause == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(cause.Error()), &body) != nil {
		return nil
	}
	return body.Errors
}

var statusCodes = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
}

func codeForStatus(status int) pkgerrors.Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}
