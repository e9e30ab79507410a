package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// ParseUUIDParam reads a chi URL parameter as a UUID.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

// ParsePage reads page/limit query parameters. Limits above the maximum are
// clamped rather than rejected.
func ParsePage(r *http.Request) (pagination.Params, error) {
	page, err := positiveQueryInt(r, "page", 1)
	if err != nil {
		return pagination.Params{}, err
	}
	limit, err := positiveQueryInt(r, "limit", pagination.DefaultLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Page: page, Limit: limit}.Normalize(), nil
}

// OptionalQuery returns a trimmed query value or nil when absent.
func OptionalQuery(r *http.Request, key string) *string {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil
	}
	return &raw
}

func positiveQueryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be a positive integer", key).
			WithDetails(map[string]any{"field": key, "value": raw})
	}
	return value, nil
}
