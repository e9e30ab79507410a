package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is any dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Marketplace-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency; nil entries are skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name, dep := range deps {
		if dep != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Marketplace-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := make(map[string]string, len(names))
		var failed []string
		for _, name := range names {
			if err := deps[name].Ping(ctx); err != nil {
				checks[name] = "error"
				failed = append(failed, name)
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "dependency", name), "readiness check failed: "+err.Error())
				}
				continue
			}
			checks[name] = "ok"
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").
				WithDetails(map[string]any{"checks": checks}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
