package finance

import (
	"net/http"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	financesvc "github.com/angelmondragon/marketplace-backend/internal/finance"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

func FinanceStats(svc financesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.GetFinanceStats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// FinancePayouts lists per-seller earnings over payment-confirmed orders.
func FinancePayouts(svc financesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payouts, err := svc.GetPayouts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payouts == nil {
			payouts = []financesvc.Payout{}
		}
		responses.WriteSuccess(w, map[string]any{"payouts": payouts})
	}
}
