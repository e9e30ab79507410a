package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope. http.ErrAbortHandler
// is re-raised so net/http can drop the connection as intended.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				if errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "handler panicked"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
