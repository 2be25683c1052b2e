package obs

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bundlehub/internal/common"
)

// Recoverer converts handler panics into a SYSTEM_ERROR response asking the client to reload.
func Recoverer(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error().
					Interface("panic", rec).
					Str("request_id", middleware.GetReqID(r.Context())).
					Bytes("stack", debug.Stack()).
					Msg("handler panic")
				common.WriteError(w, common.NewAppError(common.CodeSystem, "Something went wrong. Please reload the page.", http.StatusInternalServerError, nil).
					WithDetails(map[string]any{"action": "reload"}))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
