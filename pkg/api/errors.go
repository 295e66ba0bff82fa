package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/passbill/pkg/billing"
	"github.com/platinummonkey/passbill/pkg/contextkeys"
	"github.com/platinummonkey/passbill/pkg/httputil"
	"github.com/platinummonkey/passbill/pkg/observability"
)

var errInternal = errors.New("internal error")

// statusForKind maps an error kind to its HTTP status
func statusForKind(kind billing.Kind) int {
	switch kind {
	case billing.KindValidation, billing.KindChargeStyle:
		return http.StatusBadRequest
	case billing.KindNotFound:
		return http.StatusNotFound
	case billing.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with the status of its kind. Internal errors
// are logged and their message is not sent to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, err error) {
	kind := billing.KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		requestLogger(r, logger).
			WithError(err).
			WithFields(map[string]interface{}{"method": r.Method, "path": r.URL.Path}).
			Error("Request failed")
		httputil.WriteKindError(w, status, kind.String(), errInternal)
		return
	}
	httputil.WriteKindError(w, status, kind.String(), err)
}

// requestLogger returns the logger installed by the logging middleware,
// enriched from the request context, or fallback when there is none
func requestLogger(r *http.Request, fallback *observability.Logger) *observability.Logger {
	ctx := r.Context()
	if _, ok := ctx.Value(contextkeys.LoggerKey).(*observability.Logger); !ok {
		ctx = observability.WithLogger(ctx, fallback)
	}
	return observability.UpdateLoggerWithTraceContext(ctx, observability.FromContext(ctx))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteNotFoundError(w, "route not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
}
