package httpapi

import (
	"net/http"

	"github.com/riskibarqy/manager-sync/internal/platform/logging"
)

func NewRouter(
	handler *Handler,
	metricsHandler http.Handler,
	logger *logging.Logger,
	internalJobToken string,
) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	registerSystemRoutes(mux, handler, metricsHandler)
	registerInternalJobRoutes(mux, handler, internalJobToken)

	return RequestTracing(RequestLogging(logger, recoverPanic(logger, mux)))
}

func recoverPanic(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				ctx := r.Context()
				logger.ErrorContext(ctx, "panic recovered", "panic", rec, "path", r.URL.Path, "route", r.Pattern)
				writeInternalError(ctx, w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
