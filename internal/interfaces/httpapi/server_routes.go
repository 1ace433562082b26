package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, metricsHandler http.Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
}

func registerInternalJobRoutes(mux *http.ServeMux, handler *Handler, internalJobToken string) {
	internal := func(h http.HandlerFunc) http.Handler {
		return RequireInternalJobToken(internalJobToken, h)
	}

	mux.Handle("POST /v1/internal/jobs/sync-all", internal(handler.RunSyncAllJob))
	mux.Handle("POST /v1/internal/jobs/sync-game", internal(handler.RunSyncGameJob))
	mux.Handle("GET /v1/internal/schedule", internal(handler.GetSchedule))
	mux.Handle("GET /v1/internal/budget", internal(handler.GetBudget))
	mux.Handle("GET /v1/internal/games/{gameID}/sync-logs", internal(handler.ListSyncLogs))
	mux.Handle("GET /v1/internal/partner/validate", internal(handler.ValidatePartnerKey))
}
