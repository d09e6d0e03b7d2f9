package gateway

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewHandler builds the gateway's HTTP surface: the chat completions route
// (also mounted under /api for the dashboard), the admin API, and the
// operational endpoints. CORS wraps the whole surface.
func NewHandler(c *Controller, metrics *Metrics, logger *slog.Logger, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(RequestIDMiddleware, LoggingMiddleware(logger), MetricsMiddleware(metrics))

	r.HandleFunc("/v1/chat/completions", c.HandleChatCompletions).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/chat/completions", c.HandleChatCompletions).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/policies", c.HandleListPolicies).Methods(http.MethodGet)
	api.HandleFunc("/policies/{id:[0-9]+}", c.HandleUpdatePolicy).Methods(http.MethodPut)
	api.HandleFunc("/logs", c.HandleListLogs).Methods(http.MethodGet)
	api.HandleFunc("/stats", c.HandleStats).Methods(http.MethodGet)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(r)
}
