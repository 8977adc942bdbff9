package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/relfield/internal/fieldconfig"
	"github.com/kalambet/relfield/internal/metrics"
	"github.com/kalambet/relfield/internal/resolver"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds the collaborators of the HTTP handler.
type Deps struct {
	Resolver fieldconfig.Resolver
	Token    string
	// Metrics is optional; when nil, /metrics is not served.
	Metrics *metrics.Metrics
}

// NewHandler returns the relfield HTTP API: an unauthenticated health check
// and metrics endpoint, and the bearer-protected resolver functions.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/resolver/{function}", handleResolver(deps))
	})

	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		slog.Debug("request", "method", r.Method, "path", r.URL.Path, "request_id", id)
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type getFieldConfigurationRequest struct {
	FieldID string `json:"fieldId"`
}

func handleResolver(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		function := chi.URLParam(r, "function")
		if function != resolver.FunctionGetFieldConfiguration {
			httpError(w, http.StatusNotFound, "not_found_error", "unknown resolver function %q", function)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req getFieldConfigurationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		res, err := deps.Resolver.GetFieldConfiguration(r.Context(), req.FieldID)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "resolver failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
