package app

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cam3ron2/gitroster/internal/health"
	"github.com/cam3ron2/gitroster/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// NewHTTPHandler wires the roster API, metrics, and health endpoints on a
// single mux.
func NewHTTPHandler(runtime *Runtime, metricsHandler http.Handler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &rosterAPI{runtime: runtime, logger: logger}
	healthHandler := health.NewHandler(runtime)

	router := chi.NewRouter()
	traceMode := telemetry.TraceMode()
	router.Get("/roster", wrapHTTPFunc(traceMode, "roster", api.getRoster))
	router.Post("/roster/refresh", wrapHTTPFunc(traceMode, "roster.refresh", api.refreshRoster))
	router.Post("/roster/{runtimeID}/refresh", wrapHTTPFunc(traceMode, "roster.refresh_row", api.refreshStudent))
	router.Get("/ratelimit", wrapHTTPFunc(traceMode, "ratelimit", api.getRateLimit))
	router.Get("/users/{login}/exists", wrapHTTPFunc(traceMode, "users.exists", api.getUserExists))
	router.Handle("/metrics", wrapHTTPHandler(traceMode, "metrics", metricsHandler))
	router.Handle("/livez", wrapHTTPHandler(traceMode, "livez", healthHandler))
	router.Handle("/readyz", wrapHTTPHandler(traceMode, "readyz", healthHandler))
	router.Handle("/healthz", wrapHTTPHandler(traceMode, "healthz", healthHandler))
	return router
}

type rosterAPI struct {
	runtime *Runtime
	logger  *zap.Logger
}

func (a *rosterAPI) getRoster(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.runtime.CurrentSnapshot())
}

func (a *rosterAPI) refreshRoster(w http.ResponseWriter, _ *http.Request) {
	// The run outlives the request, so the request context is not propagated.
	a.runtime.RefreshAll()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func (a *rosterAPI) refreshStudent(w http.ResponseWriter, r *http.Request) {
	runtimeID := chi.URLParam(r, "runtimeID")
	record, err := a.runtime.RefreshRow(r.Context(), runtimeID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *rosterAPI) getRateLimit(w http.ResponseWriter, r *http.Request) {
	status, err := a.runtime.RateLimit(r.Context())
	if err != nil {
		a.logger.Warn("rate limit lookup failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "rate limit lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *rosterAPI) getUserExists(w http.ResponseWriter, r *http.Request) {
	login := strings.TrimSpace(chi.URLParam(r, "login"))
	if login == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "login is required"})
		return
	}
	exists, err := a.runtime.UsernameExists(r.Context(), login)
	if err != nil {
		a.logger.Warn("username lookup failed", zap.String("login", login), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "username lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"login": login, "exists": exists})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return
	}
}

func wrapHTTPFunc(traceMode, route string, handler http.HandlerFunc) http.HandlerFunc {
	return wrapHTTPHandler(traceMode, route, handler).ServeHTTP
}

func wrapHTTPHandler(traceMode, route string, handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if strings.EqualFold(strings.TrimSpace(traceMode), "off") {
		return handler
	}

	operation := strings.TrimSpace(route)
	if operation == "" {
		operation = "handler"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("gitroster/internal/app").Start(
			r.Context(),
			"http.server."+operation,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		recorder := &statusCapturingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		handler.ServeHTTP(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
			return
		}
		span.SetStatus(codes.Ok, "request completed")
	})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
