package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"updatebot/internal/observability"
)

type Server struct {
	Mux *mux.Router
}

// New returns a router with request id, logging and metrics middleware installed.
func New() *Server {
	m := mux.NewRouter()
	m.Use(RequestID, Logging, Metrics(observability.HTTPRequests))
	return &Server{Mux: m}
}

// RegisterHealth mounts the liveness and readiness probes.
func (s *Server) RegisterHealth(ready http.HandlerFunc) {
	s.Mux.HandleFunc("/healthz", Healthz()).Methods(http.MethodGet)
	s.Mux.HandleFunc("/readyz", ready).Methods(http.MethodGet)
}

func MetricsHandler(reg prometheus.Gatherer) http.Handler {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return m
}
