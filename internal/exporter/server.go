package exporter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"data-exporter/internal/collector"
)

// SourceStatus is one entry of the /status response.
type SourceStatus struct {
	Name string `json:"name"`
	collector.Status
}

type StatusResponse struct {
	Uptime  string         `json:"uptime"`
	Series  int            `json:"series"`
	Sources []SourceStatus `json:"sources"`
}

// Handler returns the router serving metrics, health and status.
func (e *Exporter) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(e.logRequests)

	router.Handle(e.cfg.Exporter.MetricsPath, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
		ErrorLog:          zap.NewStdLog(e.logger.Named("promhttp")),
	})).Methods(http.MethodGet)
	router.HandleFunc("/health", e.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", e.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/", e.handleIndex).Methods(http.MethodGet)

	return router
}

func (e *Exporter) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		e.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func (e *Exporter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (e *Exporter) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Uptime:  time.Since(e.started).Round(time.Second).String(),
		Series:  e.store.Len(),
		Sources: make([]SourceStatus, 0, len(e.schedulers)),
	}
	for _, s := range e.schedulers {
		resp.Sources = append(resp.Sources, SourceStatus{Name: s.Name(), Status: s.Status()})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		e.logger.Warn("Error encoding status", zap.Error(err))
	}
}

func (e *Exporter) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html>
<head><title>Data Exporter</title></head>
<body>
<h1>Data Exporter</h1>
<p><a href="%s">Metrics</a></p>
<p><a href="/status">Status</a></p>
</body>
</html>
`, e.cfg.Exporter.MetricsPath)
}
