package handlers

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/logging"
	"github.com/dmitrijs2005/conformsync/internal/server/hub"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg *prometheus.Registry, h *hub.Hub) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conformsync_server",
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "conformsync_server",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(m.requests, m.duration, collectors.NewGoCollector())
	if h != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "conformsync_server",
			Name:      "push_clients",
			Help:      "Devices connected to the push channel.",
		}, func() float64 { return float64(h.Count()) }))
	}
	return m
}

// statusRecorder keeps the response code. Hijack is forwarded for the
// websocket upgrade.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// observe logs every API request and records it in the metrics.
func (r *Router) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		if device := req.Header.Get(DeviceIDHeader); device != "" {
			req = req.WithContext(logging.ContextWith(req.Context(), "device", device))
		}
		next.ServeHTTP(rec, req)
		took := time.Since(start)

		route := req.URL.Path
		if cur := mux.CurrentRoute(req); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		r.log.Debug(req.Context(), "http request", "method", req.Method, "path", req.URL.Path, "status", rec.status, "took", took)
		if r.metrics != nil {
			r.metrics.requests.WithLabelValues(route, req.Method, strconv.Itoa(rec.status)).Inc()
			r.metrics.duration.WithLabelValues(route).Observe(took.Seconds())
		}
	})
}
