// Package handlers serves the PHP-compatible REST endpoints the client
// synchronizes against, the push websocket and the metrics page.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/conformsync/internal/logging"
	"github.com/dmitrijs2005/conformsync/internal/server/hub"
	"github.com/dmitrijs2005/conformsync/internal/server/store"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DeviceIDHeader = "X-Device-ID"
	maxBodySize    = 32 << 20
)

// Notifier announces a replaced collection to the other devices of a user.
type Notifier interface {
	NotifySynced(userID, deviceID, table string) int
}

type Options struct {
	Store store.Repository
	Hub   *hub.Hub
	// BasePath prefixes the API routes, e.g. "/api".
	BasePath string
	Registry *prometheus.Registry
	Logger   logging.Logger
}

// Router wraps the mux router and the record store.
type Router struct {
	*mux.Router
	store    store.Repository
	notifier Notifier
	log      logging.Logger
	metrics  *metrics
}

func NewRouter(opts Options) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		store:  opts.Store,
		log:    opts.Logger,
	}
	if r.log == nil {
		r.log = logging.Discard()
	}
	if opts.Hub != nil {
		r.notifier = opts.Hub
	}
	if opts.Registry != nil {
		r.metrics = newMetrics(opts.Registry, opts.Hub)
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})).Methods("GET")
	}
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	base := "/" + strings.Trim(opts.BasePath, "/")
	api := r.Router
	if base != "/" {
		api = r.PathPrefix(base).Subrouter()
	}
	api.Use(r.observe)
	api.HandleFunc("/check-db-access.php", r.checkDBAccess).Methods("GET", "HEAD")
	api.HandleFunc("/sync-debug.php", r.syncDebug).Methods("GET", "POST")
	api.HandleFunc("/{table:[a-z_]+}-sync.php", r.syncTable).Methods("POST")
	api.HandleFunc("/{table:[a-z_]+}-load.php", r.loadTable).Methods("GET")
	if opts.Hub != nil {
		api.HandleFunc("/ws", opts.Hub.ServeWs).Methods("GET")
	}
	return r
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends the {success:false, message} envelope.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}
