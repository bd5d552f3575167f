package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chidori-ai/chidori/internal/log"
)

// serviceName identifies the service in the /health payload.
const serviceName = "chidori"

// healthResponse is the /health payload.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// healthHandler handles liveness and readiness probes.
type healthHandler struct {
	pool    *pgxpool.Pool
	version string
	logger  log.Logger
}

func newHealthHandler(pool *pgxpool.Pool, version string, logger log.Logger) *healthHandler {
	if version == "" {
		version = "dev"
	}
	return &healthHandler{pool: pool, version: version, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *healthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness reports that the process is alive. It does not touch dependencies.
func (h *healthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Service: serviceName,
		Version: h.version,
	}, h.logger)
}

// readiness reports whether dependencies are ready by pinging the database.
func (h *healthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "database pool not configured", h.logger)
		return
	}
	if err := h.pool.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "not_ready", "database not ready", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, h.logger)
}
