// internal/api/status_handlers.go
package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"netsummary/internal/cache"
	"netsummary/internal/config"
	"netsummary/internal/database"
	"netsummary/internal/summary"
)

// RunReporter exposes the state of the summary service
type RunReporter interface {
	GetStatus() (summary.RunStats, int)
}

// CacheReporter exposes cache counters
type CacheReporter interface {
	Stats() cache.Stats
}

// StatusHandler handles system status-related API endpoints
type StatusHandler struct {
	db        *database.DB
	runs      RunReporter
	cache     CacheReporter
	cfg       *config.Config
	startTime time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *database.DB, runs RunReporter, c CacheReporter, cfg *config.Config) *StatusHandler {
	return &StatusHandler{
		db:        db,
		runs:      runs,
		cache:     c,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers the status routes
func (h *StatusHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/status", h.getSystemStatus).Methods("GET")
	r.HandleFunc("/api/status/health", h.getHealthCheck).Methods("GET")
	r.HandleFunc("/api/status/runs", h.getRuns).Methods("GET")
	r.HandleFunc("/api/status/runs/{id}", h.getRun).Methods("GET")
	r.HandleFunc("/api/status/database", h.getDatabaseStatus).Methods("GET")
	r.HandleFunc("/api/status/database/backup", h.backupDatabase).Methods("POST")
}

// getSystemStatus returns the overall system status
func (h *StatusHandler) getSystemStatus(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getSystemStatus").Logger()

	dbStats, err := h.db.GetDatabaseStats()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve database stats")
	}

	lastRun, inFlight := h.runs.GetStatus()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := map[string]interface{}{
		"status":    "healthy",
		"uptime":    time.Since(h.startTime).String(),
		"startTime": h.startTime,
		"system": map[string]interface{}{
			"goVersion":    runtime.Version(),
			"goArch":       runtime.GOARCH,
			"goOS":         runtime.GOOS,
			"numCPU":       runtime.NumCPU(),
			"numGoroutine": runtime.NumGoroutine(),
		},
		"memory": map[string]interface{}{
			"alloc":       memStats.Alloc / 1024 / 1024, // MB
			"sys":         memStats.Sys / 1024 / 1024,   // MB
			"numGC":       memStats.NumGC,
			"heapObjects": memStats.HeapObjects,
		},
		"config": map[string]interface{}{
			"serverPort":       h.cfg.Server.Port,
			"upstreamBaseURL":  h.cfg.Upstream.BaseURL,
			"refreshEnabled":   h.cfg.Refresh.Enabled,
			"refreshFrequency": h.cfg.Refresh.Frequency,
			"loggingLevel":     h.cfg.Logging.Level,
		},
		"summary": map[string]interface{}{
			"lastRun":  lastRun,
			"inFlight": inFlight,
			"runCount": dbStats["runCount"],
		},
		"cache":     h.cache.Stats(),
		"timestamp": time.Now(),
	}

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		logger.Error().Err(err).Msg("Failed to encode system status")
	}
}

// getHealthCheck returns a simple health check response
func (h *StatusHandler) getHealthCheck(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getHealthCheck").Logger()

	status := "healthy"
	code := http.StatusOK
	if err := h.db.Ping(); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
		logger.Error().Err(err).Msg("Database ping failed")
	}

	lastRun, inFlight := h.runs.GetStatus()
	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
		"lastRun":   lastRun,
		"inFlight":  inFlight,
		"cache":     h.cache.Stats(),
	}

	if err := writeJSON(w, code, response); err != nil {
		logger.Error().Err(err).Msg("Failed to encode health check response")
	}
}

// getRuns returns the most recent summary runs, optionally for one network
func (h *StatusHandler) getRuns(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getRuns").Logger()

	limit := 20
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsedLimit, err := strconv.Atoi(limitParam)
		if err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	runs, err := h.db.GetRecentRuns(limit, r.URL.Query().Get("networkId"))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve runs")
		writeError(w, http.StatusInternalServerError, "internal", "Failed to retrieve runs", err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, runs); err != nil {
		logger.Error().Err(err).Msg("Failed to encode runs")
	}
}

// getRun returns one summary run
func (h *StatusHandler) getRun(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getRun").Logger()

	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid run ID", "")
		return
	}

	run, err := h.db.GetRun(id)
	if err != nil {
		logger.Debug().Err(err).Int64("id", id).Msg("Run not found")
		writeError(w, http.StatusNotFound, "not_found", "Run not found", "")
		return
	}

	if err := writeJSON(w, http.StatusOK, run); err != nil {
		logger.Error().Err(err).Msg("Failed to encode run")
	}
}

// getDatabaseStatus returns detailed database status information
func (h *StatusHandler) getDatabaseStatus(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getDatabaseStatus").Logger()

	dbStats, err := h.db.GetDatabaseStats()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve database stats")
		writeError(w, http.StatusInternalServerError, "internal", "Failed to retrieve database status", err.Error())
		return
	}

	sizeBytes, _ := dbStats["sizeBytes"].(int64)

	response := map[string]interface{}{
		"status":                "online",
		"path":                  h.cfg.Database.Path,
		"sizeBytes":             sizeBytes,
		"sizeMB":                float64(sizeBytes) / 1024 / 1024,
		"snapshotCount":         dbStats["snapshotCount"],
		"networkCount":          dbStats["networkCount"],
		"runCount":              dbStats["runCount"],
		"lastRunTime":           dbStats["lastRunTime"],
		"runStatusDistribution": dbStats["runStatusDistribution"],
		"snapshotRetentionDays": h.cfg.Database.SnapshotRetentionDays,
		"runRetentionDays":      h.cfg.Database.RunRetentionDays,
		"journalMode":           "WAL",
		"timestamp":             time.Now(),
	}

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		logger.Error().Err(err).Msg("Failed to encode database status")
	}
}

// backupDatabase writes a consistent copy of the database next to it
func (h *StatusHandler) backupDatabase(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "backupDatabase").Logger()

	path, err := h.db.BackupDatabase()
	if err != nil {
		logger.Error().Err(err).Msg("Database backup failed")
		writeError(w, http.StatusInternalServerError, "internal", "Database backup failed", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"path":      path,
		"timestamp": time.Now(),
	})
}
