// Package api provides the HTTP handlers of the network summary service.
// It exposes the reconciled network summary, its topology subset, neighbor cache
// maintenance and the service status endpoints.
package api

import (
	"context"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"netsummary/internal/models"
	"netsummary/internal/summary"
)

// Summarizer builds network summaries
type Summarizer interface {
	GetSummary(ctx context.Context, networkID string, opts models.QueryOptions) (*models.Summary, error)
	ResetNeighbors(networkID string) (int, error)
}

// SummaryHandler handles network summary endpoints
type SummaryHandler struct {
	service Summarizer
}

// NewSummaryHandler creates a new summary handler
func NewSummaryHandler(service Summarizer) *SummaryHandler {
	return &SummaryHandler{
		service: service,
	}
}

// RegisterRoutes registers the summary routes
func (h *SummaryHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/networks/{networkId}/summary", h.getSummary).Methods("GET")
	r.HandleFunc("/api/networks/{networkId}/topology", h.getTopology).Methods("GET")
	r.HandleFunc("/api/networks/{networkId}/neighbors", h.resetNeighbors).Methods("DELETE")
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message, cause string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: message, Cause: cause})
}

// writeSummaryError maps a summary failure onto 404 or 502
func writeSummaryError(w http.ResponseWriter, err error) {
	e := summary.AsError(err)
	status := http.StatusBadGateway
	if e.Kind == summary.KindUnresolvedNetwork {
		status = http.StatusNotFound
	}
	writeError(w, status, e.Kind, e.Message, e.CauseString())
}

// parseOptions reads the summary query parameters. Values that do not parse fall
// back to their defaults, and numeric values are then clamped.
func parseOptions(r *http.Request) models.QueryOptions {
	var opts models.QueryOptions
	q := r.URL.Query()

	if v := q.Get("uplinkTimespan"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.UplinkTimespan = n
		} else {
			log.Debug().Str("uplinkTimespan", v).Msg("Ignoring unparseable timespan")
		}
	}
	if v := q.Get("uplinkResolution"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.UplinkResolution = n
		} else {
			log.Debug().Str("uplinkResolution", v).Msg("Ignoring unparseable resolution")
		}
	}
	if v := q.Get("forceRefresh"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.ForceRefresh = b
		} else {
			log.Debug().Str("forceRefresh", v).Msg("Ignoring unparseable forceRefresh")
		}
	}
	return opts.Normalize()
}

// getSummary returns the reconciled summary of a network
func (h *SummaryHandler) getSummary(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getSummary").Logger()
	networkID := mux.Vars(r)["networkId"]

	opts := parseOptions(r)

	result, err := h.service.GetSummary(r.Context(), networkID, opts)
	if err != nil {
		logger.Error().Err(err).Str("network", networkID).Msg("Failed to build summary")
		writeSummaryError(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, result); err != nil {
		logger.Error().Err(err).Msg("Failed to encode summary")
	}
}

// getTopology returns only the topology part of the summary
func (h *SummaryHandler) getTopology(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getTopology").Logger()
	networkID := mux.Vars(r)["networkId"]

	opts := parseOptions(r)

	result, err := h.service.GetSummary(r.Context(), networkID, opts)
	if err != nil {
		logger.Error().Err(err).Str("network", networkID).Msg("Failed to build topology")
		writeSummaryError(w, err)
		return
	}

	response := map[string]interface{}{
		"network":        result.Network,
		"topology":       result.Topology,
		"topologySource": result.TopologySource,
		"counts":         result.Meta.Counts,
		"flavor":         result.Meta.Flavor,
		"warnings":       result.Meta.Warnings,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		logger.Error().Err(err).Msg("Failed to encode topology")
	}
}

// resetNeighbors drops cached discovery data so the next summary rediscovers it
func (h *SummaryHandler) resetNeighbors(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "resetNeighbors").Logger()
	networkID := mux.Vars(r)["networkId"]

	deleted, err := h.service.ResetNeighbors(networkID)
	if err != nil {
		logger.Error().Err(err).Str("network", networkID).Msg("Failed to reset neighbor snapshots")
		writeError(w, http.StatusInternalServerError, "internal", "Failed to reset neighbor snapshots", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"networkId": networkID,
		"deleted":   deleted,
	})
}
