package api

import (
	"net/http"
	"strconv"

	"demandcast/anomaly"
)

// handleGetAnomalies lists open anomaly events, newest first.
// Query params: limit (default 50, max 500).
func (s *Server) handleGetAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", 50, intPtr(1), intPtr(500))

	events, err := s.anomRepo.ListOpen(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list anomalies", err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// handleGetAnomaliesBySKU lists a SKU's events within a trailing window.
// Query params: days (default 90).
func (s *Server) handleGetAnomaliesBySKU(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	if sku == "" {
		respondWithError(w, http.StatusBadRequest, "Missing SKU", nil)
		return
	}
	days := getIntParam(r, "days", 90, intPtr(1), intPtr(365))

	events, err := s.anomRepo.ListBySKU(sku, days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list anomalies", err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// handleApplyAdjustments puts an event's pending parameter adjustments into
// effect. Already-applied adjustments are skipped.
func (s *Server) handleApplyAdjustments(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", err)
		return
	}

	event, err := s.anomRepo.Event(id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load anomaly", err)
		return
	}
	if event == nil {
		respondWithError(w, http.StatusNotFound, "Anomaly not found", nil)
		return
	}

	records, err := s.anomRepo.Adjustments(id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load adjustments", err)
		return
	}

	applied := 0
	skipped := 0
	for _, rec := range records {
		if rec.AppliedAt != nil {
			skipped++
			continue
		}
		adj := anomaly.ParameterAdjustment{
			Parameter: rec.Parameter,
			OldValue:  rec.OldValue,
			NewValue:  rec.NewValue,
			Reason:    rec.Reason,
		}
		if err := s.engine.ApplyAdjustment(event.SKU, rec.ID, adj); err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to apply adjustment", err)
			return
		}
		applied++
	}

	respondJSON(w, http.StatusOK, map[string]int{
		"applied": applied,
		"skipped": skipped,
	})
}

// handleResolveAnomaly marks an event resolved.
func (s *Server) handleResolveAnomaly(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", err)
		return
	}

	if err := s.anomRepo.Resolve(id); err != nil {
		respondWithError(w, http.StatusNotFound, "Anomaly not found or already resolved", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleScan runs the anomaly checks for one SKU on demand and returns
// whatever was detected.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	if sku == "" {
		respondWithError(w, http.StatusBadRequest, "Missing SKU", nil)
		return
	}

	events, err := s.engine.ScanSKU(r.Context(), sku)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Scan failed", err)
		return
	}
	if events == nil {
		events = []*anomaly.Event{}
	}
	respondJSON(w, http.StatusOK, events)
}
