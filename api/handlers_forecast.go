package api

import (
	"net/http"
)

const maxForecastDays = 365

// handleGetForecast returns the blended daily forecast series for a SKU.
// Query params: days (default 30, max 365).
func (s *Server) handleGetForecast(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	if sku == "" {
		respondWithError(w, http.StatusBadRequest, "Missing SKU", nil)
		return
	}
	days := getIntParam(r, "days", 30, intPtr(1), intPtr(maxForecastDays))

	series, err := s.engine.ForecastSKU(r.Context(), sku, days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to generate forecast", err)
		return
	}
	respondJSON(w, http.StatusOK, series)
}

// handleGetRecommendation returns the reorder recommendation for a SKU.
func (s *Server) handleGetRecommendation(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	if sku == "" {
		respondWithError(w, http.StatusBadRequest, "Missing SKU", nil)
		return
	}

	rec, err := s.engine.RecommendSKU(r.Context(), sku)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to generate recommendation", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// handleGetSpike runs spike detection for a SKU and returns the result.
func (s *Server) handleGetSpike(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	if sku == "" {
		respondWithError(w, http.StatusBadRequest, "Missing SKU", nil)
		return
	}

	det, err := s.engine.SpikeSKU(r.Context(), sku)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to check spike", err)
		return
	}
	respondJSON(w, http.StatusOK, det)
}

// handleGetWeights returns the learned ensemble weights for a SKU.
func (s *Server) handleGetWeights(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	if sku == "" {
		respondWithError(w, http.StatusBadRequest, "Missing SKU", nil)
		return
	}

	stored, err := s.weightRepo.Get(sku)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load weights", err)
		return
	}
	if stored == nil {
		respondWithError(w, http.StatusNotFound, "No learned weights for SKU", nil)
		return
	}
	respondJSON(w, http.StatusOK, stored)
}

// handleOptimize triggers weight retuning for a SKU and returns the outcome.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	if sku == "" {
		respondWithError(w, http.StatusBadRequest, "Missing SKU", nil)
		return
	}

	res, err := s.engine.OptimizeSKU(r.Context(), sku)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Optimization failed", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleGetCatalogVelocities returns trailing units/day for the whole
// catalog in one aggregate read. Query params: days (default 30).
func (s *Server) handleGetCatalogVelocities(w http.ResponseWriter, r *http.Request) {
	days := getIntParam(r, "days", 30, intPtr(1), intPtr(365))

	velocities, err := s.rawDB.CatalogVelocities(r.Context(), days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load catalog velocities", err)
		return
	}
	respondJSON(w, http.StatusOK, velocities)
}

// handleGetBacktest reports per-model backtest accuracy without persisting
// new weights. The optimize endpoint includes the same breakdown; this one
// is read-only.
func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	if sku == "" {
		respondWithError(w, http.StatusBadRequest, "Missing SKU", nil)
		return
	}

	results, err := s.engine.BacktestSKU(r.Context(), sku)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Backtest failed", err)
		return
	}
	if results == nil {
		respondWithError(w, http.StatusNotFound, "Not enough history to backtest", nil)
		return
	}
	respondJSON(w, http.StatusOK, results)
}
