// Copyright 2025 OpenCivic Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opencivic/datahub/core"
	"github.com/opencivic/datahub/metrics"
	"github.com/opencivic/datahub/retrieval"
	"github.com/opencivic/datahub/router"
)

const maxSubmitBodySize = 10 << 20 // 10MB

// Deps carries the services the HTTP handler exposes. Metrics may be nil,
// in which case the metrics endpoint reports an empty snapshot.
type Deps struct {
	Router  *router.Router
	Facade  *retrieval.Facade
	Metrics *metrics.Memory
}

// NewHandler returns the HTTP surface over the storage router and the
// retrieval facade.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", handleHealth)
	r.Post("/v1/categories/{category}/records", handleSubmit(deps))
	r.Get("/v1/categories/{category}/records", handleRetrieve(deps))
	r.Get("/v1/categories/{category}/quality", handleQuality(deps))
	r.Get("/v1/search", handleSearch(deps))
	r.Post("/v1/cleanup", handleCleanup(deps))
	r.Get("/v1/metrics", handleMetrics(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSubmit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBodySize)
		defer r.Body.Close()

		category := chi.URLParam(r, "category")
		if category == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "category is required")
			return
		}

		var batch []core.RawRecord
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		outcome := deps.Router.Store(r.Context(), category, batch)
		status := http.StatusOK
		if !outcome.Success {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, outcome)
	}
}

func handleRetrieve(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := chi.URLParam(r, "category")
		useCache := r.URL.Query().Get("cache") != "false"

		records, err := deps.Facade.Retrieve(r.Context(), category, useCache)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to retrieve records: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"category": category,
			"count":    len(records),
			"records":  records,
		})
	}
}

func handleQuality(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := chi.URLParam(r, "category")

		report, err := deps.Facade.QualityReport(r.Context(), category, nil)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build quality report: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		k := 10
		if raw := r.URL.Query().Get("k"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "k must be a positive integer")
				return
			}
			k = parsed
		}

		matches, err := deps.Facade.SearchSimilar(r.Context(), query, k)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"query":   query,
			"matches": matches,
		})
	}
}

func handleCleanup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := deps.Router.CleanupExpired(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "cleanup failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
	}
}

func handleMetrics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Metrics == nil {
			writeJSON(w, http.StatusOK, metrics.Snapshot{})
			return
		}
		writeJSON(w, http.StatusOK, deps.Metrics.Snapshot())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
