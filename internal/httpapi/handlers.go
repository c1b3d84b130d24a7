// Copyright 2023 The Cockroach Authors
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
//
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/variant-annotator/internal/coalescer"
	"github.com/cockroachdb/variant-annotator/internal/obs"
	"github.com/cockroachdb/variant-annotator/internal/variantkey"
)

// handleSubmit implements POST /submit.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, submitResponse{Status: "failure", Message: "malformed request body"})
		return
	}

	v, err := variantkey.Parse(req.Chrom, string(req.Pos), req.Ref, req.Alt)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, submitResponse{Status: "failure", Message: err.Error()})
		return
	}
	key := v.Key()

	exists, err := s.store.Exists(r.Context(), key)
	if err != nil {
		log.WithError(err).WithField("key", key).Error("cache read failed")
		writeJSON(w, http.StatusInternalServerError, submitResponse{Status: "failure", Message: "cache unavailable"})
		return
	}
	if exists {
		obs.CacheHitTotal.Inc()
		writeJSON(w, http.StatusOK, submitResponse{
			Status:    "failure",
			VariantID: string(key),
			Message:   "Variant already annotated",
		})
		return
	}

	result, err := s.coalescer.Add(v)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, submitResponse{Status: "failure", Message: err.Error()})
		return
	}

	switch result.State {
	case coalescer.StateFailed:
		writeJSON(w, http.StatusOK, submitResponse{
			Status:    "failure",
			VariantID: string(key),
			Message:   "retry limit exceeded",
			RetryInfo: &retryInfo{
				CurrentRetries: result.RetryInfo.CurrentRetries,
				MaxRetries:     result.RetryInfo.MaxRetries,
				ExceededLimit:  true,
			},
		})
	case coalescer.StateInProgress:
		writeJSON(w, http.StatusOK, submitResponse{
			Status:    "success",
			VariantID: string(key),
			Message:   "already in progress",
			RetryInfo: &retryInfo{MaxRetries: result.RetryInfo.MaxRetries},
		})
	default: // StateQueued
		writeJSON(w, http.StatusOK, submitResponse{
			Status:    "success",
			VariantID: string(key),
			RetryInfo: &retryInfo{
				CurrentRetries: result.RetryInfo.CurrentRetries,
				MaxRetries:     result.RetryInfo.MaxRetries,
			},
		})
	}
}

// handlePoll implements GET /poll/<variant_id>.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	key := variantkey.Key(strings.TrimPrefix(r.URL.Path, "/poll/"))
	if key == "" {
		writeJSON(w, http.StatusNotFound, pollResponse{Status: "not_found"})
		return
	}

	ann, found, err := s.store.Read(r.Context(), key)
	if err != nil {
		log.WithError(err).WithField("key", key).Error("cache read failed")
		writeJSON(w, http.StatusInternalServerError, pollResponse{Status: "failure"})
		return
	}
	if found {
		writeJSON(w, http.StatusOK, pollResponse{
			Status:     "completed",
			Source:     "cache",
			Annotation: toAnnotationPayload(ann),
		})
		return
	}

	status := s.coalescer.Status(key)
	switch {
	case status.Pending || status.Processing:
		writeJSON(w, http.StatusAccepted, pollResponse{Status: "processing"})
	case status.ExceededLimit:
		writeJSON(w, http.StatusOK, pollResponse{
			Status:    "failed",
			RetryInfo: &retryInfo{ExceededLimit: true},
		})
	case status.Attempts > 0:
		writeJSON(w, http.StatusNotFound, pollResponse{Status: "retry_available"})
	default:
		writeJSON(w, http.StatusNotFound, pollResponse{Status: "not_found"})
	}
}

// handleHealth implements GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.coalescer.Stats()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:          "ok",
		Service:         "variant-annotator",
		InProgressCount: stats.InProgressCount,
	})
}

// handleStatistics implements GET /statistics.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats := s.coalescer.Stats()
	writeJSON(w, http.StatusOK, statisticsResponse{
		InProgressCount: stats.InProgressCount,
		BatchSizeLimit:  stats.BatchSizeLimit,
		BatchTimeLimit:  stats.BatchTimeLimit.Seconds(),
		InProgress:      stats.InProgressKeys,
	})
}
