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

// Package httpapi is the thin translator from coalescer/cache state
// to HTTP responses. It uses bare net/http and http.ServeMux rather
// than a router framework.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cockroachdb/variant-annotator/internal/annotate"
	"github.com/cockroachdb/variant-annotator/internal/coalescer"
	"github.com/cockroachdb/variant-annotator/internal/variantkey"
)

// CacheStore is the subset of the cache store the HTTP surface reads
// from directly.
type CacheStore interface {
	Exists(ctx context.Context, key variantkey.Key) (bool, error)
	Read(ctx context.Context, key variantkey.Key) (annotate.Annotation, bool, error)
}

// Server wires the coalescer and cache store behind the submit,
// poll, health, statistics, and metrics HTTP endpoints.
type Server struct {
	coalescer *coalescer.Coalescer
	store     CacheStore
	mux       *http.ServeMux
}

// New builds a Server and registers its routes.
func New(c *coalescer.Coalescer, store CacheStore) *Server {
	s := &Server{coalescer: c, store: store, mux: http.NewServeMux()}
	s.mux.HandleFunc("/submit", s.handleSubmit)
	s.mux.HandleFunc("/poll/", s.handlePoll)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/statistics", s.handleStatistics)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Shutdown drains the underlying coalescer, dispatching its current
// buffer and waiting up to gracePeriod for in-flight batches.
func (s *Server) Shutdown(gracePeriod time.Duration) {
	s.coalescer.Shutdown(gracePeriod)
}
