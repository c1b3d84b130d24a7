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

// Package obs registers the Prometheus metrics the coalescer, the
// annotation parser, and the HTTP surface report, via promauto the same way the rest of this
// codebase wires up metrics.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyBuckets are the histogram buckets used for every duration
// metric below.
var LatencyBuckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300}

var (
	// BatchesTotal counts dispatched batches by outcome ("success" or
	// "failed").
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "variantannotator_batches_total",
		Help: "the number of batches dispatched to the upstream annotation provider",
	}, []string{"outcome"})

	// BatchDuration observes the wall-clock time of one batch task,
	// from dispatch to completion (success or failure).
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "variantannotator_batch_duration_seconds",
		Help:    "the length of time a dispatched batch took to complete",
		Buckets: LatencyBuckets,
	})

	// BatchSize observes the number of variants in each dispatched
	// batch.
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "variantannotator_batch_size",
		Help:    "the number of variants in each dispatched batch",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 200, 400},
	})

	// RetryTotal counts every per-key retry increment applied after a
	// batch failure.
	RetryTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "variantannotator_retry_total",
		Help: "the number of per-variant retry increments applied after a batch failure",
	})

	// CacheHitTotal counts submissions served directly from the cache
	// without triggering a batch.
	CacheHitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "variantannotator_cache_hit_total",
		Help: "the number of submissions resolved from the cache without contacting the upstream",
	})

	// ScorerFallbackTotal counts records where the scorer failed and
	// the documented fallback score was recorded instead.
	ScorerFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "variantannotator_scorer_fallback_total",
		Help: "the number of records scored with the fallback score after a scorer failure",
	})
)
