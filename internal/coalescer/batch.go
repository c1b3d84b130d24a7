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

package coalescer

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/variant-annotator/internal/annotate"
	"github.com/cockroachdb/variant-annotator/internal/obs"
	"github.com/cockroachdb/variant-annotator/internal/variantkey"
)

// runBatch is the batch task body: one upstream call, per-record
// parsing, one bulk upsert. It always ends by running the completion
// callback for both outcomes.
func (c *Coalescer) runBatch(ctx context.Context, variants []variantkey.Variant) {
	start := time.Now()
	obs.BatchSize.Observe(float64(len(variants)))

	records, err := c.upstream.Annotate(ctx, variants)
	if err != nil {
		log.WithError(err).WithField("size", len(variants)).Warn("batch failed: upstream call")
		c.complete(variants, false)
		obs.BatchesTotal.WithLabelValues("failed").Inc()
		obs.BatchDuration.Observe(time.Since(start).Seconds())
		return
	}

	anns := make([]annotate.Annotation, 0, len(variants))
	for i, v := range variants {
		ann, err := annotate.Parse(ctx, v.Key(), records[i], c.scorer)
		if err != nil {
			// Per-record parse errors are recovered locally; the rest
			// of the batch still completes.
			log.WithError(err).WithField("key", v.Key()).Warn("skipping record: parse error")
			continue
		}
		anns = append(anns, ann)
	}

	if err := c.store.BulkUpsert(ctx, anns); err != nil {
		log.WithError(err).WithField("size", len(variants)).Warn("batch failed: cache write")
		c.complete(variants, false)
		obs.BatchesTotal.WithLabelValues("failed").Inc()
		obs.BatchDuration.Observe(time.Since(start).Seconds())
		return
	}

	c.complete(variants, true)
	obs.BatchesTotal.WithLabelValues("success").Inc()
	obs.BatchDuration.Observe(time.Since(start).Seconds())
}

// complete is the batch completion callback: remove the batch's
// keys from processingKeys, and on failure increment each key's
// retry count, recording an informational NextEligibleAt without
// blocking future admission.
func (c *Coalescer) complete(variants []variantkey.Variant, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, v := range variants {
		key := v.Key()
		delete(c.mu.processingKeys, key)
		if !success {
			c.mu.retryCounts[key]++
			c.mu.nextEligibleAt[key] = time.Now().Add(retryBackoff(c.mu.retryCounts[key]))
		}
	}
	if !success {
		obs.RetryTotal.Add(float64(len(variants)))
	}
}

// retryBackoff returns a small, bounded delay before a failed key is
// informationally "eligible" again, scaling with the attempt count.
func retryBackoff(attempt int) time.Duration {
	const base = 2 * time.Second
	const max = 30 * time.Second
	d := base * time.Duration(attempt)
	if d > max {
		return max
	}
	return d
}
