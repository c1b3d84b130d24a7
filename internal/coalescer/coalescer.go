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

// Package coalescer holds the pending-submission buffer, the in-flight
// key sets, and the retry/lifecycle state machine for batching variant
// submissions. It is the core scheduling component: admission is
// non-blocking except for a short critical section, and batch dispatch
// runs on a bounded worker pool.
package coalescer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/variant-annotator/internal/annotate"
	"github.com/cockroachdb/variant-annotator/internal/obs"
	"github.com/cockroachdb/variant-annotator/internal/scorer"
	"github.com/cockroachdb/variant-annotator/internal/variantkey"
)

// ErrShuttingDown is returned by Add once Shutdown has been called.
var ErrShuttingDown = errors.New("coalescer is shutting down")

// Upstream is the batched annotation call the coalescer drives one
// worker-pool task against.
type Upstream interface {
	Annotate(ctx context.Context, variants []variantkey.Variant) ([]json.RawMessage, error)
}

// CacheStore is the subset of the cache store a batch task writes to
// on success.
type CacheStore interface {
	BulkUpsert(ctx context.Context, anns []annotate.Annotation) error
}

// State is the admission-time outcome reported back to the HTTP
// surface for one submitted variant.
type State string

// Recognized admission states.
const (
	StateQueued     State = "queued"
	StateInProgress State = "in-progress"
	StateFailed     State = "failed"
)

// RetryInfo reports how many retry attempts a variant has used.
type RetryInfo struct {
	CurrentRetries int
	MaxRetries     int
	ExceededLimit  bool
}

// AdmitResult is returned from Add.
type AdmitResult struct {
	Key       variantkey.Key
	State     State
	RetryInfo RetryInfo
}

// Config holds the coalescer's four tunables.
type Config struct {
	Workers  int
	BatchMax int
	IdleWait time.Duration
	RetryMax int
}

// Coalescer implements the batch coalescer and retry/lifecycle state
// machine.
type Coalescer struct {
	cfg      Config
	upstream Upstream
	store    CacheStore
	scorer   scorer.Scorer
	sem      chan struct{}
	wg       sync.WaitGroup

	// mu guards the buffer, both key sets, the retry map, and the
	// timer slot behind a single lock, the same anonymous-field
	// grouping convention used elsewhere in this codebase.
	mu struct {
		sync.Mutex
		buffer         []variantkey.Variant
		pendingKeys    map[variantkey.Key]struct{}
		processingKeys map[variantkey.Key]struct{}
		retryCounts    map[variantkey.Key]int
		nextEligibleAt map[variantkey.Key]time.Time
		timer          *time.Timer
		shuttingDown   bool
	}
}

// New constructs a Coalescer. The returned value must be stopped with
// Shutdown before the process exits.
func New(cfg Config, upstream Upstream, store CacheStore, s scorer.Scorer) *Coalescer {
	c := &Coalescer{cfg: cfg, upstream: upstream, store: store, scorer: s}
	c.sem = make(chan struct{}, cfg.Workers)
	c.mu.pendingKeys = make(map[variantkey.Key]struct{})
	c.mu.processingKeys = make(map[variantkey.Key]struct{})
	c.mu.retryCounts = make(map[variantkey.Key]int)
	c.mu.nextEligibleAt = make(map[variantkey.Key]time.Time)
	return c
}

// Add admits one variant. It never blocks beyond the state-lock
// critical section; a size-triggered dispatch is submitted to the
// worker pool, not executed inline.
func (c *Coalescer) Add(v variantkey.Variant) (AdmitResult, error) {
	key := v.Key()

	c.mu.Lock()

	if c.mu.shuttingDown {
		c.mu.Unlock()
		return AdmitResult{}, ErrShuttingDown
	}

	if attempts := c.mu.retryCounts[key]; attempts >= c.cfg.RetryMax {
		c.mu.Unlock()
		return AdmitResult{
			Key:   key,
			State: StateFailed,
			RetryInfo: RetryInfo{
				CurrentRetries: attempts,
				MaxRetries:     c.cfg.RetryMax,
				ExceededLimit:  true,
			},
		}, nil
	}

	if _, ok := c.mu.pendingKeys[key]; ok {
		c.mu.Unlock()
		return AdmitResult{Key: key, State: StateInProgress}, nil
	}
	if _, ok := c.mu.processingKeys[key]; ok {
		c.mu.Unlock()
		return AdmitResult{Key: key, State: StateInProgress}, nil
	}

	c.mu.buffer = append(c.mu.buffer, v)
	c.mu.pendingKeys[key] = struct{}{}

	var snapshot []variantkey.Variant
	if len(c.mu.buffer) >= c.cfg.BatchMax {
		c.stopTimerLocked()
		snapshot = c.detachBufferLocked()
	} else {
		c.restartTimerLocked()
	}
	attempts := c.mu.retryCounts[key]
	c.mu.Unlock()

	if snapshot != nil {
		c.dispatch(snapshot)
	}

	return AdmitResult{
		Key:   key,
		State: StateQueued,
		RetryInfo: RetryInfo{
			CurrentRetries: attempts,
			MaxRetries:     c.cfg.RetryMax,
		},
	}, nil
}

// detachBufferLocked snapshots the buffer, moves its keys from
// pendingKeys to processingKeys, and clears the buffer. Callers must
// hold mu.
func (c *Coalescer) detachBufferLocked() []variantkey.Variant {
	snapshot := c.mu.buffer
	c.mu.buffer = nil
	for _, v := range snapshot {
		key := v.Key()
		delete(c.mu.pendingKeys, key)
		c.mu.processingKeys[key] = struct{}{}
	}
	return snapshot
}

// restartTimerLocked (re)arms the idle timer to fire after IdleWait.
// Callers must hold mu.
func (c *Coalescer) restartTimerLocked() {
	c.stopTimerLocked()
	c.mu.timer = time.AfterFunc(c.cfg.IdleWait, c.onIdleTimer)
}

// stopTimerLocked cancels the idle timer if armed. Callers must hold
// mu.
func (c *Coalescer) stopTimerLocked() {
	if c.mu.timer != nil {
		c.mu.timer.Stop()
		c.mu.timer = nil
	}
}

// onIdleTimer fires after the idle wait has elapsed with no new
// admissions: it dispatches the current buffer if non-empty. It
// never shuts the coalescer down.
func (c *Coalescer) onIdleTimer() {
	c.mu.Lock()
	c.mu.timer = nil
	if len(c.mu.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	snapshot := c.detachBufferLocked()
	c.mu.Unlock()

	c.dispatch(snapshot)
}

// Status reports the in-flight and retry state for one key, used by
// the poll and statistics endpoints.
type Status struct {
	Pending        bool
	Processing     bool
	Attempts       int
	ExceededLimit  bool
	NextEligibleAt time.Time
}

// Status returns the current in-flight/retry state of key.
func (c *Coalescer) Status(key variantkey.Key) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, pending := c.mu.pendingKeys[key]
	_, processing := c.mu.processingKeys[key]
	attempts := c.mu.retryCounts[key]

	return Status{
		Pending:        pending,
		Processing:     processing,
		Attempts:       attempts,
		ExceededLimit:  attempts >= c.cfg.RetryMax,
		NextEligibleAt: c.mu.nextEligibleAt[key],
	}
}

// Stats summarizes the coalescer's current in-flight load.
type Stats struct {
	InProgressCount int
	BatchSizeLimit  int
	BatchTimeLimit  time.Duration
	InProgressKeys  []variantkey.Key
}

// Stats snapshots the coalescer's current load.
func (c *Coalescer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]variantkey.Key, 0, len(c.mu.pendingKeys)+len(c.mu.processingKeys))
	for k := range c.mu.pendingKeys {
		keys = append(keys, k)
	}
	for k := range c.mu.processingKeys {
		keys = append(keys, k)
	}

	return Stats{
		InProgressCount: len(keys),
		BatchSizeLimit:  c.cfg.BatchMax,
		BatchTimeLimit:  c.cfg.IdleWait,
		InProgressKeys:  keys,
	}
}

// Shutdown dispatches the current buffer, then waits up to
// gracePeriod for in-flight batches to finish before returning. New
// Add calls fail fast with ErrShuttingDown once Shutdown has started.
func (c *Coalescer) Shutdown(gracePeriod time.Duration) {
	c.mu.Lock()
	c.mu.shuttingDown = true
	c.stopTimerLocked()
	snapshot := c.detachBufferLocked()
	c.mu.Unlock()

	if len(snapshot) > 0 {
		c.dispatch(snapshot)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(gracePeriod):
		log.Warn("coalescer shutdown grace period expired with batches still in flight")
	}
}

// dispatch submits one batch task to the bounded worker pool. The
// semaphore-plus-WaitGroup pair is the simplest idiomatic Go bounded
// concurrency primitive, chosen over a third-party pool library since
// none of the studied examples carry one for this exact concern.
func (c *Coalescer) dispatch(snapshot []variantkey.Variant) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.sem <- struct{}{}
		defer func() { <-c.sem }()
		c.runBatch(context.Background(), snapshot)
	}()
}
