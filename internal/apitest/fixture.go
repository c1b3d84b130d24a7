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

// Package apitest wires a real coalescer and a real HTTP surface
// together in-process, against an in-memory upstream stub and a
// sqlmock-free in-memory cache store, so that end-to-end scenarios
// (submit, poll, dedup, retry exhaustion) exercise the same code path
// a live deployment does without needing sqlmock's expectation scripts
// or a running MySQL instance. Package-level unit tests
// (internal/coalescer, internal/httpapi, internal/cachestore) cover
// each component in isolation; this package is the seam where they
// meet.
package apitest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/variant-annotator/internal/annotate"
	"github.com/cockroachdb/variant-annotator/internal/cachestore"
	"github.com/cockroachdb/variant-annotator/internal/coalescer"
	"github.com/cockroachdb/variant-annotator/internal/httpapi"
	"github.com/cockroachdb/variant-annotator/internal/scorer"
	"github.com/cockroachdb/variant-annotator/internal/variantkey"
)

// StubUpstream is an in-memory stand-in for the batched annotation
// provider. By default it returns one empty JSON record per submitted
// variant; Handler and Fail let individual tests script different
// batch outcomes.
type StubUpstream struct {
	mu     sync.Mutex
	calls  int
	Fail   bool
	OnCall func(variants []variantkey.Variant)

	// Handler, if set, overrides the default empty-record response.
	Handler func(variants []variantkey.Variant) ([]json.RawMessage, error)
}

// Annotate implements coalescer.Upstream.
func (s *StubUpstream) Annotate(_ context.Context, variants []variantkey.Variant) ([]json.RawMessage, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.OnCall != nil {
		s.OnCall(variants)
	}
	if s.Fail {
		return nil, errStubUpstreamFailure
	}
	if s.Handler != nil {
		return s.Handler(variants)
	}

	records := make([]json.RawMessage, len(variants))
	for i := range variants {
		records[i] = json.RawMessage(`{}`)
	}
	return records, nil
}

// Calls reports how many batches this stub has received.
func (s *StubUpstream) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var errStubUpstreamFailure = errors.New("apitest: upstream stub configured to fail")

// MemStore is a real (non-mocked) implementation of the cache store
// contract backed by an in-process map rather than MySQL: Exists,
// Read, and BulkUpsert apply the same upsert discipline as
// cachestore.Store.BulkUpsert (CADD/ML_score/most_severe_consequence/
// CLINSIG overwritten on conflict; gene/allele_freq/max_allele_freq/
// OMIM retain their first-written value), so fixtures built on it
// exercise the documented cache semantics without a live database.
type MemStore struct {
	mu   sync.Mutex
	rows map[variantkey.Key]annotate.Annotation
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[variantkey.Key]annotate.Annotation)}
}

// Exists implements coalescer.CacheStore / httpapi.CacheStore.
func (m *MemStore) Exists(_ context.Context, key variantkey.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[key]
	return ok, nil
}

// Read implements httpapi.CacheStore.
func (m *MemStore) Read(_ context.Context, key variantkey.Key) (annotate.Annotation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ann, ok := m.rows[key]
	return ann, ok, nil
}

// BulkUpsert implements coalescer.CacheStore.
func (m *MemStore) BulkUpsert(_ context.Context, anns []annotate.Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ann := range anns {
		existing, ok := m.rows[ann.Key]
		if !ok {
			m.rows[ann.Key] = ann
			continue
		}
		existing.CADD = ann.CADD
		existing.MLScore = ann.MLScore
		existing.MostSevereConsequence = ann.MostSevereConsequence
		existing.ClinSig = ann.ClinSig
		existing.Transcripts = ann.Transcripts
		m.rows[ann.Key] = existing
	}
	return nil
}

// Count reports how many parent rows are present.
func (m *MemStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Fixture bundles the coalescer and HTTP surface a test drives
// requests against.
type Fixture struct {
	Server    *httpapi.Server
	Coalescer *coalescer.Coalescer
	Store     *MemStore
	Upstream  *StubUpstream
}

// NewFixture wires a coalescer against upstream and an in-memory
// MemStore, then wraps both in a real httpapi.Server. The coalescer is
// shut down automatically when the test ends.
func NewFixture(t *testing.T, cfg coalescer.Config, upstream *StubUpstream) *Fixture {
	t.Helper()
	store := NewMemStore()
	c := coalescer.New(cfg, upstream, store, scorer.Heuristic{})
	t.Cleanup(func() { c.Shutdown(5 * time.Second) })

	return &Fixture{
		Server:    httpapi.New(c, store),
		Coalescer: c,
		Store:     store,
		Upstream:  upstream,
	}
}

// LiveDBEnvVar names the environment variable this package checks to
// discover a MySQL test container's database name before attempting
// to connect; the host/port/user/password come from the matching
// VARIANTANNOTATOR_TEST_DB_* variables, defaulting to the same values
// as config.Config's dbHost/dbPort/dbUser/dbPassword flags. Tests that need a real cachestore.Store skip (rather
// than fail) when it is unset, since this environment never runs one.
const LiveDBEnvVar = "VARIANTANNOTATOR_TEST_DB_NAME"

// OpenLiveStore opens a real cachestore.Store against a MySQL
// instance named by the VARIANTANNOTATOR_TEST_DB_* environment
// variables, migrating its schema first. It skips the calling test
// (rather than failing it) when LiveDBEnvVar is unset, since this is
// the one fixture in the suite that requires a live database instead
// of MemStore or sqlmock.
func OpenLiveStore(t *testing.T) *cachestore.Store {
	t.Helper()
	name := os.Getenv(LiveDBEnvVar)
	if name == "" {
		t.Skipf("skipping: set %s (and VARIANTANNOTATOR_TEST_DB_HOST/PORT/USER/PASSWORD as needed) to run against a live MySQL cache", LiveDBEnvVar)
	}

	cfg := cachestore.Config{
		Host:     envOr("VARIANTANNOTATOR_TEST_DB_HOST", "127.0.0.1"),
		Port:     envIntOr("VARIANTANNOTATOR_TEST_DB_PORT", 3306),
		User:     envOr("VARIANTANNOTATOR_TEST_DB_USER", "root"),
		Password: os.Getenv("VARIANTANNOTATOR_TEST_DB_PASSWORD"),
		Database: name,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := cachestore.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("opening live cache store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrating live cache store: %v", err)
	}
	return store
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}
