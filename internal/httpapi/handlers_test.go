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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/variant-annotator/internal/annotate"
	"github.com/cockroachdb/variant-annotator/internal/coalescer"
	"github.com/cockroachdb/variant-annotator/internal/scorer"
	"github.com/cockroachdb/variant-annotator/internal/variantkey"
)

type fakeStore struct {
	cached map[variantkey.Key]annotate.Annotation
}

func (f *fakeStore) Exists(_ context.Context, key variantkey.Key) (bool, error) {
	_, ok := f.cached[key]
	return ok, nil
}

func (f *fakeStore) Read(_ context.Context, key variantkey.Key) (annotate.Annotation, bool, error) {
	ann, ok := f.cached[key]
	return ann, ok, nil
}

func (f *fakeStore) BulkUpsert(_ context.Context, anns []annotate.Annotation) error {
	for _, a := range anns {
		f.cached[a.Key] = a
	}
	return nil
}

type noopUpstream struct{}

func (noopUpstream) Annotate(_ context.Context, variants []variantkey.Variant) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(variants))
	for i := range variants {
		out[i] = json.RawMessage(`{}`)
	}
	return out, nil
}

func newTestServer() (*Server, *fakeStore, *coalescer.Coalescer) {
	store := &fakeStore{cached: map[variantkey.Key]annotate.Annotation{}}
	c := coalescer.New(coalescer.Config{Workers: 1, BatchMax: 200, IdleWait: time.Hour, RetryMax: 3}, noopUpstream{}, store, scorer.Heuristic{})
	return New(c, store), store, c
}

func doSubmit(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestSubmitValidationFailure(t *testing.T) {
	s, _, c := newTestServer()
	defer c.Shutdown(time.Second)

	rec := doSubmit(t, s, `{"chrom":"chr24","pos":1,"ref":"A","alt":"G"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitCacheHit(t *testing.T) {
	s, store, c := newTestServer()
	defer c.Shutdown(time.Second)

	key := variantkey.Key("chr2:162279995:C>G")
	store.cached[key] = annotate.Annotation{Key: key}

	rec := doSubmit(t, s, `{"chrom":"chr2","pos":162279995,"ref":"C","alt":"G"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failure", resp.Status)
	assert.Contains(t, resp.Message, "already annotated")
}

func TestSubmitAdmitsNewVariant(t *testing.T) {
	s, _, c := newTestServer()
	defer c.Shutdown(time.Second)

	rec := doSubmit(t, s, `{"chrom":"chr1","pos":1,"ref":"A","alt":"G"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
}

func TestPollCompleted(t *testing.T) {
	s, store, c := newTestServer()
	defer c.Shutdown(time.Second)

	key := variantkey.Key("chr2:162279995:C>G")
	store.cached[key] = annotate.Annotation{Key: key, Gene: "EGFR"}

	req := httptest.NewRequest(http.MethodGet, "/poll/chr2:162279995:C>G", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp pollResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.Annotation)
	assert.Equal(t, "EGFR", resp.Annotation.Gene)
}

func TestPollUnknownVariant(t *testing.T) {
	s, _, c := newTestServer()
	defer c.Shutdown(time.Second)

	req := httptest.NewRequest(http.MethodGet, "/poll/chr1:999:A>G", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp pollResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Status)
}

func TestHealthAndStatistics(t *testing.T) {
	s, _, c := newTestServer()
	defer c.Shutdown(time.Second)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/statistics", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statisticsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 200, resp.BatchSizeLimit)
}
