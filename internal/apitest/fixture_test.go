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

package apitest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/variant-annotator/internal/coalescer"
	"github.com/cockroachdb/variant-annotator/internal/httpapi"
)

func submit(t *testing.T, srv *httpapi.Server, chrom, pos, ref, alt string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"chrom": chrom, "pos": pos, "ref": ref, "alt": alt})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func poll(t *testing.T, srv *httpapi.Server, variantID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/poll/"+variantID, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// TestSubmitThenPollCompletesThroughRealHTTP drives one variant
// through /submit and polls until the coalescer's idle timer fires
// and the batch lands in the cache store, exercising the full submit
// -> coalesce -> upstream -> cache -> poll path through real HTTP
// requests rather than calling package internals directly.
func TestSubmitThenPollCompletesThroughRealHTTP(t *testing.T) {
	upstream := &StubUpstream{}
	fx := NewFixture(t, coalescer.Config{
		Workers:  2,
		BatchMax: 10,
		IdleWait: 20 * time.Millisecond,
		RetryMax: 3,
	}, upstream)

	rec := submit(t, fx.Server, "chr1", "12345", "A", "T")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])
	variantID, _ := body["variant_id"].(string)
	require.NotEmpty(t, variantID)

	require.Eventually(t, func() bool {
		rec := poll(t, fx.Server, variantID)
		body := decodeBody(t, rec)
		return body["status"] == "completed"
	}, time.Second, 5*time.Millisecond, "batch should dispatch once the idle timer fires")

	assert.Equal(t, 1, fx.Upstream.Calls())
	assert.Equal(t, 1, fx.Store.Count())
}

// TestSubmitSizeTriggerDispatchesWithoutWaitingForIdle confirms a
// batch reaching BatchMax dispatches immediately rather than waiting
// out the (long) idle timer.
func TestSubmitSizeTriggerDispatchesWithoutWaitingForIdle(t *testing.T) {
	upstream := &StubUpstream{}
	fx := NewFixture(t, coalescer.Config{
		Workers:  2,
		BatchMax: 2,
		IdleWait: time.Hour,
		RetryMax: 3,
	}, upstream)

	submit(t, fx.Server, "chr1", "1", "A", "T")
	submit(t, fx.Server, "chr1", "2", "A", "T")

	require.Eventually(t, func() bool {
		return fx.Upstream.Calls() == 1
	}, time.Second, 5*time.Millisecond, "a full batch must dispatch without waiting for the idle timer")
	assert.Equal(t, 2, fx.Store.Count())
}

// TestSubmitCacheHitShortCircuitsCoalescer confirms that once a
// variant's first submission has landed in the cache store, a second
// submission is reported as already annotated without being sent to
// the upstream stub again.
func TestSubmitCacheHitShortCircuitsCoalescer(t *testing.T) {
	upstream := &StubUpstream{}
	fx := NewFixture(t, coalescer.Config{
		Workers: 1, BatchMax: 10, IdleWait: 20 * time.Millisecond, RetryMax: 3,
	}, upstream)

	rec := submit(t, fx.Server, "chr1", "99", "A", "T")
	variantID := decodeBody(t, rec)["variant_id"].(string)

	require.Eventually(t, func() bool {
		r := poll(t, fx.Server, variantID)
		return decodeBody(t, r)["status"] == "completed"
	}, time.Second, 5*time.Millisecond)

	rec = submit(t, fx.Server, "chr1", "99", "A", "T")
	body := decodeBody(t, rec)
	assert.Equal(t, "failure", body["status"])
	assert.Contains(t, body["message"], "already annotated")
	assert.Equal(t, 1, upstream.Calls(), "a cached variant must not be resubmitted to upstream")
}

// TestSubmitDuplicateWhileInFlightReportsInProgress confirms a second
// submission of the same variant while its first submission is still
// buffered is reported as already in progress rather than being
// double-counted.
func TestSubmitDuplicateWhileInFlightReportsInProgress(t *testing.T) {
	upstream := &StubUpstream{}
	fx := NewFixture(t, coalescer.Config{
		Workers: 1, BatchMax: 10, IdleWait: time.Hour, RetryMax: 3,
	}, upstream)

	first := submit(t, fx.Server, "chr2", "7", "A", "T")
	require.Equal(t, "success", decodeBody(t, first)["status"])

	second := submit(t, fx.Server, "chr2", "7", "A", "T")
	body := decodeBody(t, second)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "already in progress", body["message"])
	assert.Equal(t, 0, upstream.Calls(), "a duplicate submission must not trigger another upstream call")
}

// TestSubmitRetryExhaustionReportsExceededLimit drives upstream
// failures until the retry ceiling is hit and confirms /submit starts
// reporting exceeded_limit instead of re-queuing forever.
func TestSubmitRetryExhaustionReportsExceededLimit(t *testing.T) {
	upstream := &StubUpstream{Fail: true}
	fx := NewFixture(t, coalescer.Config{
		Workers: 1, BatchMax: 1, IdleWait: time.Hour, RetryMax: 2,
	}, upstream)

	var last map[string]any
	for i := 0; i < 5; i++ {
		rec := submit(t, fx.Server, "chr3", "55", "A", "T")
		last = decodeBody(t, rec)
		if last["status"] == "failure" {
			if info, ok := last["retry_info"].(map[string]any); ok && info["exceeded_limit"] == true {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
	}

	require.Equal(t, "failure", last["status"])
	info, ok := last["retry_info"].(map[string]any)
	require.True(t, ok, "a retry-exhausted submission must carry retry_info")
	assert.Equal(t, true, info["exceeded_limit"])
}

// TestSubmitValidationRejectsMalformedTuple confirms an invalid
// (chrom, pos, ref, alt) tuple never reaches the coalescer at all.
func TestSubmitValidationRejectsMalformedTuple(t *testing.T) {
	upstream := &StubUpstream{}
	fx := NewFixture(t, coalescer.Config{
		Workers: 1, BatchMax: 10, IdleWait: time.Hour, RetryMax: 3,
	}, upstream)

	rec := submit(t, fx.Server, "not-a-chromosome", "1", "A", "T")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, upstream.Calls())
}
