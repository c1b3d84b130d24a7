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

// Package upstreamclient issues the single batched annotation call
// a batch task makes to the upstream provider.
package upstreamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/variant-annotator/internal/variantkey"
	"github.com/pkg/errors"
)

// ErrUpstreamFailure wraps any non-200 response, transport error, or
// response-shape mismatch from the upstream provider.
var ErrUpstreamFailure = errors.New("upstream annotation call failed")

// requestOptions are the boolean/ string flags the coalescer always
// sends alongside a batch's variant regions.
type requestOptions struct {
	Variants     []string `json:"variants"`
	REVEL        bool     `json:"REVEL"`
	CADD         bool     `json:"CADD"`
	SpliceAI     bool     `json:"SpliceAI"`
	Protein      bool     `json:"protein"`
	GencodeBasic bool     `json:"gencode_basic"`
	LoF          bool     `json:"LoF"`
	Mane         bool     `json:"mane"`
	HGVS         bool     `json:"hgvs"`
	DBNSFP       string   `json:"dbNSFP"`
}

// Client is a thin, reused *http.Client wrapper: one long-lived
// client is constructed rather than relying on http.DefaultClient.
type Client struct {
	httpClient *http.Client
	url        string
}

// New builds a Client with the given upstream URL and per-call
// timeout.
func New(url string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}
}

// Annotate issues one POST for the given batch of variants and
// returns the raw per-variant JSON records in request order. The
// caller is responsible for matching returned records back
// to variantkey.Key values positionally.
func (c *Client) Annotate(ctx context.Context, variants []variantkey.Variant) ([]json.RawMessage, error) {
	regions := make([]string, len(variants))
	for i, v := range variants {
		regions[i] = encodeRegion(v)
	}

	body, err := json.Marshal(requestOptions{
		Variants:     regions,
		REVEL:        true,
		CADD:         true,
		SpliceAI:     true,
		Protein:      true,
		GencodeBasic: true,
		LoF:          true,
		Mane:         true,
		HGVS:         true,
		DBNSFP:       "clinvar_OMIM_id,GERP++_RS",
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshaling upstream request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building upstream request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrUpstreamFailure, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrUpstreamFailure, "status %d", resp.StatusCode)
	}

	var records []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, errors.Wrap(ErrUpstreamFailure, "decoding upstream response: "+err.Error())
	}
	if len(records) != len(variants) {
		return nil, errors.Wrapf(ErrUpstreamFailure, "expected %d records, got %d", len(variants), len(records))
	}
	return records, nil
}

// encodeRegion builds the "<chrom> <start> <end> <ref>/<alt> +"
// string for one variant, per the upstream provider's length-based
// region encoding rules.
func encodeRegion(v variantkey.Variant) string {
	start := v.Pos
	end := v.Pos

	switch {
	case len(v.Ref) == 1 && len(v.Alt) == 1:
		// SNV: start == end == pos.
	case len(v.Ref) > len(v.Alt):
		// Deletion.
		end = v.Pos + int64(len(v.Ref)) - 1
	case len(v.Alt) > len(v.Ref):
		// Insertion: start == end == pos.
	default:
		// Substitution (equal length > 1).
		end = v.Pos + int64(len(v.Ref)) - 1
	}

	return fmt.Sprintf("%s %d %d %s/%s +", v.Chrom, start, end, v.Ref, v.Alt)
}
