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

// Package wiring assembles the coalescer, cache store, upstream
// client, and HTTP surface from a config.Config, using the same
// wire.NewSet provider-set convention as the rest of this codebase.
package wiring

import (
	"context"

	"github.com/cockroachdb/variant-annotator/internal/cachestore"
	"github.com/cockroachdb/variant-annotator/internal/coalescer"
	"github.com/cockroachdb/variant-annotator/internal/config"
	"github.com/cockroachdb/variant-annotator/internal/httpapi"
	"github.com/cockroachdb/variant-annotator/internal/scorer"
	"github.com/cockroachdb/variant-annotator/internal/upstreamclient"
)

// ProvideCacheStore opens the cache store named by cfg.
func ProvideCacheStore(ctx context.Context, cfg *config.Config) (*cachestore.Store, error) {
	return cachestore.Open(ctx, cachestore.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
	})
}

// ProvideUpstreamClient builds the upstream annotation call client.
func ProvideUpstreamClient(cfg *config.Config) *upstreamclient.Client {
	return upstreamclient.New(cfg.UpstreamURL, cfg.UpstreamTimeout)
}

// ProvideScorer selects the scorer implementation.
func ProvideScorer() scorer.Scorer {
	return scorer.Heuristic{}
}

// ProvideCoalescer assembles the batch coalescer.
func ProvideCoalescer(
	cfg *config.Config, upstream *upstreamclient.Client, store *cachestore.Store, s scorer.Scorer,
) *coalescer.Coalescer {
	return coalescer.New(coalescer.Config{
		Workers:  cfg.Workers,
		BatchMax: cfg.BatchMax,
		IdleWait: cfg.IdleWait,
		RetryMax: cfg.RetryMax,
	}, upstream, store, s)
}

// ProvideServer assembles the HTTP surface.
func ProvideServer(c *coalescer.Coalescer, store *cachestore.Store) *httpapi.Server {
	return httpapi.New(c, store)
}
