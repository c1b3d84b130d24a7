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

//go:build !wireinject

package wiring

import (
	"context"

	"github.com/cockroachdb/variant-annotator/internal/config"
	"github.com/cockroachdb/variant-annotator/internal/httpapi"
)

// InitializeServer assembles the HTTP surface from a config.Config,
// the hand-written equivalent of what `wire` would generate from
// wire.go's injector (not run through wire's codegen in this build).
func InitializeServer(ctx context.Context, cfg *config.Config) (*httpapi.Server, error) {
	store, err := ProvideCacheStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	upstream := ProvideUpstreamClient(cfg)
	s := ProvideScorer()
	c := ProvideCoalescer(cfg, upstream, store, s)
	server := ProvideServer(c, store)
	return server, nil
}
