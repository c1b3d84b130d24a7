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

//go:build wireinject

package wiring

import (
	"context"

	"github.com/google/wire"

	"github.com/cockroachdb/variant-annotator/internal/config"
	"github.com/cockroachdb/variant-annotator/internal/httpapi"
)

// Set is used by Wire.
var Set = wire.NewSet(
	ProvideCacheStore,
	ProvideUpstreamClient,
	ProvideScorer,
	ProvideCoalescer,
	ProvideServer,
)

// InitializeServer is the wire injector; its body is replaced by
// generated code. See wire_gen.go for the hand-authored equivalent
// used since go:generate wire is not run in this build.
func InitializeServer(ctx context.Context, cfg *config.Config) (*httpapi.Server, error) {
	wire.Build(Set)
	return nil, nil
}
