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

// Package scorer provides the thin, error-isolating wrapper around
// the ML pathogenicity scoring model. The model itself is
// an out-of-scope external collaborator; this package only defines
// the contract and a documented fallback.
package scorer

import "context"

// FallbackScore is recorded when the scorer fails for a given
// variant; the failure is logged but does not abort batch processing
// when the model call fails.
const FallbackScore = 0.75

// Scorer computes a pathogenicity score for one ML input record. A
// Scorer must never mutate the map it is given and may be called
// concurrently from multiple batch workers.
type Scorer interface {
	Score(ctx context.Context, mlInput map[string]any) (float64, error)
}

// Func adapts a plain function to the Scorer interface.
type Func func(ctx context.Context, mlInput map[string]any) (float64, error)

// Score implements Scorer.
func (f Func) Score(ctx context.Context, mlInput map[string]any) (float64, error) {
	return f(ctx, mlInput)
}
