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

package scorer

import (
	"context"
	"strings"
)

// impactWeight and clinSigWeight mirror the feature weighting used by
// the out-of-scope RandomForest model's training features, without
// requiring the model itself: they give a deterministic, pure-Go
// stand-in that downstream consumers can swap out via the Scorer
// interface.
var impactWeight = map[string]float64{
	"HIGH":     1,
	"MODERATE": 0.5,
	"LOW":      0.25,
	"MODIFIER": 0.1,
}

var clinSigWeight = map[string]float64{
	"pathogenic":                   1,
	"pathogenic/likely_pathogenic": 1,
	"likely_pathogenic":            0.75,
	"uncertain_significance":       0.5,
	"likely_benign":                0.25,
	"benign":                       0,
	"benign/likely_benign":         0,
}

// Heuristic is a deterministic, dependency-free Scorer used when no
// external model endpoint is configured. It never errors.
type Heuristic struct{}

// Score implements Scorer.
func (Heuristic) Score(_ context.Context, mlInput map[string]any) (float64, error) {
	var total, count float64

	if tcs, ok := mlInput["transcript_consequences"].([]any); ok {
		for _, tc := range tcs {
			m, ok := tc.(map[string]any)
			if !ok {
				continue
			}
			impact, _ := m["impact"].(string)
			if w, ok := impactWeight[strings.ToUpper(impact)]; ok {
				total += w
				count++
			}
		}
	}

	if cvs, ok := mlInput["colocated_variants"].([]any); ok {
		for _, cv := range cvs {
			m, ok := cv.(map[string]any)
			if !ok {
				continue
			}
			clinSig, _ := m["clin_sig"].(string)
			if w, ok := clinSigWeight[strings.ToLower(clinSig)]; ok {
				total += w
				count++
			}
		}
	}

	if count == 0 {
		return FallbackScore, nil
	}
	return total / count, nil
}
