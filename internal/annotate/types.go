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

// Package annotate transforms one upstream annotation-provider record
// into the normalized internal Annotation shape, invoking the scorer
// exactly once per variant.
package annotate

import "github.com/cockroachdb/variant-annotator/internal/variantkey"

// Impact is the normalized VEP-style impact enum. An invalid or
// unrecognized upstream value is replaced with ImpactNone, never
// propagated verbatim.
type Impact string

// Recognized impact levels, ordered from most to least severe.
const (
	ImpactHigh     Impact = "HIGH"
	ImpactModerate Impact = "MODERATE"
	ImpactLow      Impact = "LOW"
	ImpactModifier Impact = "MODIFIER"
	ImpactNone     Impact = ""
)

func normalizeImpact(s string) Impact {
	switch Impact(s) {
	case ImpactHigh, ImpactModerate, ImpactLow, ImpactModifier:
		return Impact(s)
	default:
		return ImpactNone
	}
}

// Loftee is the normalized LOFTEE confidence enum.
type Loftee string

// Recognized LOFTEE values.
const (
	LofteeHC   Loftee = "HC"
	LofteeLC   Loftee = "LC"
	LofteeNone Loftee = ""
)

func normalizeLoftee(s string) Loftee {
	switch Loftee(s) {
	case LofteeHC, LofteeLC:
		return Loftee(s)
	default:
		return LofteeNone
	}
}

// Transcript is one transcript-level consequence attached to an
// Annotation.
type Transcript struct {
	TranscriptID    string
	Polyphen        *float64
	ProteinNotation string
	Revel           *float64
	SpliceAI        *float64
	Mane            bool
	Loftee          Loftee
	Impact          Impact
	GERP            *float64
	CDNANotation    string
	Consequences    string
}

// Annotation is the normalized per-variant record. It owns
// its Transcripts slice; the cache store rebuilds the relationship
// through the shared variant key rather than in-memory pointers.
type Annotation struct {
	Key                   variantkey.Key
	Gene                  string
	CADD                  *float64
	MLScore               float64
	MostSevereConsequence string
	AlleleFreq            *float64
	MaxAlleleFreq         *float64
	OMIM                  string
	ClinSig               string
	Transcripts           []Transcript
}
