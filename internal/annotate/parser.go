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

package annotate

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/cockroachdb/variant-annotator/internal/obs"
	"github.com/cockroachdb/variant-annotator/internal/scorer"
	"github.com/cockroachdb/variant-annotator/internal/variantkey"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Parse transforms one upstream record into the normalized
// Annotation, invoking the scorer exactly once. raw is
// the exact bytes returned by the upstream provider for this variant;
// it is decoded twice - once into the typed UpstreamRecord used for
// every field mapping below, and once into a free-form map used only
// to build the ML input (the scorer's contract requires an
// upstream-shaped payload, not our normalized struct).
//
// A scorer failure does not abort parsing: FallbackScore is recorded
// and the error is logged.
func Parse(ctx context.Context, key variantkey.Key, raw json.RawMessage, s scorer.Scorer) (Annotation, error) {
	rec, err := decodeUpstreamRecord(raw)
	if err != nil {
		return Annotation{}, errors.Wrap(err, "decoding upstream record")
	}

	ann := Annotation{Key: key, MostSevereConsequence: rec.MostSevereConsequence}

	if len(rec.TranscriptConsequences) > 0 {
		first := rec.TranscriptConsequences[0]
		ann.CADD = first.CaddPhred
		ann.Gene = first.GeneSymbol
	}

	for _, cv := range rec.ColocatedVariants {
		// The first reported allele is picked deterministically (JSON
		// object key order, preserved by AlleleFrequencies), mirroring
		// the Python ground truth's "for allele, freq_data in
		// colocated['frequencies'].items(): ...; break" instead of
		// Go's randomized map iteration.
		if len(cv.Frequencies) > 0 && ann.AlleleFreq == nil {
			freq := cv.Frequencies[0].Data
			switch {
			case freq.GnomadG != nil:
				v := *freq.GnomadG
				ann.AlleleFreq = &v
			case freq.AF != nil:
				v := *freq.AF
				ann.AlleleFreq = &v
			}
			if v, ok := freq.Max(); ok {
				ann.MaxAlleleFreq = &v
			}
		}
		if sig := cv.ClinSig.Join(); sig != "" && ann.ClinSig == "" {
			ann.ClinSig = sig
		}
	}

	ann.OMIM = extractOMIM(rec.TranscriptConsequences)

	ann.Transcripts = make([]Transcript, 0, len(rec.TranscriptConsequences))
	for _, tc := range rec.TranscriptConsequences {
		ann.Transcripts = append(ann.Transcripts, Transcript{
			TranscriptID:    tc.TranscriptID,
			Polyphen:        tc.PolyphenScore,
			ProteinNotation: hgvsSuffix(tc.HGVSp),
			Revel:           tc.Revel,
			SpliceAI:        maxSpliceAI(tc.SpliceAI),
			Mane:            len(tc.Mane) > 0,
			Loftee:          normalizeLoftee(tc.Lof),
			Impact:          normalizeImpact(tc.Impact),
			GERP:            tc.GerpRS,
			CDNANotation:    hgvsSuffix(tc.HGVSc),
			Consequences:    strings.Join(tc.ConsequenceTerms, ","),
		})
	}

	mlInput, err := buildMLInput(raw)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("could not build ML input, using fallback score")
		ann.MLScore = scorer.FallbackScore
		obs.ScorerFallbackTotal.Inc()
		return ann, nil
	}

	score, err := s.Score(ctx, mlInput)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("scorer failed, using fallback score")
		ann.MLScore = scorer.FallbackScore
		obs.ScorerFallbackTotal.Inc()
		return ann, nil
	}
	ann.MLScore = score

	return ann, nil
}

// extractOMIM returns the first non-empty clinvar_omim_id across
// transcripts. Values are "&"-delimited in the upstream response; this
// splits them and re-joins with "," for storage.
func extractOMIM(tcs []TranscriptConsequence) string {
	for _, tc := range tcs {
		if tc.ClinvarOMIMID == "" {
			continue
		}
		parts := strings.Split(tc.ClinvarOMIMID, "&")
		kept := parts[:0]
		for _, p := range parts {
			if p != "" {
				kept = append(kept, p)
			}
		}
		if len(kept) > 0 {
			return strings.Join(kept, ",")
		}
	}
	return ""
}

// hgvsSuffix returns the portion of an hgvsc/hgvsp value after its
// first colon, or "" if the value is empty.
func hgvsSuffix(hgvs string) string {
	idx := strings.IndexByte(hgvs, ':')
	if idx < 0 {
		return ""
	}
	return hgvs[idx+1:]
}

// maxSpliceAI returns the maximum of the absolute values of the four
// SpliceAI delta scores, or nil if none are present.
func maxSpliceAI(s *SpliceAIScores) *float64 {
	if s == nil {
		return nil
	}
	var max float64
	found := false
	for _, v := range []*float64{s.DSAG, s.DSAL, s.DSDG, s.DSDL} {
		if v == nil {
			continue
		}
		abs := math.Abs(*v)
		if !found || abs > max {
			max = abs
			found = true
		}
	}
	if !found {
		return nil
	}
	return &max
}

// buildMLInput copies the upstream record and strips a leading "chr"
// from seq_region_name and input, the only two mutations the ML
// contract permits. The strip only applies when the field actually
// carries the prefix.
func buildMLInput(raw json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if v, ok := m["seq_region_name"].(string); ok {
		m["seq_region_name"] = strings.TrimPrefix(v, "chr")
	}
	if v, ok := m["input"].(string); ok {
		m["input"] = strings.TrimPrefix(v, "chr")
	}
	return m, nil
}
