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
	"errors"
	"testing"

	"github.com/cockroachdb/variant-annotator/internal/scorer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRecord = `{
	"input": "chr7 140753336 140753336 A/T 1",
	"seq_region_name": "chr7",
	"most_severe_consequence": "missense_variant",
	"transcript_consequences": [
		{
			"transcript_id": "ENST00000288602",
			"gene_symbol": "BRAF",
			"cadd_phred": 32.0,
			"impact": "MODERATE",
			"polyphen_score": 0.9,
			"revel": 0.8,
			"gerp++_rs": 5.1,
			"lof": "HC",
			"mane": ["NM_004333.6"],
			"hgvsc": "ENST00000288602.6:c.1799T>A",
			"hgvsp": "ENSP00000288602.6:p.Val600Glu",
			"consequence_terms": ["missense_variant"],
			"spliceai": {"DS_AG": 0.01, "DS_AL": -0.2, "DS_DG": 0.05, "DS_DL": 0.0},
			"clinvar_omim_id": "164757&115150"
		},
		{
			"transcript_id": "ENST00000496384",
			"gene_symbol": "BRAF",
			"impact": "bogus_impact",
			"lof": "bogus_lof",
			"consequence_terms": ["intron_variant"]
		}
	],
	"colocated_variants": [
		{
			"frequencies": {"A": {"gnomadg": 0.0001, "af": 0.0002, "eas": 0.0003}},
			"clin_sig": "pathogenic"
		}
	]
}`

func TestParseExtractsCoreFields(t *testing.T) {
	ann, err := Parse(context.Background(), "chr7:140753336:A>T", json.RawMessage(sampleRecord), scorer.Heuristic{})
	require.NoError(t, err)

	assert.Equal(t, "BRAF", ann.Gene)
	require.NotNil(t, ann.CADD)
	assert.Equal(t, 32.0, *ann.CADD)
	assert.Equal(t, "missense_variant", ann.MostSevereConsequence)
	assert.Equal(t, "pathogenic", ann.ClinSig)
	assert.Equal(t, "164757,115150", ann.OMIM)

	require.NotNil(t, ann.AlleleFreq)
	assert.Equal(t, 0.0001, *ann.AlleleFreq)
	require.NotNil(t, ann.MaxAlleleFreq)
	assert.Equal(t, 0.0003, *ann.MaxAlleleFreq)
}

func TestParseTranscriptNormalization(t *testing.T) {
	ann, err := Parse(context.Background(), "chr7:140753336:A>T", json.RawMessage(sampleRecord), scorer.Heuristic{})
	require.NoError(t, err)
	require.Len(t, ann.Transcripts, 2)

	first := ann.Transcripts[0]
	assert.Equal(t, ImpactModerate, first.Impact)
	assert.Equal(t, LofteeHC, first.Loftee)
	assert.Equal(t, "c.1799T>A", first.CDNANotation)
	assert.Equal(t, "p.Val600Glu", first.ProteinNotation)
	assert.True(t, first.Mane)
	require.NotNil(t, first.SpliceAI)
	assert.Equal(t, 0.2, *first.SpliceAI)

	second := ann.Transcripts[1]
	assert.Equal(t, ImpactNone, second.Impact, "unrecognized impact must normalize to none, not pass through")
	assert.Equal(t, LofteeNone, second.Loftee, "unrecognized lof must normalize to none, not pass through")
	assert.False(t, second.Mane)
	assert.Nil(t, second.SpliceAI)
}

func TestParseNoTranscriptsNoColocated(t *testing.T) {
	raw := `{"input": "chr1 1 1 A/T 1", "seq_region_name": "chr1", "most_severe_consequence": "intergenic_variant"}`
	ann, err := Parse(context.Background(), "chr1:1:A>T", json.RawMessage(raw), scorer.Heuristic{})
	require.NoError(t, err)
	assert.Nil(t, ann.CADD)
	assert.Empty(t, ann.Gene)
	assert.Empty(t, ann.OMIM)
	assert.Nil(t, ann.AlleleFreq)
	assert.Equal(t, scorer.FallbackScore, ann.MLScore, "no weighted signal should fall back")
}

func TestParseScorerFailureFallsBack(t *testing.T) {
	failing := scorer.Func(func(context.Context, map[string]any) (float64, error) {
		return 0, errors.New("model unavailable")
	})
	ann, err := Parse(context.Background(), "chr7:140753336:A>T", json.RawMessage(sampleRecord), failing)
	require.NoError(t, err, "a scorer failure must not abort parsing")
	assert.Equal(t, scorer.FallbackScore, ann.MLScore)
}

func TestParseMLInputStripsChrPrefixOnly(t *testing.T) {
	var seen map[string]any
	capturing := scorer.Func(func(_ context.Context, mlInput map[string]any) (float64, error) {
		seen = mlInput
		return 0.5, nil
	})
	_, err := Parse(context.Background(), "chr7:140753336:A>T", json.RawMessage(sampleRecord), capturing)
	require.NoError(t, err)
	assert.Equal(t, "7 140753336 140753336 A/T 1", seen["input"])
	assert.Equal(t, "7", seen["seq_region_name"])
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse(context.Background(), "chr1:1:A>T", json.RawMessage(`not json`), scorer.Heuristic{})
	require.Error(t, err)
}

// TestParseClinSigArray confirms a list-typed clin_sig (the shape VEP
// actually reports, not the plain-string shape sampleRecord uses)
// decodes without erroring out the whole record and joins its values
// the way extractOMIM joins multi-value OMIM IDs.
func TestParseClinSigArray(t *testing.T) {
	raw := `{
		"input": "chr1 1 1 A/T 1",
		"seq_region_name": "chr1",
		"colocated_variants": [
			{"clin_sig": ["pathogenic", "risk_factor"]}
		]
	}`
	ann, err := Parse(context.Background(), "chr1:1:A>T", json.RawMessage(raw), scorer.Heuristic{})
	require.NoError(t, err, "an array-typed clin_sig must not fail the whole record")
	assert.Equal(t, "pathogenic,risk_factor", ann.ClinSig)
}

// TestParseFrequenciesFirstAlleleIsDeterministic confirms that when a
// colocated variant reports more than one allele's frequencies, the
// one used for allele_freq/max_allele_freq is the first one reported
// in the JSON, not whichever Go's map iteration happens to visit
// first.
func TestParseFrequenciesFirstAlleleIsDeterministic(t *testing.T) {
	raw := `{
		"input": "chr1 1 1 A/T 1",
		"seq_region_name": "chr1",
		"colocated_variants": [
			{"frequencies": {"T": {"af": 0.9}, "A": {"af": 0.1}, "G": {"af": 0.5}}}
		]
	}`
	for i := 0; i < 10; i++ {
		ann, err := Parse(context.Background(), "chr1:1:A>T", json.RawMessage(raw), scorer.Heuristic{})
		require.NoError(t, err)
		require.NotNil(t, ann.AlleleFreq)
		assert.Equal(t, 0.9, *ann.AlleleFreq, "must always pick the first-reported allele (T), not a random one")
	}
}
