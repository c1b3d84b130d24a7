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
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// UpstreamRecord is the typed shape of one element of the upstream
// annotation provider's response array.
// Every field actually consumed by the parser has a name and a type
// here rather than being read out of a free-form map.
type UpstreamRecord struct {
	Input                  string                  `json:"input"`
	SeqRegionName          string                  `json:"seq_region_name"`
	MostSevereConsequence  string                  `json:"most_severe_consequence"`
	TranscriptConsequences []TranscriptConsequence `json:"transcript_consequences"`
	ColocatedVariants      []ColocatedVariant      `json:"colocated_variants"`
}

// TranscriptConsequence is one entry of the upstream
// transcript_consequences array.
type TranscriptConsequence struct {
	TranscriptID     string          `json:"transcript_id"`
	GeneSymbol       string          `json:"gene_symbol"`
	CaddPhred        *float64        `json:"cadd_phred"`
	Impact           string          `json:"impact"`
	PolyphenScore    *float64        `json:"polyphen_score"`
	Revel            *float64        `json:"revel"`
	GerpRS           *float64        `json:"gerp++_rs"`
	Lof              string          `json:"lof"`
	Mane             []string        `json:"mane"`
	HGVSc            string          `json:"hgvsc"`
	HGVSp            string          `json:"hgvsp"`
	ConsequenceTerms []string        `json:"consequence_terms"`
	SpliceAI         *SpliceAIScores `json:"spliceai"`
	ClinvarOMIMID    string          `json:"clinvar_omim_id"`
}

// SpliceAIScores carries the four delta scores the upstream provider
// reports for SpliceAI; Splice_AI is the max of their absolute values.
type SpliceAIScores struct {
	DSAG *float64 `json:"DS_AG"`
	DSAL *float64 `json:"DS_AL"`
	DSDG *float64 `json:"DS_DG"`
	DSDL *float64 `json:"DS_DL"`
}

// ColocatedVariant is one entry of the upstream colocated_variants
// array, used to derive allele frequencies and clinical significance.
// clin_sig is reported by the upstream provider as either a bare
// string or a list of strings depending on the variant, so ClinSig
// uses a tolerant custom type rather than a plain string field.
type ColocatedVariant struct {
	Frequencies AlleleFrequencies `json:"frequencies"`
	ClinSig     ClinSigField      `json:"clin_sig"`
}

// AlleleFrequencies is the upstream "frequencies" object, keyed by
// allele. It preserves JSON object key order (object-key order is
// otherwise lost decoding straight into a Go map) so that "the first
// reported allele" is a deterministic, repeatable choice rather than
// one driven by Go's randomized map iteration.
type AlleleFrequencies []AlleleFrequencyEntry

// AlleleFrequencyEntry is one (allele, frequency data) pair, in the
// order the upstream response reported it.
type AlleleFrequencyEntry struct {
	Allele string
	Data   FrequencyData
}

// UnmarshalJSON decodes a JSON object into order-preserving entries.
func (a *AlleleFrequencies) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("annotate: expected frequencies object, got %v", tok)
	}

	var out AlleleFrequencies
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("annotate: expected string allele key, got %v", keyTok)
		}
		var fd FrequencyData
		if err := dec.Decode(&fd); err != nil {
			return err
		}
		out = append(out, AlleleFrequencyEntry{Allele: key, Data: fd})
	}
	*a = out
	return nil
}

// FrequencyData is the per-allele frequency shape reported by the
// upstream provider: named fields for the two populations the parser
// special-cases (GnomadG, AF), and Others for every additional numeric
// population frequency actually present, used only to compute
// max_allele_freq.
type FrequencyData struct {
	GnomadG *float64
	AF      *float64
	Others  []float64
}

// UnmarshalJSON pulls "gnomadg" and "af" into their named fields and
// every other numeric value into Others.
func (f *FrequencyData) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		v := v
		switch k {
		case "gnomadg":
			f.GnomadG = &v
		case "af":
			f.AF = &v
		default:
			f.Others = append(f.Others, v)
		}
	}
	return nil
}

// Max returns the maximum of every numeric frequency present
// (GnomadG, AF, and Others), or ok = false if none are present.
func (f FrequencyData) Max() (float64, bool) {
	var max float64
	found := false
	consider := func(v float64) {
		if !found || v > max {
			max = v
			found = true
		}
	}
	if f.GnomadG != nil {
		consider(*f.GnomadG)
	}
	if f.AF != nil {
		consider(*f.AF)
	}
	for _, v := range f.Others {
		consider(v)
	}
	return max, found
}

// ClinSigField tolerates the upstream provider reporting clin_sig as
// either a bare string or a list of strings. Join renders it for
// storage the same way extractOMIM joins multi-value OMIM IDs.
type ClinSigField []string

// UnmarshalJSON accepts a JSON string or a JSON array of strings.
func (c *ClinSigField) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*c = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*c = nil
		return nil
	}
	*c = []string{s}
	return nil
}

// Join comma-joins the reported clinical-significance values.
func (c ClinSigField) Join() string {
	return strings.Join(c, ",")
}

// decodeUpstreamRecord parses one element of the upstream response
// array into its typed form.
func decodeUpstreamRecord(raw json.RawMessage) (UpstreamRecord, error) {
	var rec UpstreamRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return UpstreamRecord{}, err
	}
	return rec, nil
}
