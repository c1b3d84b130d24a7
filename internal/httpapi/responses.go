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

package httpapi

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/variant-annotator/internal/annotate"
	"github.com/cockroachdb/variant-annotator/internal/variantkey"
)

// flexibleString unmarshals either a JSON string or a JSON number into
// a Go string, since clients reasonably send "pos" as either.
type flexibleString string

func (f *flexibleString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleString(n.String())
	return nil
}

// submitRequest is the body of POST /submit.
// variantkey.Parse does the actual numeric validation of Pos.
type submitRequest struct {
	Chrom string         `json:"chrom"`
	Pos   flexibleString `json:"pos"`
	Ref   string         `json:"ref"`
	Alt   string         `json:"alt"`
}

// retryInfo is the retry_info object included in submit/poll responses.
type retryInfo struct {
	CurrentRetries int  `json:"current_retries"`
	MaxRetries     int  `json:"max_retries"`
	ExceededLimit  bool `json:"exceeded_limit"`
}

type submitResponse struct {
	Status    string     `json:"status"`
	VariantID string     `json:"variant_id,omitempty"`
	Message   string     `json:"message,omitempty"`
	RetryInfo *retryInfo `json:"retry_info,omitempty"`
}

type pollResponse struct {
	Status     string             `json:"status"`
	Source     string             `json:"source,omitempty"`
	Annotation *annotationPayload `json:"annotation,omitempty"`
	RetryInfo  *retryInfo         `json:"retry_info,omitempty"`
}

// transcriptPayload is the wire shape of one transcript consequence.
type transcriptPayload struct {
	TranscriptID    string   `json:"transcript_id"`
	Polyphen        *float64 `json:"polyphen"`
	ProteinNotation string   `json:"protein_notation"`
	REVEL           *float64 `json:"REVEL"`
	SpliceAI        *float64 `json:"Splice_AI"`
	Mane            bool     `json:"Mane"`
	LOFTEE          string   `json:"LOFTEE"`
	Impact          string   `json:"impact"`
	GERP            *float64 `json:"GERP"`
	CDNANotation    string   `json:"cDNA_notation"`
	Consequences    string   `json:"consequences"`
}

// annotationPayload is the wire shape of a completed annotation.
type annotationPayload struct {
	Gene                  string              `json:"gene"`
	CADD                  *float64            `json:"CADD"`
	MLScore               float64             `json:"ML_score"`
	MostSevereConsequence string              `json:"most_severe_consequence"`
	AlleleFreq            *float64            `json:"allele_freq"`
	MaxAlleleFreq         *float64            `json:"max_allele_freq"`
	OMIM                  string              `json:"OMIM"`
	ClinSig               string              `json:"CLINSIG"`
	Transcripts           []transcriptPayload `json:"transcripts"`
}

func toAnnotationPayload(ann annotate.Annotation) *annotationPayload {
	transcripts := make([]transcriptPayload, len(ann.Transcripts))
	for i, t := range ann.Transcripts {
		transcripts[i] = transcriptPayload{
			TranscriptID:    t.TranscriptID,
			Polyphen:        t.Polyphen,
			ProteinNotation: t.ProteinNotation,
			REVEL:           t.Revel,
			SpliceAI:        t.SpliceAI,
			Mane:            t.Mane,
			LOFTEE:          string(t.Loftee),
			Impact:          string(t.Impact),
			GERP:            t.GERP,
			CDNANotation:    t.CDNANotation,
			Consequences:    t.Consequences,
		}
	}
	return &annotationPayload{
		Gene:                  ann.Gene,
		CADD:                  ann.CADD,
		MLScore:               ann.MLScore,
		MostSevereConsequence: ann.MostSevereConsequence,
		AlleleFreq:            ann.AlleleFreq,
		MaxAlleleFreq:         ann.MaxAlleleFreq,
		OMIM:                  ann.OMIM,
		ClinSig:               ann.ClinSig,
		Transcripts:           transcripts,
	}
}

type healthResponse struct {
	Status          string `json:"status"`
	Service         string `json:"service"`
	InProgressCount int    `json:"in_progress_count"`
}

type statisticsResponse struct {
	InProgressCount int              `json:"in_progress_count"`
	BatchSizeLimit  int              `json:"batch_size_limit"`
	BatchTimeLimit  float64          `json:"batch_time_limit"`
	InProgress      []variantkey.Key `json:"in_progress_variants"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("could not encode response body")
	}
}
