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

package cachestore

import (
	"context"

	"github.com/pkg/errors"
)

// schemaStatements creates the annotations/transcripts relations.
// row_order on transcripts preserves upstream response order, since
// SQL result order is otherwise unspecified without it.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS annotations (
		variant_key             VARCHAR(255) PRIMARY KEY,
		gene                    VARCHAR(64)  NOT NULL DEFAULT '',
		CADD                    DOUBLE       NULL,
		ML_score                DOUBLE       NOT NULL DEFAULT 0,
		most_severe_consequence VARCHAR(128) NOT NULL DEFAULT '',
		allele_freq             DOUBLE       NULL,
		max_allele_freq         DOUBLE       NULL,
		OMIM                    VARCHAR(255) NOT NULL DEFAULT '',
		CLINSIG                 VARCHAR(128) NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS transcripts (
		variant_key      VARCHAR(255) NOT NULL,
		row_order        INT          NOT NULL,
		transcript_id    VARCHAR(64)  NOT NULL DEFAULT '',
		polyphen         DOUBLE       NULL,
		protein_notation VARCHAR(255) NOT NULL DEFAULT '',
		REVEL            DOUBLE       NULL,
		Splice_AI        DOUBLE       NULL,
		Mane             BOOLEAN      NOT NULL DEFAULT FALSE,
		LOFTEE           VARCHAR(2)   NOT NULL DEFAULT '',
		impact           VARCHAR(8)   NOT NULL DEFAULT '',
		GERP             DOUBLE       NULL,
		cDNA_notation    VARCHAR(255) NOT NULL DEFAULT '',
		consequences     VARCHAR(255) NOT NULL DEFAULT '',
		PRIMARY KEY (variant_key, row_order),
		FOREIGN KEY (variant_key) REFERENCES annotations(variant_key) ON DELETE CASCADE
	)`,
}

// Migrate creates the Annotation/Transcript tables if absent. It is
// invoked by the "migrate" CLI subcommand, never implicitly by Open.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(ErrCacheUnavailable, err.Error())
		}
	}
	return nil
}
