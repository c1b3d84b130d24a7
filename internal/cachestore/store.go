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

// Package cachestore is the relational cache of completed annotation
// records, keyed by variant key. It is the single source
// of truth for a completed annotation: exists/read are cache-only
// lookups, and bulk_upsert is the sole write path, always called with
// an entire batch's worth of results inside one transaction.
package cachestore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/go-sql-driver/mysql" // register driver
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/variant-annotator/internal/annotate"
	"github.com/cockroachdb/variant-annotator/internal/variantkey"
)

// ErrCacheUnavailable wraps any failure reaching or writing to the
// underlying store.
var ErrCacheUnavailable = errors.New("cache unavailable")

// Store is the MySQL-backed cache of Annotation/Transcript rows.
type Store struct {
	db *sql.DB
}

// Config names the connection parameters for the DB connection
// (host, port, user, password, database).
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Open builds the DSN from Config and opens a connection pool,
// with a single sql.Open call, a startup ping-retry loop, and a
// version probe logged once on success.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	u := &url.URL{
		User: url.UserPassword(cfg.User, cfg.Password),
		Host: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path: "/" + cfg.Database,
	}
	dsn := fmt.Sprintf("%s@tcp(%s)%s?parseTime=true&multiStatements=true", u.User.String(), u.Host, u.Path)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(ErrCacheUnavailable, err.Error())
	}

	const maxStartupWait = 30 * time.Second
	deadline := time.Now().Add(maxStartupWait)
	var pingErr error
	for {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			break
		}
		if time.Now().After(deadline) {
			return nil, errors.Wrap(ErrCacheUnavailable, pingErr.Error())
		}
		log.WithError(pingErr).Info("waiting for cache database to become ready")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	var version string
	if err := db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return nil, errors.Wrap(ErrCacheUnavailable, err.Error())
	}
	log.WithField("version", version).Info("connected to cache database")

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Exists reports whether a completed annotation is present for key.
func (s *Store) Exists(ctx context.Context, key variantkey.Key) (bool, error) {
	var dummy int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM annotations WHERE variant_key = ?`, string(key)).Scan(&dummy)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, errors.Wrap(ErrCacheUnavailable, err.Error())
	default:
		return true, nil
	}
}

// Read returns the parent row joined with its transcript children, or
// ok=false if key is absent.
func (s *Store) Read(ctx context.Context, key variantkey.Key) (annotate.Annotation, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT gene, CADD, ML_score, most_severe_consequence, allele_freq, max_allele_freq, OMIM, CLINSIG
		FROM annotations WHERE variant_key = ?`, string(key))

	var ann annotate.Annotation
	ann.Key = key
	if err := row.Scan(&ann.Gene, &ann.CADD, &ann.MLScore, &ann.MostSevereConsequence,
		&ann.AlleleFreq, &ann.MaxAlleleFreq, &ann.OMIM, &ann.ClinSig); err != nil {
		if err == sql.ErrNoRows {
			return annotate.Annotation{}, false, nil
		}
		return annotate.Annotation{}, false, errors.Wrap(ErrCacheUnavailable, err.Error())
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transcript_id, polyphen, protein_notation, REVEL, Splice_AI, Mane, LOFTEE, impact, GERP, cDNA_notation, consequences
		FROM transcripts WHERE variant_key = ? ORDER BY row_order`, string(key))
	if err != nil {
		return annotate.Annotation{}, false, errors.Wrap(ErrCacheUnavailable, err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		var t annotate.Transcript
		var loftee, impact string
		if err := rows.Scan(&t.TranscriptID, &t.Polyphen, &t.ProteinNotation, &t.Revel, &t.SpliceAI,
			&t.Mane, &loftee, &impact, &t.GERP, &t.CDNANotation, &t.Consequences); err != nil {
			return annotate.Annotation{}, false, errors.Wrap(ErrCacheUnavailable, err.Error())
		}
		t.Loftee = annotate.Loftee(loftee)
		t.Impact = annotate.Impact(impact)
		ann.Transcripts = append(ann.Transcripts, t)
	}
	if err := rows.Err(); err != nil {
		return annotate.Annotation{}, false, errors.Wrap(ErrCacheUnavailable, err.Error())
	}

	return ann, true, nil
}

// BulkUpsert writes an entire batch's annotations atomically. On
// variant_key conflict in the parent relation,
// CADD, ML_score, most_severe_consequence, and CLINSIG - the
// volatile, per-run columns - are overwritten; gene, allele_freq,
// max_allele_freq, and OMIM - definitional rather than scoring-run
// specific - retain their first-written value (documented deviation,
// DESIGN.md). Children are replaced wholesale per key within the same
// transaction so re-submission never duplicates transcript rows.
func (s *Store) BulkUpsert(ctx context.Context, anns []annotate.Annotation) error {
	if len(anns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(ErrCacheUnavailable, err.Error())
	}
	defer tx.Rollback()

	const parentUpsert = `
		INSERT INTO annotations
			(variant_key, gene, CADD, ML_score, most_severe_consequence, allele_freq, max_allele_freq, OMIM, CLINSIG)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			CADD = VALUES(CADD),
			ML_score = VALUES(ML_score),
			most_severe_consequence = VALUES(most_severe_consequence),
			CLINSIG = VALUES(CLINSIG)`

	for _, ann := range anns {
		if _, err := tx.ExecContext(ctx, parentUpsert,
			string(ann.Key), ann.Gene, ann.CADD, ann.MLScore, ann.MostSevereConsequence,
			ann.AlleleFreq, ann.MaxAlleleFreq, ann.OMIM, ann.ClinSig); err != nil {
			return errors.Wrap(ErrCacheUnavailable, err.Error())
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM transcripts WHERE variant_key = ?`, string(ann.Key)); err != nil {
			return errors.Wrap(ErrCacheUnavailable, err.Error())
		}

		for i, t := range ann.Transcripts {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transcripts
					(variant_key, row_order, transcript_id, polyphen, protein_notation, REVEL, Splice_AI, Mane, LOFTEE, impact, GERP, cDNA_notation, consequences)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				string(ann.Key), i, t.TranscriptID, t.Polyphen, t.ProteinNotation, t.Revel, t.SpliceAI,
				t.Mane, string(t.Loftee), string(t.Impact), t.GERP, t.CDNANotation, t.Consequences); err != nil {
				return errors.Wrap(ErrCacheUnavailable, err.Error())
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(ErrCacheUnavailable, err.Error())
	}
	return nil
}
