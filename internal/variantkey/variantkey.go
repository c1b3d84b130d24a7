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

// Package variantkey canonicalizes (chrom, pos, ref, alt) tuples into
// the opaque key string used throughout the cache, the coalescer, and
// the HTTP surface.
package variantkey

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidInput is wrapped by every validation failure returned from
// this package.
var ErrInvalidInput = errors.New("invalid variant input")

var (
	chromPattern = regexp.MustCompile(`(?i)^chr(?:[1-9]|1[0-9]|2[0-3]|X|Y|M|MT)$`)
	basePattern  = regexp.MustCompile(`(?i)^[ACGT]+$`)
)

// Key is the canonical, opaque identifier for a variant: it has the
// shape "chrom:pos:ref>alt" with chrom written as a lower-case "chr"
// prefix followed by an upper-case suffix, and the bases folded to
// upper case. Two tuples that describe the same variant always produce the
// same Key.
type Key string

// Variant is the validated, canonicalized form of a submitted tuple.
type Variant struct {
	Chrom string
	Pos   int64
	Ref   string
	Alt   string
}

// Canonicalize validates the raw (chrom, pos, ref, alt) tuple and
// returns its canonical Key. pos is accepted as a string so that
// callers decoding untyped JSON don't need to pre-validate its type.
func Canonicalize(chrom string, pos string, ref string, alt string) (Key, error) {
	v, err := Parse(chrom, pos, ref, alt)
	if err != nil {
		return "", err
	}
	return v.Key(), nil
}

// Parse validates the raw tuple and returns the canonicalized Variant.
func Parse(chrom string, pos string, ref string, alt string) (Variant, error) {
	if !chromPattern.MatchString(chrom) {
		return Variant{}, errors.Wrapf(ErrInvalidInput, "invalid chromosome %q", chrom)
	}
	posNum, err := strconv.ParseInt(pos, 10, 64)
	if err != nil || posNum <= 0 {
		return Variant{}, errors.Wrapf(ErrInvalidInput, "invalid position %q", pos)
	}
	if !basePattern.MatchString(ref) {
		return Variant{}, errors.Wrapf(ErrInvalidInput, "invalid ref allele %q", ref)
	}
	if !basePattern.MatchString(alt) {
		return Variant{}, errors.Wrapf(ErrInvalidInput, "invalid alt allele %q", alt)
	}

	return Variant{
		Chrom: canonicalChrom(chrom),
		Pos:   posNum,
		Ref:   strings.ToUpper(ref),
		Alt:   strings.ToUpper(alt),
	}, nil
}

// canonicalChrom lower-cases the "chr" prefix and upper-cases the rest
// of the chromosome string, preserving the distinction between "chrM"
// and "chrMT".
func canonicalChrom(chrom string) string {
	return "chr" + strings.ToUpper(strings.TrimPrefix(strings.ToLower(chrom), "chr"))
}

// Key renders the canonical "chrom:pos:ref>alt" key for the Variant.
func (v Variant) Key() Key {
	return Key(v.Chrom + ":" + strconv.FormatInt(v.Pos, 10) + ":" + v.Ref + ">" + v.Alt)
}

// ParseKey decomposes a canonical Key back into its Variant form. It
// is the inverse of Variant.Key and is used by the round-trip
// property: Canonicalize(ParseKey(k)) == k for all valid
// canonical keys.
func ParseKey(k Key) (Variant, error) {
	s := string(k)
	firstColon := strings.IndexByte(s, ':')
	if firstColon < 0 {
		return Variant{}, errors.Wrapf(ErrInvalidInput, "malformed key %q", k)
	}
	rest := s[firstColon+1:]
	secondColon := strings.IndexByte(rest, ':')
	if secondColon < 0 {
		return Variant{}, errors.Wrapf(ErrInvalidInput, "malformed key %q", k)
	}
	chrom := s[:firstColon]
	posStr := rest[:secondColon]
	alleles := rest[secondColon+1:]

	gt := strings.IndexByte(alleles, '>')
	if gt < 0 {
		return Variant{}, errors.Wrapf(ErrInvalidInput, "malformed key %q", k)
	}
	return Parse(chrom, posStr, alleles[:gt], alleles[gt+1:])
}
