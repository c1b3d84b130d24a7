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

package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bound(t *testing.T, args ...string) *Config {
	t.Helper()
	var c Config
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.Bind(flags)
	require.NoError(t, flags.Parse(args))
	return &c
}

func TestDefaultsMatchDocumentedValues(t *testing.T) {
	c := bound(t, "--upstreamURL=https://upstream.example/annotate")
	assert.Equal(t, 3, c.Workers)
	assert.Equal(t, 200, c.BatchMax)
	assert.Equal(t, 3, c.RetryMax)
	require.NoError(t, c.Preflight())
}

func TestPreflightRejectsMissingUpstreamURL(t *testing.T) {
	c := bound(t)
	require.Error(t, c.Preflight())
}

func TestPreflightRejectsNonPositiveTunables(t *testing.T) {
	cases := []string{"--workers=0", "--batchMax=-1", "--idleWait=0s", "--retryMax=0", "--upstreamTimeout=0s"}
	for _, arg := range cases {
		c := bound(t, "--upstreamURL=https://upstream.example/annotate", arg)
		assert.Error(t, c.Preflight(), arg)
	}
}
