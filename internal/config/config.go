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

// Package config holds the user-visible configuration for running
// the annotation service, bound from command-line flags.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config is the fully resolved set of options the service needs to run.
type Config struct {
	BindAddr string

	UpstreamURL     string
	UpstreamTimeout time.Duration

	Workers  int
	BatchMax int
	IdleWait time.Duration
	RetryMax int

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
}

// Bind registers every flag against the given FlagSet: one
// flags.XxxVar call per field with an inline default and usage
// string.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.BindAddr, "bindAddr", ":8080",
		"the network address to bind the HTTP surface to")

	flags.StringVar(&c.UpstreamURL, "upstreamURL", "",
		"the HTTP endpoint of the batched variant annotation provider")
	flags.DurationVar(&c.UpstreamTimeout, "upstreamTimeout", 300*time.Second,
		"per-batch HTTP timeout for the upstream annotation call")

	flags.IntVar(&c.Workers, "workers", 3,
		"bounded worker pool size for batch dispatch")
	flags.IntVar(&c.BatchMax, "batchMax", 200,
		"size trigger: dispatch once the pending buffer reaches this many variants")
	flags.DurationVar(&c.IdleWait, "idleWait", 5*time.Second,
		"idle trigger: dispatch after this long with no new submissions")
	flags.IntVar(&c.RetryMax, "retryMax", 3,
		"retry ceiling before a variant is reported as terminally failed")

	flags.StringVar(&c.DBHost, "dbHost", "127.0.0.1", "cache database host")
	flags.IntVar(&c.DBPort, "dbPort", 3306, "cache database port")
	flags.StringVar(&c.DBUser, "dbUser", "root", "cache database user")
	flags.StringVar(&c.DBPassword, "dbPassword", "", "cache database password")
	flags.StringVar(&c.DBName, "dbName", "variant_annotator", "cache database name")
}

// Preflight validates the bound configuration, returning one
// sentinel error per violated constraint.
func (c *Config) Preflight() error {
	if c.BindAddr == "" {
		return errors.New("bindAddr unset")
	}
	if c.UpstreamURL == "" {
		return errors.New("upstreamURL unset")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if c.BatchMax <= 0 {
		return errors.New("batchMax must be positive")
	}
	if c.IdleWait <= 0 {
		return errors.New("idleWait must be positive")
	}
	if c.RetryMax <= 0 {
		return errors.New("retryMax must be positive")
	}
	if c.UpstreamTimeout <= 0 {
		return errors.New("upstreamTimeout must be positive")
	}
	if c.DBName == "" {
		return errors.New("dbName unset")
	}
	return nil
}
