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

// Command variantannotator runs the annotation caching and batching
// service: "serve" starts the HTTP surface and blocks until
// signaled; "migrate" creates the cache schema and exits.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cockroachdb/variant-annotator/internal/cachestore"
	"github.com/cockroachdb/variant-annotator/internal/config"
	"github.com/cockroachdb/variant-annotator/internal/obs"
	"github.com/cockroachdb/variant-annotator/internal/wiring"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.WithError(err).Fatal("command failed")
	}
}

func rootCmd() *cobra.Command {
	var cfg config.Config
	var verbose bool

	root := &cobra.Command{
		Use:   "variantannotator",
		Short: "Genomic variant annotation caching and batching service",
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	cfg.Bind(root.PersistentFlags())

	root.AddCommand(serveCmd(&cfg, &verbose))
	root.AddCommand(migrateCmd(&cfg, &verbose))
	return root
}

func serveCmd(cfg *config.Config, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP surface and block until signaled",
		RunE: func(cmd *cobra.Command, args []string) error {
			obs.SetupLogging(*verbose)
			if err := cfg.Preflight(); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			server, err := wiring.InitializeServer(ctx, cfg)
			if err != nil {
				return err
			}

			httpServer := &http.Server{Addr: cfg.BindAddr, Handler: server}

			go func() {
				log.WithField("addr", cfg.BindAddr).Info("listening")
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.WithError(err).Error("http server stopped unexpectedly")
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			log.Info("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("http server did not shut down cleanly")
			}
			server.Shutdown(30 * time.Second)
			return nil
		},
	}
}

func migrateCmd(cfg *config.Config, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Annotation/Transcript tables and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			obs.SetupLogging(*verbose)
			if cfg.DBName == "" {
				return errors.New("dbName unset")
			}

			ctx := cmd.Context()
			store, err := cachestore.Open(ctx, cachestore.Config{
				Host:     cfg.DBHost,
				Port:     cfg.DBPort,
				User:     cfg.DBUser,
				Password: cfg.DBPassword,
				Database: cfg.DBName,
			})
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			log.Info("cache schema migrated")
			return nil
		},
	}
}
