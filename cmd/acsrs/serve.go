// Copyright 2024 The acsrs Authors
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

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jarlah/acsrs/internal/apiserver"
	"github.com/jarlah/acsrs/internal/db"
	"github.com/jarlah/acsrs/internal/pki"
	"github.com/jarlah/acsrs/pkg/acs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ACS",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	if err := os.MkdirAll(flagDir, 0o700); err != nil {
		return fmt.Errorf("create acs directory: %w", err)
	}

	a, err := acs.Restore(flagDir)
	switch {
	case err == nil:
		log.Printf("Restored ACS state from %s", a.Savefile())
	case errors.Is(err, fs.ErrNotExist):
		log.Println("No saved state found, bootstrapping a new ACS")
		a = acs.New(flagDir)
		if err := a.Save(); err != nil {
			return err
		}
	default:
		return err
	}

	hostname := a.Config.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	a.PrintConfig(hostname)

	tlsConfig, err := pki.ServerTLSConfig(flagDir, hostname, a.Config.Autocert)
	if err != nil {
		return err
	}
	if tlsConfig == nil {
		log.Println("No TLS identity and autocert is off, secure listener disabled")
	}

	var inventory acs.Inventory
	if addr := a.Config.DatabaseAddress; addr != "" {
		log.Println("Connecting to inventory DB @", addr)
		client, err := db.Connect(addr, 10*time.Second)
		if err != nil {
			log.Println("Error in connecting to inventory DB:", err)
		} else {
			cwmpDb := db.NewCwmpDb(client)
			defer cwmpDb.Close(context.Background())
			inventory = cwmpDb
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return acs.NewServer(a, inventory, tlsConfig).Run(ctx)
	})
	g.Go(func() error {
		return apiserver.New(a).Run(ctx)
	})

	log.Println("ACS is up")
	err = g.Wait()
	log.Println("Shutting down")
	return err
}
