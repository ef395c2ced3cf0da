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

// Package apiserver is the management-plane REST API operators and the
// interactive shell use to drive CPEs.
package apiserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/jarlah/acsrs/internal/metrics"
	"github.com/jarlah/acsrs/pkg/acs"
)

type apiServerCfg struct {
	addr       string
	rpcTimeout time.Duration
}

// ApiServer serves the management REST API on the management address,
// authenticated with the ACS management credentials.
type ApiServer struct {
	acs    *acs.Acs
	router *mux.Router
	server *http.Server
	cfg    apiServerCfg
}

// New builds the API server for an ACS.
func New(a *acs.Acs) *ApiServer {
	as := &ApiServer{
		acs: a,
		cfg: apiServerCfg{
			addr:       a.Config.ManagementAddress,
			rpcTimeout: 30 * time.Second,
		},
	}
	as.initRouter()
	return as
}

func (as *ApiServer) initRouter() {
	as.router = mux.NewRouter()
	as.setCwmpRoutesHandlers()
	as.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	var handler http.Handler = as.router
	handler = as.basicAuth(handler)
	handler = handlers.RecoveryHandler()(handler)
	handler = handlers.LoggingHandler(os.Stdout, handler)

	as.server = &http.Server{
		Addr:         as.cfg.addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// basicAuth guards every management route with the ACS credentials.
func (as *ApiServer) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(auth), []byte(as.acs.Basicauth)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="acs"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the fully wrapped handler, mainly for tests.
func (as *ApiServer) Handler() http.Handler {
	return as.server.Handler
}

// Run serves the management API until the context is cancelled.
func (as *ApiServer) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		log.Printf("Management API listening on %s", as.cfg.addr)
		errc <- as.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return as.server.Shutdown(shutdownCtx)
	}
}
