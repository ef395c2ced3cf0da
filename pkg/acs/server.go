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

package acs

import (
	"bytes"
	"context"
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jarlah/acsrs/internal/metrics"
	"github.com/jarlah/acsrs/pkg/cwmp"
)

// CPEMgtPath is the mount path CPEs POST their CWMP sessions to.
const CPEMgtPath = "/cwmpWeb/CPEMgt"

const (
	sessionCookie   = "acsrs_session"
	sessionTimeout  = 60 * time.Second
	janitorInterval = 15 * time.Second
	maxEnvelopeSize = 512 << 10
)

// supportedMethods answers a CPE's GetRPCMethods.
var supportedMethods = []string{
	"Inform",
	"TransferComplete",
	"GetRPCMethods",
}

// Inventory records device facts into an external store. The core works
// without one; a nil Inventory disables recording.
type Inventory interface {
	RecordInform(ctx context.Context, dev cwmp.DeviceId, connreqURL string, events []string, params []cwmp.ParameterValueStruct) error
	RecordParams(ctx context.Context, serial string, params []cwmp.ParameterValueStruct) error
}

// Server terminates inbound CWMP sessions. It owns the session table and
// drives the per-session state machine; all durable per-device state
// lives in the registry.
type Server struct {
	acs       *Acs
	inventory Inventory
	tlsConfig *tls.Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewServer creates the CWMP server. inventory and tlsConfig may be nil;
// a nil tlsConfig disables the secure listener.
func NewServer(a *Acs, inventory Inventory, tlsConfig *tls.Config) *Server {
	return &Server{
		acs:       a,
		inventory: inventory,
		tlsConfig: tlsConfig,
		sessions:  make(map[string]*Session),
	}
}

// Handler returns the CWMP endpoint, mounted at CPEMgtPath.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(CPEMgtPath, s.handleCPE)
	return mux
}

// Run serves the plain and TLS listeners until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	handler := s.Handler()
	servers := []*http.Server{}

	if addr := s.acs.Config.UnsecureAddress; addr != "" {
		servers = append(servers, s.newHTTPServer(addr, handler, nil))
	}
	if addr := s.acs.Config.SecureAddress; addr != "" && s.tlsConfig != nil {
		servers = append(servers, s.newHTTPServer(addr, handler, s.tlsConfig))
	}
	if len(servers) == 0 {
		return errors.New("no CWMP listen address configured")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			var err error
			if srv.TLSConfig != nil {
				log.Printf("CWMP listening on %s (TLS)", srv.Addr)
				err = srv.ListenAndServeTLS("", "")
			} else {
				log.Printf("CWMP listening on %s", srv.Addr)
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		s.janitor(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			srv.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) newHTTPServer(addr string, handler http.Handler, tlsConfig *tls.Config) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		TLSConfig:    tlsConfig,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// handleCPE is the single CWMP endpoint. Every request is one step of
// some session's state machine.
func (s *Server) handleCPE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	auth := r.Header.Get("Authorization")
	if subtle.ConstantTimeCompare([]byte(auth), []byte(s.acs.Basicauth)) != 1 {
		w.Header().Set("WWW-Authenticate", `Basic realm="acs"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeSize))
	if err != nil {
		log.Printf("Error reading CWMP request body from %s: %v", r.RemoteAddr, err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	sess := s.sessionFor(r)

	// An empty POST is the CPE polling for ACS work.
	if len(bytes.TrimSpace(body)) == 0 {
		if sess == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		sess.touch()
		s.serveNext(sess, w)
		return
	}

	env, err := cwmp.Parse(body)
	if err != nil {
		log.Printf("Malformed envelope from %s: %v", r.RemoteAddr, err)
		if sess != nil {
			s.closeSession(sess)
		}
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if env.Method() == "Inform" {
		s.handleInform(w, r, env, sess)
		return
	}

	if sess == nil {
		// Anything but an Inform needs an established session.
		log.Printf("RPC %s from %s without a session", env.Method(), r.RemoteAddr)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	sess.touch()

	if t, awaiting := sess.takeInflight(); awaiting {
		s.handleReply(sess, t, env, w)
		return
	}
	s.handleCpeRPC(sess, env, w)
}

// handleInform walks AwaitingInform → PostInform: resolve the registry
// entry, attach a session to it and answer with an InformResponse.
func (s *Server) handleInform(w http.ResponseWriter, r *http.Request, env *cwmp.Envelope, sess *Session) {
	inform := env.Body.Inform
	serial := inform.DeviceId.SerialNumber
	if serial == "" {
		log.Printf("Inform without serial number from %s", r.RemoteAddr)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	cpe := s.acs.Registry().LookupOrInsert(serial)
	cpe.updateFromInform(inform.DeviceId, informConnreqURL(inform.ParameterList), baseurl(r))
	metrics.InformsTotal.Inc()

	events := make([]string, 0, len(inform.Event))
	for _, ev := range inform.Event {
		events = append(events, ev.EventCode)
	}
	log.Printf("Inform from %s (%s): events=%v", serial, r.RemoteAddr, events)

	if s.inventory != nil {
		if err := s.inventory.RecordInform(r.Context(), inform.DeviceId, cpe.Connreq().Url, events, inform.ParameterList); err != nil {
			log.Printf("Inventory record failed for %s: %v", serial, err)
		}
	}

	if sess == nil || sess.cpe != cpe {
		if sess != nil {
			// Same HTTP session, different device identity: serial is
			// authoritative, start over on the new entry.
			s.closeSession(sess)
		}
		sess = newSession(uuid.NewString(), cpe)
		s.mu.Lock()
		s.sessions[sess.id] = sess
		s.mu.Unlock()
		metrics.SessionsTotal.Inc()
		metrics.SessionsOpen.Inc()
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: sess.id, Path: "/"})
	} else {
		sess.touch()
	}

	reply := cwmp.NewEnvelope(env.ID())
	reply.AddInformResponse()
	s.writeEnvelope(w, reply)
}

// handleReply forwards the CPE's answer to the in-flight transfer's
// observer and immediately serves the next queued transfer: the reply
// POST doubles as the Draining poll.
func (s *Server) handleReply(sess *Session, t *Transfer, env *cwmp.Envelope, w http.ResponseWriter) {
	metrics.TransfersAnswered.Inc()

	if env.IsFault() {
		code, reason := env.CwmpFault()
		log.Printf("CPE %s answered with fault %d: %s", sess.cpe.SerialNumber(), code, reason)
	} else if env.Body.GetParameterValuesResponse != nil && s.inventory != nil {
		params := env.Body.GetParameterValuesResponse.ParameterList
		if err := s.inventory.RecordParams(context.Background(), sess.cpe.SerialNumber(), params); err != nil {
			log.Printf("Inventory params record failed for %s: %v", sess.cpe.SerialNumber(), err)
		}
	}

	// A dropped observer just loses the reply; the queue moves on.
	t.deliver(env)
	s.serveNext(sess, w)
}

// handleCpeRPC answers a CPE-initiated RPC during Draining.
func (s *Server) handleCpeRPC(sess *Session, env *cwmp.Envelope, w http.ResponseWriter) {
	reply := cwmp.NewEnvelope(env.ID())
	switch env.Method() {
	case "TransferComplete":
		tc := env.Body.TransferComplete
		log.Printf("TransferComplete from %s: key=%q fault=%d", sess.cpe.SerialNumber(), tc.CommandKey, tc.FaultStruct.FaultCode)
		reply.AddTransferCompleteResponse()
	case "GetRPCMethods":
		reply.AddGetRPCMethodsResponse(supportedMethods)
	default:
		log.Printf("Unsupported RPC %s from %s", env.Method(), sess.cpe.SerialNumber())
		reply.AddFault(cwmp.FaultMethodNotSupported, "Method not supported")
	}
	s.writeEnvelope(w, reply)
}

// serveNext is the Draining step: dispatch the next queued transfer, or
// close the session with a 204 when the queue is dry.
func (s *Server) serveNext(sess *Session, w http.ResponseWriter) {
	t := sess.cpe.queue.tryPop()
	if t == nil {
		s.closeSession(sess)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	sess.dispatch(t)
	metrics.TransfersDispatched.Inc()
	s.writeEnvelope(w, t.Msg)
}

func (s *Server) writeEnvelope(w http.ResponseWriter, env *cwmp.Envelope) {
	data, err := env.Encode()
	if err != nil {
		log.Printf("Error encoding envelope: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) sessionFor(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[cookie.Value]
}

func (s *Server) closeSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	sess.close()
}

// janitor sweeps sessions whose CPE went quiet without closing.
func (s *Server) janitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		deadline := time.Now().Add(-sessionTimeout)
		s.mu.RLock()
		var stale []*Session
		for _, sess := range s.sessions {
			if sess.idleSince(deadline) {
				stale = append(stale, sess)
			}
		}
		s.mu.RUnlock()
		for _, sess := range stale {
			log.Printf("Session %s timed out for %s", sess.id, sess.cpe.SerialNumber())
			s.closeSession(sess)
		}
	}
}

// baseurl derives the HTTP base URL the CPE used to reach the ACS, used
// later for building Download/Upload URLs.
func baseurl(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// informConnreqURL extracts the Connection Request URL from the Inform
// parameter list, whichever data model root the device uses.
func informConnreqURL(params []cwmp.ParameterValueStruct) string {
	for _, p := range params {
		if strings.HasSuffix(p.Name, ".ManagementServer.ConnectionRequestURL") {
			return p.Value.Value
		}
	}
	return ""
}
