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
	"sync"
	"time"

	"github.com/jarlah/acsrs/internal/metrics"
)

// sessionState tracks where the driver is in the request/response
// ping-pong with the CPE. A session object only exists once the Inform
// handshake succeeded; before that the request is stateless.
type sessionState int

const (
	// stateDraining: handshake complete; the next CPE POST is either a
	// CPE-initiated RPC (non-empty) or a poll for ACS work (empty).
	stateDraining sessionState = iota
	// stateAwaitingResponse: a queued transfer went out as the previous
	// HTTP response; the next POST carries the CPE's answer to it.
	stateAwaitingResponse
	// stateClosed: terminal.
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateDraining:
		return "Draining"
	case stateAwaitingResponse:
		return "AwaitingResponse"
	case stateClosed:
		return "Closed"
	}
	return "Unknown"
}

// Session is one inbound CWMP session, associated across HTTP requests
// by an opaque cookie.
type Session struct {
	id  string
	cpe *CPE

	mu       sync.Mutex
	state    sessionState
	ref      *SessionRef
	inflight *Transfer
	lastSeen time.Time
}

func newSession(id string, cpe *CPE) *Session {
	return &Session{
		id:       id,
		cpe:      cpe,
		state:    stateDraining,
		ref:      cpe.acquireSession(),
		lastSeen: time.Now(),
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(deadline time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen.Before(deadline)
}

// takeInflight detaches the in-flight transfer, returning it and whether
// the session was awaiting a response.
func (s *Session) takeInflight() (*Transfer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateAwaitingResponse {
		return nil, false
	}
	t := s.inflight
	s.inflight = nil
	s.state = stateDraining
	return t, true
}

// dispatch records the transfer as in-flight.
func (s *Session) dispatch(t *Transfer) {
	s.mu.Lock()
	s.inflight = t
	s.state = stateAwaitingResponse
	s.mu.Unlock()
}

// close releases the session ref and abandons any in-flight observer.
// Queued transfers are untouched: they survive for the next session.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return
	}
	s.state = stateClosed
	if s.inflight != nil {
		s.inflight.abandon()
		s.inflight = nil
	}
	s.ref.Release()
	metrics.SessionsOpen.Dec()
}
