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
	"sync/atomic"
	"time"

	"github.com/jarlah/acsrs/pkg/cwmp"
)

// CPE is one managed device. The serial number is the registry key and
// never changes once set. The transfer queue deliberately lives outside
// the entry lock; the lock is never held across network I/O.
type CPE struct {
	mu         sync.RWMutex
	deviceId   cwmp.DeviceId
	connreq    Connreq
	baseurl    string
	lastInform time.Time

	queue *transferQueue

	sessionRefs    atomic.Int32
	controllerRefs atomic.Int32
}

func newCPE() *CPE {
	return &CPE{
		connreq: defaultConnreq(),
		queue:   newTransferQueue(),
	}
}

// SessionOpened reports whether a session driver is attached. Controllers
// use it as the signal to suppress redundant Connection Requests.
func (c *CPE) SessionOpened() bool {
	return c.sessionRefs.Load() > 0
}

// ControllerRunning reports whether any controller handle is alive.
func (c *CPE) ControllerRunning() bool {
	return c.controllerRefs.Load() > 0
}

// acquireSession attaches a session driver to the entry. The returned ref
// must be released when the session closes.
func (c *CPE) acquireSession() *SessionRef {
	c.sessionRefs.Add(1)
	return &SessionRef{cpe: c}
}

func (c *CPE) acquireController() *ControllerRef {
	c.controllerRefs.Add(1)
	return &ControllerRef{cpe: c}
}

// SessionRef is the scoped guard backing the session refcount.
type SessionRef struct {
	cpe  *CPE
	once sync.Once
}

func (r *SessionRef) Release() {
	r.once.Do(func() { r.cpe.sessionRefs.Add(-1) })
}

// ControllerRef is the scoped guard backing the controller refcount.
type ControllerRef struct {
	cpe  *CPE
	once sync.Once
}

func (r *ControllerRef) Release() {
	r.once.Do(func() { r.cpe.controllerRefs.Add(-1) })
}

// DeviceId returns a copy of the device identity.
func (c *CPE) DeviceId() cwmp.DeviceId {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceId
}

func (c *CPE) SerialNumber() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceId.SerialNumber
}

// Connreq returns a copy of the Connection Request endpoint, taken under
// the read lock so callers can do network I/O without holding it.
func (c *CPE) Connreq() Connreq {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connreq
}

// SetConnreq replaces the Connection Request endpoint, e.g. after new
// wake-up credentials were pushed to the device with SetParameterValues
// or when provisioning a device that has not informed yet.
func (c *CPE) SetConnreq(connreq Connreq) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connreq = connreq
}

// Baseurl returns the HTTP base URL the CPE used to reach the ACS.
func (c *CPE) Baseurl() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseurl
}

// LastInform returns the time of the last Inform seen from the device.
func (c *CPE) LastInform() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastInform
}

// updateFromInform captures what a session start teaches us about the
// device: its identity, the Connection Request URL it advertises and the
// base URL it reached us on.
func (c *CPE) updateFromInform(dev cwmp.DeviceId, connreqURL, baseurl string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceId = dev
	if connreqURL != "" {
		c.connreq.Url = connreqURL
	}
	c.baseurl = baseurl
	c.lastInform = time.Now()
}

// restore fills in an entry from a persistence record.
func (c *CPE) restore(serial string, connreq Connreq) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceId.SerialNumber = serial
	c.connreq = connreq
}

// Registry maps serial numbers to shared CPE entries. Reads dominate:
// every session start and every controller creation is a lookup, while
// inserts happen only on first contact.
type Registry struct {
	mu   sync.RWMutex
	cpes map[string]*CPE
}

func newRegistry() *Registry {
	return &Registry{cpes: make(map[string]*CPE)}
}

// Lookup returns the entry for the serial, or nil.
func (r *Registry) Lookup(serial string) *CPE {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cpes[serial]
}

// LookupOrInsert returns the existing entry or atomically creates a
// default one. Concurrent callers with the same serial all observe the
// same entry.
func (r *Registry) LookupOrInsert(serial string) *CPE {
	r.mu.RLock()
	cpe := r.cpes[serial]
	r.mu.RUnlock()
	if cpe != nil {
		return cpe
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cpe := r.cpes[serial]; cpe != nil {
		return cpe
	}
	cpe = newCPE()
	cpe.deviceId.SerialNumber = serial
	r.cpes[serial] = cpe
	return cpe
}

// Remove drops the entry and closes its queue. Entries stay alive for
// holders of the shared reference; only enqueueing fails from here on.
func (r *Registry) Remove(serial string) {
	r.mu.Lock()
	cpe := r.cpes[serial]
	delete(r.cpes, serial)
	r.mu.Unlock()
	if cpe != nil {
		cpe.queue.close()
	}
}

// Snapshot returns a consistent copy of the current mapping. The entries
// themselves are not locked; callers lock each one as needed.
func (r *Registry) Snapshot() map[string]*CPE {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*CPE, len(r.cpes))
	for sn, cpe := range r.cpes {
		out[sn] = cpe
	}
	return out
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cpes)
}
