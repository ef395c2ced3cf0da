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

import "github.com/jarlah/acsrs/pkg/cwmp"

// Transfer is one queued management request: the envelope to send to the
// CPE, plus an optional single-shot channel the reply is forwarded on.
type Transfer struct {
	Msg      *cwmp.Envelope
	observer chan *cwmp.Envelope
}

// NewTransfer wraps a request envelope in a transfer with no observer.
func NewTransfer(msg *cwmp.Envelope) *Transfer {
	return &Transfer{Msg: msg}
}

// Observe attaches and returns the reply channel. The channel has
// capacity 1 and receives at most one envelope before being closed; the
// session driver never blocks on it, so an abandoned observer simply
// loses the reply.
func (t *Transfer) Observe() <-chan *cwmp.Envelope {
	if t.observer == nil {
		t.observer = make(chan *cwmp.Envelope, 1)
	}
	return t.observer
}

// deliver hands the reply to the observer, if any, and closes it.
func (t *Transfer) deliver(reply *cwmp.Envelope) {
	if t.observer == nil {
		return
	}
	select {
	case t.observer <- reply:
	default:
	}
	close(t.observer)
	t.observer = nil
}

// abandon closes the observer without a reply.
func (t *Transfer) abandon() {
	if t.observer == nil {
		return
	}
	close(t.observer)
	t.observer = nil
}
