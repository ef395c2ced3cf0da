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
	"context"
	"fmt"
	"log"
)

// Controller is the management plane's handle to one CPE. It holds the
// producer side of the entry's transfer queue and a controller ref that
// is released on Close.
type Controller struct {
	cpe   *CPE
	queue *transferQueue
	ref   *ControllerRef
}

// NewController attaches a controller handle to the entry.
func NewController(cpe *CPE) *Controller {
	return &Controller{
		cpe:   cpe,
		queue: cpe.queue,
		ref:   cpe.acquireController(),
	}
}

// AddTransfer enqueues the transfer and, when no session is currently
// open, wakes the CPE with a Connection Request. Queueing precedes the
// wake-up, so a transfer survives a failed Connection Request and the
// caller may retry the wake-up independently.
func (c *Controller) AddTransfer(ctx context.Context, t *Transfer) error {
	if err := c.queue.push(t); err != nil {
		return err
	}

	if !c.cpe.SessionOpened() {
		// Clone the endpoint out of the lock before touching the network.
		connreq := c.cpe.Connreq()
		log.Printf("Sending ConnectionRequest to %s", connreq.Url)
		if err := connreq.Send(ctx); err != nil {
			return fmt.Errorf("wake-up failed, transfer stays queued: %w", err)
		}
		log.Println("ConnectionRequest was acknowledged")
	}
	return nil
}

// CPE returns the entry this controller is attached to.
func (c *Controller) CPE() *CPE {
	return c.cpe
}

// Close releases the controller refcount. Transfers already enqueued are
// not cancelled.
func (c *Controller) Close() {
	c.ref.Release()
}
