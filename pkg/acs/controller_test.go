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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarlah/acsrs/pkg/cwmp"
)

func TestControllerRefcount(t *testing.T) {
	cpe := newCPE()
	assert.False(t, cpe.ControllerRunning())

	ctl1 := NewController(cpe)
	ctl2 := NewController(cpe)
	assert.True(t, cpe.ControllerRunning())

	ctl1.Close()
	assert.True(t, cpe.ControllerRunning())
	ctl2.Close()
	assert.False(t, cpe.ControllerRunning())

	// Double close must not drive the counter negative.
	ctl2.Close()
	assert.False(t, cpe.ControllerRunning())
}

func TestSessionRefcount(t *testing.T) {
	cpe := newCPE()
	assert.False(t, cpe.SessionOpened())

	ref := cpe.acquireSession()
	assert.True(t, cpe.SessionOpened())
	ref.Release()
	assert.False(t, cpe.SessionOpened())
	ref.Release()
	assert.False(t, cpe.SessionOpened())
}

func TestAddTransferWakesDormantCPE(t *testing.T) {
	var hits atomic.Int32
	srv := stubCPEEndpoint(t, "acsrs", "secret", http.StatusOK, &hits)
	defer srv.Close()

	cpe := newCPE()
	cpe.SetConnreq(Connreq{Url: srv.URL, Username: "acsrs", Password: "secret"})

	ctl := NewController(cpe)
	defer ctl.Close()

	require.NoError(t, ctl.AddTransfer(context.Background(), NewTransfer(cwmp.NewEnvelope("1"))))
	assert.Equal(t, int32(2), hits.Load()) // challenge leg + authenticated leg
	assert.Equal(t, 1, cpe.queue.len())
}

func TestAddTransferSuppressedWhileSessionOpen(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	cpe := newCPE()
	cpe.SetConnreq(Connreq{Url: srv.URL, Username: "acsrs", Password: "secret"})

	ref := cpe.acquireSession()
	defer ref.Release()

	ctl := NewController(cpe)
	defer ctl.Close()

	require.NoError(t, ctl.AddTransfer(context.Background(), NewTransfer(cwmp.NewEnvelope("1"))))
	assert.Equal(t, int32(0), hits.Load())
	assert.Equal(t, 1, cpe.queue.len())
}

func TestAddTransferKeepsTransferOnWakeupFailure(t *testing.T) {
	cpe := newCPE()
	cpe.SetConnreq(Connreq{Url: "http://127.0.0.1:1/unreachable", Username: "acsrs", Password: "secret"})

	ctl := NewController(cpe)
	defer ctl.Close()

	err := ctl.AddTransfer(context.Background(), NewTransfer(cwmp.NewEnvelope("1")))
	require.Error(t, err)
	// Queueing precedes the wake-up: the transfer survives the failure.
	assert.Equal(t, 1, cpe.queue.len())
}

func TestAddTransferQueueClosed(t *testing.T) {
	cpe := newCPE()
	ctl := NewController(cpe)
	defer ctl.Close()

	cpe.queue.close()
	assert.ErrorIs(t, ctl.AddTransfer(context.Background(), NewTransfer(cwmp.NewEnvelope("1"))), ErrQueueClosed)
}
