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
	"io"
	"net/http"
	"time"

	"github.com/jarlah/acsrs/internal/digest"
	"github.com/jarlah/acsrs/internal/metrics"
)

// connreqTimeout bounds the whole two-leg handshake.
const connreqTimeout = 10 * time.Second

// Connreq is the Connection Request endpoint of a CPE. The URL comes from
// the CPE's Inform; the credentials are ACS-chosen and were configured on
// the device through an earlier SetParameterValues.
type Connreq struct {
	Url      string
	Username string
	Password string
}

func defaultConnreq() Connreq {
	return Connreq{
		Username: "acsrs",
		Password: randomPassword(),
	}
}

// Send wakes the CPE with an HTTP Digest-authenticated GET, per TR-069
// section 3.2.2. One shot, no retry; the caller decides whether to retry.
func (c Connreq) Send(ctx context.Context) error {
	metrics.ConnectionRequestsTotal.Inc()
	if err := c.send(ctx); err != nil {
		metrics.ConnectionRequestFailures.Inc()
		return err
	}
	return nil
}

func (c Connreq) send(ctx context.Context) error {
	client := &http.Client{Timeout: connreqTimeout}

	// Step 1: request without credentials to obtain the auth challenge.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Url, nil)
	if err != nil {
		return fmt.Errorf("connection request: %w", err)
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("connection request: %w", err)
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()

	wwwauth := res.Header.Get("WWW-Authenticate")
	if wwwauth == "" {
		return fmt.Errorf("connection request reply without auth header: %w", ErrProtocol)
	}

	// Step 2: sign the digest and repeat the request.
	challenge, err := digest.ParseChallenge(wwwauth)
	if err != nil {
		return fmt.Errorf("connection request: %w", err)
	}
	answer, err := challenge.Respond(c.Username, c.Password, http.MethodGet, "/")
	if err != nil {
		return fmt.Errorf("connection request: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.Url, nil)
	if err != nil {
		return fmt.Errorf("connection request: %w", err)
	}
	req.Header.Set("Authorization", answer)
	res, err = client.Do(req)
	if err != nil {
		return fmt.Errorf("connection request: %w", err)
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("connection request refused with status %d: %w", res.StatusCode, ErrAuth)
	}
	return nil
}
