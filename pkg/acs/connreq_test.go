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
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testNonce = "abc"
	testRealm = "cpe"
)

// stubCPEEndpoint answers the two-leg digest handshake the way a real
// gateway's connection request server does, counting every hit.
func stubCPEEndpoint(t *testing.T, username, password string, secondStatus int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		auth := r.Header.Get("Authorization")
		if auth == "" {
			w.Header().Set("WWW-Authenticate",
				fmt.Sprintf(`Digest realm=%q, nonce=%q, qop="auth"`, testRealm, testNonce))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		fields := parseAuthHeader(auth)
		ha1 := md5Hex(username + ":" + testRealm + ":" + password)
		ha2 := md5Hex("GET:" + fields["uri"])
		expected := md5Hex(strings.Join([]string{ha1, testNonce, fields["nc"], fields["cnonce"], "auth", ha2}, ":"))
		if fields["response"] != expected {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(secondStatus)
	}))
}

func parseAuthHeader(header string) map[string]string {
	fields := make(map[string]string)
	header = strings.TrimPrefix(header, "Digest ")
	for _, part := range strings.Split(header, ", ") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		fields[key] = strings.Trim(value, `"`)
	}
	return fields
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestConnreqSend(t *testing.T) {
	var hits atomic.Int32
	srv := stubCPEEndpoint(t, "acsrs", "secret", http.StatusOK, &hits)
	defer srv.Close()

	connreq := Connreq{Url: srv.URL, Username: "acsrs", Password: "secret"}
	assert.NoError(t, connreq.Send(context.Background()))
}

func TestConnreqSendRefused(t *testing.T) {
	var hits atomic.Int32
	srv := stubCPEEndpoint(t, "acsrs", "secret", http.StatusForbidden, &hits)
	defer srv.Close()

	connreq := Connreq{Url: srv.URL, Username: "acsrs", Password: "secret"}
	err := connreq.Send(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestConnreqSendBadPassword(t *testing.T) {
	var hits atomic.Int32
	srv := stubCPEEndpoint(t, "acsrs", "secret", http.StatusOK, &hits)
	defer srv.Close()

	connreq := Connreq{Url: srv.URL, Username: "acsrs", Password: "wrong"}
	assert.ErrorIs(t, connreq.Send(context.Background()), ErrAuth)
}

func TestConnreqSendNoAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	connreq := Connreq{Url: srv.URL, Username: "acsrs", Password: "secret"}
	assert.ErrorIs(t, connreq.Send(context.Background()), ErrProtocol)
}

func TestConnreqSendTransportError(t *testing.T) {
	connreq := Connreq{Url: "http://127.0.0.1:1/unreachable", Username: "acsrs", Password: "secret"}
	assert.Error(t, connreq.Send(context.Background()))
}
