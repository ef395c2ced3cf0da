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

// Package digest computes client-side HTTP Digest authentication
// responses (RFC 7616) for the Connection Request handshake.
package digest

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// Challenge is a parsed WWW-Authenticate: Digest header.
type Challenge struct {
	Realm     string
	Nonce     string
	Opaque    string
	Qop       string
	Algorithm string
}

// ParseChallenge parses a WWW-Authenticate header value. Only the Digest
// scheme is understood.
func ParseChallenge(header string) (*Challenge, error) {
	scheme, params, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Digest") {
		return nil, fmt.Errorf("unsupported auth scheme in %q", header)
	}

	c := &Challenge{}
	for _, field := range splitParams(params) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "realm":
			c.Realm = value
		case "nonce":
			c.Nonce = value
		case "opaque":
			c.Opaque = value
		case "qop":
			// The server may offer several; auth is the only one a GET needs.
			for _, qop := range strings.Split(value, ",") {
				if strings.TrimSpace(qop) == "auth" {
					c.Qop = "auth"
				}
			}
			if c.Qop == "" {
				c.Qop = strings.TrimSpace(value)
			}
		case "algorithm":
			c.Algorithm = value
		}
	}
	if c.Nonce == "" {
		return nil, fmt.Errorf("digest challenge without nonce: %q", header)
	}
	return c, nil
}

// Respond computes the Authorization header value answering the challenge.
func (c *Challenge) Respond(username, password, method, uri string) (string, error) {
	cnonce, err := randomCnonce()
	if err != nil {
		return "", err
	}
	return c.respondWith(username, password, method, uri, cnonce, 1)
}

func (c *Challenge) respondWith(username, password, method, uri, cnonce string, nc int) (string, error) {
	h, err := c.hasher()
	if err != nil {
		return "", err
	}

	ha1 := hashf(h, "%s:%s:%s", username, c.Realm, password)
	if strings.HasSuffix(strings.ToLower(c.Algorithm), "-sess") {
		ha1 = hashf(h, "%s:%s:%s", ha1, c.Nonce, cnonce)
	}
	ha2 := hashf(h, "%s:%s", method, uri)

	ncValue := fmt.Sprintf("%08x", nc)
	var response string
	if c.Qop == "" {
		response = hashf(h, "%s:%s:%s", ha1, c.Nonce, ha2)
	} else if c.Qop == "auth" {
		response = hashf(h, "%s:%s:%s:%s:%s:%s", ha1, c.Nonce, ncValue, cnonce, c.Qop, ha2)
	} else {
		return "", fmt.Errorf("unsupported qop %q", c.Qop)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		username, c.Realm, c.Nonce, uri, response)
	if c.Qop != "" {
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s"`, c.Qop, ncValue, cnonce)
	}
	if c.Algorithm != "" {
		fmt.Fprintf(&b, `, algorithm=%s`, c.Algorithm)
	}
	if c.Opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, c.Opaque)
	}
	return b.String(), nil
}

func (c *Challenge) hasher() (func() hash.Hash, error) {
	algo := strings.ToLower(strings.TrimSuffix(strings.ToLower(c.Algorithm), "-sess"))
	switch algo {
	// Absent algorithm means MD5, per RFC 7616 section 3.3.
	case "", "md5":
		return md5.New, nil
	case "sha-256":
		return sha256.New, nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", c.Algorithm)
	}
}

func hashf(newHash func() hash.Hash, format string, args ...interface{}) string {
	h := newHash()
	fmt.Fprintf(h, format, args...)
	return hex.EncodeToString(h.Sum(nil))
}

func randomCnonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// splitParams splits a comma-separated parameter list, honoring quotes so
// that qop="auth,auth-int" stays one field.
func splitParams(s string) []string {
	var fields []string
	var b strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			b.WriteRune(r)
		case r == ',' && !quoted:
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		fields = append(fields, b.String())
	}
	return fields
}
