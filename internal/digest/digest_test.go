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

package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChallenge(t *testing.T) {
	header := `Digest realm="testrealm@host.com", qop="auth,auth-int", nonce="dcd98b7102dd2f0e8b11d0f600bfb0c093", opaque="5ccc069c403ebaf9f0171e9517f40e41"`

	c, err := ParseChallenge(header)
	require.NoError(t, err)
	assert.Equal(t, "testrealm@host.com", c.Realm)
	assert.Equal(t, "dcd98b7102dd2f0e8b11d0f600bfb0c093", c.Nonce)
	assert.Equal(t, "5ccc069c403ebaf9f0171e9517f40e41", c.Opaque)
	assert.Equal(t, "auth", c.Qop)
}

func TestParseChallengeRejectsBasic(t *testing.T) {
	_, err := ParseChallenge(`Basic realm="acs"`)
	assert.Error(t, err)
}

func TestParseChallengeRequiresNonce(t *testing.T) {
	_, err := ParseChallenge(`Digest realm="cpe"`)
	assert.Error(t, err)
}

// Vector from RFC 2617 section 3.5.
func TestRespondMD5(t *testing.T) {
	c := &Challenge{
		Realm:  "testrealm@host.com",
		Nonce:  "dcd98b7102dd2f0e8b11d0f600bfb0c093",
		Opaque: "5ccc069c403ebaf9f0171e9517f40e41",
		Qop:    "auth",
	}
	header, err := c.respondWith("Mufasa", "Circle Of Life", "GET", "/dir/index.html", "0a4f113b", 1)
	require.NoError(t, err)

	assert.Contains(t, header, `response="6629fae49393a05397450978507c4ef1"`)
	assert.Contains(t, header, `username="Mufasa"`)
	assert.Contains(t, header, `uri="/dir/index.html"`)
	assert.Contains(t, header, "nc=00000001")
	assert.Contains(t, header, `opaque="5ccc069c403ebaf9f0171e9517f40e41"`)
	assert.True(t, strings.HasPrefix(header, "Digest "))
}

// Vector from RFC 7616 section 3.9.1.
func TestRespondSHA256(t *testing.T) {
	c := &Challenge{
		Realm:     "http-auth@example.org",
		Nonce:     "7ypf/xlj9XXwfDPEoM4URrv/xwf94BcCAzFZH4GiTo0v",
		Opaque:    "FQhe/qaU925kfnzjCev0ciny7QMkPqMAFRtzCUYo5tdS",
		Qop:       "auth",
		Algorithm: "SHA-256",
	}
	header, err := c.respondWith("Mufasa", "Circle of Life", "GET", "/dir/index.html",
		"f2/wE4q74E6zIJEtWaHKaf5wv/1UAuWf0aWwA4dMns", 1)
	require.NoError(t, err)

	assert.Contains(t, header, `response="753927fa0e85d155564e2e272a28d1802ca10daf4496794697cf8db5856cb6c1"`)
	assert.Contains(t, header, "algorithm=SHA-256")
}

func TestRespondUnsupportedAlgorithm(t *testing.T) {
	c := &Challenge{Realm: "cpe", Nonce: "abc", Algorithm: "MD4"}
	_, err := c.Respond("user", "pass", "GET", "/")
	assert.Error(t, err)
}

func TestRespondFreshCnoncePerCall(t *testing.T) {
	c := &Challenge{Realm: "cpe", Nonce: "abc", Qop: "auth"}
	h1, err := c.Respond("user", "pass", "GET", "/")
	require.NoError(t, err)
	h2, err := c.Respond("user", "pass", "GET", "/")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
