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

package pki

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerTLSConfigAutocert(t *testing.T) {
	dir := t.TempDir()

	cfg, err := ServerTLSConfig(dir, "acs.example.com", true)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Len(t, cfg.Certificates, 1)

	_, err = os.Stat(filepath.Join(dir, "cert.pem"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "key.pem"))
	assert.NoError(t, err)

	// Second call reuses the generated identity.
	cfg2, err := ServerTLSConfig(dir, "acs.example.com", true)
	require.NoError(t, err)
	assert.Equal(t, cfg.Certificates[0].Certificate, cfg2.Certificates[0].Certificate)
}

func TestServerTLSConfigNoIdentityNoAutocert(t *testing.T) {
	cfg, err := ServerTLSConfig(t.TempDir(), "acs.example.com", false)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}
