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

// Package acs implements the core of the auto-configuration server: the
// CPE registry, the per-CPE transfer queues, the Connection Request
// initiator, the controller handles, the CWMP session driver and the
// persistence bridge.
package acs

import (
	"encoding/base64"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"strings"
	"sync"
)

// Config is the process-wide ACS configuration, persisted in the
// [config] table of <acsdir>/config.toml.
type Config struct {
	Hostname          string `toml:"hostname"`
	Username          string `toml:"username"`
	Password          string `toml:"password"`
	Autocert          bool   `toml:"autocert"`
	UnsecureAddress   string `toml:"unsecure_address"`
	SecureAddress     string `toml:"secure_address"`
	ManagementAddress string `toml:"management_address"`
	IdentityPassword  string `toml:"identity_password"`

	// DatabaseAddress enables the optional MongoDB device inventory when
	// non-empty. Absent from files written by older versions.
	DatabaseAddress string `toml:"database_address,omitempty"`
}

// Acs is the root object: configuration, derived basic-auth token and the
// CPE registry. One per process.
type Acs struct {
	Config    Config
	Basicauth string

	registry *Registry
	acsdir   string
	saveMu   sync.Mutex
}

// New creates an ACS with first-run defaults: random credentials, plain
// CWMP on [::0]:8080, TLS on [::0]:8443, management on 127.0.0.1:8000.
func New(acsdir string) *Acs {
	a := &Acs{
		Config: Config{
			Username:          randomPassword(),
			Password:          randomPassword(),
			Autocert:          true,
			UnsecureAddress:   "[::0]:8080",
			SecureAddress:     "[::0]:8443",
			ManagementAddress: "127.0.0.1:8000",
			IdentityPassword:  "ACSRS",
		},
		registry: newRegistry(),
		acsdir:   acsdir,
	}
	a.Basicauth = basicauth(a.Config.Username, a.Config.Password)
	return a
}

// Registry returns the CPE registry.
func (a *Acs) Registry() *Registry {
	return a.registry
}

// Dir returns the ACS state directory.
func (a *Acs) Dir() string {
	return a.acsdir
}

func basicauth(username, password string) string {
	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + token
}

// PrintConfig logs the management-server settings operators must push to
// their CPEs to point them at this ACS.
func (a *Acs) PrintConfig(hostname string) {
	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}

	log.Println()
	if _, port, err := net.SplitHostPort(a.Config.SecureAddress); err == nil {
		log.Println("For secure connections, please ensure your CPEs are configured with:")
		log.Printf("Device.ManagementServer.URL=\"https://%s:%s%s\"", hostname, port, CPEMgtPath)
		log.Printf("Device.ManagementServer.Username=%q", a.Config.Username)
		log.Printf("Device.ManagementServer.Password=%q", a.Config.Password)
		log.Println()
	}
	if _, port, err := net.SplitHostPort(a.Config.UnsecureAddress); err == nil {
		log.Println("For unsecure connections, please ensure your CPEs are configured with:")
		log.Printf("Device.ManagementServer.URL=\"http://%s:%s%s\"", hostname, port, CPEMgtPath)
		log.Printf("Device.ManagementServer.Username=%q", a.Config.Username)
		log.Printf("Device.ManagementServer.Password=%q", a.Config.Password)
		log.Println()
	}
}

// Savefile returns the path of the persistence file.
func (a *Acs) Savefile() string {
	return filepath.Join(a.acsdir, "config.toml")
}

func (a *Acs) String() string {
	return fmt.Sprintf("acs(%d cpes, dir=%s)", a.registry.Len(), a.acsdir)
}
