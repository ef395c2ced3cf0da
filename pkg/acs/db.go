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
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
)

// acsRecord is the on-disk shape of <acsdir>/config.toml: the top-level
// configuration plus one [[cpe]] table per known device. Live state
// (queues, sessions, refcounts) is deliberately not persisted.
type acsRecord struct {
	Config Config      `toml:"config"`
	CPE    []cpeRecord `toml:"cpe"`
}

type cpeRecord struct {
	SerialNumber string `toml:"serial_number"`
	Url          string `toml:"url"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
}

// Save writes the ACS record atomically (write-to-temp plus rename).
// Saves are serialized internally; concurrent callers simply queue up.
func (a *Acs) Save() error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	savefile := a.Savefile()
	log.Printf("Saving ACS config at %s", savefile)

	record := acsRecord{Config: a.Config}
	snapshot := a.registry.Snapshot()
	serials := make([]string, 0, len(snapshot))
	for sn := range snapshot {
		serials = append(serials, sn)
	}
	sort.Strings(serials)
	for _, sn := range serials {
		connreq := snapshot[sn].Connreq()
		record.CPE = append(record.CPE, cpeRecord{
			SerialNumber: sn,
			Url:          connreq.Url,
			Username:     connreq.Username,
			Password:     connreq.Password,
		})
	}

	tmp, err := os.CreateTemp(a.acsdir, "config-*.toml")
	if err != nil {
		return fmt.Errorf("save acs config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(&record); err != nil {
		tmp.Close()
		return fmt.Errorf("save acs config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save acs config: %w", err)
	}
	if err := os.Rename(tmp.Name(), savefile); err != nil {
		return fmt.Errorf("save acs config: %w", err)
	}
	return nil
}

// Restore reads <acsdir>/config.toml and rebuilds the ACS: configuration,
// derived basic-auth token, and one registry entry per CPE record with
// its serial and Connection Request endpoint. Queues start empty and
// refcounts at zero. Returns os.ErrNotExist (wrapped) when no file is
// present so callers can bootstrap instead.
func Restore(acsdir string) (*Acs, error) {
	a := New(acsdir)
	savefile := a.Savefile()

	data, err := os.ReadFile(savefile)
	if err != nil {
		return nil, fmt.Errorf("restore acs config: %w", err)
	}

	var record acsRecord
	if err := toml.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("restore %s: %w: %v", savefile, ErrConfig, err)
	}
	if record.Config.Username == "" || record.Config.Password == "" {
		return nil, fmt.Errorf("restore %s: missing credentials: %w", savefile, ErrConfig)
	}

	a.Config = record.Config
	a.Basicauth = basicauth(a.Config.Username, a.Config.Password)

	for _, rec := range record.CPE {
		if rec.SerialNumber == "" {
			return nil, fmt.Errorf("restore %s: cpe record without serial_number: %w", savefile, ErrConfig)
		}
		cpe := a.registry.LookupOrInsert(rec.SerialNumber)
		cpe.restore(rec.SerialNumber, Connreq{
			Url:      rec.Url,
			Username: rec.Username,
			Password: rec.Password,
		})
	}
	return a, nil
}
