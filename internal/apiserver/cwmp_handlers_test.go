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

package apiserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarlah/acsrs/pkg/acs"
	"github.com/jarlah/acsrs/pkg/cwmp"
)

func newTestSetup(t *testing.T) (*acs.Acs, *httptest.Server, *httptest.Server) {
	t.Helper()
	a := acs.New(t.TempDir())

	mgmt := httptest.NewServer(New(a).Handler())
	t.Cleanup(mgmt.Close)

	cwmpSrv := httptest.NewServer(acs.NewServer(a, nil, nil).Handler())
	t.Cleanup(cwmpSrv.Close)

	return a, mgmt, cwmpSrv
}

func mgmtReq(t *testing.T, a *acs.Acs, method, url string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", a.Basicauth)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return res
}

func TestManagementAuthRequired(t *testing.T) {
	_, mgmt, _ := newTestSetup(t)

	res, err := http.Get(mgmt.URL + CWMP_GET_DEVICES)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Contains(t, res.Header.Get("WWW-Authenticate"), "Basic")
}

func TestGetDevices(t *testing.T) {
	a, mgmt, _ := newTestSetup(t)
	a.Registry().LookupOrInsert("CPE1_SN")
	a.Registry().LookupOrInsert("CPE2_SN")

	res := mgmtReq(t, a, http.MethodGet, mgmt.URL+CWMP_GET_DEVICES, nil)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var devices []CwmpDeviceInfo
	require.NoError(t, json.NewDecoder(res.Body).Decode(&devices))
	require.Len(t, devices, 2)
	serials := []string{devices[0].SerialNumber, devices[1].SerialNumber}
	assert.ElementsMatch(t, []string{"CPE1_SN", "CPE2_SN"}, serials)
}

func TestGetDeviceUnknown(t *testing.T) {
	a, mgmt, _ := newTestSetup(t)

	res := mgmtReq(t, a, http.MethodGet, mgmt.URL+"/cwmp/device/NOPE", nil)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestSaveEndpoint(t *testing.T) {
	a, mgmt, _ := newTestSetup(t)
	a.Registry().LookupOrInsert("CPE1_SN")

	res := mgmtReq(t, a, http.MethodPost, mgmt.URL+CWMP_SAVE, nil)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	_, err := os.Stat(a.Savefile())
	assert.NoError(t, err)
}

func TestDeleteDevice(t *testing.T) {
	a, mgmt, _ := newTestSetup(t)
	a.Registry().LookupOrInsert("CPE1_SN")

	res := mgmtReq(t, a, http.MethodDelete, mgmt.URL+"/cwmp/device/CPE1_SN", nil)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Nil(t, a.Registry().Lookup("CPE1_SN"))
}

// Full loop: a REST GetParameterValues wakes the device, the device runs
// a CWMP session against the ACS, and the REST call returns the values.
func TestGetParamsEndToEnd(t *testing.T) {
	a, mgmt, cwmpSrv := newTestSetup(t)

	connreqHit := make(chan struct{}, 1)
	wake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.Header().Set("WWW-Authenticate", `Digest realm="cpe", nonce="abc", qop="auth"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		select {
		case connreqHit <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer wake.Close()

	// Pre-provision the device so the wake-up has somewhere to go.
	cpe := a.Registry().LookupOrInsert("ABC123")
	cpe.SetConnreq(acs.Connreq{Url: wake.URL, Username: "acsrs", Password: "secret"})

	restDone := make(chan []CwmpParameterInfo, 1)
	restErr := make(chan error, 1)
	go func() {
		req, err := http.NewRequest(http.MethodGet,
			mgmt.URL+"/cwmp/device/ABC123/params?names=Device.DeviceInfo.SerialNumber", nil)
		if err != nil {
			restErr <- err
			return
		}
		req.Header.Set("Authorization", a.Basicauth)
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			restErr <- err
			return
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(res.Body)
			restErr <- fmt.Errorf("unexpected status %d: %s", res.StatusCode, data)
			return
		}
		var params []CwmpParameterInfo
		if err := json.NewDecoder(res.Body).Decode(&params); err != nil {
			restErr <- err
			return
		}
		restDone <- params
	}()

	// The wake-up guarantees the transfer is already queued.
	<-connreqHit

	runFakeDevice(t, a, cwmpSrv.URL, "ABC123")

	select {
	case err := <-restErr:
		t.Fatal(err)
	case params := <-restDone:
		require.Len(t, params, 1)
		assert.Equal(t, "Device.DeviceInfo.SerialNumber", params[0].Name)
		assert.Equal(t, "ABC123", params[0].Value)
	}
}

// runFakeDevice plays one CWMP session: Inform, poll, answer the GPV.
func runFakeDevice(t *testing.T, a *acs.Acs, baseURL, serial string) {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	post := func(body []byte) *http.Response {
		req, err := http.NewRequest(http.MethodPost, baseURL+acs.CPEMgtPath, bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", a.Basicauth)
		req.Header.Set("Content-Type", "text/xml; charset=utf-8")
		res, err := client.Do(req)
		require.NoError(t, err)
		return res
	}

	inform := cwmp.NewEnvelope("inform-1")
	inform.AddInform(
		cwmp.DeviceId{Manufacturer: "ACME", OUI: "001122", ProductClass: "Router", SerialNumber: serial},
		[]cwmp.EventStruct{{EventCode: cwmp.EventConnectionRequest}},
		nil,
	)
	data, err := inform.Encode()
	require.NoError(t, err)
	res := post(data)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	// Poll until the queue is dry, answering every GPV on the way.
	for i := 0; i < 10; i++ {
		res = post(nil)
		if res.StatusCode == http.StatusNoContent {
			res.Body.Close()
			return
		}
		require.Equal(t, http.StatusOK, res.StatusCode)
		raw, err := io.ReadAll(res.Body)
		res.Body.Close()
		require.NoError(t, err)
		env, err := cwmp.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, "GetParameterValues", env.Method())

		answer := cwmp.NewEnvelope(env.ID())
		var values []cwmp.ParameterValueStruct
		for _, name := range env.Body.GetParameterValues.ParameterNames {
			values = append(values, cwmp.ParameterString(name, serial))
		}
		answer.AddGetParameterValuesResponse(values)
		data, err := answer.Encode()
		require.NoError(t, err)
		res = post(data)
		if res.StatusCode == http.StatusNoContent {
			res.Body.Close()
			return
		}
		res.Body.Close()
	}
	t.Fatal("device never drained the queue")
}
