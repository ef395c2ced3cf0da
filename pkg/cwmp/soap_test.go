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

package cwmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// informXML is what a real gateway sends, cwmp-1-2 namespace and all.
const informXML = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:cwmp="urn:dslforum-org:cwmp-1-2" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema">
  <soap:Header>
    <cwmp:ID soap:mustUnderstand="1">1234</cwmp:ID>
  </soap:Header>
  <soap:Body>
    <cwmp:Inform>
      <DeviceId>
        <Manufacturer>ACME</Manufacturer>
        <OUI>001122</OUI>
        <ProductClass>Router</ProductClass>
        <SerialNumber>ABC123</SerialNumber>
      </DeviceId>
      <Event>
        <EventStruct>
          <EventCode>1 BOOT</EventCode>
          <CommandKey></CommandKey>
        </EventStruct>
      </Event>
      <MaxEnvelopes>1</MaxEnvelopes>
      <CurrentTime>2024-01-02T03:04:05Z</CurrentTime>
      <RetryCount>0</RetryCount>
      <ParameterList>
        <ParameterValueStruct>
          <Name>Device.ManagementServer.ConnectionRequestURL</Name>
          <Value xsi:type="xsd:string">http://192.168.1.1:7547/connreq</Value>
        </ParameterValueStruct>
      </ParameterList>
    </cwmp:Inform>
  </soap:Body>
</soap:Envelope>`

func TestParseInform(t *testing.T) {
	env, err := Parse([]byte(informXML))
	require.NoError(t, err)

	assert.Equal(t, "Inform", env.Method())
	assert.Equal(t, "1234", env.ID())

	inform := env.Body.Inform
	require.NotNil(t, inform)
	assert.Equal(t, "ACME", inform.DeviceId.Manufacturer)
	assert.Equal(t, "ABC123", inform.DeviceId.SerialNumber)
	require.Len(t, inform.Event, 1)
	assert.Equal(t, "1 BOOT", inform.Event[0].EventCode)
	require.Len(t, inform.ParameterList, 1)
	assert.Equal(t, "Device.ManagementServer.ConnectionRequestURL", inform.ParameterList[0].Name)
	assert.Equal(t, "http://192.168.1.1:7547/connreq", inform.ParameterList[0].Value.Value)
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte("<soap:Envelope><unterminated"))
	assert.Error(t, err)
}

func TestBuildGetParameterValuesRoundTrip(t *testing.T) {
	env := NewEnvelope("42")
	env.AddGetParameterValues("Device.DeviceInfo.SerialNumber", "Device.DeviceInfo.SoftwareVersion")

	data, err := env.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), "soapenv:Envelope")
	assert.Contains(t, string(data), "cwmp:GetParameterValues")

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "GetParameterValues", parsed.Method())
	assert.Equal(t, "42", parsed.ID())
	require.NotNil(t, parsed.Body.GetParameterValues)
	assert.Equal(t,
		[]string{"Device.DeviceInfo.SerialNumber", "Device.DeviceInfo.SoftwareVersion"},
		parsed.Body.GetParameterValues.ParameterNames)
}

func TestBuildInformResponseEchoesID(t *testing.T) {
	env := NewEnvelope("1234")
	env.AddInformResponse()

	data, err := env.Encode()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "InformResponse", parsed.Method())
	assert.Equal(t, "1234", parsed.ID())
	assert.Equal(t, uint32(1), parsed.Body.InformResponse.MaxEnvelopes)
}

func TestFaultRoundTrip(t *testing.T) {
	env := NewEnvelope("9")
	env.AddFault(FaultInvalidArguments, "Invalid arguments")

	data, err := env.Encode()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.True(t, parsed.IsFault())
	assert.Equal(t, "Fault", parsed.Method())
	code, reason := parsed.CwmpFault()
	assert.Equal(t, uint32(FaultInvalidArguments), code)
	assert.Equal(t, "Invalid arguments", reason)
}

func TestSetParameterValuesBuilder(t *testing.T) {
	env := NewEnvelope("7")
	env.AddSetParameterValues([]ParameterValueStruct{
		ParameterString("Device.WiFi.SSID.1.SSID", "attic"),
	}, "key-1")

	data, err := env.Encode()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	spv := parsed.Body.SetParameterValues
	require.NotNil(t, spv)
	assert.Equal(t, "key-1", spv.ParameterKey)
	require.Len(t, spv.ParameterList, 1)
	assert.Equal(t, "attic", spv.ParameterList[0].Value.Value)
}

func TestMethodEmptyBody(t *testing.T) {
	env, err := Parse([]byte(`<Envelope><Header/><Body/></Envelope>`))
	require.NoError(t, err)
	assert.Equal(t, "", env.Method())
	assert.Equal(t, "", env.ID())
}
