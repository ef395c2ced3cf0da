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
	"encoding/xml"
	"fmt"
)

// NewEnvelope creates an outgoing envelope carrying the given cwmp:ID.
func NewEnvelope(id string) *Envelope {
	return &Envelope{
		XMLName: xml.Name{Local: "soapenv:Envelope"},
		SoapEnv: SoapEnvNS,
		SoapEnc: SoapEncNS,
		Cwmp:    CwmpNS,
		Xsi:     XsiNS,
		Xsd:     XsdNS,
		Header: Header{
			XMLName: xml.Name{Local: "soapenv:Header"},
			ID: &IDHeader{
				XMLName:        xml.Name{Local: "cwmp:ID"},
				MustUnderstand: "1",
				Value:          id,
			},
		},
		Body: Body{XMLName: xml.Name{Local: "soapenv:Body"}},
	}
}

// Parse decodes an envelope received from a CPE.
func Parse(data []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := xml.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("malformed soap envelope: %w", err)
	}
	return env, nil
}

// Encode serializes the envelope, prefixed with the XML declaration.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := xml.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), data...), nil
}

// ID returns the cwmp:ID header value, or "" if the header is absent.
func (e *Envelope) ID() string {
	if e.Header.ID == nil {
		return ""
	}
	return e.Header.ID.Value
}

// Method returns the name of the RPC carried in the body, "Fault" for a
// fault envelope, or "" for an empty body.
func (e *Envelope) Method() string {
	b := &e.Body
	switch {
	case b.Inform != nil:
		return "Inform"
	case b.InformResponse != nil:
		return "InformResponse"
	case b.GetRPCMethods != nil:
		return "GetRPCMethods"
	case b.GetRPCMethodsResponse != nil:
		return "GetRPCMethodsResponse"
	case b.GetParameterValues != nil:
		return "GetParameterValues"
	case b.GetParameterValuesResponse != nil:
		return "GetParameterValuesResponse"
	case b.SetParameterValues != nil:
		return "SetParameterValues"
	case b.SetParameterValuesResponse != nil:
		return "SetParameterValuesResponse"
	case b.GetParameterNames != nil:
		return "GetParameterNames"
	case b.GetParameterNamesResponse != nil:
		return "GetParameterNamesResponse"
	case b.AddObject != nil:
		return "AddObject"
	case b.AddObjectResponse != nil:
		return "AddObjectResponse"
	case b.DeleteObject != nil:
		return "DeleteObject"
	case b.DeleteObjectResponse != nil:
		return "DeleteObjectResponse"
	case b.Download != nil:
		return "Download"
	case b.DownloadResponse != nil:
		return "DownloadResponse"
	case b.Upload != nil:
		return "Upload"
	case b.UploadResponse != nil:
		return "UploadResponse"
	case b.Reboot != nil:
		return "Reboot"
	case b.RebootResponse != nil:
		return "RebootResponse"
	case b.FactoryReset != nil:
		return "FactoryReset"
	case b.FactoryResetResponse != nil:
		return "FactoryResetResponse"
	case b.TransferComplete != nil:
		return "TransferComplete"
	case b.TransferCompleteResponse != nil:
		return "TransferCompleteResponse"
	case b.Fault != nil:
		return "Fault"
	}
	return ""
}

// IsFault reports whether the envelope carries a SOAP fault.
func (e *Envelope) IsFault() bool {
	return e.Body.Fault != nil
}

// CwmpFault returns the CWMP fault code and string from a fault envelope,
// or (0, "") when the envelope is not a fault or carries no CWMP detail.
func (e *Envelope) CwmpFault() (uint32, string) {
	f := e.Body.Fault
	if f == nil || f.Detail == nil || f.Detail.Fault == nil {
		return 0, ""
	}
	return f.Detail.Fault.FaultCode, f.Detail.Fault.FaultString
}

func cwmpName(local string) xml.Name {
	return xml.Name{Local: "cwmp:" + local}
}

// Body builders. Each attaches the RPC to the envelope and returns it for
// further field assignment.

func (e *Envelope) AddInform(dev DeviceId, events []EventStruct, params []ParameterValueStruct) *Inform {
	r := &Inform{
		XMLName:       cwmpName("Inform"),
		DeviceId:      dev,
		Event:         events,
		MaxEnvelopes:  1,
		ParameterList: params,
	}
	e.Body.Inform = r
	return r
}

func (e *Envelope) AddInformResponse() *InformResponse {
	r := &InformResponse{XMLName: cwmpName("InformResponse"), MaxEnvelopes: 1}
	e.Body.InformResponse = r
	return r
}

func (e *Envelope) AddGetRPCMethodsResponse(methods []string) *GetRPCMethodsResponse {
	r := &GetRPCMethodsResponse{XMLName: cwmpName("GetRPCMethodsResponse"), MethodList: methods}
	e.Body.GetRPCMethodsResponse = r
	return r
}

func (e *Envelope) AddGetParameterValues(names ...string) *GetParameterValues {
	r := &GetParameterValues{XMLName: cwmpName("GetParameterValues"), ParameterNames: names}
	e.Body.GetParameterValues = r
	return r
}

func (e *Envelope) AddGetParameterValuesResponse(params []ParameterValueStruct) *GetParameterValuesResponse {
	r := &GetParameterValuesResponse{XMLName: cwmpName("GetParameterValuesResponse"), ParameterList: params}
	e.Body.GetParameterValuesResponse = r
	return r
}

func (e *Envelope) AddSetParameterValues(params []ParameterValueStruct, key string) *SetParameterValues {
	r := &SetParameterValues{XMLName: cwmpName("SetParameterValues"), ParameterList: params, ParameterKey: key}
	e.Body.SetParameterValues = r
	return r
}

func (e *Envelope) AddSetParameterValuesResponse(status uint32) *SetParameterValuesResponse {
	r := &SetParameterValuesResponse{XMLName: cwmpName("SetParameterValuesResponse"), Status: status}
	e.Body.SetParameterValuesResponse = r
	return r
}

func (e *Envelope) AddGetParameterNames(path string, nextLevel bool) *GetParameterNames {
	r := &GetParameterNames{XMLName: cwmpName("GetParameterNames"), ParameterPath: path, NextLevel: nextLevel}
	e.Body.GetParameterNames = r
	return r
}

func (e *Envelope) AddDownload(d Download) *Download {
	d.XMLName = cwmpName("Download")
	e.Body.Download = &d
	return e.Body.Download
}

func (e *Envelope) AddUpload(u Upload) *Upload {
	u.XMLName = cwmpName("Upload")
	e.Body.Upload = &u
	return e.Body.Upload
}

func (e *Envelope) AddReboot(commandKey string) *Reboot {
	r := &Reboot{XMLName: cwmpName("Reboot"), CommandKey: commandKey}
	e.Body.Reboot = r
	return r
}

func (e *Envelope) AddFactoryReset() *FactoryReset {
	r := &FactoryReset{XMLName: cwmpName("FactoryReset")}
	e.Body.FactoryReset = r
	return r
}

func (e *Envelope) AddTransferComplete(commandKey string) *TransferComplete {
	r := &TransferComplete{XMLName: cwmpName("TransferComplete"), CommandKey: commandKey}
	e.Body.TransferComplete = r
	return r
}

func (e *Envelope) AddTransferCompleteResponse() *TransferCompleteResponse {
	r := &TransferCompleteResponse{XMLName: cwmpName("TransferCompleteResponse")}
	e.Body.TransferCompleteResponse = r
	return r
}

// AddFault attaches a CWMP fault. Server faults (9002 and up on the ACS
// side) use faultcode Server; everything else is blamed on the Client.
func (e *Envelope) AddFault(code uint32, reason string) *Fault {
	faultcode := "Client"
	if code == FaultInternalError {
		faultcode = "Server"
	}
	f := &Fault{
		XMLName:     xml.Name{Local: "soapenv:Fault"},
		FaultCode:   faultcode,
		FaultString: "CWMP fault",
		Detail: &FaultDetail{
			Fault: &FaultStruct{
				XMLName:     cwmpName("Fault"),
				FaultCode:   code,
				FaultString: reason,
			},
		},
	}
	e.Body.Fault = f
	return f
}

// ParameterString is a convenience for string-typed parameter values.
func ParameterString(name, value string) ParameterValueStruct {
	return ParameterValueStruct{
		Name:  name,
		Value: ParameterValue{Type: "xsd:string", Value: value},
	}
}
