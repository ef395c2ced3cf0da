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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jarlah/acsrs/pkg/acs"
	"github.com/jarlah/acsrs/pkg/cwmp"
)

// Management API endpoints
const (
	CWMP_GET_DEVICES        = "/cwmp/devices/"
	CWMP_DEVICE             = "/cwmp/device/{sn}"
	CWMP_DEVICE_PARAMS      = "/cwmp/device/{sn}/params"
	CWMP_DEVICE_NAMES       = "/cwmp/device/{sn}/names"
	CWMP_REBOOT_DEVICE      = "/cwmp/device/{sn}/reboot"
	CWMP_FACTORY_RESET      = "/cwmp/device/{sn}/factory-reset"
	CWMP_DOWNLOAD           = "/cwmp/device/{sn}/download"
	CWMP_CONNECTION_REQUEST = "/cwmp/device/{sn}/connection-request"
	CWMP_SAVE               = "/cwmp/save"
)

// CwmpDeviceInfo describes a registry entry for API responses.
type CwmpDeviceInfo struct {
	SerialNumber         string `json:"serial_number"`
	Manufacturer         string `json:"manufacturer"`
	OUI                  string `json:"oui"`
	ProductClass         string `json:"product_class"`
	ConnectionRequestURL string `json:"connection_request_url"`
	BaseURL              string `json:"base_url,omitempty"`
	LastInformTime       string `json:"last_inform_time,omitempty"`
	SessionOpen          bool   `json:"session_open"`
	ControllerRunning    bool   `json:"controller_running"`
}

// CwmpParameterInfo is one parameter value in API responses.
type CwmpParameterInfo struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

// CwmpSetParamsRequest asks for a SetParameterValues.
type CwmpSetParamsRequest struct {
	Parameters   []CwmpParameterInfo `json:"parameters"`
	ParameterKey string              `json:"parameter_key,omitempty"`
}

// CwmpRebootRequest asks for a Reboot.
type CwmpRebootRequest struct {
	CommandKey string `json:"command_key"`
}

// CwmpDownloadRequest asks for a Download. A relative URL is resolved
// against the base URL the CPE last reached the ACS on.
type CwmpDownloadRequest struct {
	CommandKey     string `json:"command_key"`
	FileType       string `json:"file_type"`
	URL            string `json:"url"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	FileSize       uint32 `json:"file_size,omitempty"`
	TargetFileName string `json:"target_filename,omitempty"`
	DelaySeconds   uint32 `json:"delay_seconds,omitempty"`
}

// CwmpFaultInfo relays a CWMP fault answered by the device.
type CwmpFaultInfo struct {
	Code   uint32 `json:"code"`
	String string `json:"string"`
}

func (as *ApiServer) setCwmpRoutesHandlers() {
	as.router.HandleFunc(CWMP_GET_DEVICES, as.getCwmpDevices).Methods("GET")
	as.router.HandleFunc(CWMP_DEVICE, as.getCwmpDevice).Methods("GET")
	as.router.HandleFunc(CWMP_DEVICE, as.deleteCwmpDevice).Methods("DELETE")

	as.router.HandleFunc(CWMP_DEVICE_PARAMS, as.getCwmpParams).Methods("GET")
	as.router.HandleFunc(CWMP_DEVICE_PARAMS, as.setCwmpParams).Methods("POST")
	as.router.HandleFunc(CWMP_DEVICE_NAMES, as.getCwmpParamNames).Methods("GET")

	as.router.HandleFunc(CWMP_REBOOT_DEVICE, as.rebootCwmpDevice).Methods("POST")
	as.router.HandleFunc(CWMP_FACTORY_RESET, as.factoryResetCwmpDevice).Methods("POST")
	as.router.HandleFunc(CWMP_DOWNLOAD, as.downloadCwmpDevice).Methods("POST")
	as.router.HandleFunc(CWMP_CONNECTION_REQUEST, as.connectionRequestCwmpDevice).Methods("POST")

	as.router.HandleFunc(CWMP_SAVE, as.saveAcs).Methods("POST")
}

func (as *ApiServer) getCwmpDevices(w http.ResponseWriter, r *http.Request) {
	snapshot := as.acs.Registry().Snapshot()
	devices := make([]CwmpDeviceInfo, 0, len(snapshot))
	for _, cpe := range snapshot {
		devices = append(devices, deviceInfo(cpe))
	}
	httpSendRes(w, devices, nil)
}

func (as *ApiServer) getCwmpDevice(w http.ResponseWriter, r *http.Request) {
	cpe := as.lookupDevice(w, r)
	if cpe == nil {
		return
	}
	httpSendRes(w, deviceInfo(cpe), nil)
}

func (as *ApiServer) deleteCwmpDevice(w http.ResponseWriter, r *http.Request) {
	sn := mux.Vars(r)["sn"]
	if as.acs.Registry().Lookup(sn) == nil {
		httpSendErr(w, http.StatusNotFound, fmt.Errorf("unknown device %q", sn))
		return
	}
	as.acs.Registry().Remove(sn)
	httpSendRes(w, map[string]string{"deleted": sn}, nil)
}

func (as *ApiServer) getCwmpParams(w http.ResponseWriter, r *http.Request) {
	cpe := as.lookupDevice(w, r)
	if cpe == nil {
		return
	}
	names := strings.Split(r.URL.Query().Get("names"), ",")
	if len(names) == 1 && names[0] == "" {
		httpSendErr(w, http.StatusBadRequest, errors.New("names query parameter is required"))
		return
	}

	reply, err := as.doTransfer(r.Context(), cpe, func(env *cwmp.Envelope) {
		env.AddGetParameterValues(names...)
	})
	if err != nil {
		httpSendRes(w, nil, err)
		return
	}
	if fault, ok := faultInfo(reply); ok {
		httpSendRes(w, fault, nil)
		return
	}

	var params []CwmpParameterInfo
	if res := reply.Body.GetParameterValuesResponse; res != nil {
		for _, p := range res.ParameterList {
			params = append(params, CwmpParameterInfo{Name: p.Name, Value: p.Value.Value, Type: p.Value.Type})
		}
	}
	httpSendRes(w, params, nil)
}

func (as *ApiServer) setCwmpParams(w http.ResponseWriter, r *http.Request) {
	cpe := as.lookupDevice(w, r)
	if cpe == nil {
		return
	}
	var req CwmpSetParamsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpSendErr(w, http.StatusBadRequest, err)
		return
	}

	params := make([]cwmp.ParameterValueStruct, 0, len(req.Parameters))
	for _, p := range req.Parameters {
		pt := p.Type
		if pt == "" {
			pt = "xsd:string"
		}
		params = append(params, cwmp.ParameterValueStruct{
			Name:  p.Name,
			Value: cwmp.ParameterValue{Type: pt, Value: p.Value},
		})
	}

	reply, err := as.doTransfer(r.Context(), cpe, func(env *cwmp.Envelope) {
		env.AddSetParameterValues(params, req.ParameterKey)
	})
	if err != nil {
		httpSendRes(w, nil, err)
		return
	}
	if fault, ok := faultInfo(reply); ok {
		httpSendRes(w, fault, nil)
		return
	}

	var status uint32
	if res := reply.Body.SetParameterValuesResponse; res != nil {
		status = res.Status
	}
	httpSendRes(w, map[string]uint32{"status": status}, nil)
}

func (as *ApiServer) getCwmpParamNames(w http.ResponseWriter, r *http.Request) {
	cpe := as.lookupDevice(w, r)
	if cpe == nil {
		return
	}
	path := r.URL.Query().Get("path")
	nextLevel := r.URL.Query().Get("next_level") == "true"

	reply, err := as.doTransfer(r.Context(), cpe, func(env *cwmp.Envelope) {
		env.AddGetParameterNames(path, nextLevel)
	})
	if err != nil {
		httpSendRes(w, nil, err)
		return
	}
	if fault, ok := faultInfo(reply); ok {
		httpSendRes(w, fault, nil)
		return
	}
	var names []cwmp.ParameterInfoStruct
	if res := reply.Body.GetParameterNamesResponse; res != nil {
		names = res.ParameterList
	}
	httpSendRes(w, names, nil)
}

func (as *ApiServer) rebootCwmpDevice(w http.ResponseWriter, r *http.Request) {
	cpe := as.lookupDevice(w, r)
	if cpe == nil {
		return
	}
	var req CwmpRebootRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpSendErr(w, http.StatusBadRequest, err)
			return
		}
	}

	reply, err := as.doTransfer(r.Context(), cpe, func(env *cwmp.Envelope) {
		env.AddReboot(req.CommandKey)
	})
	if err != nil {
		httpSendRes(w, nil, err)
		return
	}
	if fault, ok := faultInfo(reply); ok {
		httpSendRes(w, fault, nil)
		return
	}
	httpSendRes(w, map[string]string{"result": "rebooting"}, nil)
}

func (as *ApiServer) factoryResetCwmpDevice(w http.ResponseWriter, r *http.Request) {
	cpe := as.lookupDevice(w, r)
	if cpe == nil {
		return
	}
	reply, err := as.doTransfer(r.Context(), cpe, func(env *cwmp.Envelope) {
		env.AddFactoryReset()
	})
	if err != nil {
		httpSendRes(w, nil, err)
		return
	}
	if fault, ok := faultInfo(reply); ok {
		httpSendRes(w, fault, nil)
		return
	}
	httpSendRes(w, map[string]string{"result": "resetting"}, nil)
}

func (as *ApiServer) downloadCwmpDevice(w http.ResponseWriter, r *http.Request) {
	cpe := as.lookupDevice(w, r)
	if cpe == nil {
		return
	}
	var req CwmpDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpSendErr(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		httpSendErr(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	if strings.HasPrefix(req.URL, "/") {
		base := cpe.Baseurl()
		if base == "" {
			httpSendErr(w, http.StatusBadRequest, errors.New("relative url but device has no known base url"))
			return
		}
		req.URL = base + req.URL
	}
	if req.FileType == "" {
		req.FileType = "1 Firmware Upgrade Image"
	}

	reply, err := as.doTransfer(r.Context(), cpe, func(env *cwmp.Envelope) {
		env.AddDownload(cwmp.Download{
			CommandKey:     req.CommandKey,
			FileType:       req.FileType,
			URL:            req.URL,
			Username:       req.Username,
			Password:       req.Password,
			FileSize:       req.FileSize,
			TargetFileName: req.TargetFileName,
			DelaySeconds:   req.DelaySeconds,
		})
	})
	if err != nil {
		httpSendRes(w, nil, err)
		return
	}
	if fault, ok := faultInfo(reply); ok {
		httpSendRes(w, fault, nil)
		return
	}
	var status uint32
	if res := reply.Body.DownloadResponse; res != nil {
		status = res.Status
	}
	httpSendRes(w, map[string]uint32{"status": status}, nil)
}

func (as *ApiServer) connectionRequestCwmpDevice(w http.ResponseWriter, r *http.Request) {
	cpe := as.lookupDevice(w, r)
	if cpe == nil {
		return
	}
	connreq := cpe.Connreq()
	if connreq.Url == "" {
		httpSendErr(w, http.StatusConflict, errors.New("device has not advertised a connection request url"))
		return
	}
	if err := connreq.Send(r.Context()); err != nil {
		httpSendRes(w, nil, err)
		return
	}
	httpSendRes(w, map[string]string{"result": "acknowledged"}, nil)
}

func (as *ApiServer) saveAcs(w http.ResponseWriter, r *http.Request) {
	if err := as.acs.Save(); err != nil {
		httpSendRes(w, nil, err)
		return
	}
	httpSendRes(w, map[string]string{"saved": as.acs.Savefile()}, nil)
}

// doTransfer enqueues one request envelope against the device and waits,
// bounded by the management RPC timeout, for the CPE's answer.
func (as *ApiServer) doTransfer(ctx context.Context, cpe *acs.CPE, build func(*cwmp.Envelope)) (*cwmp.Envelope, error) {
	ctl := acs.NewController(cpe)
	defer ctl.Close()

	env := cwmp.NewEnvelope(uuid.NewString())
	build(env)

	t := acs.NewTransfer(env)
	rx := t.Observe()

	ctx, cancel := context.WithTimeout(ctx, as.cfg.rpcTimeout)
	defer cancel()

	if err := ctl.AddTransfer(ctx, t); err != nil {
		return nil, err
	}
	select {
	case reply, ok := <-rx:
		if !ok {
			return nil, errors.New("session ended without a reply")
		}
		return reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for device reply: %w", ctx.Err())
	}
}

func (as *ApiServer) lookupDevice(w http.ResponseWriter, r *http.Request) *acs.CPE {
	sn := mux.Vars(r)["sn"]
	cpe := as.acs.Registry().Lookup(sn)
	if cpe == nil {
		httpSendErr(w, http.StatusNotFound, fmt.Errorf("unknown device %q", sn))
		return nil
	}
	return cpe
}

func deviceInfo(cpe *acs.CPE) CwmpDeviceInfo {
	dev := cpe.DeviceId()
	info := CwmpDeviceInfo{
		SerialNumber:         dev.SerialNumber,
		Manufacturer:         dev.Manufacturer,
		OUI:                  dev.OUI,
		ProductClass:         dev.ProductClass,
		ConnectionRequestURL: cpe.Connreq().Url,
		BaseURL:              cpe.Baseurl(),
		SessionOpen:          cpe.SessionOpened(),
		ControllerRunning:    cpe.ControllerRunning(),
	}
	if last := cpe.LastInform(); !last.IsZero() {
		info.LastInformTime = last.Format(time.RFC3339)
	}
	return info
}

func faultInfo(reply *cwmp.Envelope) (map[string]CwmpFaultInfo, bool) {
	if !reply.IsFault() {
		return nil, false
	}
	code, str := reply.CwmpFault()
	return map[string]CwmpFaultInfo{"fault": {Code: code, String: str}}, true
}

func httpSendRes(w http.ResponseWriter, data interface{}, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(data)
}

func httpSendErr(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
