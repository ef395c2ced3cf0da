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

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/abiosoft/ishell"
)

// CLI commands and help text
const (
	showDevicesHelp  = "show devices - List all known CPEs"
	showDeviceHelp   = "show device <serial> - Show one CPE"
	getParamsHelp    = "get params <serial> <param1> [param2] ... - GetParameterValues on a CPE"
	setParamsHelp    = "set params <serial> <param=value> [param2=value2] ... - SetParameterValues on a CPE"
	getNamesHelp     = "get names <serial> [path] [next-level] - GetParameterNames on a CPE"
	rebootHelp       = "reboot <serial> [command_key] - Reboot a CPE"
	factoryResetHelp = "factory-reset <serial> - Factory-reset a CPE"
	downloadHelp     = "download <serial> <url> [file_type] - Ask a CPE to download a file"
	connreqHelp      = "connreq <serial> - Send a Connection Request to a CPE"
	deleteHelp       = "delete <serial> - Remove a CPE from the registry"
	saveHelp         = "save - Persist the ACS state to config.toml"
)

type noun struct {
	parent string
	name   string
	help   string
	fn     func(*ishell.Context)
}

func (cli *Cli) registerVerbs() {
	for _, v := range []struct {
		name string
		help string
	}{
		{"show", "show devices|device"},
		{"get", "get params|names"},
		{"set", "set params"},
	} {
		cmd := &ishell.Cmd{Name: v.name, Help: v.help}
		cli.sh.shell.AddCmd(cmd)
		cli.sh.cmds[v.name] = cmd
	}
}

func (cli *Cli) registerNouns(nouns []noun) {
	for _, n := range nouns {
		cmd := &ishell.Cmd{Name: n.name, Help: n.help, Func: n.fn}
		if n.parent == "" {
			cli.sh.shell.AddCmd(cmd)
			cli.sh.cmds[n.name] = cmd
			continue
		}
		if parent, ok := cli.sh.cmds[n.parent]; ok {
			parent.AddCmd(cmd)
			cli.sh.cmds[n.parent+"."+n.name] = cmd
		}
	}
}

func (cli *Cli) registerNounsDevice() {
	cli.registerNouns([]noun{
		{"show", "devices", showDevicesHelp, cli.showDevices},
		{"show", "device", showDeviceHelp, cli.showDevice},
		{"", "delete", deleteHelp, cli.deleteDevice},
		{"", "connreq", connreqHelp, cli.connreqDevice},
	})
}

func (cli *Cli) registerNounsParam() {
	cli.registerNouns([]noun{
		{"get", "params", getParamsHelp, cli.getParams},
		{"get", "names", getNamesHelp, cli.getNames},
		{"set", "params", setParamsHelp, cli.setParams},
	})
}

func (cli *Cli) registerNounsTransfer() {
	cli.registerNouns([]noun{
		{"", "reboot", rebootHelp, cli.rebootDevice},
		{"", "factory-reset", factoryResetHelp, cli.factoryResetDevice},
		{"", "download", downloadHelp, cli.downloadDevice},
	})
}

func (cli *Cli) registerNounsAcs() {
	cli.registerNouns([]noun{
		{"", "save", saveHelp, cli.saveAcs},
	})
}

func (cli *Cli) showDevices(c *ishell.Context) {
	data, err := cli.restGet("/cwmp/devices/")
	if err != nil {
		c.Printf("Error getting devices: %v\n", err)
		cli.lastCmdErr = err
		return
	}

	var devices []map[string]interface{}
	if err := json.Unmarshal(data, &devices); err != nil {
		c.Printf("Error parsing response: %v\n", err)
		cli.lastCmdErr = err
		return
	}

	if len(devices) == 0 {
		c.Println("No devices found")
		cli.lastCmdErr = nil
		return
	}

	c.Printf("Found %d device(s):\n", len(devices))
	c.Println("==========================================")
	for _, device := range devices {
		c.Printf("  Serial Number : %v\n", device["serial_number"])
		c.Printf("  Manufacturer  : %v\n", device["manufacturer"])
		c.Printf("  Product Class : %v\n", device["product_class"])
		c.Printf("  Connreq URL   : %v\n", device["connection_request_url"])
		c.Printf("  Session Open  : %v\n", device["session_open"])
		c.Printf("  Last Inform   : %v\n", device["last_inform_time"])
		c.Println("------------------------------------------")
	}
	cli.lastCmdErr = nil
}

func (cli *Cli) showDevice(c *ishell.Context) {
	if len(c.Args) < 1 {
		cli.argError(c, showDeviceHelp)
		return
	}
	data, err := cli.restGet("/cwmp/device/" + c.Args[0])
	if err != nil {
		c.Printf("Error getting device: %v\n", err)
		cli.lastCmdErr = err
		return
	}
	cli.printJSON(c, data)
}

func (cli *Cli) getParams(c *ishell.Context) {
	if len(c.Args) < 2 {
		cli.argError(c, getParamsHelp)
		return
	}
	serial := c.Args[0]
	names := strings.Join(c.Args[1:], ",")
	data, err := cli.restGet("/cwmp/device/" + serial + "/params?names=" + names)
	if err != nil {
		c.Printf("Error getting params: %v\n", err)
		cli.lastCmdErr = err
		return
	}
	cli.printJSON(c, data)
}

func (cli *Cli) setParams(c *ishell.Context) {
	if len(c.Args) < 2 {
		cli.argError(c, setParamsHelp)
		return
	}
	serial := c.Args[0]
	var params []map[string]string
	for _, arg := range c.Args[1:] {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			cli.argError(c, setParamsHelp)
			return
		}
		params = append(params, map[string]string{"name": name, "value": value})
	}

	body := map[string]interface{}{"parameters": params}
	data, err := cli.restPost("/cwmp/device/"+serial+"/params", body)
	if err != nil {
		c.Printf("Error setting params: %v\n", err)
		cli.lastCmdErr = err
		return
	}
	cli.printJSON(c, data)
}

func (cli *Cli) getNames(c *ishell.Context) {
	if len(c.Args) < 1 {
		cli.argError(c, getNamesHelp)
		return
	}
	url := "/cwmp/device/" + c.Args[0] + "/names"
	if len(c.Args) > 1 {
		url += "?path=" + c.Args[1]
		if len(c.Args) > 2 && c.Args[2] == "next-level" {
			url += "&next_level=true"
		}
	}
	data, err := cli.restGet(url)
	if err != nil {
		c.Printf("Error getting names: %v\n", err)
		cli.lastCmdErr = err
		return
	}
	cli.printJSON(c, data)
}

func (cli *Cli) rebootDevice(c *ishell.Context) {
	if len(c.Args) < 1 {
		cli.argError(c, rebootHelp)
		return
	}
	body := map[string]string{}
	if len(c.Args) > 1 {
		body["command_key"] = c.Args[1]
	}
	data, err := cli.restPost("/cwmp/device/"+c.Args[0]+"/reboot", body)
	if err != nil {
		c.Printf("Error rebooting device: %v\n", err)
		cli.lastCmdErr = err
		return
	}
	cli.printJSON(c, data)
}

func (cli *Cli) factoryResetDevice(c *ishell.Context) {
	if len(c.Args) < 1 {
		cli.argError(c, factoryResetHelp)
		return
	}
	data, err := cli.restPost("/cwmp/device/"+c.Args[0]+"/factory-reset", map[string]string{})
	if err != nil {
		c.Printf("Error factory-resetting device: %v\n", err)
		cli.lastCmdErr = err
		return
	}
	cli.printJSON(c, data)
}

func (cli *Cli) downloadDevice(c *ishell.Context) {
	if len(c.Args) < 2 {
		cli.argError(c, downloadHelp)
		return
	}
	body := map[string]string{"url": c.Args[1]}
	if len(c.Args) > 2 {
		body["file_type"] = c.Args[2]
	}
	data, err := cli.restPost("/cwmp/device/"+c.Args[0]+"/download", body)
	if err != nil {
		c.Printf("Error requesting download: %v\n", err)
		cli.lastCmdErr = err
		return
	}
	cli.printJSON(c, data)
}

func (cli *Cli) connreqDevice(c *ishell.Context) {
	if len(c.Args) < 1 {
		cli.argError(c, connreqHelp)
		return
	}
	data, err := cli.restPost("/cwmp/device/"+c.Args[0]+"/connection-request", map[string]string{})
	if err != nil {
		c.Printf("Error sending connection request: %v\n", err)
		cli.lastCmdErr = err
		return
	}
	cli.printJSON(c, data)
}

func (cli *Cli) deleteDevice(c *ishell.Context) {
	if len(c.Args) < 1 {
		cli.argError(c, deleteHelp)
		return
	}
	data, err := cli.restDelete("/cwmp/device/" + c.Args[0])
	if err != nil {
		c.Printf("Error deleting device: %v\n", err)
		cli.lastCmdErr = err
		return
	}
	cli.printJSON(c, data)
}

func (cli *Cli) saveAcs(c *ishell.Context) {
	data, err := cli.restPost("/cwmp/save", map[string]string{})
	if err != nil {
		c.Printf("Error saving: %v\n", err)
		cli.lastCmdErr = err
		return
	}
	cli.printJSON(c, data)
}

func (cli *Cli) argError(c *ishell.Context, help string) {
	c.Println("Error: missing or invalid arguments")
	c.Println(help)
	cli.lastCmdErr = errors.New("missing or invalid arguments")
}

func (cli *Cli) printJSON(c *ishell.Context, data []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		c.Println(string(data))
	} else {
		c.Println(buf.String())
	}
	cli.lastCmdErr = nil
}

func (cli *Cli) restGet(path string) ([]byte, error) {
	return cli.restReq(http.MethodGet, path, nil)
}

func (cli *Cli) restPost(path string, body interface{}) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return cli.restReq(http.MethodPost, path, bytes.NewReader(data))
}

func (cli *Cli) restDelete(path string) ([]byte, error) {
	return cli.restReq(http.MethodDelete, path, nil)
}

func (cli *Cli) restReq(method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequest(method, cli.cfg.apiServerAddr+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(cli.cfg.authName, cli.cfg.authPasswd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := cli.rest.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("api server returned %s: %s", res.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}
