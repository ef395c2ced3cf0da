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

// Package cli is the interactive operator shell. It talks to the
// management REST API; it never touches the ACS core directly.
package cli

import (
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
)

type cliCfg struct {
	apiServerAddr string
	authName      string
	authPasswd    string
	histFile      string
	connTimeout   time.Duration
}

type restHandler struct {
	client *http.Client
}

type shHandler struct {
	shell *ishell.Shell
	cmds  map[string]*ishell.Cmd
}

type Cli struct {
	cfg        cliCfg
	rest       restHandler
	sh         shHandler
	lastCmdErr error
}

// New creates a CLI pointed at the management API.
func New(apiServerAddr, username, password string) *Cli {
	return &Cli{
		cfg: cliCfg{
			apiServerAddr: strings.TrimSuffix(apiServerAddr, "/"),
			authName:      username,
			authPasswd:    password,
			histFile:      "history",
			connTimeout:   60 * time.Second,
		},
	}
}

func (cli *Cli) GetLastCmdErr() error {
	return cli.lastCmdErr
}

func (cli *Cli) ClearLastCmdErr() {
	cli.lastCmdErr = nil
}

func (cli *Cli) Init() error {
	if err := cli.restInit(); err != nil {
		log.Println("Could not initialize rest client:", err)
		return err
	}

	// Initialize shell
	cli.sh.shell = ishell.New()
	cli.sh.shell.SetPrompt("Acsrs-Cli>> ")
	cli.sh.shell.SetHistoryPath(cli.cfg.histFile)
	cli.sh.cmds = make(map[string]*ishell.Cmd)

	// Register verb cmds
	cli.registerVerbs()

	// Device management
	cli.registerNounsDevice()
	cli.registerNounsParam()
	cli.registerNounsTransfer()

	// ACS housekeeping
	cli.registerNounsAcs()

	return nil
}

func (cli *Cli) Run() {
	cli.sh.shell.Println("**************************************************************")
	cli.sh.shell.Println("                          Acsrs Cli")
	cli.sh.shell.Println("**************************************************************")
	cli.sh.shell.Run()
}

// ProcessCmd runs one command non-interactively.
func (cli *Cli) ProcessCmd(args string) error {
	log.Println("Processing cmd:", args)
	tok := strings.Split(args, " ")
	return cli.sh.shell.Process(tok...)
}

func (cli *Cli) SetOut(writer io.Writer) {
	cli.sh.shell.SetOut(writer)
}

func (cli *Cli) restInit() error {
	cli.rest.client = &http.Client{Timeout: cli.cfg.connTimeout}
	return nil
}
