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

package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/jarlah/acsrs/internal/cli"
	"github.com/jarlah/acsrs/pkg/acs"
)

var shellCmd = &cobra.Command{
	Use:   "shell [command...]",
	Short: "Interactive operator shell against a running ACS",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := acs.Restore(flagDir)
		if err != nil {
			return err
		}

		c := cli.New("http://"+a.Config.ManagementAddress, a.Config.Username, a.Config.Password)
		if err := c.Init(); err != nil {
			return err
		}
		if len(args) > 0 {
			if err := c.ProcessCmd(strings.Join(args, " ")); err != nil {
				return err
			}
			return c.GetLastCmdErr()
		}
		c.Run()
		return nil
	},
}
