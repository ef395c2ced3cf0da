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
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagDir     string
	flagLogging string
)

var rootCmd = &cobra.Command{
	Use:   "acsrs",
	Short: "TR-069 auto-configuration server",
	Long:  "acsrs terminates CWMP sessions from CPEs and multiplexes management operations against them.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loggingInit()
	},
}

func init() {
	defaultDir := ".acsrs"
	if home, err := os.UserHomeDir(); err == nil {
		defaultDir = filepath.Join(home, ".acsrs")
	}
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", defaultDir, "ACS state directory")
	rootCmd.PersistentFlags().StringVar(&flagLogging, "logging", "short", "log verbosity: short, long or none")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shellCmd)
}

func loggingInit() {
	log.SetPrefix("ACSRS: ")
	switch flagLogging {
	case "short":
		log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	case "long":
		log.SetFlags(log.Llongfile | log.Ldate | log.Ltime)
	default:
		log.SetFlags(0)
		log.SetOutput(io.Discard)
	}
}
