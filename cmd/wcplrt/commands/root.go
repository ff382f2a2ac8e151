// Copyright 2024 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package commands implements the wcplrt command line.
package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/false-schemers/wcpl-sub001/crt"
	"github.com/false-schemers/wcpl-sub001/host/oshost"
)

// Version is reported by the version command.
var Version = "dev"

var (
	cfgFile string
	cfg     *Config
)

var rootCmd = &cobra.Command{
	Use:   "wcplrt",
	Short: "Run the C runtime library on the host process",
	Long: `wcplrt drives the allocator, the buffered stream layer and the
printf engine against the operating system's file descriptors.

Configuration is read from wcplrt.yaml in the working directory, the file
named by --config, and WCPLRT_* environment variables (for example
WCPLRT_STDIO_BUFFER_SIZE=16KiB).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./wcplrt.yaml)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// withRuntime builds a runtime on the process descriptors, runs fn and
// flushes the standard streams. The descriptors stay open so the caller
// can still report errors.
func withRuntime(fn func(rt *crt.Runtime) error) (err error) {
	log, err := NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	mem, release, err := cfg.NewMemory()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, release())
	}()
	opts, err := cfg.RuntimeOptions(log)
	if err != nil {
		return err
	}
	rt, err := crt.New(mem, oshost.New(), opts)
	if err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	err = fn(rt)
	return errors.Join(err, rt.Streams().FlushAll())
}
