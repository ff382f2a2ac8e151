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

package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/false-schemers/wcpl-sub001/crt"
	"github.com/false-schemers/wcpl-sub001/format"
	"github.com/false-schemers/wcpl-sub001/stdio"
)

var catCmd = &cobra.Command{
	Use:   "cat [FILE...]",
	Short: "Copy files to standard output through buffered streams",
	Long: `Concatenate FILEs to standard output. With no FILE, or when FILE
is -, read standard input.`,
	RunE: runCat,
}

var catNumber bool

func init() {
	catCmd.Flags().BoolVarP(&catNumber, "number", "n", false, "number output lines")
	rootCmd.AddCommand(catCmd)
}

func runCat(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{"-"}
	}
	return withRuntime(func(rt *crt.Runtime) error {
		c := &catter{rt: rt, line: 1, bol: true}
		for _, name := range args {
			if err := c.file(name); err != nil {
				return err
			}
		}
		return nil
	})
}

type catter struct {
	rt   *crt.Runtime
	line int
	bol  bool
}

func (c *catter) file(name string) error {
	in := c.rt.Streams().Stdin()
	if name != "-" {
		s, err := c.rt.Streams().Open(name, "r")
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		in = s
	}
	err := c.copy(in)
	if in != c.rt.Streams().Stdin() {
		err = errors.Join(err, in.Close())
	} else {
		in.ClearErr()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (c *catter) copy(in *stdio.Stream) error {
	out := c.rt.Streams().Stdout()
	if !catNumber {
		_, err := io.Copy(out, in)
		return err
	}
	for {
		b, err := in.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if c.bol {
			if _, err := c.rt.Printf("%6d\t", format.Int(int64(c.line))); err != nil {
				return err
			}
			c.line++
		}
		if err := out.WriteByte(b); err != nil {
			return err
		}
		c.bol = b == '\n'
	}
}
