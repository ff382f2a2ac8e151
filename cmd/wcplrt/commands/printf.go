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
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/false-schemers/wcpl-sub001/crt"
	"github.com/false-schemers/wcpl-sub001/format"
)

var printfCmd = &cobra.Command{
	Use:   "printf FORMAT [ARG...]",
	Short: "Format arguments to standard output",
	Long: `Format ARGs under control of FORMAT, like printf(1).

Backslash escapes in FORMAT are expanded. Each ARG is converted to the
type its conversion expects: integers accept 0x and 0 prefixes and the
'c form for a character code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrintf,
}

var printfStderr bool

func init() {
	printfCmd.Flags().BoolVar(&printfStderr, "stderr", false, "write to standard error")
	rootCmd.AddCommand(printfCmd)
}

func runPrintf(cmd *cobra.Command, args []string) error {
	tpl, err := unescape(args[0])
	if err != nil {
		return err
	}
	vals, err := coerceArgs(tpl, args[1:])
	if err != nil {
		return err
	}
	return withRuntime(func(rt *crt.Runtime) error {
		if printfStderr {
			_, err := rt.Eprintf(tpl, vals...)
			return err
		}
		_, err := rt.Printf(tpl, vals...)
		return err
	})
}

// unescape expands Go/C backslash escapes. Unescaped quotes pass through.
func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b []byte
	for len(s) > 0 {
		if len(s) >= 2 && s[0] == '\\' && (s[1] == '"' || s[1] == '\'') {
			b = append(b, s[1])
			s = s[2:]
			continue
		}
		v, multibyte, tail, err := strconv.UnquoteChar(s, 0)
		if err != nil {
			return "", fmt.Errorf("invalid escape in %q: %w", s, err)
		}
		if v < utf8.RuneSelf || !multibyte && v < 256 {
			b = append(b, byte(v))
		} else {
			b = utf8.AppendRune(b, v)
		}
		s = tail
	}
	return string(b), nil
}

// coerceArgs converts command line words into the argument kinds the
// template consumes. Extra words are passed as strings.
func coerceArgs(tpl string, words []string) ([]format.Arg, error) {
	kinds := format.Verbs(tpl)
	out := make([]format.Arg, 0, len(words))
	for i, w := range words {
		kind := format.KindString
		if i < len(kinds) {
			kind = kinds[i]
		}
		a, err := coerce(kind, w)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func coerce(kind format.Kind, w string) (format.Arg, error) {
	switch kind {
	case format.KindInt:
		v, err := parseInt(w)
		return format.Int(v), err
	case format.KindUint, format.KindPointer:
		if strings.HasPrefix(w, "-") {
			v, err := parseInt(w)
			return format.Uint(uint64(v)), err
		}
		if c, ok := charCode(w); ok {
			return format.Uint(uint64(c)), nil
		}
		v, err := strconv.ParseUint(w, 0, 64)
		if err != nil {
			return format.Arg{}, fmt.Errorf("invalid number %q", w)
		}
		if kind == format.KindPointer {
			return format.Pointer(uintptr(v)), nil
		}
		return format.Uint(v), nil
	case format.KindFloat:
		v, err := strconv.ParseFloat(w, 64)
		if err != nil {
			return format.Arg{}, fmt.Errorf("invalid number %q", w)
		}
		return format.Float(v), nil
	case format.KindChar:
		if w == "" {
			return format.Char(0), nil
		}
		return format.Char(w[0]), nil
	}
	return format.Str(w), nil
}

func parseInt(w string) (int64, error) {
	if c, ok := charCode(w); ok {
		return int64(c), nil
	}
	v, err := strconv.ParseInt(w, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", w)
	}
	return v, nil
}

// charCode reports the code of the first byte after a leading quote.
func charCode(w string) (byte, bool) {
	if len(w) >= 2 && (w[0] == '\'' || w[0] == '"') {
		return w[1], true
	}
	return 0, false
}
