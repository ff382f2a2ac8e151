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

package format

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/false-schemers/wcpl-sub001/host"
	"github.com/false-schemers/wcpl-sub001/host/memfs"
	"github.com/false-schemers/wcpl-sub001/stdio"
)

type fmtCase struct {
	tpl  string
	args []Arg
	want string
}

func runCases(t *testing.T, cases []fmtCase) {
	t.Helper()
	for _, tc := range cases {
		got := Sprintf(tc.tpl, tc.args...)
		assert.Equal(t, tc.want, got, "template %q", tc.tpl)
		assert.Equal(t, len(tc.want), Count(tc.tpl, tc.args...), "count of %q", tc.tpl)
	}
}

func TestIntegers(t *testing.T) {
	runCases(t, []fmtCase{
		{"%5d", []Arg{Int(42)}, "   42"},
		{"%-5d|", []Arg{Int(42)}, "42   |"},
		{"%d", []Arg{Int(math.MinInt32)}, "-2147483648"},
		{"%lld", []Arg{Int(math.MinInt64)}, "-9223372036854775808"},
		{"%jd", []Arg{Int(math.MaxInt64)}, "9223372036854775807"},
		{"%05d", []Arg{Int(-42)}, "-0042"},
		{"%+d", []Arg{Int(5)}, "+5"},
		{"% d", []Arg{Int(5)}, " 5"},
		{"%i", []Arg{Int(-7)}, "-7"},
		{"%.0d", []Arg{Int(0)}, ""},
		{"%.3d", []Arg{Int(7)}, "007"},
		{"%8.3d", []Arg{Int(-7)}, "    -007"},
		{"%08.3d", []Arg{Int(7)}, "     007"},
		{"%hhd", []Arg{Int(255)}, "-1"},
		{"%hd", []Arg{Int(65535)}, "-1"},
		{"%d", []Arg{Int(1 << 32)}, "0"},
		{"%u", []Arg{Int(-1)}, "4294967295"},
		{"%hu", []Arg{Uint(65537)}, "1"},
		{"%llu", []Arg{Uint(math.MaxUint64)}, "18446744073709551615"},
		{"%+u", []Arg{Uint(3)}, "3"},
		{"%x", []Arg{Uint(math.MaxUint32)}, "ffffffff"},
		{"%llx", []Arg{Uint(0xdeadbeefcafe)}, "deadbeefcafe"},
		{"%X", []Arg{Int(255)}, "FF"},
		{"%#x", []Arg{Int(255)}, "0xff"},
		{"%#X", []Arg{Int(255)}, "0XFF"},
		{"%#x", []Arg{Int(0)}, "0"},
		{"%#06x", []Arg{Int(255)}, "0x00ff"},
		{"%-8x|", []Arg{Int(255)}, "ff      |"},
		{"%o", []Arg{Int(8)}, "10"},
		{"%#o", []Arg{Int(8)}, "010"},
		{"%#o", []Arg{Int(0)}, "0"},
		{"%#.0o", []Arg{Int(0)}, "0"},
		{"%b", []Arg{Int(5)}, "101"},
		{"%#b", []Arg{Int(5)}, "0b101"},
		{"%#B", []Arg{Int(5)}, "0B101"},
	})
}

func TestWidthAndPrecisionArguments(t *testing.T) {
	runCases(t, []fmtCase{
		{"%*d", []Arg{Int(5), Int(42)}, "   42"},
		{"%-*d|", []Arg{Int(4), Int(7)}, "7   |"},
		{"%*d|", []Arg{Int(-4), Int(7)}, "7   |"},
		{"%.*f", []Arg{Int(2), Float(3.14159)}, "3.14"},
		{"%.*d", []Arg{Int(-1), Int(7)}, "7"},
		{"%*.*s|", []Arg{Int(6), Int(2), Str("hello")}, "    he|"},
	})
}

func TestFixedFloat(t *testing.T) {
	runCases(t, []fmtCase{
		{"%f", []Arg{Float(3.5)}, "3.500000"},
		{"%.1f", []Arg{Float(0.99)}, "1.0"},
		{"%.0f", []Arg{Float(0.5)}, "0"},
		{"%.0f", []Arg{Float(1.5)}, "2"},
		{"%.0f", []Arg{Float(2.5)}, "2"},
		{"%.0f", []Arg{Float(-0.5)}, "-0"},
		{"%.1f", []Arg{Float(0.25)}, "0.2"},
		{"%.1f", []Arg{Float(0.75)}, "0.8"},
		{"%08.3f", []Arg{Float(-3.14159)}, "-003.142"},
		{"%5.1f", []Arg{Float(3.14159)}, "  3.1"},
		{"%-7.2f|", []Arg{Float(2.5)}, "2.50   |"},
		{"%+.2f", []Arg{Float(1)}, "+1.00"},
		{"%#.0f", []Arg{Float(3)}, "3."},
		{"%.12f", []Arg{Float(0.5)}, "0.500000000000"},
		{"%f", []Arg{Float(1e10)}, "1.000000e+10"},
		{"%f", []Arg{Int(42)}, "42.000000"},
		{"%d", []Arg{Float(3.9)}, "3"},
	})
}

func TestSpecialFloats(t *testing.T) {
	runCases(t, []fmtCase{
		{"%f", []Arg{Float(math.NaN())}, "nan"},
		{"%F", []Arg{Float(math.NaN())}, "NAN"},
		{"%f", []Arg{Float(math.Inf(1))}, "inf"},
		{"%f", []Arg{Float(math.Inf(-1))}, "-inf"},
		{"%+e", []Arg{Float(math.Inf(1))}, "+inf"},
		{"%G", []Arg{Float(math.Inf(-1))}, "-INF"},
		{"%06f", []Arg{Float(math.Inf(1))}, "   inf"},
	})
}

func TestScientificFloat(t *testing.T) {
	runCases(t, []fmtCase{
		{"%e", []Arg{Float(12345.678)}, "1.234568e+04"},
		{"%e", []Arg{Float(0)}, "0.000000e+00"},
		{"%E", []Arg{Float(1.5e300)}, "1.500000E+300"},
		{"%e", []Arg{Float(1e-10)}, "1.000000e-10"},
		{"%.2e", []Arg{Float(-0.000123)}, "-1.23e-04"},
		{"%-12.2e|", []Arg{Float(1234.0)}, "1.23e+03    |"},
		{"%.0e", []Arg{Float(9.6)}, "1e+01"},
		{"%.3e", []Arg{Float(9.9996)}, "1.000e+01"},
	})
}

func TestAdaptiveFloat(t *testing.T) {
	runCases(t, []fmtCase{
		{"%g", []Arg{Float(100000)}, "100000"},
		{"%g", []Arg{Float(1e6)}, "1e+06"},
		{"%g", []Arg{Float(0.5)}, "0.5"},
		{"%g", []Arg{Float(1234567)}, "1.23457e+06"},
		{"%g", []Arg{Float(0.0001)}, "0.0001"},
		{"%g", []Arg{Float(0)}, "0"},
		{"%g", []Arg{Float(3.25)}, "3.25"},
		{"%G", []Arg{Float(1e-5)}, "1E-05"},
		{"%#g", []Arg{Float(0.5)}, "0.500000"},
		{"%.3g", []Arg{Float(3.14159)}, "3.14"},
		{"%.0g", []Arg{Float(2)}, "2"},
		{"%#g", []Arg{Float(1000)}, "1000.00"},
		{"%#g", []Arg{Float(10000)}, "10000.0"},
		{"%#g", []Arg{Float(999.9999999)}, "1000.00"},
		{"%g", []Arg{Float(999.9999999)}, "1000"},
		{"%#g", []Arg{Float(0.001)}, "0.00100000"},
	})
}

func TestStringsAndChars(t *testing.T) {
	runCases(t, []fmtCase{
		{"%s", []Arg{Str("hello")}, "hello"},
		{"%10.3s|", []Arg{Str("abcdef")}, "       abc|"},
		{"%-6s|", []Arg{Str("ab")}, "ab    |"},
		{"%.2s", []Arg{Str("hello")}, "he"},
		{"%s", []Arg{Bytes([]byte("ab\x00cd"))}, "ab"},
		{"%.9s", []Arg{Bytes([]byte("xyz"))}, "xyz"},
		{"%s", []Arg{Int(5)}, ""},
		{"%c", []Arg{Char('A')}, "A"},
		{"%3c", []Arg{Char('A')}, "  A"},
		{"%-3c|", []Arg{Int('z')}, "z  |"},
		{"%p", []Arg{Pointer(0xbeef)}, "0000BEEF"},
		{"100%%", nil, "100%"},
		{"%y", nil, "y"},
		{"%d %s|", nil, "0 |"},
		{"tail%", nil, "tail"},
	})
}

func TestSnprintfTruncation(t *testing.T) {
	buf := []byte("xxxxxx")
	n := Snprintf(buf[:3], "%s", Str("0123456789"))
	assert.Equal(t, 10, n)
	assert.Equal(t, []byte("01\x00xxx"), buf)

	buf = []byte("xxxxxx")
	n = Snprintf(buf, "%d", Int(42))
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("42\x00xxx"), buf)

	n = Snprintf(nil, "%d", Int(12345))
	assert.Equal(t, 5, n)

	one := []byte{'x'}
	n = Snprintf(one, "abc")
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0}, one)
}

func TestSprintfEmpty(t *testing.T) {
	assert.Equal(t, "", Sprintf(""))
	assert.Equal(t, 0, Count(""))
}

func TestVerbs(t *testing.T) {
	got := Verbs("%d %*.*f %s %c %p %% %x %q %lu")
	assert.Equal(t, []Kind{KindInt, KindInt, KindInt, KindFloat, KindString, KindChar, KindPointer, KindUint, KindUint}, got)
	assert.Empty(t, Verbs("plain text"))
	assert.Equal(t, "float", KindFloat.String())
}

func newStreams(t *testing.T) (*stdio.Table, *memfs.File) {
	fs := memfs.New()
	out := memfs.NewFile(nil)
	fs.Bind(host.Stdin, memfs.NewFile(nil), host.ORead)
	fs.Bind(host.Stdout, out, host.OWrite)
	fs.Bind(host.Stderr, memfs.NewFile(nil), host.OWrite)
	tbl, err := stdio.NewTable(fs, nil, nil)
	require.NoError(t, err)
	return tbl, out
}

func TestFprintf(t *testing.T) {
	tbl, out := newStreams(t)
	s := tbl.Stdout()

	require.NoError(t, s.WriteByte('['))
	n, err := Fprintf(s, "%s=%d", Str("x"), Int(42))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	_, err = s.PutString("]\n")
	require.NoError(t, err)
	assert.Equal(t, "[x=42]\n", out.String())

	n, err = Fprintf(tbl.Stdin(), "%d", Int(1))
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, stdio.ErrNotWritable)
}
