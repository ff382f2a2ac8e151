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

package crt

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/false-schemers/wcpl-sub001/format"
	"github.com/false-schemers/wcpl-sub001/host"
	"github.com/false-schemers/wcpl-sub001/host/memfs"
	"github.com/false-schemers/wcpl-sub001/malloc"
	"github.com/false-schemers/wcpl-sub001/stdio"
)

type testRuntime struct {
	*Runtime
	fs     *memfs.FS
	stdout *memfs.File
	stderr *memfs.File
}

func newTestRuntime(t *testing.T, opts *Options) *testRuntime {
	mem, err := malloc.NewLinearMemory(0, 32)
	require.NoError(t, err)
	tr := &testRuntime{
		fs:     memfs.New(),
		stdout: memfs.NewFile(nil),
		stderr: memfs.NewFile(nil),
	}
	tr.fs.Bind(host.Stdin, memfs.NewFile(nil), host.ORead)
	tr.fs.Bind(host.Stdout, tr.stdout, host.OWrite)
	tr.fs.Bind(host.Stderr, tr.stderr, host.OWrite)
	rt, err := New(mem, tr.fs, opts)
	require.NoError(t, err)
	tr.Runtime = rt
	return tr
}

func TestNewValidatesOptions(t *testing.T) {
	mem, err := malloc.NewLinearMemory(0, 1)
	require.NoError(t, err)

	_, err = New(mem, memfs.New(), &Options{Heap: &malloc.Options{PageClass: 3}})
	assert.ErrorIs(t, err, malloc.ErrPageClass)

	_, err = New(mem, memfs.New(), &Options{Stdio: &stdio.Options{BufferSize: 16, MaxStreams: 1}})
	assert.Error(t, err)
}

func TestPrintfAndExit(t *testing.T) {
	rt := newTestRuntime(t, nil)

	n, err := rt.Printf("%s: %d%%", format.Str("progress"), format.Int(50))
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Empty(t, rt.stdout.String(), "line buffered until newline")

	require.NoError(t, rt.Puts(""))
	assert.Equal(t, "progress: 50%\n", rt.stdout.String())

	_, err = rt.Eprintf("warn %c\n", format.Char('!'))
	require.NoError(t, err)
	assert.Equal(t, "warn !\n", rt.stderr.String())

	_, err = rt.Printf("unterminated")
	require.NoError(t, err)
	require.NoError(t, rt.Exit())
	assert.Equal(t, "progress: 50%\nunterminated", rt.stdout.String())
	assert.Zero(t, rt.Streams().OpenCount())
	assert.Zero(t, rt.Heap().Stats().Blocks)
}

func TestFprintfToFile(t *testing.T) {
	rt := newTestRuntime(t, nil)
	f, err := rt.Streams().Open("report.txt", "w")
	require.NoError(t, err)
	_, err = rt.Fprintf(f, "%05.1f|%-4s|%x\n", format.Float(3.14159), format.Str("ok"), format.Uint(255))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	file, ok := rt.fs.File("report.txt")
	require.True(t, ok)
	assert.Equal(t, "003.1|ok  |ff\n", file.String())
}

func TestStringFormatting(t *testing.T) {
	rt := newTestRuntime(t, nil)
	buf := make([]byte, 4)
	assert.Equal(t, 6, rt.Snprintf(buf, "%d", format.Int(123456)))
	assert.Equal(t, []byte("123\x00"), buf)
	assert.Equal(t, "x=1.5", rt.Sprintf("x=%g", format.Float(1.5)))
}

func TestAllocation(t *testing.T) {
	rt := newTestRuntime(t, nil)

	p := rt.Malloc(100)
	require.NotEqual(t, malloc.Null, p)
	b := rt.Bytes(p)
	assert.Len(t, b, 100)
	copy(b, "payload")

	p = rt.Realloc(p, 5000)
	require.NotEqual(t, malloc.Null, p)
	assert.Equal(t, "payload", string(rt.Bytes(p)[:7]))

	q := rt.Calloc(10, 8)
	require.NotEqual(t, malloc.Null, q)
	assert.Equal(t, make([]byte, 80), rt.Bytes(q))

	assert.Equal(t, 5080, rt.Heap().Stats().InUse)
	rt.Free(p)
	rt.Free(q)
	assert.Zero(t, rt.Heap().Stats().InUse)
}

func TestCollector(t *testing.T) {
	rt := newTestRuntime(t, nil)
	p := rt.Malloc(1000)
	require.NotEqual(t, malloc.Null, p)
	_, err := rt.Streams().Open("a", "w")
	require.NoError(t, err)

	c := NewCollector(rt.Runtime, "wcplrt")
	assert.Equal(t, 6, testutil.CollectAndCount(c))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		m := mf.GetMetric()[0]
		if m.GetGauge() != nil {
			values[mf.GetName()] = m.GetGauge().GetValue()
		} else {
			values[mf.GetName()] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1000), values["wcplrt_heap_in_use_bytes"])
	assert.Equal(t, float64(1), values["wcplrt_heap_blocks"])
	assert.Equal(t, float64(malloc.PageSize), values["wcplrt_heap_footprint_bytes"])
	assert.Equal(t, float64(1), values["wcplrt_heap_grows_total"])
	assert.Equal(t, float64(4), values["wcplrt_stdio_open_streams"])
	assert.Less(t, values["wcplrt_heap_free_bytes"], float64(malloc.PageSize))
}
