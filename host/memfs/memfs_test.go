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

package memfs

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/false-schemers/wcpl-sub001/host"
)

func TestOpenFlags(t *testing.T) {
	fs := New()
	fs.AddFile("exists", []byte("data"))

	tests := []struct {
		name    string
		path    string
		flags   host.OpenFlag
		wantErr error
	}{
		{"read_existing", "exists", host.ORead, nil},
		{"read_missing", "missing", host.ORead, host.ErrNotFound},
		{"create_missing", "new", host.OWrite | host.OCreate, nil},
		{"excl_existing", "exists", host.OWrite | host.OCreate | host.OExcl, host.ErrExist},
		{"no_access", "exists", host.OCreate, host.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd, err := fs.Open(tt.path, tt.flags, 0o644)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Greater(t, fd, host.Stderr)
			assert.True(t, fs.IsOpen(fd))
		})
	}
	_, ok := fs.File("new")
	assert.True(t, ok)
}

func TestReadWriteSeek(t *testing.T) {
	fs := New()
	fd, err := fs.Open("f", host.ORDWR|host.OCreate, 0o644)
	require.NoError(t, err)

	n, err := fs.Write(fd, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	off, err := fs.Seek(fd, 6, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(6), off)

	buf := make([]byte, 16)
	n, err = fs.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	n, err = fs.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	off, err = fs.Seek(fd, -5, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(6), off)
	off, err = fs.Seek(fd, 2, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(8), off)

	_, err = fs.Seek(fd, -1, io.SeekStart)
	assert.ErrorIs(t, err, host.ErrInvalid)
	_, err = fs.Seek(fd, 0, 7)
	assert.ErrorIs(t, err, host.ErrInvalid)

	assert.Equal(t, 1, fs.Count(OpWrite, fd))
	assert.Equal(t, 2, fs.Count(OpRead, fd))
	assert.Equal(t, 5, fs.Count(OpSeek, fd))
	require.NoError(t, fs.Close(fd))
	assert.ErrorIs(t, fs.Close(fd), host.ErrBadFD)
}

func TestWritePastEndZeroFills(t *testing.T) {
	fs := New()
	f := NewFile([]byte("ab"))
	fs.Bind(5, f, host.OWrite)
	_, err := fs.Seek(5, 4, io.SeekStart)
	require.NoError(t, err)
	_, err = fs.Write(5, []byte("z"))
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b', 0, 0, 'z'}, f.Bytes())
}

func TestGrowLargeFile(t *testing.T) {
	fs := New()
	f := NewFile(nil)
	fs.Bind(3, f, host.OWrite)
	chunk := make([]byte, 1000)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	for i := 0; i < 100; i++ {
		_, err := fs.Write(3, chunk)
		require.NoError(t, err)
	}
	require.Equal(t, 100000, f.Len())
	for i := 0; i < 100; i++ {
		assert.Equal(t, chunk, f.Bytes()[i*1000:(i+1)*1000])
	}
}

func TestTruncateAndAppend(t *testing.T) {
	fs := New()
	fs.AddFile("log", []byte("old"))

	fd, err := fs.Open("log", host.OWrite|host.OAppend, 0)
	require.NoError(t, err)
	_, err = fs.Seek(fd, 0, io.SeekStart)
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("+new"))
	require.NoError(t, err)
	f, _ := fs.File("log")
	assert.Equal(t, "old+new", f.String())

	_, err = fs.Open("log", host.OWrite|host.OTrunc, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
}

func TestAccessMode(t *testing.T) {
	fs := New()
	fs.Bind(3, NewFile([]byte("x")), host.ORead)
	fs.Bind(4, NewFile(nil), host.OWrite)

	_, err := fs.Write(3, []byte("y"))
	assert.ErrorIs(t, err, host.ErrBadFD)
	_, err = fs.Read(4, make([]byte, 1))
	assert.ErrorIs(t, err, host.ErrBadFD)
	_, err = fs.Read(9, make([]byte, 1))
	assert.ErrorIs(t, err, host.ErrBadFD)
}

func TestFaults(t *testing.T) {
	fs := New()
	f := NewFile([]byte("abcdef"))
	fs.Bind(3, f, host.ORDWR)
	assert.ErrorIs(t, fs.SetFault(8, Fault{}), host.ErrBadFD)

	require.NoError(t, fs.SetFault(3, Fault{ReadLimit: 2, WriteLimit: 1}))
	buf := make([]byte, 8)
	n, err := fs.Read(3, buf)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(buf[:n]))
	n, err = fs.Write(3, []byte("XYZ"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "abXdef", f.String())

	boom := errors.New("boom")
	require.NoError(t, fs.SetFault(3, Fault{ReadErr: boom, WriteErr: boom, SeekErr: boom, CloseErr: boom}))
	_, err = fs.Read(3, buf)
	assert.ErrorIs(t, err, boom)
	_, err = fs.Write(3, buf)
	assert.ErrorIs(t, err, boom)
	_, err = fs.Seek(3, 0, io.SeekStart)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, fs.Close(3), boom)
	assert.False(t, fs.IsOpen(3))
}

func TestOpsLog(t *testing.T) {
	fs := New()
	fs.Bind(host.Stdout, NewFile(nil), host.OWrite)
	_, _ = fs.Write(host.Stdout, []byte("hi\n"))
	_, _ = fs.Seek(host.Stdout, 1, io.SeekStart)
	assert.Equal(t, []Op{
		{Kind: OpWrite, FD: host.Stdout, N: 3},
		{Kind: OpSeek, FD: host.Stdout, N: 1},
	}, fs.Ops())
	assert.Equal(t, "write", fs.Ops()[0].Kind.String())
	fs.ResetOps()
	assert.Empty(t, fs.Ops())
}
