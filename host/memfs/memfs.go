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

// Package memfs is an in-memory Host. It records every primitive call so
// callers can observe exactly which reads, writes and seeks were issued.
package memfs

import (
	"fmt"
	"io"

	"github.com/bytedance/gopkg/lang/mcache"

	"github.com/false-schemers/wcpl-sub001/host"
)

var (
	_ host.Host   = &FS{}
	_ host.Opener = &FS{}
)

// File is the content shared by every descriptor opened on it.
type File struct {
	data   []byte
	pooled bool // data came from mcache
}

// NewFile returns a file holding a copy of data.
func NewFile(data []byte) *File {
	f := &File{}
	f.resize(len(data))
	copy(f.data, data)
	return f
}

// Bytes returns the current content. It is only valid until the next write.
func (f *File) Bytes() []byte {
	return f.data
}

func (f *File) String() string {
	return string(f.data)
}

// Len returns the file size.
func (f *File) Len() int {
	return len(f.data)
}

func (f *File) resize(n int) {
	if n <= cap(f.data) {
		old := len(f.data)
		f.data = f.data[:n]
		if n > old {
			clear(f.data[old:])
		}
		return
	}
	ncap := cap(f.data) * 2
	if ncap < n {
		ncap = n
	}
	nbuf := mcache.Malloc(n, ncap)
	copy(nbuf, f.data)
	clear(nbuf[len(f.data):])
	if f.pooled {
		mcache.Free(f.data)
	}
	f.data = nbuf
	f.pooled = true
}

// OpKind identifies a recorded primitive.
type OpKind uint8

const (
	OpOpen OpKind = iota + 1
	OpRead
	OpWrite
	OpSeek
	OpClose
)

func (k OpKind) String() string {
	switch k {
	case OpOpen:
		return "open"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpSeek:
		return "seek"
	case OpClose:
		return "close"
	}
	return fmt.Sprintf("OpKind(%d)", uint8(k))
}

// Op is one recorded call. N is the requested length for reads and writes
// and the offset for seeks.
type Op struct {
	Kind OpKind
	FD   host.FD
	N    int
}

// Fault injects failures on a descriptor. A positive limit caps the bytes
// moved by each call, producing short reads or short writes.
type Fault struct {
	ReadLimit  int
	WriteLimit int
	ReadErr    error
	WriteErr   error
	SeekErr    error
	CloseErr   error
}

type handle struct {
	f     *File
	off   int64
	flags host.OpenFlag
	fault Fault
}

// FS is a single-threaded in-memory descriptor table.
type FS struct {
	files map[string]*File
	fds   map[host.FD]*handle
	next  host.FD
	ops   []Op
}

// New returns an empty file system with no open descriptors.
func New() *FS {
	return &FS{
		files: make(map[string]*File),
		fds:   make(map[host.FD]*handle),
		next:  host.Stderr + 1,
	}
}

// AddFile creates or replaces the file at path.
func (fs *FS) AddFile(path string, data []byte) *File {
	f := NewFile(data)
	fs.files[path] = f
	return f
}

// File returns the file at path.
func (fs *FS) File(path string) (*File, bool) {
	f, ok := fs.files[path]
	return f, ok
}

// Bind attaches f to fd, replacing any previous binding.
func (fs *FS) Bind(fd host.FD, f *File, flags host.OpenFlag) {
	fs.fds[fd] = &handle{f: f, flags: flags}
}

// SetFault installs a fault on an open descriptor.
func (fs *FS) SetFault(fd host.FD, fault Fault) error {
	h, ok := fs.fds[fd]
	if !ok {
		return host.ErrBadFD
	}
	h.fault = fault
	return nil
}

// Ops returns the calls recorded since the last ResetOps.
func (fs *FS) Ops() []Op {
	return fs.ops
}

// Count returns how many calls of kind were issued on fd.
func (fs *FS) Count(kind OpKind, fd host.FD) int {
	n := 0
	for _, op := range fs.ops {
		if op.Kind == kind && op.FD == fd {
			n++
		}
	}
	return n
}

func (fs *FS) ResetOps() {
	fs.ops = fs.ops[:0]
}

// IsOpen reports whether fd is bound.
func (fs *FS) IsOpen(fd host.FD) bool {
	_, ok := fs.fds[fd]
	return ok
}

func (fs *FS) Open(path string, flags host.OpenFlag, perm uint32) (host.FD, error) {
	if flags&host.ORDWR == 0 {
		return -1, host.ErrInvalid
	}
	f, ok := fs.files[path]
	switch {
	case ok && flags&(host.OCreate|host.OExcl) == host.OCreate|host.OExcl:
		return -1, fmt.Errorf("%w: %s", host.ErrExist, path)
	case !ok && flags&host.OCreate == 0:
		return -1, fmt.Errorf("%w: %s", host.ErrNotFound, path)
	case !ok:
		f = NewFile(nil)
		fs.files[path] = f
	}
	if flags&host.OTrunc != 0 && flags&host.OWrite != 0 {
		f.resize(0)
	}
	fd := fs.next
	fs.next++
	fs.fds[fd] = &handle{f: f, flags: flags}
	fs.ops = append(fs.ops, Op{Kind: OpOpen, FD: fd})
	return fd, nil
}

func (fs *FS) Read(fd host.FD, p []byte) (int, error) {
	fs.ops = append(fs.ops, Op{Kind: OpRead, FD: fd, N: len(p)})
	h, ok := fs.fds[fd]
	if !ok || h.flags&host.ORead == 0 {
		return 0, host.ErrBadFD
	}
	if h.fault.ReadErr != nil {
		return 0, h.fault.ReadErr
	}
	if lim := h.fault.ReadLimit; lim > 0 && len(p) > lim {
		p = p[:lim]
	}
	if h.off >= int64(len(h.f.data)) {
		return 0, nil
	}
	n := copy(p, h.f.data[h.off:])
	h.off += int64(n)
	return n, nil
}

func (fs *FS) Write(fd host.FD, p []byte) (int, error) {
	fs.ops = append(fs.ops, Op{Kind: OpWrite, FD: fd, N: len(p)})
	h, ok := fs.fds[fd]
	if !ok || h.flags&host.OWrite == 0 {
		return 0, host.ErrBadFD
	}
	if h.fault.WriteErr != nil {
		return 0, h.fault.WriteErr
	}
	if lim := h.fault.WriteLimit; lim > 0 && len(p) > lim {
		p = p[:lim]
	}
	if h.flags&host.OAppend != 0 {
		h.off = int64(len(h.f.data))
	}
	end := h.off + int64(len(p))
	if end > int64(len(h.f.data)) {
		h.f.resize(int(end))
	}
	copy(h.f.data[h.off:], p)
	h.off = end
	return len(p), nil
}

func (fs *FS) Seek(fd host.FD, offset int64, whence int) (int64, error) {
	fs.ops = append(fs.ops, Op{Kind: OpSeek, FD: fd, N: int(offset)})
	h, ok := fs.fds[fd]
	if !ok {
		return -1, host.ErrBadFD
	}
	if h.fault.SeekErr != nil {
		return -1, h.fault.SeekErr
	}
	var off int64
	switch whence {
	case io.SeekStart:
		off = offset
	case io.SeekCurrent:
		off = h.off + offset
	case io.SeekEnd:
		off = int64(len(h.f.data)) + offset
	default:
		return -1, host.ErrInvalid
	}
	if off < 0 {
		return -1, host.ErrInvalid
	}
	h.off = off
	return off, nil
}

func (fs *FS) Close(fd host.FD) error {
	fs.ops = append(fs.ops, Op{Kind: OpClose, FD: fd})
	h, ok := fs.fds[fd]
	if !ok {
		return host.ErrBadFD
	}
	delete(fs.fds, fd)
	return h.fault.CloseErr
}
