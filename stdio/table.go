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

// Package stdio implements buffered character streams over a host.Host,
// with buffers drawn from a malloc.Heap.
package stdio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/false-schemers/wcpl-sub001/host"
	"github.com/false-schemers/wcpl-sub001/malloc"
)

const (
	DefaultBufferSize = 4096
	DefaultMaxStreams = 20
)

// Options configures a Table.
type Options struct {
	// BufferSize is the heap buffer requested on a stream's first operation.
	BufferSize int
	// MaxStreams is the number of slots, including the three std streams.
	MaxStreams int

	StdinMode  Mode
	StdoutMode Mode
	StderrMode Mode

	Logger *slog.Logger
}

// DefaultOptions returns the options used when NewTable is given nil.
func DefaultOptions() *Options {
	return &Options{
		BufferSize: DefaultBufferSize,
		MaxStreams: DefaultMaxStreams,
		StdinMode:  LineBuffered,
		StdoutMode: LineBuffered,
		StderrMode: Unbuffered,
	}
}

// Table is the fixed set of stream slots of one runtime. Slots 0, 1 and 2
// are bound to host.Stdin, host.Stdout and host.Stderr at creation.
type Table struct {
	host    host.Host
	heap    *malloc.Heap
	streams []Stream
	bufSize int
	log     *slog.Logger
}

// NewTable creates a stream table over h. heap may be nil, in which case
// every stream uses its built-in buffer.
func NewTable(h host.Host, heap *malloc.Heap, opts *Options) (*Table, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.BufferSize <= 0 || opts.BufferSize > malloc.MaxAlloc {
		return nil, fmt.Errorf("stdio: invalid buffer size %d", opts.BufferSize)
	}
	if opts.MaxStreams < 3 {
		return nil, fmt.Errorf("stdio: invalid max streams %d", opts.MaxStreams)
	}
	for _, m := range []Mode{opts.StdinMode, opts.StdoutMode, opts.StderrMode} {
		if !m.valid() {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMode, m)
		}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	t := &Table{
		host:    h,
		heap:    heap,
		streams: make([]Stream, opts.MaxStreams),
		bufSize: opts.BufferSize,
		log:     log,
	}
	for i := range t.streams {
		t.streams[i].t = t
		t.streams[i].slot = i
	}
	t.streams[host.Stdin].bind(host.Stdin, flagRead, opts.StdinMode, false)
	t.streams[host.Stdout].bind(host.Stdout, flagWrite, opts.StdoutMode, false)
	t.streams[host.Stderr].bind(host.Stderr, flagWrite, opts.StderrMode, false)
	return t, nil
}

// Stdin returns the stream pre-bound to the standard input descriptor.
func (t *Table) Stdin() *Stream {
	return &t.streams[host.Stdin]
}

// Stdout returns the stream pre-bound to the standard output descriptor.
func (t *Table) Stdout() *Stream {
	return &t.streams[host.Stdout]
}

// Stderr returns the stream pre-bound to the standard error descriptor.
func (t *Table) Stderr() *Stream {
	return &t.streams[host.Stderr]
}

func (t *Table) slot() (*Stream, error) {
	for i := range t.streams {
		if !t.streams[i].open {
			return &t.streams[i], nil
		}
	}
	return nil, ErrTooManyStreams
}

// Attach binds a fully buffered stream to an already open descriptor.
// mode is an fopen-style string restricting the access.
func (t *Table) Attach(fd host.FD, mode string) (*Stream, error) {
	fl, _, err := parseAccess(mode)
	if err != nil {
		return nil, err
	}
	s, err := t.slot()
	if err != nil {
		return nil, err
	}
	s.bind(fd, fl, FullyBuffered, false)
	return s, nil
}

// Open opens path through the host's Opener and binds a fully buffered
// stream to it.
func (t *Table) Open(path, mode string) (*Stream, error) {
	opener, ok := t.host.(host.Opener)
	if !ok {
		return nil, ErrNoOpener
	}
	fl, of, err := parseAccess(mode)
	if err != nil {
		return nil, err
	}
	s, err := t.slot()
	if err != nil {
		return nil, err
	}
	fd, err := opener.Open(path, of, 0o666)
	if err != nil {
		return nil, fmt.Errorf("stdio: open %s: %w", path, err)
	}
	s.bind(fd, fl, FullyBuffered, fl&flagAppend == 0)
	return s, nil
}

// OpenCount returns the number of bound slots.
func (t *Table) OpenCount() int {
	n := 0
	for i := range t.streams {
		if t.streams[i].open {
			n++
		}
	}
	return n
}

// FlushAll flushes every stream with pending output.
func (t *Table) FlushAll() error {
	var errs []error
	for i := range t.streams {
		s := &t.streams[i]
		if s.open && s.wpos > 0 {
			errs = append(errs, s.Flush())
		}
	}
	return errors.Join(errs...)
}

func (t *Table) flushLineBuffered() {
	for i := range t.streams {
		s := &t.streams[i]
		if s.open && s.mode == LineBuffered && s.wpos > 0 {
			// failures stay recorded in the stream's error flag
			_ = s.flush()
		}
	}
}

// CloseAll flushes and closes every open stream, the std streams included.
func (t *Table) CloseAll() error {
	var errs []error
	for i := range t.streams {
		s := &t.streams[i]
		if !s.open {
			continue
		}
		fd := s.fd
		if err := s.Close(); err != nil {
			t.log.Warn("close stream", "fd", fd, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
