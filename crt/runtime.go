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

// Package crt ties a heap and a stream table into one runtime context
// exposing the C-library style surface: allocation, formatted output on
// the standard streams and process teardown.
package crt

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/false-schemers/wcpl-sub001/format"
	"github.com/false-schemers/wcpl-sub001/host"
	"github.com/false-schemers/wcpl-sub001/malloc"
	"github.com/false-schemers/wcpl-sub001/stdio"
)

// Options configures a Runtime.
type Options struct {
	Heap  *malloc.Options
	Stdio *stdio.Options
	// Logger is used by the heap and the stream table unless their own
	// options carry one.
	Logger *slog.Logger
}

// DefaultOptions returns the heap and stream defaults.
func DefaultOptions() *Options {
	return &Options{
		Heap:  malloc.DefaultOptions(),
		Stdio: stdio.DefaultOptions(),
	}
}

// Runtime is one isolated instance of the allocator and the stream table.
type Runtime struct {
	heap    *malloc.Heap
	streams *stdio.Table
	log     *slog.Logger
}

// New creates a runtime drawing memory from mem and performing I/O on h.
func New(mem malloc.Memory, h host.Host, opts *Options) (*Runtime, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	heapOpts := malloc.DefaultOptions()
	if opts.Heap != nil {
		*heapOpts = *opts.Heap
	}
	if heapOpts.Logger == nil {
		heapOpts.Logger = log
	}
	heap, err := malloc.NewHeapWithOptions(mem, heapOpts)
	if err != nil {
		return nil, fmt.Errorf("crt: heap: %w", err)
	}

	stdioOpts := stdio.DefaultOptions()
	if opts.Stdio != nil {
		*stdioOpts = *opts.Stdio
	}
	if stdioOpts.Logger == nil {
		stdioOpts.Logger = log
	}
	streams, err := stdio.NewTable(h, heap, stdioOpts)
	if err != nil {
		return nil, fmt.Errorf("crt: streams: %w", err)
	}
	return &Runtime{heap: heap, streams: streams, log: log}, nil
}

// Heap returns the runtime's allocator.
func (r *Runtime) Heap() *malloc.Heap {
	return r.heap
}

// Streams returns the runtime's stream table.
func (r *Runtime) Streams() *stdio.Table {
	return r.streams
}

// Malloc allocates n bytes, returning malloc.Null on failure.
func (r *Runtime) Malloc(n int) malloc.Ptr {
	return r.heap.Alloc(n)
}

// Calloc allocates count*size zeroed bytes.
func (r *Runtime) Calloc(count, size int) malloc.Ptr {
	return r.heap.Calloc(count, size)
}

// Realloc resizes p; on failure p is left intact.
func (r *Runtime) Realloc(p malloc.Ptr, n int) malloc.Ptr {
	return r.heap.Realloc(p, n)
}

// Free releases p. Null is ignored.
func (r *Runtime) Free(p malloc.Ptr) {
	r.heap.Free(p)
}

// Bytes returns the payload of an allocated block.
func (r *Runtime) Bytes(p malloc.Ptr) []byte {
	return r.heap.Bytes(p)
}

// Printf formats to standard output.
func (r *Runtime) Printf(template string, args ...format.Arg) (int, error) {
	return format.Fprintf(r.streams.Stdout(), template, args...)
}

// Eprintf formats to standard error.
func (r *Runtime) Eprintf(template string, args ...format.Arg) (int, error) {
	return format.Fprintf(r.streams.Stderr(), template, args...)
}

func (r *Runtime) Fprintf(s *stdio.Stream, template string, args ...format.Arg) (int, error) {
	return format.Fprintf(s, template, args...)
}

// Snprintf formats into buf and returns the untruncated length.
func (r *Runtime) Snprintf(buf []byte, template string, args ...format.Arg) int {
	return format.Snprintf(buf, template, args...)
}

func (r *Runtime) Sprintf(template string, args ...format.Arg) string {
	return format.Sprintf(template, args...)
}

// Puts writes s and a newline to standard output.
func (r *Runtime) Puts(s string) error {
	out := r.streams.Stdout()
	if _, err := out.PutString(s); err != nil {
		return err
	}
	return out.WriteByte('\n')
}

// Exit flushes and closes every open stream. It is the teardown hook run
// once when the hosted program finishes.
func (r *Runtime) Exit() error {
	err := r.streams.CloseAll()
	st := r.heap.Stats()
	r.log.Debug("runtime exit", "in_use", st.InUse, "blocks", st.Blocks, "footprint", st.Footprint)
	return err
}
