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

import "github.com/false-schemers/wcpl-sub001/stdio"

// Sink consumes the characters produced by Format. The set of sinks is
// closed: BufferSink, CountSink and StreamSink.
type Sink interface {
	// put receives the character at logical output position idx.
	put(c byte, idx int)
	// terminate is called once with the final output length.
	terminate(idx int)
}

var (
	_ Sink = &BufferSink{}
	_ Sink = CountSink{}
	_ Sink = &StreamSink{}
)

// BufferSink writes into a fixed buffer. Characters past its end are
// dropped and a NUL terminator is stored at the end of the output, or in
// the last byte when the output was truncated.
type BufferSink struct {
	Buf []byte
}

func (s *BufferSink) put(c byte, idx int) {
	if idx < len(s.Buf) {
		s.Buf[idx] = c
	}
}

func (s *BufferSink) terminate(idx int) {
	if len(s.Buf) == 0 {
		return
	}
	if idx >= len(s.Buf) {
		idx = len(s.Buf) - 1
	}
	s.Buf[idx] = 0
}

// CountSink discards everything; only the length is computed.
type CountSink struct{}

func (CountSink) put(byte, int)  {}
func (CountSink) terminate(int) {}

// StreamSink forwards every character to a stream's WriteByte. The first
// write error is kept and later characters are dropped.
type StreamSink struct {
	S   *stdio.Stream
	err error
}

func (s *StreamSink) put(c byte, _ int) {
	if s.err == nil {
		s.err = s.S.WriteByte(c)
	}
}

func (s *StreamSink) terminate(int) {}

// Err returns the first write error.
func (s *StreamSink) Err() error {
	return s.err
}
