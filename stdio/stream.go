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

package stdio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/false-schemers/wcpl-sub001/host"
	"github.com/false-schemers/wcpl-sub001/malloc"
)

var (
	_ io.ReadWriteSeeker = &Stream{}
	_ io.ByteReader      = &Stream{}
	_ io.ByteWriter      = &Stream{}
	_ io.Closer          = &Stream{}
)

const smallBufSize = 8

// Stream is a buffered channel over one host descriptor. Streams live in
// the slots of a Table and are not safe for concurrent use.
//
// The buffer holds either unread input in buffer[rpos:rend] or pending
// output in buffer[:wpos], never both. When off is known and pushed is
// unset, buffer[0:rend] mirrors the file bytes [off-rend, off).
type Stream struct {
	t    *Table
	slot int
	open bool

	fd    host.FD
	flags flag
	mode  Mode

	buf   malloc.Ptr // heap-owned buffer, or Null
	user  []byte     // caller-owned buffer set by SetVBuf
	size  int        // capacity in use, 0 until the first operation
	want  int        // heap buffer size to request
	small [smallBufSize]byte

	rpos, rend int
	wpos       int
	pushed     bool // a pushed-back byte overlays the read window

	off      int64
	offKnown bool
}

// Fileno returns the descriptor the stream is bound to.
func (s *Stream) Fileno() host.FD {
	return s.fd
}

// Mode returns the buffering mode.
func (s *Stream) Mode() Mode {
	return s.mode
}

// EOF reports whether the sticky end-of-input flag is set.
func (s *Stream) EOF() bool {
	return s.flags&flagEOF != 0
}

// Err returns ErrIO if the sticky error flag is set.
func (s *Stream) Err() error {
	if s.flags&flagErr != 0 {
		return ErrIO
	}
	return nil
}

// ClearErr resets the end-of-input and error flags.
func (s *Stream) ClearErr() {
	s.flags &^= flagEOF | flagErr
}

// buffer resolves the current buffer. Heap memory may move when the heap
// grows, so the result must not be kept across allocations.
func (s *Stream) buffer() []byte {
	switch {
	case s.buf != malloc.Null:
		return s.t.heap.Bytes(s.buf)[:s.size]
	case s.user != nil:
		return s.user[:s.size]
	}
	return s.small[:s.size]
}

func (s *Stream) ensureBuffer() []byte {
	if s.size > 0 {
		return s.buffer()
	}
	switch {
	case s.mode == Unbuffered:
		s.size = 1
	case s.user != nil:
		s.size = len(s.user)
	default:
		if s.t.heap != nil {
			s.buf = s.t.heap.Alloc(s.want)
		}
		if s.buf != malloc.Null {
			s.size = s.want
		} else {
			s.size = smallBufSize
			s.t.log.Debug("stream buffer allocation failed, using built-in buffer",
				"fd", s.fd, "want", s.want, "size", smallBufSize)
		}
	}
	return s.buffer()
}

func (s *Stream) releaseBuffer() {
	if s.buf != malloc.Null {
		s.t.heap.Free(s.buf)
		s.buf = malloc.Null
	}
	s.size = 0
	s.rpos, s.rend, s.wpos = 0, 0, 0
	s.pushed = false
}

func (s *Stream) beginRead() error {
	switch {
	case !s.open:
		return ErrClosed
	case s.flags&flagRead == 0:
		return ErrNotReadable
	case s.flags&flagWriting != 0:
		return ErrDirection
	}
	s.flags |= flagReading
	return nil
}

func (s *Stream) beginWrite() error {
	switch {
	case !s.open:
		return ErrClosed
	case s.flags&flagWrite == 0:
		return ErrNotWritable
	case s.flags&flagReading != 0:
		return ErrDirection
	}
	if s.rend > 0 {
		if err := s.discardInput(); err != nil {
			return err
		}
	}
	s.flags |= flagWriting
	return nil
}

// discardInput drops the read window left by a seek, moving the host
// offset back over the bytes that were buffered but never consumed.
func (s *Stream) discardInput() error {
	if n := s.rend - s.rpos; n > 0 {
		off, err := s.t.host.Seek(s.fd, -int64(n), io.SeekCurrent)
		if err != nil {
			s.flags |= flagErr
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
		s.off = off
	}
	s.dropInput()
	return nil
}

func (s *Stream) dropInput() {
	s.rpos, s.rend = 0, 0
	s.pushed = false
}

// fill issues exactly one host read sized to the buffer.
func (s *Stream) fill() error {
	if s.flags&flagEOF != 0 {
		return io.EOF
	}
	if s.mode != FullyBuffered {
		s.t.flushLineBuffered()
	}
	buf := s.ensureBuffer()
	n, err := s.t.host.Read(s.fd, buf)
	if n < 0 {
		n = 0
	}
	s.rpos, s.rend = 0, n
	s.pushed = false
	s.off += int64(n)
	if err != nil {
		s.flags |= flagErr
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if n == 0 {
		s.flags |= flagEOF
		return io.EOF
	}
	return nil
}

func (s *Stream) readDirect(p []byte) (int, error) {
	if s.flags&flagEOF != 0 {
		return 0, io.EOF
	}
	s.t.flushLineBuffered()
	n, err := s.t.host.Read(s.fd, p)
	if n < 0 {
		n = 0
	}
	s.off += int64(n)
	if err != nil {
		s.flags |= flagErr
		return n, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if n == 0 {
		s.flags |= flagEOF
		return 0, io.EOF
	}
	return n, nil
}

// Read reads up to len(p) bytes. It returns buffered input if there is
// any, otherwise the result of one fill, so a slow source is not waited
// on to fill p. Unbuffered streams issue a single host read of len(p).
func (s *Stream) Read(p []byte) (int, error) {
	if err := s.beginRead(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.rpos >= s.rend {
		if s.mode == Unbuffered {
			return s.readDirect(p)
		}
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.buffer()[s.rpos:s.rend])
	s.rpos += n
	return n, nil
}

// ReadByte returns the next input byte, filling the buffer (one byte on
// unbuffered streams) when it is exhausted.
func (s *Stream) ReadByte() (byte, error) {
	if err := s.beginRead(); err != nil {
		return 0, err
	}
	if s.rpos >= s.rend {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	c := s.buffer()[s.rpos]
	s.rpos++
	return c, nil
}

// UngetByte pushes c back so the next read returns it. One byte of
// pushback is guaranteed after a successful read; more is not. There is
// no pushback before the start of a file. A seek discards the pushed
// byte.
func (s *Stream) UngetByte(c byte) error {
	if err := s.beginRead(); err != nil {
		return err
	}
	switch {
	case s.rpos > 0:
		s.rpos--
	case s.rpos == s.rend && !(s.offKnown && s.off == 0):
		s.ensureBuffer()
		s.rpos, s.rend = 0, 1
	default:
		return ErrPushback
	}
	s.buffer()[s.rpos] = c
	s.pushed = true
	s.flags &^= flagEOF
	return nil
}

// ReadLine reads bytes into p up to and including the next newline, or
// until p is full.
func (s *Stream) ReadLine(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		c, err := s.ReadByte()
		if err != nil {
			if n > 0 && err == io.EOF {
				return n, nil
			}
			return n, err
		}
		p[n] = c
		n++
		if c == '\n' {
			break
		}
	}
	return n, nil
}

func (s *Stream) writeDirect(p []byte) (int, error) {
	n, err := s.t.host.Write(s.fd, p)
	if n < 0 {
		n = 0
	}
	s.off += int64(n)
	if err != nil {
		s.flags |= flagErr
		return n, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if n < len(p) {
		s.flags |= flagErr
		return n, fmt.Errorf("%w: %w", ErrIO, io.ErrShortWrite)
	}
	return n, nil
}

// flush issues exactly one host write of the pending bytes. The buffer is
// emptied whatever the outcome.
func (s *Stream) flush() error {
	if s.wpos == 0 {
		return nil
	}
	pending := s.buffer()[:s.wpos]
	s.wpos = 0
	_, err := s.writeDirect(pending)
	return err
}

// Write buffers p according to the stream's mode. Unbuffered streams
// issue a single host write of len(p) bytes.
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.beginWrite(); err != nil {
		return 0, err
	}
	if s.mode == Unbuffered {
		return s.writeDirect(p)
	}
	n := 0
	for n < len(p) {
		buf := s.ensureBuffer()
		c := copy(buf[s.wpos:], p[n:])
		s.wpos += c
		n += c
		if s.wpos == len(buf) {
			if err := s.flush(); err != nil {
				return n, err
			}
		}
	}
	if s.mode == LineBuffered && bytes.IndexByte(p, '\n') >= 0 {
		if err := s.flush(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// WriteByte is the single-character write primitive shared by direct and
// formatted output.
func (s *Stream) WriteByte(c byte) error {
	if err := s.beginWrite(); err != nil {
		return err
	}
	if s.mode == Unbuffered {
		_, err := s.writeDirect([]byte{c})
		return err
	}
	buf := s.ensureBuffer()
	buf[s.wpos] = c
	s.wpos++
	if s.wpos == len(buf) || (c == '\n' && s.mode == LineBuffered) {
		return s.flush()
	}
	return nil
}

// PutString writes str like Write.
func (s *Stream) PutString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Flush writes any pending output. A read-write stream may switch from
// writing to reading after a Flush.
func (s *Stream) Flush() error {
	if !s.open {
		return ErrClosed
	}
	err := s.flush()
	s.flags &^= flagWriting
	return err
}

// Seek moves the stream position. A target inside the bytes already read
// into the buffer is reached without a host call; otherwise pending
// output is flushed, pending input discarded and the host seeks. Seek
// clears the end-of-input flag and the active direction.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if !s.open {
		return -1, ErrClosed
	}
	if whence != io.SeekStart && whence != io.SeekCurrent && whence != io.SeekEnd {
		return -1, ErrWhence
	}
	if s.flags&flagWriting == 0 && s.offKnown && !s.pushed && whence != io.SeekEnd {
		target := offset
		if whence == io.SeekCurrent {
			target += s.off - int64(s.rend-s.rpos)
		}
		if start := s.off - int64(s.rend); target >= 0 && target >= start && target <= s.off {
			s.rpos = int(target - start)
			s.flags &^= flagEOF | flagReading | flagWriting
			return target, nil
		}
	}
	if s.flags&flagWriting != 0 {
		if err := s.flush(); err != nil {
			return -1, err
		}
	}
	if whence == io.SeekCurrent {
		offset -= int64(s.rend - s.rpos)
	}
	off, err := s.t.host.Seek(s.fd, offset, whence)
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrIO, err)
	}
	s.dropInput()
	s.off = off
	s.offKnown = s.flags&flagAppend == 0
	s.flags &^= flagEOF | flagReading | flagWriting
	return off, nil
}

// Tell returns the logical position, accounting for buffered input and
// pending output.
func (s *Stream) Tell() (int64, error) {
	if !s.open {
		return -1, ErrClosed
	}
	if !s.offKnown {
		off, err := s.t.host.Seek(s.fd, 0, io.SeekCurrent)
		if err != nil {
			return -1, fmt.Errorf("%w: %w", ErrIO, err)
		}
		s.off = off
		s.offKnown = s.flags&flagAppend == 0
	}
	pos := s.off - int64(s.rend-s.rpos) + int64(s.wpos)
	if pos < 0 {
		return -1, ErrPushback
	}
	return pos, nil
}

// Rewind seeks to the start and clears both sticky flags.
func (s *Stream) Rewind() error {
	_, err := s.Seek(0, io.SeekStart)
	s.ClearErr()
	return err
}

// SetVBuf changes the buffering mode. When buf is non-nil it becomes the
// stream's buffer (size bytes of it, or all of it if size is 0);
// otherwise size, if positive, sets the heap buffer size. Pending output
// is flushed first. Unread input makes the call fail with ErrBufferBusy.
func (s *Stream) SetVBuf(buf []byte, mode Mode, size int) error {
	if !s.open {
		return ErrClosed
	}
	if !mode.valid() || size < 0 || (buf != nil && size > len(buf)) {
		return fmt.Errorf("%w: mode=%v size=%d", ErrInvalidMode, mode, size)
	}
	if buf != nil {
		if size == 0 {
			size = len(buf)
		}
		if size == 0 {
			return fmt.Errorf("%w: empty buffer", ErrInvalidMode)
		}
	}
	if s.rpos < s.rend {
		return ErrBufferBusy
	}
	err := s.flush()
	s.releaseBuffer()
	s.mode = mode
	s.user = nil
	switch {
	case buf != nil:
		s.user = buf[:size:size]
	case size > 0:
		s.want = size
	}
	return err
}

// Close flushes pending output, releases the descriptor and frees the
// buffer. The descriptor is released even when the flush fails.
func (s *Stream) Close() error {
	if !s.open {
		return ErrClosed
	}
	var ferr, cerr error
	if s.flags&flagWrite != 0 {
		ferr = s.flush()
	}
	if err := s.t.host.Close(s.fd); err != nil {
		cerr = fmt.Errorf("%w: %w", ErrIO, err)
	}
	s.releaseBuffer()
	s.reset()
	return errors.Join(ferr, cerr)
}

func (s *Stream) reset() {
	*s = Stream{t: s.t, slot: s.slot}
}

func (s *Stream) bind(fd host.FD, fl flag, mode Mode, offKnown bool) {
	*s = Stream{
		t:        s.t,
		slot:     s.slot,
		open:     true,
		fd:       fd,
		flags:    fl,
		mode:     mode,
		want:     s.t.bufSize,
		offKnown: offKnown,
	}
}
