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
	"errors"
	"fmt"

	"github.com/false-schemers/wcpl-sub001/host"
)

var (
	ErrIO             = errors.New("stdio: i/o error")
	ErrInvalidMode    = errors.New("stdio: invalid mode")
	ErrDirection      = errors.New("stdio: read and write without intervening seek or flush")
	ErrPushback       = errors.New("stdio: no room for pushback")
	ErrBufferBusy     = errors.New("stdio: buffer holds unread input")
	ErrTooManyStreams = errors.New("stdio: too many open streams")
	ErrNotReadable    = errors.New("stdio: stream not open for reading")
	ErrNotWritable    = errors.New("stdio: stream not open for writing")
	ErrClosed         = errors.New("stdio: stream closed")
	ErrNoOpener       = errors.New("stdio: host cannot open paths")
	ErrWhence         = errors.New("stdio: invalid whence")
)

// Mode is the buffering discipline of a stream.
type Mode uint8

const (
	// Unbuffered streams issue one host call per operation.
	Unbuffered Mode = iota
	// LineBuffered streams flush output on newline and before reads
	// from any unbuffered or line-buffered stream.
	LineBuffered
	// FullyBuffered streams flush only when the buffer fills or on Flush.
	FullyBuffered
)

func (m Mode) String() string {
	switch m {
	case Unbuffered:
		return "unbuffered"
	case LineBuffered:
		return "line"
	case FullyBuffered:
		return "full"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

func (m Mode) valid() bool {
	return m <= FullyBuffered
}

// ParseMode converts the names returned by Mode.String back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "unbuffered", "none":
		return Unbuffered, nil
	case "line":
		return LineBuffered, nil
	case "full":
		return FullyBuffered, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

type flag uint16

const (
	flagRead flag = 1 << iota
	flagWrite
	flagAppend
	flagEOF
	flagErr
	flagReading // last operation was a read
	flagWriting // last operation was a write
)

// parseAccess interprets an fopen-style mode string: one of r, w, a
// followed by any of +, b, x.
func parseAccess(mode string) (flag, host.OpenFlag, error) {
	if mode == "" {
		return 0, 0, fmt.Errorf("%w: empty", ErrInvalidMode)
	}
	var fl flag
	var of host.OpenFlag
	switch mode[0] {
	case 'r':
		fl, of = flagRead, host.ORead
	case 'w':
		fl, of = flagWrite, host.OWrite|host.OCreate|host.OTrunc
	case 'a':
		fl, of = flagWrite|flagAppend, host.OWrite|host.OCreate|host.OAppend
	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	for _, c := range mode[1:] {
		switch c {
		case '+':
			fl |= flagRead | flagWrite
			of |= host.ORDWR
		case 'b':
		case 'x':
			if mode[0] == 'r' {
				return 0, 0, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
			}
			of |= host.OExcl
		default:
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
		}
	}
	return fl, of, nil
}
