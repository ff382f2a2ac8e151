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

// Package host defines the descriptor-level primitives the runtime consumes.
package host

import "errors"

// FD is a descriptor issued by a Host.
type FD int32

// Descriptors bound at process start.
const (
	Stdin  FD = 0
	Stdout FD = 1
	Stderr FD = 2
)

// OpenFlag selects the access mode and creation behaviour of Opener.Open.
type OpenFlag uint32

const (
	ORead OpenFlag = 1 << iota
	OWrite
	OCreate
	OTrunc
	OAppend
	OExcl

	ORDWR = ORead | OWrite
)

var (
	ErrBadFD        = errors.New("host: bad file descriptor")
	ErrNotFound     = errors.New("host: no such file")
	ErrExist        = errors.New("host: file exists")
	ErrInvalid      = errors.New("host: invalid argument")
	ErrNotSupported = errors.New("host: operation not supported")
)

// Host is the syscall surface used by stdio streams.
//
// Read returns 0 and a nil error at end of input. Write may write fewer
// bytes than requested, in which case the caller treats it as a failure.
// Seek takes io.SeekStart, io.SeekCurrent or io.SeekEnd as whence and
// returns the new absolute offset.
type Host interface {
	Read(fd FD, p []byte) (int, error)
	Write(fd FD, p []byte) (int, error)
	Seek(fd FD, offset int64, whence int) (int64, error)
	Close(fd FD) error
}

// Opener is implemented by hosts that resolve paths to descriptors.
type Opener interface {
	Open(path string, flags OpenFlag, perm uint32) (FD, error)
}
