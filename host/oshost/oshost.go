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

//go:build unix

// Package oshost implements host.Host on top of operating system descriptors.
package oshost

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/false-schemers/wcpl-sub001/host"
)

var (
	_ host.Host   = Host{}
	_ host.Opener = Host{}
)

// Host issues raw syscalls. The zero value is ready to use.
type Host struct{}

// New returns a host bound to the process's descriptors.
func New() Host {
	return Host{}
}

func (Host) Read(fd host.FD, p []byte) (int, error) {
	for {
		n, err := unix.Read(int(fd), p)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, mapErr(err)
	}
}

func (Host) Write(fd host.FD, p []byte) (int, error) {
	for {
		n, err := unix.Write(int(fd), p)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, mapErr(err)
	}
}

func (Host) Seek(fd host.FD, offset int64, whence int) (int64, error) {
	off, err := unix.Seek(int(fd), offset, whence)
	if err != nil {
		return -1, mapErr(err)
	}
	return off, nil
}

func (Host) Close(fd host.FD) error {
	return mapErr(unix.Close(int(fd)))
}

func (Host) Open(path string, flags host.OpenFlag, perm uint32) (host.FD, error) {
	var mode int
	switch flags & host.ORDWR {
	case host.ORead:
		mode = unix.O_RDONLY
	case host.OWrite:
		mode = unix.O_WRONLY
	case host.ORDWR:
		mode = unix.O_RDWR
	default:
		return -1, host.ErrInvalid
	}
	if flags&host.OCreate != 0 {
		mode |= unix.O_CREAT
	}
	if flags&host.OTrunc != 0 {
		mode |= unix.O_TRUNC
	}
	if flags&host.OAppend != 0 {
		mode |= unix.O_APPEND
	}
	if flags&host.OExcl != 0 {
		mode |= unix.O_EXCL
	}
	for {
		fd, err := unix.Open(path, mode|unix.O_CLOEXEC, perm)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, mapErr(err)
		}
		return host.FD(fd), nil
	}
}

// mapErr converts errno values the runtime distinguishes into host errors.
// Anything else is returned as the raw errno.
func mapErr(err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return err
	}
	switch errno {
	case unix.EBADF:
		return errors.Join(host.ErrBadFD, errno)
	case unix.ENOENT:
		return errors.Join(host.ErrNotFound, errno)
	case unix.EEXIST:
		return errors.Join(host.ErrExist, errno)
	case unix.EINVAL:
		return errors.Join(host.ErrInvalid, errno)
	case unix.ESPIPE:
		return errors.Join(host.ErrNotSupported, errno)
	}
	return errno
}
