// Copyright 2026 The nvmident authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be found in the LICENSE file.

//go:build linux

package main

import (
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

const (
	_LINUX_CAPABILITY_VERSION_3 = 0x20080522

	CAP_SYS_RAWIO = 1 << 17
	CAP_SYS_ADMIN = 1 << 21
)

type capHeader struct {
	version uint32
	pid     int
}

type capData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

type capsV3 struct {
	hdr  capHeader
	data [2]capData
}

// checkPrivileges invokes the capget syscall to check for necessary capabilities.
// Note that this depends on the binary having the capabilities set (i.e., via
// the `setcap` utility), and on VFS support. Alternatively, if the binary is
// executed as root, it automatically has all capabilities set.
func checkPrivileges(logger zerolog.Logger) {
	caps := new(capsV3)
	caps.hdr.version = _LINUX_CAPABILITY_VERSION_3

	// Use RawSyscall since we do not expect it to block
	_, _, e1 := unix.RawSyscall(unix.SYS_CAPGET,
		uintptr(unsafe.Pointer(&caps.hdr)), uintptr(unsafe.Pointer(&caps.data)), 0)
	if e1 != 0 {
		logger.Warn().Str("errno", e1.Error()).Msg("capget() failed")
		return
	}

	if (caps.data[0].effective&CAP_SYS_RAWIO == 0) && (caps.data[0].effective&CAP_SYS_ADMIN == 0) {
		logger.Warn().Msg("neither cap_sys_rawio nor cap_sys_admin in effect; device access will probably fail")
	}
}
