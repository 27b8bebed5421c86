// Copyright 2026 The nvmident authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be found in the LICENSE file.

//go:build !linux

package main

import (
	"os"

	"github.com/rs/zerolog"
)

// checkPrivileges warns when the process is not running as root. Raw USB
// access on macOS and the BSDs requires it.
func checkPrivileges(logger zerolog.Logger) {
	if euid := os.Geteuid(); euid > 0 {
		logger.Warn().Int("euid", euid).Msg("not running as root; device access will probably fail")
	}
}
