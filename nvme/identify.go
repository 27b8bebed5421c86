// Copyright 2026 The nvmident authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be found in the LICENSE file.

// NVMe Identify Controller data structure and decoding.

package nvme

import (
	"bytes"
	"encoding/binary"
)

const (
	// Size of the Identify Controller response
	IDENTIFY_SIZE = 4096

	// Marker for a field the drive declined to report (all-zero, all-0xFF or
	// garbage), as opposed to a legitimately blank field.
	FieldUnavailable = "[unavailable]"
)

type identPowerState struct {
	MaxPower        uint16 // Centiwatts
	Rsvd2           uint8
	Flags           uint8
	EntryLat        uint32 // Microseconds
	ExitLat         uint32 // Microseconds
	ReadTput        uint8
	ReadLat         uint8
	WriteTput       uint8
	WriteLat        uint8
	IdlePower       uint16
	IdleScale       uint8
	Rsvd19          uint8
	ActivePower     uint16
	ActiveWorkScale uint8
	Rsvd23          [9]byte
}

// identController is the NVMe Identify Controller structure (CNS 01h). Only
// the identity fields at the head are decoded; the rest is carried so that the
// layout stays byte-exact against the NVMe specification.
type identController struct {
	VendorID     uint16   // PCI Vendor ID
	Ssvid        uint16   // PCI Subsystem Vendor ID
	SerialNumber [20]byte // Serial Number
	ModelNumber  [40]byte // Model Number
	Firmware     [8]byte  // Firmware Revision
	Rab          uint8    // Recommended Arbitration Burst
	IEEE         [3]byte  // IEEE OUI Identifier
	Cmic         uint8    // Controller Multi-Path I/O and Namespace Sharing Capabilities
	Mdts         uint8    // Maximum Data Transfer Size
	Cntlid       uint16   // Controller ID
	Ver          uint32   // Version
	Rtd3r        uint32   // RTD3 Resume Latency
	Rtd3e        uint32   // RTD3 Entry Latency
	Oaes         uint32   // Optional Asynchronous Events Supported
	Rsvd96       [160]byte
	Oacs         uint16 // Optional Admin Command Support
	Acl          uint8  // Abort Command Limit
	Aerl         uint8  // Asynchronous Event Request Limit
	Frmw         uint8  // Firmware Updates
	Lpa          uint8  // Log Page Attributes
	Elpe         uint8  // Error Log Page Entries
	Npss         uint8  // Number of Power States Support
	Avscc        uint8  // Admin Vendor Specific Command Configuration
	Apsta        uint8  // Autonomous Power State Transition Attributes
	Wctemp       uint16 // Warning Composite Temperature Threshold
	Cctemp       uint16 // Critical Composite Temperature Threshold
	Mtfa         uint16 // Maximum Time for Firmware Activation
	Hmpre        uint32 // Host Memory Buffer Preferred Size
	Hmmin        uint32 // Host Memory Buffer Minimum Size
	Tnvmcap      [16]byte
	Unvmcap      [16]byte
	Rpmbs        uint32 // Replay Protected Memory Block Support
	Rsvd316      [196]byte
	Sqes         uint8 // Submission Queue Entry Size
	Cqes         uint8 // Completion Queue Entry Size
	Rsvd514      [2]byte
	Nn           uint32 // Number of Namespaces
	Oncs         uint16 // Optional NVM Command Support
	Fuses        uint16 // Fused Operation Support
	Fna          uint8  // Format NVM Attributes
	Vwc          uint8  // Volatile Write Cache
	Awun         uint16 // Atomic Write Unit Normal
	Awupf        uint16 // Atomic Write Unit Power Fail
	Nvscc        uint8  // NVM Vendor Specific Command Configuration
	Rsvd531      uint8
	Acwu         uint16 // Atomic Compare & Write Unit
	Rsvd534      [2]byte
	Sgls         uint32 // SGL Support
	Rsvd540      [1508]byte
	Psd          [32]identPowerState // Power State Descriptors
	Vs           [1024]byte          // Vendor Specific
} // 4096 bytes

// Identity is the decoded drive identity. Suspect is set when the payload
// looks implausible (garbage text fields, or a vendor ID of 0x0000 / 0xffff,
// which usually means the bridge firmware blocked the identify); the record is
// still best-effort usable.
type Identity struct {
	VendorID          uint16
	SubsystemVendorID uint16
	SerialNumber      string
	ModelNumber       string
	FirmwareRevision  string
	Suspect           bool
}

// ParseIdentify decodes an Identify Controller payload. It never fails:
// payloads shorter than 4096 bytes are zero-extended, longer ones truncated,
// and unusable fields decode to FieldUnavailable.
func ParseIdentify(raw []byte) Identity {
	buf := make([]byte, IDENTIFY_SIZE)
	copy(buf, raw)

	var ctrl identController

	binary.Read(bytes.NewReader(buf), binary.LittleEndian, &ctrl)

	ident := Identity{
		VendorID:          ctrl.VendorID,
		SubsystemVendorID: ctrl.Ssvid,
	}

	var ok [3]bool
	ident.SerialNumber, ok[0] = decodeField(ctrl.SerialNumber[:])
	ident.ModelNumber, ok[1] = decodeField(ctrl.ModelNumber[:])
	ident.FirmwareRevision, ok[2] = decodeField(ctrl.Firmware[:])

	if !ok[0] || !ok[1] || !ok[2] {
		ident.Suspect = true
	}

	if ctrl.VendorID == 0x0000 || ctrl.VendorID == 0xffff {
		ident.Suspect = true
	}

	return ident
}

// decodeField turns a fixed-width identity field into text. Trailing spaces
// and NULs are trimmed; an all-trim or all-0xFF field is unavailable but not
// suspect. A field whose remaining bytes are mostly outside the printable
// range indicates a misaligned or garbage response: it decodes as unavailable
// and the second return is false.
func decodeField(field []byte) (string, bool) {
	allFF := true
	for _, c := range field {
		if c != 0xff {
			allFF = false
			break
		}
	}
	if allFF {
		return FieldUnavailable, true
	}

	trimmed := bytes.TrimRight(field, " \x00")
	if len(trimmed) == 0 {
		return FieldUnavailable, true
	}

	printable := make([]byte, 0, len(trimmed))
	for _, c := range trimmed {
		if c >= 0x20 && c <= 0x7e {
			printable = append(printable, c)
		}
	}

	if bad := len(trimmed) - len(printable); bad > len(field)/8 {
		return FieldUnavailable, false
	}

	s := string(bytes.TrimRight(printable, " "))
	if s == "" {
		return FieldUnavailable, true
	}

	return s, true
}
