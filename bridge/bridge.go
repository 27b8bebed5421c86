// Copyright 2026 The nvmident authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be found in the LICENSE file.

// Vendor-specific NVMe passthrough command definitions for USB-NVMe bridge chips.
//
// A bridge chip normally exposes only generic mass storage commands; each
// vendor family defines its own opcode for tunnelling native NVMe admin
// commands through to the drive. This package maps USB (vendor, product)
// identifiers to the command block layout the bridge expects.

package bridge

import (
	"errors"
	"fmt"
)

// NVMe admin opcodes issued through a bridge passthrough
const (
	NVME_ADMIN_IDENTIFY = 0x06

	// CNS values for the Identify command
	CNS_IDENTIFY_CONTROLLER = 0x01
)

// CDB is a bridge passthrough command block. All currently supported bridges
// use a 16-byte block regardless of vendor.
type CDB [16]byte

// AdminRequest describes the NVMe admin command to be tunnelled through the
// bridge. Only Identify Controller is exercised today, but builders take the
// request so that further admin commands do not need a new builder signature.
type AdminRequest struct {
	Opcode uint8
	CNS    uint8
}

// IdentifyController is the only admin request this tool issues.
var IdentifyController = AdminRequest{Opcode: NVME_ADMIN_IDENTIFY, CNS: CNS_IDENTIFY_CONTROLLER}

// Descriptor ties a bridge chip's USB identity to its passthrough encoding.
type Descriptor struct {
	VendorID  uint16
	ProductID uint16
	Name      string
	BuildCDB  func(AdminRequest) CDB
}

// Registry is a static set of supported bridge families. (VendorID, ProductID)
// pairs are unique within a registry.
type Registry []Descriptor

var ErrUnsupported = errors.New("no NVMe passthrough support for bridge")

// Lookup returns the descriptor matching the given USB identity. Matching is
// exact; an unknown bridge is unsupported, never guessed at.
func (r Registry) Lookup(vendorID, productID uint16) (Descriptor, error) {
	for _, d := range r {
		if d.VendorID == vendorID && d.ProductID == productID {
			return d, nil
		}
	}

	return Descriptor{}, fmt.Errorf("%w %04x:%04x", ErrUnsupported, vendorID, productID)
}

// asmediaCDB encodes the ASMedia 0xE6 passthrough: the NVMe admin opcode and
// CNS selector follow the vendor opcode, remainder zero.
func asmediaCDB(req AdminRequest) CDB {
	return CDB{0xe6, req.Opcode, 0x00, req.CNS}
}

// Supported is the default registry. Adding a bridge family means adding one
// descriptor and one builder; JMicron and Realtek passthrough layouts are not
// included until verified against real hardware.
var Supported = Registry{
	{0x174c, 0x2362, "ASMedia ASM2362", asmediaCDB},
	{0x174c, 0x2364, "ASMedia ASM2364", asmediaCDB},
}
