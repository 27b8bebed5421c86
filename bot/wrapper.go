// Copyright 2026 The nvmident authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be found in the LICENSE file.

// USB Mass Storage Bulk-Only Transport command and status wrappers.

package bot

import (
	"encoding/binary"
	"fmt"
)

const (
	// Wrapper signatures, little-endian on the wire
	CBW_SIGNATURE = 0x43425355 // "USBC"
	CSW_SIGNATURE = 0x53425355 // "USBS"

	CBW_SIZE = 31
	CSW_SIZE = 13

	// CBW flags field
	CBW_DIR_IN = 0x80

	// CSW status values
	CSW_STATUS_PASSED      = 0x00
	CSW_STATUS_FAILED      = 0x01
	CSW_STATUS_PHASE_ERROR = 0x02
)

// CBW is a Command Block Wrapper: the command phase envelope carrying a
// command block to the device.
type CBW struct {
	Tag        uint32
	DataLength uint32
	Flags      uint8
	LUN        uint8
	CDB        []byte
}

// Encode serialises the CBW into its 31-byte wire form. Command blocks longer
// than 16 bytes are truncated; shorter ones are zero-padded, with the declared
// length preserved.
func (w *CBW) Encode() []byte {
	buf := make([]byte, CBW_SIZE)

	cdbLen := len(w.CDB)
	if cdbLen > 16 {
		cdbLen = 16
	}

	binary.LittleEndian.PutUint32(buf[0:4], CBW_SIGNATURE)
	binary.LittleEndian.PutUint32(buf[4:8], w.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], w.DataLength)
	buf[12] = w.Flags
	buf[13] = w.LUN
	buf[14] = uint8(cdbLen)
	copy(buf[15:], w.CDB[:cdbLen])

	return buf
}

// CSW is a Command Status Wrapper: the status phase envelope reporting the
// outcome of a preceding CBW.
type CSW struct {
	Tag     uint32
	Residue uint32
	Status  uint8
}

// DecodeCSW parses a 13-byte status wrapper. A short buffer or wrong signature
// indicates the transport has desynchronised and the bytes must not be
// interpreted further.
func DecodeCSW(buf []byte) (CSW, error) {
	if len(buf) < CSW_SIZE {
		return CSW{}, fmt.Errorf("short status wrapper: %d bytes", len(buf))
	}

	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != CSW_SIGNATURE {
		return CSW{}, fmt.Errorf("bad status wrapper signature %#08x", sig)
	}

	return CSW{
		Tag:     binary.LittleEndian.Uint32(buf[4:8]),
		Residue: binary.LittleEndian.Uint32(buf[8:12]),
		Status:  buf[12],
	}, nil
}
