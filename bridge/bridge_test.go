// Copyright 2026 The nvmident authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be found in the LICENSE file.

package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	assert := assert.New(t)

	d, err := Supported.Lookup(0x174c, 0x2362)
	assert.NoError(err)
	assert.Equal("ASMedia ASM2362", d.Name)

	// Lookup is pure; repeating it yields the same descriptor.
	d2, err := Supported.Lookup(0x174c, 0x2362)
	assert.NoError(err)
	assert.Equal(d.Name, d2.Name)

	d, err = Supported.Lookup(0x174c, 0x2364)
	assert.NoError(err)
	assert.Equal("ASMedia ASM2364", d.Name)

	// Unknown product from a known vendor must not fuzzy-match.
	_, err = Supported.Lookup(0x174c, 0x5106)
	assert.ErrorIs(err, ErrUnsupported)

	_, err = Supported.Lookup(0x152d, 0x0583)
	assert.ErrorIs(err, ErrUnsupported)
}

func TestRegistryUniqueIdentity(t *testing.T) {
	seen := make(map[uint32]string)

	for _, d := range Supported {
		key := uint32(d.VendorID)<<16 | uint32(d.ProductID)
		if prev, dup := seen[key]; dup {
			t.Errorf("duplicate registry identity %04x:%04x (%s / %s)",
				d.VendorID, d.ProductID, prev, d.Name)
		}
		seen[key] = d.Name
	}
}

func TestBuildCDB(t *testing.T) {
	assert := assert.New(t)

	for _, d := range Supported {
		cdb := d.BuildCDB(IdentifyController)

		assert.Len(cdb, 16, d.Name)
		assert.Equal(uint8(NVME_ADMIN_IDENTIFY), cdb[1], d.Name)
		assert.Equal(uint8(CNS_IDENTIFY_CONTROLLER), cdb[3], d.Name)
	}

	// ASMedia layout: vendor opcode, admin opcode, reserved, CNS, zero padding.
	cdb := asmediaCDB(IdentifyController)
	assert.Equal(CDB{0xe6, 0x06, 0x00, 0x01}, cdb)
}
