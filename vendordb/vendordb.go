// Copyright 2026 The nvmident authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be found in the LICENSE file.

// NVMe controller vendor database: maps PCI vendor IDs to manufacturer names.

package vendordb

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Built-in vendor names, sourced from PCI vendor ID registrations of known
// NVMe controller manufacturers.
var builtin = map[uint16]string{
	0x025e: "Solidigm",
	0x1179: "Toshiba",
	0x126f: "Silicon Motion",
	0x1344: "Micron",
	0x144d: "Samsung",
	0x15b7: "SanDisk/Western Digital",
	0x1987: "Phison",
	0x1c5c: "SK Hynix",
	0x1cc1: "ADATA",
	0x1d79: "Transcend",
	0x1d97: "Shenzhen Longsys",
	0x1dee: "Biwin",
	0x1e0f: "Kioxia",
	0x1e4b: "Maxio",
	0x2646: "Kingston",
	0x8086: "Intel",
	0xc0a9: "Micron",
}

type VendorDb struct {
	Vendors map[uint16]string `yaml:"vendors"`
}

// New returns a database holding only the built-in vendors.
func New() VendorDb {
	db := VendorDb{Vendors: make(map[uint16]string, len(builtin))}

	for id, name := range builtin {
		db.Vendors[id] = name
	}

	return db
}

// Open loads a YAML vendor database and merges it over the built-ins, so a
// user file can add or rename vendors without re-listing them all. A missing
// file is not an error; the built-ins apply unchanged.
func Open(dbfile string) (VendorDb, error) {
	db := New()

	f, err := os.Open(dbfile)
	if err != nil {
		return db, nil
	}

	defer f.Close()

	var overlay VendorDb

	if err := yaml.NewDecoder(f).Decode(&overlay); err != nil {
		return db, err
	}

	for id, name := range overlay.Vendors {
		db.Vendors[id] = name
	}

	return db, nil
}

// Lookup returns the vendor name for a PCI vendor ID, or "Unknown".
func (db VendorDb) Lookup(vendorID uint16) string {
	if name, ok := db.Vendors[vendorID]; ok {
		return name
	}

	return "Unknown"
}
