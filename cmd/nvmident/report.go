// Copyright 2026 The nvmident authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/usblab/nvmident/nvme"
	"github.com/usblab/nvmident/vendordb"
)

type report struct {
	Bridge            string `json:"bridge"`
	ModelNumber       string `json:"model_number"`
	SerialNumber      string `json:"serial_number"`
	FirmwareRevision  string `json:"firmware_revision"`
	ControllerVendor  string `json:"controller_vendor"`
	VendorID          string `json:"vendor_id"`
	SubsystemVendorID string `json:"subsystem_vendor_id"`
	Suspect           bool   `json:"suspect,omitempty"`
}

func printReport(w io.Writer, ident nvme.Identity, bridgeName string, vendors vendordb.VendorDb, payload []byte) error {
	r := report{
		Bridge:            bridgeName,
		ModelNumber:       ident.ModelNumber,
		SerialNumber:      ident.SerialNumber,
		FirmwareRevision:  ident.FirmwareRevision,
		ControllerVendor:  vendors.Lookup(ident.VendorID),
		VendorID:          fmt.Sprintf("0x%04x", ident.VendorID),
		SubsystemVendorID: fmt.Sprintf("0x%04x", ident.SubsystemVendorID),
		Suspect:           ident.Suspect,
	}

	if flagJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Bridge:      %s\n", r.Bridge)
	fmt.Fprintf(w, "Model:       %s\n", r.ModelNumber)
	fmt.Fprintf(w, "Serial:      %s\n", r.SerialNumber)
	fmt.Fprintf(w, "Firmware:    %s\n", r.FirmwareRevision)
	fmt.Fprintf(w, "Controller:  %s (VID %s)\n", r.ControllerVendor, r.VendorID)
	fmt.Fprintf(w, "Subsystem:   %s\n", r.SubsystemVendorID)

	if r.Suspect {
		fmt.Fprintln(w, "\nWARNING: response flagged suspect; fields above are best-effort")
	}

	if flagVerbose && len(payload) >= 80 {
		fmt.Fprintln(w, "\nRaw identify data (first 80 bytes):")
		fmt.Fprint(w, hex.Dump(payload[:80]))
	}

	return nil
}
