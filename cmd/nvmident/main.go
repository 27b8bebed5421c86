// Copyright 2026 The nvmident authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be found in the LICENSE file.

// nvmident reveals the real identity of an NVMe SSD enclosed behind a
// USB-NVMe bridge chip, bypassing the OS storage stack and tunnelling an NVMe
// Identify Controller command through the bridge's vendor passthrough.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/gousb"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/usblab/nvmident/bot"
	"github.com/usblab/nvmident/bridge"
	"github.com/usblab/nvmident/nvme"
	"github.com/usblab/nvmident/vendordb"
)

// Exit codes
const (
	EXIT_OK = iota
	EXIT_NO_BRIDGE
	EXIT_INTERFACE
	EXIT_TRANSPORT
)

var (
	flagTimeout  time.Duration
	flagVendorDb string
	flagJSON     bool
	flagVerbose  bool
	flagLUN      uint8

	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	errNoBridge = errors.New("no supported USB-NVMe bridge attached")
)

var rootCmd = &cobra.Command{
	Use:   "nvmident",
	Short: "Identify the NVMe SSD inside a USB enclosure",
	Long: `nvmident bypasses the OS storage stack and talks to a USB-NVMe bridge
chip directly, tunnelling an NVMe Identify Controller command through the
bridge's vendor-specific passthrough. This reveals the drive's real model,
serial, firmware revision and controller vendor even when the enclosure
obfuscates them.

The target disk must be unmounted first, and the tool needs raw USB access
(root, or the relevant capabilities).`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if flagVerbose {
			level = zerolog.DebugLevel
		}

		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).With().Timestamp().Logger()
	},
	RunE: run,
}

func init() {
	rootCmd.Flags().DurationVar(&flagTimeout, "timeout", bot.DEFAULT_TIMEOUT, "per-phase USB transfer timeout")
	rootCmd.Flags().StringVar(&flagVendorDb, "vendordb", "", "YAML file overlaying the built-in controller vendor names")
	rootCmd.Flags().BoolVar(&flagJSON, "json", false, "output the identity record as JSON")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging and a payload hexdump")
	rootCmd.Flags().Uint8Var(&flagLUN, "lun", 0, "logical unit to address")
}

func run(cmd *cobra.Command, args []string) error {
	checkPrivileges(logger)

	vendors, err := vendordb.Open(flagVendorDb)
	if err != nil {
		return fmt.Errorf("vendor database %s: %w", flagVendorDb, err)
	}

	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	dev, desc, err := findBridge(usbCtx, bridge.Supported)
	if err != nil {
		return err
	}
	defer dev.Close()

	logger.Info().Str("bridge", desc.Name).
		Str("usb_id", fmt.Sprintf("%04x:%04x", desc.VendorID, desc.ProductID)).
		Msg("found supported bridge")

	if manufacturer, err := dev.Manufacturer(); err == nil {
		logger.Debug().Str("manufacturer", manufacturer).Msg("device strings")
	}
	if product, err := dev.Product(); err == nil {
		logger.Debug().Str("product", product).Msg("device strings")
	}

	// Detach the kernel storage driver for the duration of the claim; gousb
	// reattaches it when the interface is released.
	if err := dev.SetAutoDetach(true); err != nil {
		return &bot.TransportError{Kind: bot.KindInterface, Phase: "open", Err: err}
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		return &bot.TransportError{Kind: bot.KindInterface, Phase: "open",
			Err: fmt.Errorf("claim interface: %w", err)}
	}
	defer done()

	session, err := bot.OpenInterface(dev, intf,
		bot.WithTimeout(flagTimeout), bot.WithLogger(logger), bot.WithLUN(flagLUN))
	if err != nil {
		return err
	}

	cdb := desc.BuildCDB(bridge.IdentifyController)

	logger.Info().Msg("sending NVMe Identify Controller")

	res, err := session.Exchange(context.Background(), cdb[:], nvme.IDENTIFY_SIZE)
	if err != nil {
		return err
	}

	if res.Residue != 0 {
		logger.Warn().Uint32("residue", res.Residue).
			Msg("bridge under-reported transfer length; payload may be partial")
	}

	ident := nvme.ParseIdentify(res.Data)
	if ident.Suspect {
		logger.Warn().Msg("response looks implausible; bridge firmware may be blocking identify")
	}

	return printReport(cmd.OutOrStdout(), ident, desc.Name, vendors, res.Data)
}

// findBridge scans attached USB devices for one matching the passthrough
// registry. The first match wins; any others are closed again.
func findBridge(usbCtx *gousb.Context, reg bridge.Registry) (*gousb.Device, bridge.Descriptor, error) {
	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		_, lerr := reg.Lookup(uint16(desc.Vendor), uint16(desc.Product))
		return lerr == nil
	})

	if len(devs) == 0 {
		if err != nil {
			return nil, bridge.Descriptor{}, fmt.Errorf("%w (scan failed: %v)", errNoBridge, err)
		}
		return nil, bridge.Descriptor{}, errNoBridge
	}

	for _, d := range devs[1:] {
		logger.Debug().
			Str("usb_id", fmt.Sprintf("%s:%s", d.Desc.Vendor, d.Desc.Product)).
			Msg("ignoring additional bridge")
		d.Close()
	}

	dev := devs[0]

	desc, err := reg.Lookup(uint16(dev.Desc.Vendor), uint16(dev.Desc.Product))
	if err != nil {
		// Unreachable: the device was opened through the registry filter
		dev.Close()
		return nil, bridge.Descriptor{}, err
	}

	return dev, desc, nil
}

// exitCode maps classified failures onto the process exit contract and logs
// the recovery hint appropriate to each class.
func exitCode(err error) int {
	var terr *bot.TransportError

	switch {
	case errors.Is(err, errNoBridge), errors.Is(err, bridge.ErrUnsupported):
		logger.Info().Msg("supported bridges: ASMedia ASM2362, ASM2364 (check with: lsusb -d 174c:)")
		return EXIT_NO_BRIDGE

	case errors.As(err, &terr):
		switch terr.Kind {
		case bot.KindInterface:
			logger.Info().Msg("ensure the disk is unmounted and retry with elevated privileges")
			return EXIT_INTERFACE
		case bot.KindTimeout, bot.KindStall, bot.KindProtocol:
			logger.Info().Msg("reconnect the drive and try again")
		case bot.KindRejected:
			logger.Info().Msg("the bridge declined the passthrough command; its firmware may not support it")
		}
		return EXIT_TRANSPORT
	}

	return EXIT_INTERFACE
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error().Msg(err.Error())
		os.Exit(exitCode(err))
	}
}
