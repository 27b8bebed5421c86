// Copyright 2026 The nvmident authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be found in the LICENSE file.

// gousb-backed endpoints for a claimed USB interface.

package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

const (
	// Standard device request CLEAR_FEATURE with the ENDPOINT_HALT selector
	reqClearFeature  = 0x01
	featEndpointHalt = 0x0000
)

// OpenInterface locates the bulk endpoint pair of an already-claimed
// interface and returns a session over it. The interface must expose at least
// one bulk-in and one bulk-out endpoint; the first of each is used.
func OpenInterface(dev *gousb.Device, intf *gousb.Interface, opts ...Option) (*Session, error) {
	var inDesc, outDesc *gousb.EndpointDesc

	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}

		ep := ep
		if ep.Direction == gousb.EndpointDirectionIn {
			if inDesc == nil {
				inDesc = &ep
			}
		} else if outDesc == nil {
			outDesc = &ep
		}
	}

	if inDesc == nil || outDesc == nil {
		return nil, &TransportError{
			Kind:  KindInterface,
			Phase: "open",
			Err:   fmt.Errorf("no bulk endpoint pair on %s", intf),
		}
	}

	in, err := intf.InEndpoint(inDesc.Number)
	if err != nil {
		return nil, &TransportError{Kind: KindInterface, Phase: "open", Err: err}
	}

	out, err := intf.OutEndpoint(outDesc.Number)
	if err != nil {
		return nil, &TransportError{Kind: KindInterface, Phase: "open", Err: err}
	}

	return NewSession(
		&outEndpoint{dev: dev, ep: out},
		&inEndpoint{dev: dev, ep: in},
		opts...,
	)
}

type inEndpoint struct {
	dev *gousb.Device
	ep  *gousb.InEndpoint
}

func (e *inEndpoint) Transfer(ctx context.Context, buf []byte) (int, error) {
	n, err := e.ep.ReadContext(ctx, buf)
	return n, mapTransferErr(err)
}

func (e *inEndpoint) ClearHalt() error {
	return clearHalt(e.dev, e.ep.Desc.Address)
}

type outEndpoint struct {
	dev *gousb.Device
	ep  *gousb.OutEndpoint
}

func (e *outEndpoint) Transfer(ctx context.Context, buf []byte) (int, error) {
	n, err := e.ep.WriteContext(ctx, buf)
	return n, mapTransferErr(err)
}

func (e *outEndpoint) ClearHalt() error {
	return clearHalt(e.dev, e.ep.Desc.Address)
}

// clearHalt resets a halted endpoint via CLEAR_FEATURE(ENDPOINT_HALT), which
// also resets the endpoint's data toggle on the device side.
func clearHalt(dev *gousb.Device, addr gousb.EndpointAddress) error {
	_, err := dev.Control(
		gousb.ControlOut|gousb.ControlStandard|gousb.ControlEndpoint,
		reqClearFeature, featEndpointHalt, uint16(addr), nil)

	return err
}

// mapTransferErr converts libusb transfer errors into the sentinel conditions
// the session layer understands.
func mapTransferErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gousb.ErrorPipe):
		return fmt.Errorf("%w: %v", ErrStalled, err)
	case errors.Is(err, gousb.ErrorTimeout):
		return fmt.Errorf("%w: %v", ErrTimedOut, err)
	}

	return err
}
