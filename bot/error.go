// Copyright 2026 The nvmident authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be found in the LICENSE file.

package bot

import (
	"errors"
	"fmt"
)

// Kind classifies a transport failure. Callers rely on the distinction to give
// useful guidance: a timeout usually means the drive needs a reconnect, a
// rejected command means the bridge does not implement the passthrough opcode,
// and a protocol mismatch means the session has desynchronised.
type Kind int

const (
	KindInterface Kind = iota + 1 // endpoints missing or session unusable
	KindTimeout                   // a phase did not complete within the bounded timeout
	KindStall                     // endpoint halted and did not recover after one clear
	KindProtocol                  // status wrapper signature or tag mismatch
	KindRejected                  // well-formed status wrapper with a failing status byte
)

func (k Kind) String() string {
	switch k {
	case KindInterface:
		return "interface unavailable"
	case KindTimeout:
		return "transport timeout"
	case KindStall:
		return "endpoint stall"
	case KindProtocol:
		return "protocol mismatch"
	case KindRejected:
		return "command rejected"
	}

	return "unknown transport error"
}

// TransportError is a classified failure of a bulk transport exchange.
type TransportError struct {
	Kind   Kind
	Phase  string // "command", "data" or "status"
	Status uint8  // CSW status byte, set for KindRejected
	Err    error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s in %s phase", e.Kind, e.Phase)

	if e.Kind == KindRejected {
		msg = fmt.Sprintf("%s (status %#02x)", msg, e.Status)
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Sentinel transfer conditions reported by endpoint implementations. The gousb
// adapter maps libusb error codes onto these; fakes in tests return them
// directly.
var (
	ErrStalled  = errors.New("endpoint stalled")
	ErrTimedOut = errors.New("transfer timed out")
)
