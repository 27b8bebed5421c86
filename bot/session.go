// Copyright 2026 The nvmident authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be found in the LICENSE file.

// Bulk-Only Transport session: the command / data / status exchange used to
// deliver a passthrough command and retrieve its response.

package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Per-phase transfer timeout
const DEFAULT_TIMEOUT = 5 * time.Second

// Endpoint is one bulk pipe of an already-claimed USB interface. Transfer
// blocks until the buffer is moved, the context deadline expires, or the
// endpoint reports an error; stalls and timeouts surface as ErrStalled and
// ErrTimedOut.
type Endpoint interface {
	Transfer(ctx context.Context, buf []byte) (int, error)
	ClearHalt() error
}

// Session performs sequential exchanges over one bulk endpoint pair. It does
// not claim the underlying interface; the caller must hold exclusive access
// for the session's lifetime.
type Session struct {
	out     Endpoint
	in      Endpoint
	lun     uint8
	tag     uint32
	timeout time.Duration
	logger  zerolog.Logger
	broken  bool
}

type Option func(*Session)

func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

func WithLUN(lun uint8) Option {
	return func(s *Session) { s.lun = lun }
}

// NewSession wraps a bulk endpoint pair. It fails fast if either direction is
// missing rather than discovering this mid-exchange.
func NewSession(out, in Endpoint, opts ...Option) (*Session, error) {
	if out == nil || in == nil {
		return nil, &TransportError{
			Kind:  KindInterface,
			Phase: "open",
			Err:   errors.New("interface does not expose a bulk in/out endpoint pair"),
		}
	}

	s := &Session{
		out:     out,
		in:      in,
		tag:     uint32(time.Now().UnixMilli()),
		timeout: DEFAULT_TIMEOUT,
		logger:  zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Result is the outcome of a successful exchange. Data is always exactly the
// requested length; Residue is the device's count of bytes it did not
// transfer. Some bridges under-report while still filling the whole buffer,
// so a nonzero residue is informational, not an error.
type Result struct {
	Data    []byte
	Residue uint32
}

// Exchange runs one full command / data / status round trip, sending cdb and
// reading respLen bytes back. Short data reads are zero-extended to respLen.
// Failures are classified TransportErrors; after an unrecovered stall or a
// protocol mismatch the session refuses further exchanges and must be
// reopened.
func (s *Session) Exchange(ctx context.Context, cdb []byte, respLen int) (*Result, error) {
	if s.broken {
		return nil, &TransportError{
			Kind:  KindInterface,
			Phase: "command",
			Err:   errors.New("session desynchronised by previous failure"),
		}
	}

	s.tag++
	tag := s.tag

	cbw := CBW{
		Tag:        tag,
		DataLength: uint32(respLen),
		Flags:      CBW_DIR_IN,
		LUN:        s.lun,
		CDB:        cdb,
	}

	s.logger.Debug().
		Uint32("tag", tag).
		Int("resp_len", respLen).
		Hex("cdb", cdb).
		Msg("command phase")

	if err := s.write(ctx, cbw.Encode()); err != nil {
		return nil, err
	}

	data := make([]byte, respLen)

	n, err := s.read(ctx, data, "data")
	if err != nil {
		return nil, err
	}

	if n < respLen {
		// Remainder of the buffer is already zeroed
		s.logger.Debug().Int("read", n).Int("want", respLen).Msg("short data phase")
	}

	stsBuf := make([]byte, CSW_SIZE)

	if _, err := s.read(ctx, stsBuf, "status"); err != nil {
		return nil, err
	}

	csw, err := DecodeCSW(stsBuf)
	if err != nil {
		s.broken = true
		return nil, &TransportError{Kind: KindProtocol, Phase: "status", Err: err}
	}

	if csw.Tag != tag {
		s.broken = true
		return nil, &TransportError{
			Kind:  KindProtocol,
			Phase: "status",
			Err:   fmt.Errorf("tag mismatch: sent %#08x, received %#08x", tag, csw.Tag),
		}
	}

	if csw.Status != CSW_STATUS_PASSED {
		return nil, &TransportError{Kind: KindRejected, Phase: "status", Status: csw.Status}
	}

	if csw.Residue != 0 {
		s.logger.Warn().Uint32("residue", csw.Residue).Msg("device reported untransferred bytes")
	}

	return &Result{Data: data, Residue: csw.Residue}, nil
}

// write performs the command phase. A stall here is fatal to the session;
// retrying a half-delivered command wrapper risks desynchronising the
// device's command state machine.
func (s *Session) write(ctx context.Context, buf []byte) error {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.out.Transfer(tctx, buf)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStalled):
		s.broken = true
		return &TransportError{Kind: KindStall, Phase: "command", Err: err}
	case isTimeout(err):
		return &TransportError{Kind: KindTimeout, Phase: "command", Err: err}
	}

	return &TransportError{Kind: KindInterface, Phase: "command", Err: err}
}

// read performs one device-to-host phase. A stalled endpoint is cleared and
// the read retried exactly once; a second stall makes the session unusable.
func (s *Session) read(ctx context.Context, buf []byte, phase string) (int, error) {
	n, err := s.transferIn(ctx, buf)

	if errors.Is(err, ErrStalled) {
		s.logger.Debug().Str("phase", phase).Msg("in endpoint stalled, clearing halt")

		if cerr := s.in.ClearHalt(); cerr != nil {
			s.broken = true
			return 0, &TransportError{Kind: KindStall, Phase: phase, Err: fmt.Errorf("clear halt: %w", cerr)}
		}

		n, err = s.transferIn(ctx, buf)
		if errors.Is(err, ErrStalled) {
			s.broken = true
			return 0, &TransportError{Kind: KindStall, Phase: phase, Err: err}
		}
	}

	switch {
	case err == nil:
		return n, nil
	case isTimeout(err):
		return 0, &TransportError{Kind: KindTimeout, Phase: phase, Err: err}
	}

	return 0, &TransportError{Kind: KindInterface, Phase: phase, Err: err}
}

func (s *Session) transferIn(ctx context.Context, buf []byte) (int, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.in.Transfer(tctx, buf)
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrTimedOut) || errors.Is(err, context.DeadlineExceeded)
}
