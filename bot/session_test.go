// Copyright 2026 The nvmident authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be found in the LICENSE file.

package bot

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeDev emulates the device side of a bulk-only exchange: it records the
// command wrapper, serves a data phase, then a status wrapper echoing the tag.
type fakeDev struct {
	lastCBW []byte
	payload []byte
	status  uint8
	residue uint32

	badTag    bool
	badSig    bool
	stallsIn  int // in transfers to fail with ErrStalled before succeeding
	inErr     error
	clearCnt  int
	clearErr  error
	dataReads int
}

type fakeOut struct{ d *fakeDev }

func (o fakeOut) Transfer(ctx context.Context, buf []byte) (int, error) {
	o.d.lastCBW = append([]byte(nil), buf...)
	return len(buf), nil
}

func (o fakeOut) ClearHalt() error { return nil }

type fakeIn struct{ d *fakeDev }

func (i fakeIn) Transfer(ctx context.Context, buf []byte) (int, error) {
	d := i.d

	if d.stallsIn > 0 {
		d.stallsIn--
		return 0, ErrStalled
	}

	if d.inErr != nil {
		return 0, d.inErr
	}

	d.dataReads++
	if d.dataReads == 1 {
		return copy(buf, d.payload), nil
	}

	tag := binary.LittleEndian.Uint32(d.lastCBW[4:8])
	if d.badTag {
		tag ^= 0xffff
	}

	sig := uint32(CSW_SIGNATURE)
	if d.badSig {
		sig = 0x0badf00d
	}

	csw := make([]byte, CSW_SIZE)
	binary.LittleEndian.PutUint32(csw[0:4], sig)
	binary.LittleEndian.PutUint32(csw[4:8], tag)
	binary.LittleEndian.PutUint32(csw[8:12], d.residue)
	csw[12] = d.status

	return copy(buf, csw), nil
}

func (i fakeIn) ClearHalt() error {
	i.d.clearCnt++
	return i.d.clearErr
}

func newFakeSession(t *testing.T, d *fakeDev) *Session {
	t.Helper()

	s, err := NewSession(fakeOut{d}, fakeIn{d})
	if err != nil {
		t.Fatal(err)
	}

	return s
}

var identifyCDB = []byte{0xe6, 0x06, 0x00, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

func TestSessionRequiresBothEndpoints(t *testing.T) {
	var terr *TransportError

	_, err := NewSession(nil, fakeIn{&fakeDev{}})
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, KindInterface, terr.Kind)

	_, err = NewSession(fakeOut{&fakeDev{}}, nil)
	assert.Error(t, err)
}

func TestExchange(t *testing.T) {
	assert := assert.New(t)

	payload := make([]byte, 4096)
	copy(payload, []byte{0x87, 0x19})

	d := &fakeDev{payload: payload}
	s := newFakeSession(t, d)

	res, err := s.Exchange(context.Background(), identifyCDB, 4096)
	assert.NoError(err)
	assert.Len(res.Data, 4096)
	assert.Equal(payload, res.Data)
	assert.Equal(uint32(0), res.Residue)

	// The wrapper on the wire carries the expected framing
	assert.Len(d.lastCBW, CBW_SIZE)
	assert.Equal(uint32(CBW_SIGNATURE), binary.LittleEndian.Uint32(d.lastCBW[0:4]))
	assert.Equal(uint32(4096), binary.LittleEndian.Uint32(d.lastCBW[8:12]))
	assert.Equal(uint8(CBW_DIR_IN), d.lastCBW[12])
	assert.Equal(uint8(16), d.lastCBW[14])
	assert.Equal(identifyCDB, d.lastCBW[15:31])
}

func TestExchangeTagsIncrement(t *testing.T) {
	assert := assert.New(t)

	d := &fakeDev{payload: []byte{0x01}}
	s := newFakeSession(t, d)

	_, err := s.Exchange(context.Background(), identifyCDB, 1)
	assert.NoError(err)
	tag1 := binary.LittleEndian.Uint32(d.lastCBW[4:8])

	d.dataReads = 0
	_, err = s.Exchange(context.Background(), identifyCDB, 1)
	assert.NoError(err)
	tag2 := binary.LittleEndian.Uint32(d.lastCBW[4:8])

	assert.Equal(tag1+1, tag2)
}

func TestExchangeShortDataZeroExtended(t *testing.T) {
	d := &fakeDev{payload: []byte{0xaa, 0xbb}}
	s := newFakeSession(t, d)

	res, err := s.Exchange(context.Background(), identifyCDB, 8)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb, 0, 0, 0, 0, 0, 0}, res.Data)
}

func TestExchangeTagMismatch(t *testing.T) {
	d := &fakeDev{payload: []byte{0x01}, badTag: true}
	s := newFakeSession(t, d)

	_, err := s.Exchange(context.Background(), identifyCDB, 1)

	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, KindProtocol, terr.Kind)

	// A desynchronised session must refuse further exchanges
	_, err = s.Exchange(context.Background(), identifyCDB, 1)
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, KindInterface, terr.Kind)
}

func TestExchangeBadStatusSignature(t *testing.T) {
	d := &fakeDev{payload: []byte{0x01}, badSig: true}
	s := newFakeSession(t, d)

	_, err := s.Exchange(context.Background(), identifyCDB, 1)

	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, KindProtocol, terr.Kind)
}

func TestExchangeCommandRejected(t *testing.T) {
	d := &fakeDev{payload: make([]byte, 4096), status: CSW_STATUS_PHASE_ERROR}
	s := newFakeSession(t, d)

	res, err := s.Exchange(context.Background(), identifyCDB, 4096)
	assert.Nil(t, res)

	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, KindRejected, terr.Kind)
	assert.Equal(t, uint8(0x02), terr.Status)
}

func TestExchangeResidueTolerated(t *testing.T) {
	d := &fakeDev{payload: make([]byte, 4096), residue: 96}
	s := newFakeSession(t, d)

	res, err := s.Exchange(context.Background(), identifyCDB, 4096)
	assert.NoError(t, err)
	assert.Equal(t, uint32(96), res.Residue)
}

func TestExchangeStallOnceRecovers(t *testing.T) {
	assert := assert.New(t)

	d := &fakeDev{payload: []byte{0x42}, stallsIn: 1}
	s := newFakeSession(t, d)

	res, err := s.Exchange(context.Background(), identifyCDB, 1)
	assert.NoError(err)
	assert.Equal(uint8(0x42), res.Data[0])
	assert.Equal(1, d.clearCnt)
}

func TestExchangeStallTwiceFatal(t *testing.T) {
	assert := assert.New(t)

	d := &fakeDev{payload: []byte{0x42}, stallsIn: 2}
	s := newFakeSession(t, d)

	_, err := s.Exchange(context.Background(), identifyCDB, 1)

	var terr *TransportError
	assert.ErrorAs(err, &terr)
	assert.Equal(KindStall, terr.Kind)
	assert.Equal(1, d.clearCnt)

	// No further exchanges until reopened
	_, err = s.Exchange(context.Background(), identifyCDB, 1)
	assert.ErrorAs(err, &terr)
	assert.Equal(KindInterface, terr.Kind)
}

func TestExchangeTimeout(t *testing.T) {
	d := &fakeDev{inErr: ErrTimedOut}
	s := newFakeSession(t, d)

	_, err := s.Exchange(context.Background(), identifyCDB, 4096)

	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, KindTimeout, terr.Kind)
	assert.Equal(t, "data", terr.Phase)
}
