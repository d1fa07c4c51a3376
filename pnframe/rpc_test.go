// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pnframe_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wtp/pnioc/pnframe"
)

func TestRPCHeaderEndiannessContract(t *testing.T) {
	h := pnframe.RPCHeader{
		Version:        4,
		PacketType:     pnframe.PacketTypeRequest,
		DREP:           pnframe.DREPLittleEndian,
		InterfaceUUID:  pnframe.InterfaceUUIDPNIODevice,
		InterfaceVer:   1,
		FragmentLength: 692,
	}
	b := pnframe.NewBuilder(pnframe.RPCHeaderLen)
	h.Encode(b)
	wire := b.Bytes()
	require.Len(t, wire, pnframe.RPCHeaderLen)

	// interface_version offset 60, 4 bytes LE
	require.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, wire[60:64])
	// fragment_length offset 74, 2 bytes LE
	require.Equal(t, []byte{0xB4, 0x02}, wire[74:76])

	p := pnframe.NewParser(wire)
	got, err := pnframe.ParseRPCHeader(p)
	require.NoError(t, err)
	require.Equal(t, uint32(1), got.InterfaceVer)
	require.Equal(t, uint16(692), got.FragmentLength)
	require.Equal(t, pnframe.InterfaceUUIDPNIODevice, got.InterfaceUUID)
}

func TestRPCHeaderBigEndian(t *testing.T) {
	h := pnframe.RPCHeader{
		DREP:           pnframe.DREPBigEndian,
		InterfaceVer:   2,
		FragmentLength: 10,
	}
	b := pnframe.NewBuilder(pnframe.RPCHeaderLen)
	h.Encode(b)
	wire := b.Bytes()
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x02}, wire[60:64])
	require.Equal(t, []byte{0x00, 0x0A}, wire[74:76])

	got, err := pnframe.ParseRPCHeader(pnframe.NewParser(wire))
	require.NoError(t, err)
	require.Equal(t, uint32(2), got.InterfaceVer)
	require.Equal(t, uint16(10), got.FragmentLength)
}

func TestUUIDWireRoundTrip(t *testing.T) {
	u := pnframe.InterfaceUUIDPNIODevice
	for _, le := range []bool{false, true} {
		wire := u.WireBytes(le)
		got := pnframe.UUIDFromWire(wire, le)
		require.Equal(t, u, got)
	}
}
