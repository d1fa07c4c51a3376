// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pnframe_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wtp/pnioc/pnframe"
)

func TestRTFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
	}{
		{"short-payload-needs-padding", []byte{1, 2, 3, 4, 5}},
		{"exact-min", make([]byte, pnframe.RTContentMin-pnframe.RTHeaderLen-pnframe.RTTrailerLen-2)}, // 2 IOPS bytes fill the rest
		{"longer-than-min", make([]byte, 100)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			for i := range c.payload {
				c.payload[i] = byte(i)
			}
			iops := []byte{byte(pnframe.IOPSGood), byte(pnframe.IOPSGood)}
			f := pnframe.RTFrame{
				FrameID: 0x8001,
				Payload: c.payload,
				IOPS:    iops,
				Trailer: pnframe.RTTrailer{CycleCounter: 42, DataStatus: pnframe.DataStatusRun, TransferStatus: 0},
			}
			wire := pnframe.BuildRT(f)
			if len(c.payload)+len(iops) < pnframe.RTContentMin-pnframe.RTHeaderLen-pnframe.RTTrailerLen {
				require.GreaterOrEqual(t, len(wire), pnframe.RTContentMin)
			}

			got, err := pnframe.ParseRT(wire, len(c.payload), len(iops))
			require.NoError(t, err)
			require.Equal(t, f.FrameID, got.FrameID)
			require.Equal(t, c.payload, got.Payload)
			require.Equal(t, iops, got.IOPS)
			require.Equal(t, f.Trailer, got.Trailer)
		})
	}
}

func TestEthernetHeaderRoundTrip(t *testing.T) {
	mac, err := pnframe.ParseMAC(pnframe.DCPMulticastMAC)
	require.NoError(t, err)
	h := pnframe.EthernetHeader{
		Dst:       mac,
		Src:       pnframe.MAC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		EtherType: pnframe.EtherTypePROFINET,
	}
	b := pnframe.NewBuilder(pnframe.EthHeaderLen)
	h.Encode(b)
	require.Len(t, b.Bytes(), pnframe.EthHeaderLen)

	got, err := pnframe.ParseEthernetHeader(pnframe.NewParser(b.Bytes()))
	require.NoError(t, err)
	require.Equal(t, h, got)
}
