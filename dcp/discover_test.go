// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package dcp_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wtp/pnioc/dcp"
	"github.com/wtp/pnioc/internal/pnet"
	"github.com/wtp/pnioc/internal/wlog"
	"github.com/wtp/pnioc/pnframe"
)

func buildIdentifyResponseFrame(srcMAC pnframe.MAC, station string, ip [4]byte, vendor, device uint16) []byte {
	dst, _ := pnframe.ParseMAC(pnframe.DCPMulticastMAC)
	body := pnframe.NewBuilder(64)
	body.U8(0x02).U8(0x02).U16BE(uint16(len(station))).Raw([]byte(station)) // DeviceProperties/NameOfStation
	idBlock := pnframe.NewBuilder(4)
	idBlock.U16BE(vendor).U16BE(device)
	body.U8(0x02).U8(0x03).U16BE(4).Raw(idBlock.Bytes()) // DeviceProperties/DeviceID
	body.U8(0x01).U8(0x02).U16BE(4).Raw(ip[:])           // IP/IPParameter (address only, simplified)

	b := pnframe.NewBuilder(128)
	eth := pnframe.EthernetHeader{Dst: dst, Src: srcMAC, EtherType: pnframe.EtherTypePROFINET}
	eth.Encode(b)
	b.U16BE(dcp.FrameIDIdentifyRes)
	b.U8(dcp.ServiceIdentify).U8(dcp.ServiceTypeRes)
	b.U32BE(1)
	b.U16BE(uint16(body.Len()))
	b.Raw(body.Bytes())
	return b.Bytes()
}

func TestDiscoverCollectsOneResponsePerStation(t *testing.T) {
	mac := pnframe.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	sock := pnet.NewFakePacketSocket([6]byte(mac))
	d := dcp.NewDiscoverer(sock, wlog.NewDisabled())

	rtuMAC := pnframe.MAC{0xAA, 0xBB, 0xCC, 0x00, 0x00, 0x01}
	frame := buildIdentifyResponseFrame(rtuMAC, "rtu-4b64", [4]byte{192, 168, 6, 21}, 0x0493, 0x0001)

	go func() {
		time.Sleep(5 * time.Millisecond)
		sock.Push(frame)
		sock.Push(frame) // duplicate within round: collapsed, first wins
	}()

	reports, err := d.Discover(80 * time.Millisecond)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, "rtu-4b64", reports[0].Station)
	require.Equal(t, uint16(0x0493), reports[0].VendorID)
	require.Equal(t, uint16(0x0001), reports[0].DeviceID)
	require.Equal(t, "192.168.6.21", reports[0].IP.String())
}

func TestDiscoverNoResponsesIsNonFatal(t *testing.T) {
	mac := pnframe.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	sock := pnet.NewFakePacketSocket([6]byte(mac))
	go func() {
		time.Sleep(5 * time.Millisecond)
		sock.Close()
	}()
	d := dcp.NewDiscoverer(sock, wlog.NewDisabled())
	reports, err := d.Discover(20 * time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, reports)
}
