// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package dcp implements PROFINET's layer-2 Discovery and basic
// Configuration Protocol: broadcasting an Identify-All request and
// collecting Identify responses into a device inventory (spec.md C2, §4.2).
package dcp

import (
	"net"
	"time"

	"github.com/wtp/pnioc/internal/pnerr"
	"github.com/wtp/pnioc/internal/pnet"
	"github.com/wtp/pnioc/internal/wlog"
	"github.com/wtp/pnioc/pnframe"
)

// DCP frame-ids (§6.7) and service codes.
const (
	FrameIDIdentifyReq uint16 = 0xFEFE
	FrameIDIdentifyRes uint16 = 0xFEFF

	ServiceIdentify byte = 0x05
	ServiceTypeReq  byte = 0x00
	ServiceTypeRes  byte = 0x01
)

// DCP block options/suboptions this controller reads out of an Identify
// response. Exhaustive block coverage (GSDML-driven options) is out of
// scope (spec.md §1); these three are enough to populate a DeviceReport.
const (
	optIP       byte = 0x01
	suboptIP    byte = 0x02
	optDevProp  byte = 0x02
	suboptName  byte = 0x02
	suboptID    byte = 0x03
)

// DeviceReport is one discovered device (§4.2).
type DeviceReport struct {
	Station  string
	IP       net.IP
	MAC      pnframe.MAC
	VendorID uint16
	DeviceID uint16
}

// Discoverer broadcasts Identify-All and collects responses on a bound
// packet socket.
type Discoverer struct {
	sock pnet.PacketSocket
	log  wlog.Log
}

func NewDiscoverer(sock pnet.PacketSocket, log wlog.Log) *Discoverer {
	return &Discoverer{sock: sock, log: log}
}

// Discover broadcasts an Identify-All request and collects responses until
// timeout elapses (soft: late responses after timeout are dropped
// silently). Duplicate responses within one round are collapsed by station
// name, first wins (§4.2).
func (d *Discoverer) Discover(timeout time.Duration) ([]DeviceReport, error) {
	if d.sock == nil {
		return nil, pnerr.ErrInterfaceUnavailable
	}

	req, err := buildIdentifyRequest(d.sock.InterfaceMAC())
	if err != nil {
		return nil, err
	}
	if err := d.sock.Send(req); err != nil {
		return nil, pnerr.ErrInterfaceUnavailable
	}

	seen := make(map[string]DeviceReport)
	var order []string
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1500)

	_ = d.sock.SetRecvDeadline(deadline)

	for time.Now().Before(deadline) {
		n, err := d.sock.Recv(buf)
		if err != nil {
			break
		}
		report, ok := parseIdentifyResponse(buf[:n])
		if !ok {
			continue
		}
		if _, dup := seen[report.Station]; dup {
			continue // first wins, per §4.2
		}
		seen[report.Station] = report
		order = append(order, report.Station)
	}

	if len(order) == 0 {
		return nil, nil // NoResponses is non-fatal: empty set, not an error
	}
	out := make([]DeviceReport, 0, len(order))
	for _, station := range order {
		out = append(out, seen[station])
	}
	return out, nil
}

func buildIdentifyRequest(srcMAC [6]byte) ([]byte, error) {
	dstMAC, err := pnframe.ParseMAC(pnframe.DCPMulticastMAC)
	if err != nil {
		return nil, err
	}
	b := pnframe.NewBuilder(64)
	eth := pnframe.EthernetHeader{Dst: dstMAC, Src: pnframe.MAC(srcMAC), EtherType: pnframe.EtherTypePROFINET}
	eth.Encode(b)
	b.U16BE(FrameIDIdentifyReq)
	b.U8(ServiceIdentify).U8(ServiceTypeReq)
	b.U32BE(1) // Xid
	b.U16BE(1) // ResponseDelay
	b.U16BE(0) // DataLength (All-selector identify carries no request blocks)
	b.PadTo(pnframe.EthMinFrameLen)
	return b.Bytes(), nil
}

func parseIdentifyResponse(frame []byte) (DeviceReport, bool) {
	p := pnframe.NewParser(frame)
	eth, err := pnframe.ParseEthernetHeader(p)
	if err != nil || eth.EtherType != pnframe.EtherTypePROFINET {
		return DeviceReport{}, false
	}
	frameID, err := p.U16BE()
	if err != nil || frameID != FrameIDIdentifyRes {
		return DeviceReport{}, false
	}
	serviceID, err := p.U8()
	if err != nil || serviceID != ServiceIdentify {
		return DeviceReport{}, false
	}
	serviceType, err := p.U8()
	if err != nil || serviceType != ServiceTypeRes {
		return DeviceReport{}, false
	}
	if err := p.Skip(4); err != nil { // Xid
		return DeviceReport{}, false
	}
	dataLen, err := p.U16BE()
	if err != nil {
		return DeviceReport{}, false
	}
	body, err := p.Bytes(int(dataLen))
	if err != nil {
		return DeviceReport{}, false
	}

	report := DeviceReport{MAC: eth.Src}
	bp := pnframe.NewParser(body)
	for bp.Remaining() >= 4 {
		opt, _ := bp.U8()
		subopt, _ := bp.U8()
		blockLen, err := bp.U16BE()
		if err != nil {
			break
		}
		block, err := bp.Bytes(int(blockLen))
		if err != nil {
			break
		}
		switch {
		case opt == optDevProp && subopt == suboptName:
			report.Station = string(block)
		case opt == optDevProp && subopt == suboptID:
			if len(block) >= 4 {
				report.VendorID = uint16(block[0])<<8 | uint16(block[1])
				report.DeviceID = uint16(block[2])<<8 | uint16(block[3])
			}
		case opt == optIP && subopt == suboptIP:
			if len(block) >= 4 {
				report.IP = net.IPv4(block[0], block[1], block[2], block[3])
			}
		}
	}
	if report.Station == "" {
		return DeviceReport{}, false
	}
	return report, true
}
