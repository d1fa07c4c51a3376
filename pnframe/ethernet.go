// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pnframe

import (
	"fmt"

	"github.com/wtp/pnioc/internal/pnerr"
)

const (
	// EtherTypePROFINET is the EtherType for RT and DCP layer-2 traffic.
	EtherTypePROFINET uint16 = 0x8892

	// EthHeaderLen is the fixed 14-byte Ethernet II header length.
	EthHeaderLen = 14

	// EthMinFrameLen is the minimum Ethernet frame length, 14-byte header
	// included and FCS excluded; RT and DCP frames are zero-padded to this.
	EthMinFrameLen = 60

	// DCPMulticastMAC is the layer-2 multicast address for DCP Identify.
	DCPMulticastMAC = "01:0E:CF:00:00:00"
)

// MAC is a 6-byte hardware address.
type MAC [6]byte

func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// EthernetHeader is the 14-byte Ethernet II header.
type EthernetHeader struct {
	Dst       MAC
	Src       MAC
	EtherType uint16
}

// Encode appends the header to b.
func (h EthernetHeader) Encode(b *Builder) {
	b.Raw(h.Dst[:]).Raw(h.Src[:]).U16BE(h.EtherType)
}

// ParseEthernetHeader reads the fixed 14-byte header from p.
func ParseEthernetHeader(p *Parser) (EthernetHeader, error) {
	var h EthernetHeader
	dst, err := p.Bytes(6)
	if err != nil {
		return h, err
	}
	src, err := p.Bytes(6)
	if err != nil {
		return h, err
	}
	et, err := p.U16BE()
	if err != nil {
		return h, err
	}
	copy(h.Dst[:], dst)
	copy(h.Src[:], src)
	h.EtherType = et
	return h, nil
}

// ParseMAC parses "AA:BB:CC:DD:EE:FF" form into a MAC, used for the DCP
// multicast constant and test fixtures.
func ParseMAC(s string) (MAC, error) {
	var m MAC
	if len(s) != 17 {
		return m, pnerr.ErrInvalidField
	}
	for i := 0; i < 6; i++ {
		hi := hexNibble(s[i*3])
		lo := hexNibble(s[i*3+1])
		if hi < 0 || lo < 0 {
			return m, pnerr.ErrInvalidField
		}
		if i < 5 && s[i*3+2] != ':' {
			return m, pnerr.ErrInvalidField
		}
		m[i] = byte(hi<<4 | lo)
	}
	return m, nil
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return -1
	}
}
