// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pnframe

import "github.com/wtp/pnioc/internal/pnerr"

// RTHeaderLen is the 2-byte FrameID that opens an RT frame's content.
const RTHeaderLen = 2

// RTTrailerLen is the 4-byte trailer (CycleCounter, DataStatus, TransferStatus).
const RTTrailerLen = 4

// RTContentMin is the minimum RT content length (FrameID + payload + IOPS +
// trailer) so that, once prefixed with the 14-byte Ethernet header, the
// whole frame reaches EthMinFrameLen (60 bytes, §4.4, §6). Content shorter
// than this is zero-padded between the IOPS bytes and the trailer — see
// BuildRT.
const RTContentMin = EthMinFrameLen - EthHeaderLen // 46

// Data-status bits (§4.4).
const (
	DataStatusState byte = 1 << 0
	DataStatusValid byte = 1 << 2
	DataStatusRun   byte = 1 << 3
)

// RTTrailer is the 4-byte trailer following RT payload.
type RTTrailer struct {
	CycleCounter   uint16
	DataStatus     byte
	TransferStatus byte
}

// RTFrame is a parsed/to-be-built RT frame's content (everything after the
// Ethernet EtherType field): FrameID + payload + per-slot IOPS + trailer.
// IOPS carries one IOPSStatus byte per slot in Payload's IOCR and may be nil
// for a direction that doesn't report it (§4.4: only IOPS-bearing IOCRs
// carry the section).
type RTFrame struct {
	FrameID uint16
	Payload []byte
	IOPS    []byte
	Trailer RTTrailer
}

// BuildRT encodes an RT frame's content, zero-padding after the IOPS
// section so the total content length reaches RTContentMin when it would
// otherwise be shorter (so the resulting Ethernet frame meets the 60-byte
// minimum).
func BuildRT(f RTFrame) []byte {
	b := NewBuilder(RTContentMin)
	b.U16BE(f.FrameID)
	b.Raw(f.Payload)
	b.Raw(f.IOPS)
	needed := RTContentMin - RTTrailerLen
	for b.Len() < needed {
		b.U8(0)
	}
	b.U16BE(f.Trailer.CycleCounter).U8(f.Trailer.DataStatus).U8(f.Trailer.TransferStatus)
	return b.Bytes()
}

// ParseRT decodes an RT frame's content. payloadLen is the expected
// (unpadded) payload length and iopsLen the expected per-slot IOPS section
// length, both known from the IOCR's configuration. The trailer always
// occupies the last 4 bytes of content; any zero padding inserted by
// BuildRT to reach RTContentMin sits between the IOPS section and the
// trailer and is skipped.
func ParseRT(content []byte, payloadLen, iopsLen int) (RTFrame, error) {
	var f RTFrame
	if len(content) < RTHeaderLen+payloadLen+iopsLen+RTTrailerLen {
		return f, pnerr.ErrShortBuffer
	}
	p := NewParser(content)
	var err error
	if f.FrameID, err = p.U16BE(); err != nil {
		return f, err
	}
	payload, err := p.Bytes(payloadLen)
	if err != nil {
		return f, err
	}
	f.Payload = append([]byte(nil), payload...)

	if iopsLen > 0 {
		iops, err := p.Bytes(iopsLen)
		if err != nil {
			return f, err
		}
		f.IOPS = append([]byte(nil), iops...)
	}

	trailer := content[len(content)-RTTrailerLen:]
	tp := NewParser(trailer)
	cc, _ := tp.U16BE()
	ds, _ := tp.U8()
	ts, _ := tp.U8()
	f.Trailer = RTTrailer{CycleCounter: cc, DataStatus: ds, TransferStatus: ts}
	return f, nil
}
