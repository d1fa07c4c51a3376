// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pnframe

import "github.com/wtp/pnioc/internal/pnerr"

// RPCHeaderLen is the fixed DCE/RPC-over-UDP header length (§4.1, §6.5).
const RPCHeaderLen = 80

// Packet types (a small subset relevant to PNIO Connect/Write/Read/Control).
const (
	PacketTypeRequest  byte = 0
	PacketTypeResponse byte = 2
)

// OpNum values for the four PNIO RPC operations the controller issues.
const (
	OpNumConnect byte = 0
	OpNumWrite   byte = 1
	OpNumRead    byte = 2
	OpNumControl byte = 3
)

// DREP bit 4 (0x10) declares little-endian integer encoding in this and all
// subsequent multi-byte header fields, per §4.1.
const (
	DREPBigEndian    byte = 0x00
	DREPLittleEndian byte = 0x10
)

// RPCHeader is the 80-byte DCE/RPC-over-UDP header.
type RPCHeader struct {
	Version         byte
	PacketType      byte
	Flags1          byte
	Flags2          byte
	DREP            byte // bit 4 set => little-endian integers (and UUID time fields)
	ObjectUUID      UUID128
	InterfaceUUID   UUID128
	ActivityUUID    UUID128
	ServerBootTime  uint32
	InterfaceVer    uint32
	SequenceNum     uint32
	OpNum           uint16
	InterfaceHint   uint16
	ActivityHint    uint16
	FragmentLength  uint16
	FragmentNumber  uint16
	AuthProto       byte
	SerialLow       byte
}

func (h RPCHeader) littleEndian() bool { return h.DREP&0x10 != 0 }

// Encode appends the 80-byte header to b, encoding multi-byte integers and
// UUID time fields per the declared DREP (§4.1's endianness contract). PNIO
// block payloads that follow are always big-endian regardless of DREP; this
// method only covers the RPC header itself.
func (h RPCHeader) Encode(b *Builder) {
	le := h.littleEndian()
	b.U8(h.Version).U8(h.PacketType).U8(h.Flags1).U8(h.Flags2)
	b.U8(h.DREP).U8(0).U8(0).U8(0) // drep[4]: declared byte + 3 reserved

	objWire := h.ObjectUUID.WireBytes(le)
	ifWire := h.InterfaceUUID.WireBytes(le)
	actWire := h.ActivityUUID.WireBytes(le)
	b.Raw(objWire[:]).Raw(ifWire[:]).Raw(actWire[:])

	if le {
		b.U32LE(h.ServerBootTime).U32LE(h.InterfaceVer).U32LE(h.SequenceNum)
		b.U16LE(h.OpNum).U16LE(h.InterfaceHint).U16LE(h.ActivityHint)
		b.U16LE(h.FragmentLength).U16LE(h.FragmentNumber)
	} else {
		b.U32BE(h.ServerBootTime).U32BE(h.InterfaceVer).U32BE(h.SequenceNum)
		b.U16BE(h.OpNum).U16BE(h.InterfaceHint).U16BE(h.ActivityHint)
		b.U16BE(h.FragmentLength).U16BE(h.FragmentNumber)
	}
	b.U8(h.AuthProto).U8(h.SerialLow)
}

// ParseRPCHeader reads the fixed 80-byte header, decoding integers and UUID
// time fields per the peer's declared DREP.
//
// Some IO-Device stacks declare DREP=big-endian but actually encode little-
// endian integers (§4.1, §9 open question). As a best-effort fallback, if
// the declared encoding yields an implausible FragmentLength (greater than
// the remaining buffer, when the buffer length is known via p), the opposite
// endianness is tried. This heuristic only ever engages when the declared
// reading is implausible; a well-formed peer is never second-guessed.
func ParseRPCHeader(p *Parser) (RPCHeader, error) {
	start := p.pos
	raw, err := p.Bytes(RPCHeaderLen)
	if err != nil {
		p.pos = start
		return RPCHeader{}, err
	}
	declaredLE := raw[4]&0x10 != 0
	h, decodeErr := decodeRPCHeader(raw, declaredLE)
	if decodeErr != nil {
		return h, decodeErr
	}
	if int(h.FragmentLength) > p.Remaining() {
		// Implausible under the declared encoding (observed in the field on
		// peers that declare DREP=BE but encode LE): retry with the opposite.
		if alt, altErr := decodeRPCHeader(raw, !declaredLE); altErr == nil && int(alt.FragmentLength) <= p.Remaining() {
			return alt, nil
		}
	}
	return h, nil
}

func decodeRPCHeader(raw []byte, littleEndian bool) (RPCHeader, error) {
	var h RPCHeader
	if len(raw) != RPCHeaderLen {
		return h, pnerr.ErrShortBuffer
	}
	h.Version = raw[0]
	h.PacketType = raw[1]
	h.Flags1 = raw[2]
	h.Flags2 = raw[3]
	h.DREP = raw[4]

	var objWire, ifWire, actWire [16]byte
	copy(objWire[:], raw[8:24])
	copy(ifWire[:], raw[24:40])
	copy(actWire[:], raw[40:56])
	h.ObjectUUID = UUIDFromWire(objWire, littleEndian)
	h.InterfaceUUID = UUIDFromWire(ifWire, littleEndian)
	h.ActivityUUID = UUIDFromWire(actWire, littleEndian)

	get32 := be32
	get16 := be16
	if littleEndian {
		get32 = le32
		get16 = le16
	}
	h.ServerBootTime = get32(raw[56:60])
	h.InterfaceVer = get32(raw[60:64])
	h.SequenceNum = get32(raw[64:68])
	h.OpNum = get16(raw[68:70])
	h.InterfaceHint = get16(raw[70:72])
	h.ActivityHint = get16(raw[72:74])
	h.FragmentLength = get16(raw[74:76])
	h.FragmentNumber = get16(raw[76:78])
	h.AuthProto = raw[78]
	h.SerialLow = raw[79]
	return h, nil
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
