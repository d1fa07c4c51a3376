// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pnframe

// NDRHeaderLen is the fixed 20-byte NDR sub-header length preceding PNIO
// blocks in Connect requests (§4.1). Presence is peer-dependent; callers
// decide whether to emit or expect it.
const NDRHeaderLen = 20

// NDRHeader carries the NDR array-of-bytes sub-header fields.
type NDRHeader struct {
	ArgsMaximum uint32
	ArgsLength  uint32
	MaxCount    uint32
	Offset      uint32
	ActualCount uint32
}

// Encode appends the 20-byte header, always big-endian: PNIO block payloads
// (and their preceding NDR sub-header) are big-endian regardless of DREP.
func (h NDRHeader) Encode(b *Builder) {
	b.U32BE(h.ArgsMaximum).U32BE(h.ArgsLength).U32BE(h.MaxCount).U32BE(h.Offset).U32BE(h.ActualCount)
}

// ParseNDRHeader reads the fixed 20-byte header.
func ParseNDRHeader(p *Parser) (NDRHeader, error) {
	var h NDRHeader
	var err error
	if h.ArgsMaximum, err = p.U32BE(); err != nil {
		return h, err
	}
	if h.ArgsLength, err = p.U32BE(); err != nil {
		return h, err
	}
	if h.MaxCount, err = p.U32BE(); err != nil {
		return h, err
	}
	if h.Offset, err = p.U32BE(); err != nil {
		return h, err
	}
	if h.ActualCount, err = p.U32BE(); err != nil {
		return h, err
	}
	return h, nil
}

// PlausibleActualCount reports whether ActualCount is a sane length given
// the bytes remaining after the sub-header — part of the Connect-response
// validation in §4.3 (an empty or garbage body is ConnectRejected).
func (h NDRHeader) PlausibleActualCount(remaining int) bool {
	return h.ActualCount > 0 && int(h.ActualCount) <= remaining
}
