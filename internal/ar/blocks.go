// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package ar

import (
	"github.com/wtp/pnioc/internal/pnerr"
	"github.com/wtp/pnioc/pnframe"
)

// PNIO block types used by the Connect request/response (§4.3). The
// spec defers exhaustive block-by-block layout to IEC 61158-6; these cover
// only the envelope fields this controller inspects or must emit.
const (
	BlockARReq      uint16 = 0x0101
	BlockARRes      uint16 = 0x8101
	BlockIOCRReq    uint16 = 0x0102
	BlockIOCRRes    uint16 = 0x8102
	BlockAlarmCRReq uint16 = 0x0103
	BlockAlarmCRRes uint16 = 0x8103
	BlockExpSubmod  uint16 = 0x0104
)

// blockHeaderLen is BlockType(2) + BlockLength(2) + VersionHigh(1) + VersionLow(1).
const blockHeaderLen = 6

// appendBlock writes a PNIO block: type, length-of-(version+body), version
// 1.0, then body. PNIO blocks are always big-endian regardless of DREP
// (§4.1).
func appendBlock(b *pnframe.Builder, blockType uint16, body []byte) {
	b.U16BE(blockType)
	b.U16BE(uint16(len(body) + 2))
	b.U8(1).U8(0)
	b.Raw(body)
}

// parsedBlock is one decoded block.
type parsedBlock struct {
	Type uint16
	Body []byte
}

// parseBlocks walks a sequence of PNIO blocks until the buffer is exhausted.
func parseBlocks(p *pnframe.Parser) ([]parsedBlock, error) {
	var out []parsedBlock
	for p.Remaining() >= blockHeaderLen {
		blockType, err := p.U16BE()
		if err != nil {
			return out, err
		}
		blockLen, err := p.U16BE()
		if err != nil {
			return out, err
		}
		if _, err := p.U8(); err != nil {
			return out, err
		}
		if _, err := p.U8(); err != nil {
			return out, err
		}
		if blockLen < 2 {
			return out, pnerr.ErrInvalidField
		}
		bodyLen := int(blockLen) - 2
		body, err := p.Bytes(bodyLen)
		if err != nil {
			return out, err
		}
		out = append(out, parsedBlock{Type: blockType, Body: append([]byte(nil), body...)})
	}
	return out, nil
}

func findBlock(blocks []parsedBlock, t uint16) (parsedBlock, bool) {
	for _, b := range blocks {
		if b.Type == t {
			return b, true
		}
	}
	return parsedBlock{}, false
}
