// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package pnframe implements the byte-exact, endian-explicit wire codec
// for PROFINET frames: Ethernet II headers, DCE/RPC headers (DREP-aware),
// the NDR sub-header, RT cyclic frames, and sensor/actuator slot payloads.
//
// Nothing here relies on in-memory struct layout matching the wire layout;
// every field is built or parsed one at a time, the way the teacher's
// asdu.ASDU builder/decoder methods do.
package pnframe

import "github.com/wtp/pnioc/internal/pnerr"

// Builder appends fields to a growing byte slice. The zero value is usable.
type Builder struct {
	buf []byte
}

// NewBuilder returns a Builder with capacity hint n.
func NewBuilder(n int) *Builder {
	return &Builder{buf: make([]byte, 0, n)}
}

func (b *Builder) Bytes() []byte { return b.buf }
func (b *Builder) Len() int      { return len(b.buf) }

func (b *Builder) U8(v byte) *Builder {
	b.buf = append(b.buf, v)
	return b
}

// U16BE appends a big-endian u16.
func (b *Builder) U16BE(v uint16) *Builder {
	b.buf = append(b.buf, byte(v>>8), byte(v))
	return b
}

// U16LE appends a little-endian u16.
func (b *Builder) U16LE(v uint16) *Builder {
	b.buf = append(b.buf, byte(v), byte(v>>8))
	return b
}

// U32BE appends a big-endian u32.
func (b *Builder) U32BE(v uint32) *Builder {
	b.buf = append(b.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	return b
}

// U32LE appends a little-endian u32.
func (b *Builder) U32LE(v uint32) *Builder {
	b.buf = append(b.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	return b
}

func (b *Builder) Raw(p []byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

// PadTo zero-pads the buffer up to total length n. A no-op if already >= n.
func (b *Builder) PadTo(n int) *Builder {
	for len(b.buf) < n {
		b.buf = append(b.buf, 0)
	}
	return b
}

// Parser reads fields off a byte slice, advancing an internal cursor.
type Parser struct {
	buf []byte
	pos int
}

func NewParser(buf []byte) *Parser {
	return &Parser{buf: buf}
}

// Remaining returns the number of unconsumed bytes.
func (p *Parser) Remaining() int { return len(p.buf) - p.pos }

// RemainingBytes returns a slice of everything not yet consumed.
func (p *Parser) RemainingBytes() []byte { return p.buf[p.pos:] }

func (p *Parser) need(n int) error {
	if p.Remaining() < n {
		return pnerr.ErrShortBuffer
	}
	return nil
}

func (p *Parser) U8() (byte, error) {
	if err := p.need(1); err != nil {
		return 0, err
	}
	v := p.buf[p.pos]
	p.pos++
	return v, nil
}

func (p *Parser) U16BE() (uint16, error) {
	if err := p.need(2); err != nil {
		return 0, err
	}
	v := uint16(p.buf[p.pos])<<8 | uint16(p.buf[p.pos+1])
	p.pos += 2
	return v, nil
}

func (p *Parser) U16LE() (uint16, error) {
	if err := p.need(2); err != nil {
		return 0, err
	}
	v := uint16(p.buf[p.pos]) | uint16(p.buf[p.pos+1])<<8
	p.pos += 2
	return v, nil
}

func (p *Parser) U32BE() (uint32, error) {
	if err := p.need(4); err != nil {
		return 0, err
	}
	v := uint32(p.buf[p.pos])<<24 | uint32(p.buf[p.pos+1])<<16 | uint32(p.buf[p.pos+2])<<8 | uint32(p.buf[p.pos+3])
	p.pos += 4
	return v, nil
}

func (p *Parser) U32LE() (uint32, error) {
	if err := p.need(4); err != nil {
		return 0, err
	}
	v := uint32(p.buf[p.pos]) | uint32(p.buf[p.pos+1])<<8 | uint32(p.buf[p.pos+2])<<16 | uint32(p.buf[p.pos+3])<<24
	p.pos += 4
	return v, nil
}

// Bytes reads n raw bytes.
func (p *Parser) Bytes(n int) ([]byte, error) {
	if err := p.need(n); err != nil {
		return nil, err
	}
	v := p.buf[p.pos : p.pos+n]
	p.pos += n
	return v, nil
}

// Skip advances the cursor by n bytes without returning them.
func (p *Parser) Skip(n int) error {
	if err := p.need(n); err != nil {
		return err
	}
	p.pos += n
	return nil
}
