// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pnframe

import (
	"encoding/hex"
	"fmt"

	"github.com/wtp/pnioc/internal/pnerr"
)

// UUID128 is a 16-byte UUID stored internally in canonical big-endian byte
// order (RFC 4122 network order), regardless of how it is encoded on the
// wire. A dedicated swap step produces the DREP-dependent wire form.
type UUID128 [16]byte

// InterfaceUUIDPNIODevice is the fixed PNIO-Device-Interface UUID,
// DEA00001-6C97-11D1-8271-00A02442DF7D, stored canonical big-endian.
var InterfaceUUIDPNIODevice = MustParseUUID("DEA00001-6C97-11D1-8271-00A02442DF7D")

// MustParseUUID parses a canonical "XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX"
// string into big-endian UUID128 bytes, panicking on malformed input (only
// used for the package-level constant above and tests).
func MustParseUUID(s string) UUID128 {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// ParseUUID parses the canonical textual form into big-endian bytes.
func ParseUUID(s string) (UUID128, error) {
	var u UUID128
	if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return u, pnerr.ErrInvalidField
	}
	hexStr := s[0:8] + s[9:13] + s[14:18] + s[19:23] + s[24:36]
	b, err := hex.DecodeString(hexStr)
	if err != nil || len(b) != 16 {
		return u, pnerr.ErrInvalidField
	}
	copy(u[:], b)
	return u, nil
}

func (u UUID128) String() string {
	return fmt.Sprintf("%08X-%04X-%04X-%04X-%012X",
		u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
}

// WireBytes returns the 16-byte wire encoding of u for the given DREP
// endianness declaration. Per §4.1: when little-endian is declared, the
// time-low, time-mid, and time-hi-and-version fields are byte-swapped;
// clock-seq and node (bytes 8..15) are always transmitted in the same
// (big-endian/network) order regardless of DREP, per RFC 4122 / DCE RPC.
func (u UUID128) WireBytes(littleEndian bool) [16]byte {
	var out [16]byte
	if !littleEndian {
		return [16]byte(u)
	}
	// time_low (u[0:4]) reversed
	out[0], out[1], out[2], out[3] = u[3], u[2], u[1], u[0]
	// time_mid (u[4:6]) reversed
	out[4], out[5] = u[5], u[4]
	// time_hi_and_version (u[6:8]) reversed
	out[6], out[7] = u[7], u[6]
	// clock_seq + node: unchanged
	copy(out[8:], u[8:])
	return out
}

// UUIDFromWire is the inverse of WireBytes: given 16 wire bytes and the
// peer's declared endianness, recover the canonical big-endian UUID128.
func UUIDFromWire(wire [16]byte, littleEndian bool) UUID128 {
	if !littleEndian {
		return UUID128(wire)
	}
	var u UUID128
	u[0], u[1], u[2], u[3] = wire[3], wire[2], wire[1], wire[0]
	u[4], u[5] = wire[5], wire[4]
	u[6], u[7] = wire[7], wire[6]
	copy(u[8:], wire[8:])
	return u
}
