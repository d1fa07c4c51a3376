// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

//go:build !linux

package pnet

import (
	"fmt"

	"github.com/wtp/pnioc/internal/pnerr"
)

// OpenPacketSocket is unavailable off Linux: AF_PACKET is Linux-specific.
// Discovery and cyclic exchange require it; other components (registry,
// sequence engine, codec) have no platform dependency.
func OpenPacketSocket(ifaceName string, etherType uint16) (PacketSocket, error) {
	return nil, fmt.Errorf("%w: raw packet sockets require linux", pnerr.ErrInterfaceUnavailable)
}
