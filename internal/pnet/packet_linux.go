// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

//go:build linux

package pnet

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wtp/pnioc/internal/pnerr"
)

// htons converts a host-order u16 to network order, the way every AF_PACKET
// caller must before passing an EtherType into bind()'s sockaddr_ll.
func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}

// linuxPacketSocket is the Linux AF_PACKET implementation of PacketSocket,
// bound to a single interface and filtered to a single EtherType at bind
// time (SOCK_RAW + sockaddr_ll.Protocol), the standard approach for
// non-IP layer-2 protocols such as PROFINET's DCP and RT traffic.
type linuxPacketSocket struct {
	fd        int
	ifIndex   int
	ifaceMAC  [6]byte
	etherType uint16
}

// OpenPacketSocket binds an AF_PACKET/SOCK_RAW socket on ifaceName filtered
// to etherType (0x8892 for PROFINET RT/DCP).
func OpenPacketSocket(ifaceName string, etherType uint16) (PacketSocket, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pnerr.ErrInterfaceUnavailable, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(etherType)))
	if err != nil {
		return nil, fmt.Errorf("%w: socket: %v", pnerr.ErrInterfaceUnavailable, err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(etherType),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: bind %s: %v", pnerr.ErrInterfaceUnavailable, ifaceName, err)
	}

	var mac [6]byte
	copy(mac[:], iface.HardwareAddr)

	return &linuxPacketSocket{fd: fd, ifIndex: iface.Index, ifaceMAC: mac, etherType: etherType}, nil
}

func (s *linuxPacketSocket) Send(frame []byte) error {
	addr := unix.SockaddrLinklayer{
		Protocol: htons(s.etherType),
		Ifindex:  s.ifIndex,
		Halen:    6,
	}
	if len(frame) >= 6 {
		copy(addr.Addr[:6], frame[0:6])
	}
	return unix.Sendto(s.fd, frame, 0, &addr)
}

func (s *linuxPacketSocket) Recv(buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(s.fd, buf, 0)
	return n, err
}

func (s *linuxPacketSocket) Close() error {
	return unix.Close(s.fd)
}

func (s *linuxPacketSocket) InterfaceMAC() [6]byte {
	return s.ifaceMAC
}

// SetRecvDeadline applies an SO_RCVTIMEO so Recv respects discovery/watchdog
// deadlines (§5: suspension points in socket recv).
func (s *linuxPacketSocket) SetRecvDeadline(t time.Time) error {
	d := time.Until(t)
	if d < time.Microsecond {
		// A zero SO_RCVTIMEO blocks forever; the smallest non-zero timeout
		// makes an elapsed deadline time out at once.
		d = time.Microsecond
	}
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}
