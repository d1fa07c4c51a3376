// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package pnet provides the two transports the controller uses: a UDP
// transport for DCE/RPC Connect requests to a device's port 34964, and
// a raw AF_PACKET socket for DCP discovery and RT cyclic frames, which run
// directly on top of Ethernet (EtherType 0x8892) rather than IP.
package pnet

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/wtp/pnioc/internal/pnerr"
)

// RPCPort is the UDP port a PNIO device receives RPC requests on. No socket
// in this package binds it locally.
const RPCPort = 34964

// UDPTransport implements ar.Transport over UDP. It holds no socket of its
// own: each SendConnect dials a fresh socket from an OS-chosen ephemeral
// local port.
type UDPTransport struct {
	localAddr string
}

// NewUDPTransport returns a transport whose per-request sockets bind to
// localAddr with an ephemeral port; it opens no socket itself. localAddr
// may be empty to let the OS choose an interface address.
func NewUDPTransport(localAddr string) *UDPTransport {
	return &UDPTransport{localAddr: localAddr}
}

// SendConnect sends req to addr and waits for a single response datagram or
// the deadline, whichever comes first.
func (t *UDPTransport) SendConnect(ctx context.Context, addr string, req []byte, timeout time.Duration) ([]byte, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	var laddr *net.UDPAddr
	if t.localAddr != "" {
		laddr, err = net.ResolveUDPAddr("udp4", t.localAddr+":0")
		if err != nil {
			return nil, fmt.Errorf("resolve local %s: %w", t.localAddr, err)
		}
	}
	conn, err := net.DialUDP("udp4", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("write connect request: %w", err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, pnerr.ErrConnectTimeout
		}
		return nil, fmt.Errorf("read connect response: %w", err)
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, nil
}
