// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package ar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wtp/pnioc/internal/pnerr"
	"github.com/wtp/pnioc/internal/wlog"
	"github.com/wtp/pnioc/pnframe"
)

// fakeTransport echoes back a synthetic ARBlockRes so Connect succeeds,
// or returns an empty body to simulate ConnectRejected.
type fakeTransport struct {
	reject bool
}

func (f *fakeTransport) SendConnect(ctx context.Context, addr string, req []byte, timeout time.Duration) ([]byte, error) {
	if f.reject {
		hdr := pnframe.RPCHeader{DREP: pnframe.DREPLittleEndian, PacketType: pnframe.PacketTypeResponse, FragmentLength: 1}
		b := pnframe.NewBuilder(pnframe.RPCHeaderLen + 1)
		hdr.Encode(b)
		b.U8(0)
		return b.Bytes(), nil
	}
	resBody := pnframe.NewBuilder(16)
	appendBlock(resBody, BlockARRes, []byte{0, 0})
	hdr := pnframe.RPCHeader{DREP: pnframe.DREPLittleEndian, PacketType: pnframe.PacketTypeResponse, FragmentLength: uint16(resBody.Len())}
	out := pnframe.NewBuilder(pnframe.RPCHeaderLen + resBody.Len())
	hdr.Encode(out)
	out.Raw(resBody.Bytes())
	return out.Bytes(), nil
}

func testPlan() SlotPlan {
	return SlotPlan{
		SensorSlots:   []uint16{1, 2, 3, 4, 5, 6, 7, 8},
		ActuatorSlots: []uint16{9, 10, 11, 12, 13, 14, 15},
	}
}

func TestConnectHappyPath(t *testing.T) {
	m := NewManager(&fakeTransport{}, wlog.NewDisabled())
	var events []StateChangeEvent
	m.OnStateChange(func(ev StateChangeEvent) { events = append(events, ev) })

	a, err := m.Connect(context.Background(), Device{Station: "rtu-4b64", Addr: "192.168.6.21:34964", Plan: testPlan()})
	require.NoError(t, err)
	require.Equal(t, StateRunning, a.State())
	require.Equal(t, uint16(1), a.SessionKey)
	require.Equal(t, RTC1Base+2, a.Input.FrameID)
	require.Equal(t, 40, a.Input.DataLength())
	require.Equal(t, 28, a.Output.DataLength())

	require.Equal(t, []State{StateDiscovered, StateConnecting, StateParameterizing, StateApplying, StateRunning}, stateSeq(events))
}

func TestConnectRejectedExhaustsToError(t *testing.T) {
	m := NewManager(&fakeTransport{reject: true}, wlog.NewDisabled())
	m.SetConnectDeadline(50 * time.Millisecond)
	m.SetStrategies([]Strategy{{Name: "only", ConnectTimeout: 5 * time.Millisecond}})

	a, err := m.Connect(context.Background(), Device{Station: "rtu-x", Addr: "10.0.0.1:34964", Plan: testPlan()})
	require.Error(t, err)
	require.Equal(t, StateError, a.State())
}

func TestDisconnectReturnsToOffline(t *testing.T) {
	m := NewManager(&fakeTransport{}, wlog.NewDisabled())
	_, err := m.Connect(context.Background(), Device{Station: "rtu-d", Addr: "10.0.0.2:34964", Plan: testPlan()})
	require.NoError(t, err)

	require.NoError(t, m.Disconnect("rtu-d"))
	a, _ := m.Get("rtu-d")
	require.Equal(t, StateOffline, a.State())
}

// blockingTransport holds SendConnect open until release is closed, so a
// test can observe a Connect attempt mid-flight.
type blockingTransport struct {
	release chan struct{}
}

func (f *blockingTransport) SendConnect(ctx context.Context, addr string, req []byte, timeout time.Duration) ([]byte, error) {
	<-f.release
	return (&fakeTransport{}).SendConnect(ctx, addr, req, timeout)
}

func TestConnectRejectsConcurrentAttemptForSameStation(t *testing.T) {
	transport := &blockingTransport{release: make(chan struct{})}
	m := NewManager(transport, wlog.NewDisabled())

	done := make(chan error, 1)
	go func() {
		_, err := m.Connect(context.Background(), Device{Station: "rtu-race", Addr: "10.0.0.3:34964", Plan: testPlan()})
		done <- err
	}()

	require.Eventually(t, func() bool {
		_, err := m.Connect(context.Background(), Device{Station: "rtu-race", Addr: "10.0.0.3:34964", Plan: testPlan()})
		return err == pnerr.ErrConnectInProgress
	}, time.Second, time.Millisecond, "a second concurrent Connect for the same station must fail with ErrConnectInProgress")

	close(transport.release)
	require.NoError(t, <-done)
}

func stateSeq(events []StateChangeEvent) []State {
	var out []State
	for _, e := range events {
		out = append(out, e.New)
	}
	return out
}
