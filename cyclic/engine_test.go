// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package cyclic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtp/pnioc/internal/ar"
	"github.com/wtp/pnioc/internal/pnet"
	"github.com/wtp/pnioc/internal/wlog"
	"github.com/wtp/pnioc/pnframe"
)

type noopTransport struct{}

func (noopTransport) SendConnect(ctx context.Context, addr string, req []byte, timeout time.Duration) ([]byte, error) {
	return nil, nil
}

func runningAR(t *testing.T, mgr *ar.Manager, station string, sensors, actuators int) *ar.AR {
	t.Helper()
	a := ar.New(station, 1, pnframe.UUID128{})
	a.AllocateIOCRs(sensors, actuators)
	a.SetCycleTimeUs(2000)
	a.SetWatchdogMs(50)
	_, _, err := a.SetState(ar.StateDiscovered)
	require.NoError(t, err)
	_, _, err = a.SetState(ar.StateConnecting)
	require.NoError(t, err)
	_, _, err = a.SetState(ar.StateParameterizing)
	require.NoError(t, err)
	_, _, err = a.SetState(ar.StateApplying)
	require.NoError(t, err)
	_, _, err = a.SetState(ar.StateRunning)
	require.NoError(t, err)
	mgr.Register(station, a)
	return a
}

func TestEngineSendsOutputFrameOnTick(t *testing.T) {
	sock := pnet.NewFakePacketSocket([6]byte{0xAA, 1, 2, 3, 4, 5})
	mgr := ar.NewManager(noopTransport{}, wlog.NewDisabled())
	e := NewEngine(sock, mgr, wlog.NewDisabled())
	e.Start()
	defer e.Stop()

	a := runningAR(t, mgr, "rtu-1", 1, 1)
	require.Error(t, e.SetSlotOutput("rtu-1-not-attached", 0, pnframe.ActuatorOn, 0))
	dst := pnframe.MAC{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	e.Attach("rtu-1", a, dst, 1, []bool{true})

	require.Eventually(t, func() bool {
		return len(sock.Sent()) > 0
	}, time.Second, 5*time.Millisecond)

	frame := sock.Sent()[0]
	assert.Equal(t, dst[:], frame[0:6])
	frameID := uint16(frame[14])<<8 | uint16(frame[15])
	assert.Equal(t, a.Output.FrameID, frameID)
	iopsOffset := pnframe.EthHeaderLen + pnframe.RTHeaderLen + pnframe.ActuatorSlotLen
	assert.Equal(t, byte(pnframe.IOPSGood), frame[iopsOffset], "enabled actuator slot must report IOPS GOOD")
}

func TestEngineGetSlotInputIsErrNotFoundBeforeAttach(t *testing.T) {
	sock := pnet.NewFakePacketSocket([6]byte{})
	mgr := ar.NewManager(noopTransport{}, wlog.NewDisabled())
	e := NewEngine(sock, mgr, wlog.NewDisabled())
	_, _, err := e.GetSlotInput("ghost", 0)
	assert.Error(t, err)
}

func TestEngineSetSlotOutputWritesActuatorBytes(t *testing.T) {
	sock := pnet.NewFakePacketSocket([6]byte{})
	mgr := ar.NewManager(noopTransport{}, wlog.NewDisabled())
	e := NewEngine(sock, mgr, wlog.NewDisabled())

	a := runningAR(t, mgr, "rtu-2", 0, 2)
	e.Attach("rtu-2", a, pnframe.MAC{}, 0, []bool{true, true})

	require.NoError(t, e.SetSlotOutput("rtu-2", 1, pnframe.ActuatorOn, 77))
	raw, err := a.Output.ReadAt(4, 4)
	require.NoError(t, err)
	cmd, pwm, err := pnframe.UnpackActuator(raw)
	require.NoError(t, err)
	assert.Equal(t, pnframe.ActuatorOn, cmd)
	assert.Equal(t, byte(77), pwm)
}

func TestWatchdogDisconnectsOnStaleInput(t *testing.T) {
	sock := pnet.NewFakePacketSocket([6]byte{})
	mgr := ar.NewManager(noopTransport{}, wlog.NewDisabled())
	e := NewEngine(sock, mgr, wlog.NewDisabled())
	e.Start()
	defer e.Stop()

	a := runningAR(t, mgr, "rtu-3", 1, 0)
	a.SetWatchdogMs(10)
	a.Input.SetLastFrameTimeUs(time.Now().Add(-time.Second).UnixMicro())
	e.Attach("rtu-3", a, pnframe.MAC{}, 1, nil)

	require.Eventually(t, func() bool {
		return a.State() == ar.StateOffline
	}, 2*time.Second, 10*time.Millisecond, "watchdog must drive a stale RUNNING AR back to OFFLINE")
}
