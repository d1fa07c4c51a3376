// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package registry

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtp/pnioc/internal/ar"
	"github.com/wtp/pnioc/internal/pnerr"
	"github.com/wtp/pnioc/internal/wlog"
	"github.com/wtp/pnioc/pnframe"
)

func newTestRegistry() *Registry {
	return New(0, wlog.NewDisabled())
}

func slotPlan() []SlotConfig {
	return []SlotConfig{
		{SlotIndex: 1, Kind: SlotSensor, TypeName: "flow", Name: "inlet-flow"},
		{SlotIndex: 2, Kind: SlotSensor, TypeName: "ph", Name: "inlet-ph"},
		{SlotIndex: 3, Kind: SlotActuator, TypeName: "valve", Name: "inlet-valve"},
	}
}

func TestAddAndGetDevice(t *testing.T) {
	r := newTestRegistry()
	err := r.AddDevice("rtu-1", Device{ARState: ar.StateOffline})
	require.NoError(t, err)
	r.SetDeviceConfig("rtu-1", slotPlan())

	d, err := r.GetDevice("rtu-1")
	require.NoError(t, err)
	assert.Equal(t, "rtu-1", d.Station)
	assert.Len(t, d.Sensors, 2)
	assert.Len(t, d.Actuators, 1)
}

func TestAddDeviceDuplicateStationAlreadyExists(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddDevice("rtu-1", Device{ARState: ar.StateOffline}))

	err := r.AddDevice("rtu-1", Device{ARState: ar.StateOffline})
	assert.ErrorIs(t, err, pnerr.ErrAlreadyExists)
}

func TestRefreshSightingUpdatesIdentityWithoutDuplicating(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddDevice("rtu-1", Device{VendorID: 0x0493, DeviceID: 0x0001}))
	require.NoError(t, r.SetDeviceState("rtu-1", ar.StateRunning))

	require.NoError(t, r.RefreshSighting("rtu-1", net.IPv4(192, 168, 6, 21), pnframe.MAC{0xAA, 0xBB, 0xCC, 0, 0, 1}, 0x0493, 0x0002))

	d, err := r.GetDevice("rtu-1")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0002), d.DeviceID)
	assert.Equal(t, ar.StateRunning, d.ARState, "refreshing a sighting must not disturb AR state")
}

func TestRefreshSightingUnknownStationNotFound(t *testing.T) {
	r := newTestRegistry()
	err := r.RefreshSighting("ghost", nil, pnframe.MAC{}, 0, 0)
	assert.ErrorIs(t, err, pnerr.ErrNotFound)
}

func TestGetDeviceUnknownStationNotFound(t *testing.T) {
	r := newTestRegistry()
	_, err := r.GetDevice("ghost")
	assert.ErrorIs(t, err, pnerr.ErrNotFound)
}

func TestUpdateSensorComputesStaleness(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddDevice("rtu-1", Device{}))
	require.NoError(t, r.SetDeviceConfig("rtu-1", slotPlan()))

	now := time.Now()
	r.nowFunc = func() time.Time { return now }
	require.NoError(t, r.UpdateSensor("rtu-1", 0, SensorSample{
		Value: 12.5, Quality: pnframe.QualityGood, IOPS: IOPSGood, TimestampUs: now.UnixMicro(),
	}))

	s, err := r.GetSensor("rtu-1", 0)
	require.NoError(t, err)
	assert.False(t, s.Stale)

	r.nowFunc = func() time.Time { return now.Add(10 * time.Second) }
	s, err = r.GetSensor("rtu-1", 0)
	require.NoError(t, err)
	assert.True(t, s.Stale, "sample older than StaleThreshold must read stale")
}

func TestUpdateActuatorRequiresRunning(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddDevice("rtu-1", Device{ARState: ar.StateOffline}))
	require.NoError(t, r.SetDeviceConfig("rtu-1", slotPlan()))

	err := r.UpdateActuator("rtu-1", 0, ActuatorCommand{Command: pnframe.ActuatorOn})
	assert.Error(t, err, "commanding an actuator while OFFLINE must be rejected")

	require.NoError(t, r.SetDeviceState("rtu-1", ar.StateRunning))
	err = r.UpdateActuator("rtu-1", 0, ActuatorCommand{Command: pnframe.ActuatorOn})
	assert.NoError(t, err)
}

func TestSubscribeReceivesStateChangeAfterUnlock(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddDevice("rtu-1", Device{ARState: ar.StateOffline}))

	ch, cancel := r.Subscribe(4)
	defer cancel()

	require.NoError(t, r.SetDeviceState("rtu-1", ar.StateDiscovered))

	select {
	case ev := <-ch:
		assert.Equal(t, EventStateChanged, ev.Kind)
		assert.Equal(t, ar.StateOffline, ev.OldState)
		assert.Equal(t, ar.StateDiscovered, ev.NewState)
	case <-time.After(time.Second):
		t.Fatal("expected state-change event")
	}
}

func TestSaveAndLoadTopologyRoundTrip(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddDevice("rtu-1", Device{}))
	require.NoError(t, r.SetDeviceConfig("rtu-1", slotPlan()))

	store := newFakeTopologyStore()
	require.NoError(t, r.SaveTopology(store))

	r2 := newTestRegistry()
	require.NoError(t, r2.LoadTopology(store))

	d, err := r2.GetDevice("rtu-1")
	require.NoError(t, err)
	assert.Equal(t, ar.StateOffline, d.ARState, "a loaded-but-undiscovered device starts OFFLINE")
	assert.Len(t, d.Slots, 3)
}

type fakeTopologyStore struct {
	entries []TopologyEntry
}

func newFakeTopologyStore() *fakeTopologyStore { return &fakeTopologyStore{} }

func (f *fakeTopologyStore) SaveTopology(entries []TopologyEntry) error {
	f.entries = entries
	return nil
}

func (f *fakeTopologyStore) LoadTopology() ([]TopologyEntry, error) {
	return f.entries, nil
}
