// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package registry

import (
	"net"
	"sync"
	"time"

	"github.com/wtp/pnioc/internal/ar"
	"github.com/wtp/pnioc/internal/pnerr"
	"github.com/wtp/pnioc/internal/wlog"
	"github.com/wtp/pnioc/pnframe"
)

type deviceRecord struct {
	Device
}

// Registry is the process image: one exclusive lock guards every mutation
// across every device, so AddDevice/UpdateSensor/SetDeviceState can never
// interleave into an inconsistent view (§4.5 invariant). Event callbacks
// fire only after the lock is released.
type Registry struct {
	mu       sync.RWMutex
	devices  map[string]*deviceRecord
	maxSize  int
	subs     *subscribers
	log      wlog.Log
	nowFunc  func() time.Time
}

// New creates an empty registry. maxSize bounds device count (0 = unbounded).
func New(maxSize int, log wlog.Log) *Registry {
	return &Registry{
		devices: make(map[string]*deviceRecord),
		maxSize: maxSize,
		subs:    newSubscribers(),
		log:     log,
		nowFunc: time.Now,
	}
}

// Subscribe registers a listener for registry events; cancel stops delivery.
func (r *Registry) Subscribe(buf int) (<-chan Event, func()) {
	return r.subs.Subscribe(buf)
}

// AddDevice registers a newly discovered device. It fails with
// ErrAlreadyExists if the station is already registered and with ErrFull at
// the configured capacity; a repeat sighting of a known station should call
// RefreshSighting instead.
func (r *Registry) AddDevice(station string, d Device) error {
	r.mu.Lock()
	if _, existed := r.devices[station]; existed {
		r.mu.Unlock()
		return pnerr.New(pnerr.ErrAlreadyExists, "registry: station "+station+" already registered")
	}
	if r.maxSize > 0 && len(r.devices) >= r.maxSize {
		r.mu.Unlock()
		return pnerr.New(pnerr.ErrFull, "registry: max device count reached")
	}
	d.Station = station
	d.LastSeenUs = r.nowFunc().UnixMicro()
	r.devices[station] = &deviceRecord{Device: d}
	r.mu.Unlock()

	r.subs.publish(Event{Kind: EventDeviceAdded, Station: station})
	return nil
}

// RefreshSighting updates a known device's transport identity (IP, MAC,
// vendor/device ID) and last-seen timestamp after a repeat discovery
// sighting, leaving its AR state, slot config, and sample history
// untouched. Unlike AddDevice it never fails on an existing station; it
// fails with ErrNotFound if the station has never been added.
func (r *Registry) RefreshSighting(station string, ip net.IP, mac pnframe.MAC, vendorID, deviceID uint16) error {
	r.mu.Lock()
	rec, ok := r.devices[station]
	if !ok {
		r.mu.Unlock()
		return pnerr.New(pnerr.ErrNotFound, "registry: unknown station "+station)
	}
	rec.IP = ip
	rec.MAC = mac
	rec.VendorID = vendorID
	rec.DeviceID = deviceID
	rec.LastSeenUs = r.nowFunc().UnixMicro()
	r.mu.Unlock()
	return nil
}

// RemoveDevice deletes a device's record entirely.
func (r *Registry) RemoveDevice(station string) error {
	r.mu.Lock()
	_, ok := r.devices[station]
	if !ok {
		r.mu.Unlock()
		return pnerr.New(pnerr.ErrNotFound, "registry: unknown station "+station)
	}
	delete(r.devices, station)
	r.mu.Unlock()

	r.subs.publish(Event{Kind: EventDeviceRemoved, Station: station})
	return nil
}

// GetDevice returns a snapshot copy of one device's full record, with
// sensor staleness computed against the current time.
func (r *Registry) GetDevice(station string) (Device, error) {
	r.mu.RLock()
	rec, ok := r.devices[station]
	if !ok {
		r.mu.RUnlock()
		return Device{}, pnerr.New(pnerr.ErrNotFound, "registry: unknown station "+station)
	}
	snap := r.snapshotLocked(rec)
	r.mu.RUnlock()
	return snap, nil
}

// ListDevices returns a snapshot of every known device, sorted by
// insertion is not guaranteed — callers that need stable ordering should
// sort by Station.
func (r *Registry) ListDevices() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, rec := range r.devices {
		out = append(out, r.snapshotLocked(rec))
	}
	r.mu.RUnlock()
	return out
}

func (r *Registry) snapshotLocked(rec *deviceRecord) Device {
	now := r.nowFunc().UnixMicro()
	d := rec.Device
	d.Slots = cloneSlots(d.Slots)
	d.Sensors = cloneSensors(d.Sensors)
	d.Actuators = cloneActuators(d.Actuators)
	for i := range d.Sensors {
		age := time.Duration(now-d.Sensors[i].TimestampUs) * time.Microsecond
		d.Sensors[i].Stale = age > StaleThreshold
	}
	return d
}

// SetDeviceState updates a device's AR connection state and publishes a
// StateChanged event when the state actually changed.
func (r *Registry) SetDeviceState(station string, newState ar.State) error {
	r.mu.Lock()
	rec, ok := r.devices[station]
	if !ok {
		r.mu.Unlock()
		return pnerr.New(pnerr.ErrNotFound, "registry: unknown station "+station)
	}
	old := rec.ARState
	rec.ARState = newState
	rec.LastSeenUs = r.nowFunc().UnixMicro()
	r.mu.Unlock()

	if old != newState {
		r.subs.publish(Event{Kind: EventStateChanged, Station: station, OldState: old, NewState: newState})
	}
	return nil
}

// SetDeviceConfig replaces a device's slot layout, e.g. after GSDML-driven
// re-parameterization, and marks it ConfigDirty until persisted.
func (r *Registry) SetDeviceConfig(station string, slots []SlotConfig) error {
	r.mu.Lock()
	rec, ok := r.devices[station]
	if !ok {
		r.mu.Unlock()
		return pnerr.New(pnerr.ErrNotFound, "registry: unknown station "+station)
	}
	rec.Slots = cloneSlots(slots)
	rec.Sensors = make([]SensorSample, countKind(slots, SlotSensor))
	rec.Actuators = make([]ActuatorCommand, countKind(slots, SlotActuator))
	rec.ConfigDirty = true
	r.mu.Unlock()
	return nil
}

func countKind(slots []SlotConfig, k SlotKind) int {
	n := 0
	for _, s := range slots {
		if s.Kind == k {
			n++
		}
	}
	return n
}

// UpdateSensor records a new sensor reading for the sensorOrdinal'th
// (0-based) of the device's sensor slots (§4.4/§4.5: called once per
// received input slot).
func (r *Registry) UpdateSensor(station string, sensorOrdinal int, sample SensorSample) error {
	r.mu.Lock()
	rec, ok := r.devices[station]
	if !ok {
		r.mu.Unlock()
		return pnerr.New(pnerr.ErrNotFound, "registry: unknown station "+station)
	}
	if sensorOrdinal < 0 || sensorOrdinal >= len(rec.Sensors) {
		r.mu.Unlock()
		return pnerr.New(pnerr.ErrInvalidParam, "registry: sensor ordinal out of range")
	}
	rec.Sensors[sensorOrdinal] = sample
	r.mu.Unlock()

	r.subs.publish(Event{Kind: EventSensorUpdated, Station: station, SlotIndex: uint16(sensorOrdinal), Sensor: sample})
	return nil
}

// GetSensor returns a single sensor sample with staleness computed against
// the current time.
func (r *Registry) GetSensor(station string, sensorOrdinal int) (SensorSample, error) {
	r.mu.RLock()
	rec, ok := r.devices[station]
	if !ok {
		r.mu.RUnlock()
		return SensorSample{}, pnerr.New(pnerr.ErrNotFound, "registry: unknown station "+station)
	}
	if sensorOrdinal < 0 || sensorOrdinal >= len(rec.Sensors) {
		r.mu.RUnlock()
		return SensorSample{}, pnerr.New(pnerr.ErrInvalidParam, "registry: sensor ordinal out of range")
	}
	s := rec.Sensors[sensorOrdinal]
	now := r.nowFunc().UnixMicro()
	s.Stale = time.Duration(now-s.TimestampUs)*time.Microsecond > StaleThreshold
	r.mu.RUnlock()
	return s, nil
}

// UpdateActuator records a newly commanded actuator output and publishes an
// ActuatorUpdated event. It only records the command: nothing in the
// registry writes it into the AR's output IOCR buffer, which
// cyclic.Engine.SetSlotOutput fills.
func (r *Registry) UpdateActuator(station string, actuatorOrdinal int, cmd ActuatorCommand) error {
	r.mu.Lock()
	rec, ok := r.devices[station]
	if !ok {
		r.mu.Unlock()
		return pnerr.New(pnerr.ErrNotFound, "registry: unknown station "+station)
	}
	if rec.ARState != ar.StateRunning {
		r.mu.Unlock()
		return pnerr.New(pnerr.ErrNotRunning, "registry: station "+station+" is not RUNNING")
	}
	if actuatorOrdinal < 0 || actuatorOrdinal >= len(rec.Actuators) {
		r.mu.Unlock()
		return pnerr.New(pnerr.ErrInvalidParam, "registry: actuator ordinal out of range")
	}
	cmd.LastChangeMs = r.nowFunc().UnixMilli()
	rec.Actuators[actuatorOrdinal] = cmd
	r.mu.Unlock()

	r.subs.publish(Event{Kind: EventActuatorUpdated, Station: station, SlotIndex: uint16(actuatorOrdinal), Actuator: cmd})
	return nil
}

// GetActuator returns the last commanded actuator output for an ordinal.
func (r *Registry) GetActuator(station string, actuatorOrdinal int) (ActuatorCommand, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.devices[station]
	if !ok {
		return ActuatorCommand{}, pnerr.New(pnerr.ErrNotFound, "registry: unknown station "+station)
	}
	if actuatorOrdinal < 0 || actuatorOrdinal >= len(rec.Actuators) {
		return ActuatorCommand{}, pnerr.New(pnerr.ErrInvalidParam, "registry: actuator ordinal out of range")
	}
	return rec.Actuators[actuatorOrdinal], nil
}

// SaveTopology persists every device's identity and slot layout.
func (r *Registry) SaveTopology(store TopologyStore) error {
	r.mu.Lock()
	entries := make([]TopologyEntry, 0, len(r.devices))
	for station, rec := range r.devices {
		entries = append(entries, TopologyEntry{
			Station:  station,
			IP:       rec.IP,
			VendorID: rec.VendorID,
			DeviceID: rec.DeviceID,
			Slots:    cloneSlots(rec.Slots),
		})
		rec.ConfigDirty = false
	}
	r.mu.Unlock()
	return store.SaveTopology(entries)
}

// LoadTopology restores device identity/slot layout from storage. Devices
// not yet discovered on the wire are added OFFLINE; a device already
// present keeps its live AR state, and keeps its sensor/actuator values
// when the loaded layout has the same sensor and actuator counts.
func (r *Registry) LoadTopology(store TopologyStore) error {
	entries, err := store.LoadTopology()
	if err != nil {
		return err
	}
	r.mu.Lock()
	for _, e := range entries {
		rec, ok := r.devices[e.Station]
		if !ok {
			rec = &deviceRecord{Device: Device{
				Station:  e.Station,
				IP:       e.IP,
				VendorID: e.VendorID,
				DeviceID: e.DeviceID,
				ARState:  ar.StateOffline,
			}}
			r.devices[e.Station] = rec
		}
		rec.Slots = cloneSlots(e.Slots)
		if n := countKind(e.Slots, SlotSensor); !ok || n != len(rec.Sensors) {
			rec.Sensors = make([]SensorSample, n)
		}
		if n := countKind(e.Slots, SlotActuator); !ok || n != len(rec.Actuators) {
			rec.Actuators = make([]ActuatorCommand, n)
		}
	}
	r.mu.Unlock()
	return nil
}

// PublishAlarm lets an external alarm-evaluation component (out of scope
// here per the non-goals) raise a registry-level notification without
// reaching into device internals.
func (r *Registry) PublishAlarm(station string, text string) {
	r.subs.publish(Event{Kind: EventAlarmRaised, Station: station, AlarmText: text})
}
