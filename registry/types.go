// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package registry implements the RTU registry / process image (spec.md
// C5, §4.5): the canonical in-memory model of every discovered device's
// slot layout, latest sensor/actuator state, and AR state, safely shared
// with HMI/historian/control collaborators through snapshot reads.
package registry

import (
	"net"
	"time"

	"github.com/wtp/pnioc/internal/ar"
	"github.com/wtp/pnioc/pnframe"
)

// StaleThreshold is the default age beyond which a sensor sample is
// considered stale (§3 invariant).
const StaleThreshold = 5 * time.Second

// SlotKind distinguishes sensor and actuator slots (§3).
type SlotKind int

const (
	SlotSensor SlotKind = iota
	SlotActuator
)

// SlotConfig describes one slot/subslot of a device's dynamic layout (§3).
// The controller is dynamic: the RTU dictates slot layout and the
// controller adapts, so this is a plain value type with no fixed count.
type SlotConfig struct {
	SlotIndex       uint16
	Subslot         uint16
	Kind            SlotKind
	TypeName        string // measurement-type for sensors, actuator-type for actuators
	Name            string
	Unit            string
	ScaleMin        float32
	ScaleMax        float32
	WarnLow         float32
	WarnHigh        float32
	AlarmLow        float32
	AlarmHigh       float32
	AlarmLoLo       float32
	AlarmHiHi       float32
	Enabled         bool
}

// IOPS is the IO Provider Status accompanying a sensor sample (§3).
type IOPS int

const (
	IOPSBad IOPS = iota
	IOPSGood
)

// SensorSample is one slot's latest reading (§3). Stale is computed on
// read, never stored — the registry never caches a stale=true reading
// that later silently becomes stale=false on its own (§3 invariant).
type SensorSample struct {
	Value       float32
	Quality     pnframe.Quality
	IOPS        IOPS
	TimestampUs int64 // Unix-epoch wall-clock microseconds, not a monotonic clock
	Stale       bool  // computed by GetSensor/snapshot, not stored
}

// ActuatorCommand is one slot's latest commanded output (§3).
type ActuatorCommand struct {
	Command      pnframe.ActuatorCmd
	PWMDuty      byte
	LastChangeMs int64
}

// Device is a read-only snapshot of one RTU's full record. The registry
// never hands out a live pointer into its internal state (§3): every
// accessor returns a value copy like this one.
type Device struct {
	Station     string
	IP          net.IP
	MAC         pnframe.MAC
	VendorID    uint16
	DeviceID    uint16
	ARState     ar.State
	LastSeenUs  int64
	Slots       []SlotConfig
	Sensors     []SensorSample
	Actuators   []ActuatorCommand
	ConfigDirty bool
}

func cloneSlots(s []SlotConfig) []SlotConfig {
	out := make([]SlotConfig, len(s))
	copy(out, s)
	return out
}

func cloneSensors(s []SensorSample) []SensorSample {
	out := make([]SensorSample, len(s))
	copy(out, s)
	return out
}

func cloneActuators(s []ActuatorCommand) []ActuatorCommand {
	out := make([]ActuatorCommand, len(s))
	copy(out, s)
	return out
}
