package main

import (
	"github.com/wtp/pnioc/internal/ar"
	"github.com/wtp/pnioc/registry"
	"github.com/wtp/pnioc/sequence"
)

// deviceProfile is the slot layout the daemon assumes for a known vendor/
// device ID pair, since DCP Identify-Response carries no slot information
// of its own (the real expected-submodule read this would come from is out
// of scope, spec.md §1) — RefreshInventory is the hook a future revision
// would use to replace this static table with a live read.
type deviceProfile struct {
	vendorID, deviceID uint16
	plan               ar.SlotPlan
	slots              []registry.SlotConfig
	actuatorEnabled    []bool
}

// backwashProfile is the rtu-4b64 filter skid from the worked example
// (spec.md §8): 8 sensor slots (1..8, turbidity at 3) followed by 7
// actuator slots (9..15, backwash pump/drain valve/inlet valve among them).
var backwashProfile = deviceProfile{
	vendorID: 0x0493,
	deviceID: 0x0001,
	plan: ar.SlotPlan{
		SensorSlots:   []uint16{1, 2, 3, 4, 5, 6, 7, 8},
		ActuatorSlots: []uint16{9, 10, 11, 12, 13, 14, 15},
	},
	slots: []registry.SlotConfig{
		{SlotIndex: 1, Kind: registry.SlotSensor, TypeName: "flow", Name: "inlet-flow", Enabled: true},
		{SlotIndex: 2, Kind: registry.SlotSensor, TypeName: "pressure", Name: "inlet-pressure", Enabled: true},
		{SlotIndex: sequence.SlotTurbidity, Kind: registry.SlotSensor, TypeName: "turbidity", Name: "filtrate-turbidity", Enabled: true},
		{SlotIndex: 4, Kind: registry.SlotSensor, TypeName: "ph", Name: "filtrate-ph", Enabled: true},
		{SlotIndex: 5, Kind: registry.SlotSensor, TypeName: "flow", Name: "filtrate-flow", Enabled: true},
		{SlotIndex: 6, Kind: registry.SlotSensor, TypeName: "level", Name: "backwash-tank-level", Enabled: true},
		{SlotIndex: 7, Kind: registry.SlotSensor, TypeName: "pressure", Name: "backwash-pressure", Enabled: true},
		{SlotIndex: 8, Kind: registry.SlotSensor, TypeName: "temperature", Name: "process-temperature", Enabled: true},
		{SlotIndex: sequence.SlotBackwashPump, Kind: registry.SlotActuator, TypeName: "pump", Name: "backwash-pump", Enabled: true},
		{SlotIndex: sequence.SlotDrainValve, Kind: registry.SlotActuator, TypeName: "valve", Name: "drain-valve", Enabled: true},
		{SlotIndex: sequence.SlotInletValve, Kind: registry.SlotActuator, TypeName: "valve", Name: "inlet-valve", Enabled: true},
		{SlotIndex: 12, Kind: registry.SlotActuator, TypeName: "valve", Name: "outlet-valve", Enabled: true},
		{SlotIndex: 13, Kind: registry.SlotActuator, TypeName: "valve", Name: "aux-valve-1", Enabled: true},
		{SlotIndex: 14, Kind: registry.SlotActuator, TypeName: "valve", Name: "aux-valve-2", Enabled: true},
		{SlotIndex: 15, Kind: registry.SlotActuator, TypeName: "pump", Name: "aux-pump", Enabled: true},
	},
	actuatorEnabled: []bool{true, true, true, true, true, true, true},
}

var knownProfiles = []deviceProfile{backwashProfile}

func lookupProfile(vendorID, deviceID uint16) (deviceProfile, bool) {
	for _, p := range knownProfiles {
		if p.vendorID == vendorID && p.deviceID == deviceID {
			return p, true
		}
	}
	return deviceProfile{}, false
}
