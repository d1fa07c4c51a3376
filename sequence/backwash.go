// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sequence

import "github.com/wtp/pnioc/pnframe"

// BackwashStation is the RTU the reference backwash program addresses.
const BackwashStation = "rtu-4b64"

// Wire slot indices used by the reference backwash program: 9=backwash pump,
// 10=drain valve, 11=inlet valve, sensor 3=turbidity.
const (
	SlotInletValve  = 11
	SlotDrainValve  = 10
	SlotBackwashPump = 9
	SlotTurbidity   = 3
)

// NewBackwashSequence builds the reference filter-backwash program (§4.6,
// §8): close the inlet, open the drain, start the backwash pump, run until
// turbidity clears, then restore normal filtration.
func NewBackwashSequence() *Sequence {
	steps := []Step{
		{Kind: StepSetOutput, Station: BackwashStation, Slot: SlotInletValve, Command: pnframe.ActuatorOff, PWM: 0},
		{Kind: StepWaitTime, DurationMs: 5000},
		{Kind: StepSetOutput, Station: BackwashStation, Slot: SlotDrainValve, Command: pnframe.ActuatorOn, PWM: 0},
		{Kind: StepWaitTime, DurationMs: 2000},
		{Kind: StepSetOutput, Station: BackwashStation, Slot: SlotBackwashPump, Command: pnframe.ActuatorOn, PWM: 0},
		{Kind: StepWaitCondition, CondStation: BackwashStation, CondSlot: SlotTurbidity, Op: CompareBelow, Threshold: 10.0, TimeoutMs: 120000},
		{Kind: StepSetOutput, Station: BackwashStation, Slot: SlotBackwashPump, Command: pnframe.ActuatorOff, PWM: 0},
		{Kind: StepWaitTime, DurationMs: 5000},
		{Kind: StepSetOutput, Station: BackwashStation, Slot: SlotDrainValve, Command: pnframe.ActuatorOff, PWM: 0},
		{Kind: StepWaitTime, DurationMs: 2000},
		{Kind: StepSetOutput, Station: BackwashStation, Slot: SlotInletValve, Command: pnframe.ActuatorOn, PWM: 0},
		{Kind: StepEnd},
	}
	return NewSequence("backwash", "Filter Backwash", steps)
}
