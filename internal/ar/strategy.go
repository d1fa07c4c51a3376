// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package ar

import "time"

// Strategy is one entry in the bounded, ordered set of wire-format variants
// the connection manager walks through on repeated Connect rejection,
// per spec.md §4.3/§9: "keep the concept... represent each strategy as a
// small record of five discrete knobs." The ordering is configuration, not
// hard-coded into the state machine.
type Strategy struct {
	Name             string
	UUIDLittleEndian bool          // UUID encoding knob
	EmitNDR          bool          // NDR sub-header presence knob
	SlotScopeAll     bool          // slot-scope breadth: sensor+actuator slots vs sensor slots only
	ConnectTimeout   time.Duration // timing tuple (connect leg)
	OpNumConnect     byte          // OpNum knob (almost always 0, but configurable)
}

// DefaultStrategies is the default bounded, ordered strategy list. Callers
// may supply their own ordering via Manager's configuration.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "le-ndr-all", UUIDLittleEndian: true, EmitNDR: true, SlotScopeAll: true, ConnectTimeout: 2 * time.Second, OpNumConnect: 0},
		{Name: "le-no-ndr-all", UUIDLittleEndian: true, EmitNDR: false, SlotScopeAll: true, ConnectTimeout: 2 * time.Second, OpNumConnect: 0},
		{Name: "be-ndr-all", UUIDLittleEndian: false, EmitNDR: true, SlotScopeAll: true, ConnectTimeout: 2 * time.Second, OpNumConnect: 0},
		{Name: "le-ndr-narrow", UUIDLittleEndian: true, EmitNDR: true, SlotScopeAll: false, ConnectTimeout: 3 * time.Second, OpNumConnect: 0},
	}
}
