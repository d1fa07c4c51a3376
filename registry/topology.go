// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package registry

import "net"

// TopologyEntry is the persisted portion of a device record: identity and
// slot layout, not live sensor/actuator values (§4.5, "save/load topology
// to/from persistent storage").
type TopologyEntry struct {
	Station  string
	IP       net.IP
	VendorID uint16
	DeviceID uint16
	Slots    []SlotConfig
}

// TopologyStore is the persistence port the registry saves/loads topology
// through. internal/topostore provides a sqlite-backed implementation;
// tests commonly use an in-memory fake.
type TopologyStore interface {
	SaveTopology(entries []TopologyEntry) error
	LoadTopology() ([]TopologyEntry, error)
}
