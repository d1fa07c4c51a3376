// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package ar

import (
	"sync"

	"github.com/wtp/pnioc/internal/pnerr"
	"github.com/wtp/pnioc/pnframe"
)

// IOCRKind distinguishes the two unidirectional channels of an AR.
type IOCRKind int

const (
	IOCRInput IOCRKind = iota
	IOCROutput
)

// RTC1Base is the base frame-id for RTC1-class cyclic channels; input and
// output frame-ids are derived from the session key per §3.
const RTC1Base uint16 = 0xC000

// IOCR is one IO Communication Relationship: a single unidirectional cyclic
// data channel within an AR. The data buffer is owned by the IOCR; it is
// never reallocated while readers may be observing it (§3 invariant) —
// mutation always writes in place.
type IOCR struct {
	Kind           IOCRKind
	FrameID        uint16
	data           []byte
	lastFrameTimeUs int64
	mu             sync.Mutex
}

// NewIOCR allocates a data buffer of the given length, zero-filled.
func NewIOCR(kind IOCRKind, frameID uint16, dataLen int) *IOCR {
	return &IOCR{Kind: kind, FrameID: frameID, data: make([]byte, dataLen)}
}

// DataLength returns the fixed buffer length.
func (c *IOCR) DataLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// CopyOut returns a copy of the current buffer contents.
func (c *IOCR) CopyOut() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out
}

// WriteAt writes p into the buffer starting at offset, in place. Returns
// pnerr.ErrInvalidParam if the write would run past the buffer.
func (c *IOCR) WriteAt(offset int, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset < 0 || offset+len(p) > len(c.data) {
		return pnerr.ErrInvalidParam
	}
	copy(c.data[offset:], p)
	return nil
}

// ReadAt reads n bytes from the buffer starting at offset.
func (c *IOCR) ReadAt(offset, n int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset < 0 || n < 0 || offset+n > len(c.data) {
		return nil, pnerr.ErrInvalidParam
	}
	out := make([]byte, n)
	copy(out, c.data[offset:offset+n])
	return out, nil
}

// ReplaceAll overwrites the entire buffer; len(p) must equal the buffer's
// configured length (the invariant in spec.md §3: length is fixed for the
// lifetime of the IOCR).
func (c *IOCR) ReplaceAll(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(p) != len(c.data) {
		return pnerr.ErrInvalidParam
	}
	copy(c.data, p)
	return nil
}

func (c *IOCR) LastFrameTimeUs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFrameTimeUs
}

func (c *IOCR) SetLastFrameTimeUs(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFrameTimeUs = t
}

// AR is the Application Relationship for one device (§3, §4.3).
type AR struct {
	mu sync.Mutex

	Station      string
	SessionKey   uint16
	ARUUID       pnframe.UUID128
	Input        *IOCR
	Output       *IOCR
	state        State
	cycleCounter uint16
	lastFrameUs  int64
	watchdogMs   int64
	cycleTimeUs  int64
}

func New(station string, sessionKey uint16, arUUID pnframe.UUID128) *AR {
	return &AR{Station: station, SessionKey: sessionKey, ARUUID: arUUID, state: StateOffline}
}

func (a *AR) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetState performs a validated transition, returning the event to fire iff
// the state actually changed (mirrors registry's set_device_state contract).
func (a *AR) SetState(to State) (StateChangeEvent, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	from := a.state
	if from == to {
		return StateChangeEvent{}, false, nil
	}
	if err := Transition(from, to); err != nil {
		return StateChangeEvent{}, false, err
	}
	a.state = to
	// Reset cyclic counters on the RUNNING->...->OFFLINE->RUNNING lifecycle
	// boundary: cycle-counter resets to 0 on reconnect (§3 invariant).
	if to == StateOffline {
		a.cycleCounter = 0
	}
	return StateChangeEvent{Station: a.Station, Old: from, New: to}, true, nil
}

// NextCycleCounter increments and returns the new cycle counter, wrapping
// modulo 2^16 (§3 invariant).
func (a *AR) NextCycleCounter() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cycleCounter++
	return a.cycleCounter
}

func (a *AR) CycleTimeUs() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cycleTimeUs
}

func (a *AR) SetCycleTimeUs(us int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cycleTimeUs = us
}

func (a *AR) WatchdogMs() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.watchdogMs
}

func (a *AR) SetWatchdogMs(ms int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.watchdogMs = ms
}

// AllocateIOCRs sizes the input/output buffers per the slot plan (§4.3):
// input_bytes = nSensorSlots*5, output_bytes = nActuatorSlots*4. Frame-ids
// are derived from the session key (§3): input = RTC1Base+2*sessionKey,
// output = input+1.
func (a *AR) AllocateIOCRs(nSensorSlots, nActuatorSlots int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	inputFrameID := RTC1Base + 2*a.SessionKey
	outputFrameID := inputFrameID + 1
	a.Input = NewIOCR(IOCRInput, inputFrameID, nSensorSlots*pnframe.SensorSlotLen)
	a.Output = NewIOCR(IOCROutput, outputFrameID, nActuatorSlots*pnframe.ActuatorSlotLen)
}
