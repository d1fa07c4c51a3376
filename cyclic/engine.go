// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package cyclic implements the cyclic RT data exchange engine (spec.md
// C4, §4.4): per-AR output ticking, input frame consumption, watchdog
// supervision, and O(1) slot accessors over each AR's IOCR buffers.
package cyclic

import (
	"sync"
	"time"

	"github.com/wtp/pnioc/internal/ar"
	"github.com/wtp/pnioc/internal/pnerr"
	"github.com/wtp/pnioc/internal/pnet"
	"github.com/wtp/pnioc/internal/wlog"
	"github.com/wtp/pnioc/pnframe"
)

// trackedAR is everything the engine needs to drive one AR's cyclic
// traffic: the AR itself, its peer's layer-2 address, and the slot counts
// needed to translate byte offsets into ordinals for registry updates.
type trackedAR struct {
	ar              *ar.AR
	dstMAC          pnframe.MAC
	sensorSlots     int
	actuatorEnabled []bool
	stop            chan struct{}
}

// Engine drives cyclic RT traffic for every AR attached to it, over one
// shared layer-2 socket.
type Engine struct {
	sock pnet.PacketSocket
	mgr  *ar.Manager
	log  wlog.Log

	onInput func(station string, sensorOrdinal int, value float32, quality pnframe.Quality, iops byte)

	mu         sync.Mutex
	byStation  map[string]*trackedAR
	byFrameID  map[uint16]*trackedAR
	wg         sync.WaitGroup
	recvStop   chan struct{}
	watchStop  chan struct{}
	started    bool
}

// NewEngine constructs an Engine bound to sock for layer-2 I/O and mgr for
// watchdog-triggered disconnects.
func NewEngine(sock pnet.PacketSocket, mgr *ar.Manager, log wlog.Log) *Engine {
	return &Engine{
		sock:      sock,
		mgr:       mgr,
		log:       log,
		byStation: make(map[string]*trackedAR),
		byFrameID: make(map[uint16]*trackedAR),
	}
}

// OnInput registers a callback invoked for every successfully parsed input
// slot — the production wiring forwards this into registry.UpdateSensor.
func (e *Engine) OnInput(f func(station string, sensorOrdinal int, value float32, quality pnframe.Quality, iops byte)) {
	e.onInput = f
}

// Start launches the shared receive loop and the watchdog supervisor. Safe
// to call once.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.recvStop = make(chan struct{})
	e.watchStop = make(chan struct{})
	e.mu.Unlock()

	e.wg.Add(2)
	go e.recvLoop()
	go e.watchdogLoop()
}

// Stop halts every per-AR ticker plus the receive loop and watchdog, and
// waits for them to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	close(e.recvStop)
	close(e.watchStop)
	for _, t := range e.byStation {
		close(t.stop)
	}
	e.byStation = make(map[string]*trackedAR)
	e.byFrameID = make(map[uint16]*trackedAR)
	e.mu.Unlock()
	e.wg.Wait()
}

// Attach begins cyclic exchange for a newly RUNNING AR: a per-AR ticker
// starts sending output frames at a.CycleTimeUs(), and inbound frames
// carrying a.Input.FrameID are routed to it by the shared receive loop
// (§4.4). actuatorEnabled holds one flag per output slot, in slot order;
// the frame's per-slot IOPS byte is GOOD for an enabled slot and BAD
// otherwise (§4.4).
func (e *Engine) Attach(station string, a *ar.AR, dstMAC pnframe.MAC, sensorSlots int, actuatorEnabled []bool) {
	t := &trackedAR{ar: a, dstMAC: dstMAC, sensorSlots: sensorSlots, actuatorEnabled: actuatorEnabled, stop: make(chan struct{})}

	e.mu.Lock()
	if old, ok := e.byStation[station]; ok {
		close(old.stop)
		delete(e.byFrameID, old.ar.Input.FrameID)
	}
	e.byStation[station] = t
	e.byFrameID[a.Input.FrameID] = t
	e.mu.Unlock()

	e.wg.Add(1)
	go e.sendLoop(station, t)
}

// Detach stops cyclic exchange for a station (on Disconnect/teardown).
func (e *Engine) Detach(station string) {
	e.mu.Lock()
	t, ok := e.byStation[station]
	if ok {
		delete(e.byStation, station)
		delete(e.byFrameID, t.ar.Input.FrameID)
	}
	e.mu.Unlock()
	if ok {
		close(t.stop)
	}
}

func (e *Engine) sendLoop(station string, t *trackedAR) {
	defer e.wg.Done()
	for {
		cycleUs := t.ar.CycleTimeUs()
		if cycleUs <= 0 {
			cycleUs = 4000
		}
		timer := time.NewTimer(time.Duration(cycleUs) * time.Microsecond)
		select {
		case <-t.stop:
			timer.Stop()
			return
		case <-timer.C:
			if err := e.sendOne(station, t); err != nil {
				e.log.Warn("cyclic send station=%s: %v", station, err)
			}
		}
	}
}

func (e *Engine) sendOne(station string, t *trackedAR) error {
	if t.ar.State() != ar.StateRunning {
		return nil
	}
	payload := t.ar.Output.CopyOut()
	iops := make([]byte, len(t.actuatorEnabled))
	for i, enabled := range t.actuatorEnabled {
		if enabled {
			iops[i] = byte(pnframe.IOPSGood)
		} else {
			iops[i] = byte(pnframe.IOPSBad)
		}
	}
	trailer := pnframe.RTTrailer{
		CycleCounter:   t.ar.NextCycleCounter(),
		DataStatus:     pnframe.DataStatusState | pnframe.DataStatusValid | pnframe.DataStatusRun,
		TransferStatus: 0,
	}
	content := pnframe.BuildRT(pnframe.RTFrame{FrameID: t.ar.Output.FrameID, Payload: payload, IOPS: iops, Trailer: trailer})

	b := pnframe.NewBuilder(pnframe.EthHeaderLen + len(content))
	eth := pnframe.EthernetHeader{Dst: t.dstMAC, Src: pnframe.MAC(e.sock.InterfaceMAC()), EtherType: pnframe.EtherTypePROFINET}
	eth.Encode(b)
	b.Raw(content)
	return e.sock.Send(b.Bytes())
}

func (e *Engine) recvLoop() {
	defer e.wg.Done()
	buf := make([]byte, 1500)
	for {
		select {
		case <-e.recvStop:
			return
		default:
		}
		_ = e.sock.SetRecvDeadline(time.Now().Add(100 * time.Millisecond))
		n, err := e.sock.Recv(buf)
		if err != nil {
			continue
		}
		e.handleFrame(buf[:n])
	}
}

func (e *Engine) handleFrame(frame []byte) {
	p := pnframe.NewParser(frame)
	eth, err := pnframe.ParseEthernetHeader(p)
	if err != nil || eth.EtherType != pnframe.EtherTypePROFINET {
		return
	}
	frameID, err := p.U16BE()
	if err != nil {
		return
	}

	e.mu.Lock()
	t, ok := e.byFrameID[frameID]
	e.mu.Unlock()
	if !ok {
		return // not an RT frame-id we own; DCP and other traffic pass through
	}

	content := frame[pnframe.EthHeaderLen:]
	rt, err := pnframe.ParseRT(content, t.ar.Input.DataLength(), 0)
	if err != nil {
		return
	}
	if err := t.ar.Input.ReplaceAll(rt.Payload); err != nil {
		return
	}
	t.ar.Input.SetLastFrameTimeUs(nowMicros())

	iops := byte(pnframe.IOPSBad)
	if rt.Trailer.DataStatus&pnframe.DataStatusValid != 0 {
		iops = byte(pnframe.IOPSGood)
	}

	if e.onInput != nil {
		for i := 0; i < t.sensorSlots; i++ {
			off := i * pnframe.SensorSlotLen
			slot, err := t.ar.Input.ReadAt(off, pnframe.SensorSlotLen)
			if err != nil {
				continue
			}
			value, quality, err := pnframe.UnpackSensor(slot)
			if err != nil {
				continue
			}
			e.onInput(t.ar.Station, i, value, quality, iops)
		}
	}
}

func (e *Engine) watchdogLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.watchStop:
			return
		case <-ticker.C:
			e.checkWatchdogs()
		}
	}
}

func (e *Engine) checkWatchdogs() {
	e.mu.Lock()
	tracked := make([]*trackedAR, 0, len(e.byStation))
	stations := make([]string, 0, len(e.byStation))
	for station, t := range e.byStation {
		tracked = append(tracked, t)
		stations = append(stations, station)
	}
	e.mu.Unlock()

	now := nowMicros()
	for i, t := range tracked {
		if t.ar.State() != ar.StateRunning {
			continue
		}
		wdUs := t.ar.WatchdogMs() * 1000
		if wdUs <= 0 {
			continue
		}
		last := t.ar.Input.LastFrameTimeUs()
		if last != 0 && now-last > wdUs {
			station := stations[i]
			e.log.Error("watchdog expired station=%s lastFrameUs=%d", station, last)
			if err := e.mgr.Disconnect(station); err != nil {
				e.log.Warn("watchdog disconnect station=%s: %v", station, err)
			}
			e.Detach(station)
		}
	}
}

// GetSlotInput is an O(1) accessor reading one sensor slot directly out of
// an AR's input IOCR buffer, bypassing the registry (§4.4/§4.5).
func (e *Engine) GetSlotInput(station string, sensorOrdinal int) (float32, pnframe.Quality, error) {
	e.mu.Lock()
	t, ok := e.byStation[station]
	e.mu.Unlock()
	if !ok {
		return 0, 0, pnerr.ErrNotFound
	}
	if sensorOrdinal < 0 || sensorOrdinal >= t.sensorSlots {
		return 0, 0, pnerr.ErrInvalidParam
	}
	slot, err := t.ar.Input.ReadAt(sensorOrdinal*pnframe.SensorSlotLen, pnframe.SensorSlotLen)
	if err != nil {
		return 0, 0, err
	}
	return pnframe.UnpackSensor(slot)
}

// SetSlotOutput is an O(1) accessor packing and writing one actuator slot
// directly into an AR's output IOCR buffer (§4.4/§4.5).
func (e *Engine) SetSlotOutput(station string, actuatorOrdinal int, cmd pnframe.ActuatorCmd, pwmDuty byte) error {
	e.mu.Lock()
	t, ok := e.byStation[station]
	e.mu.Unlock()
	if !ok {
		return pnerr.ErrNotFound
	}
	if actuatorOrdinal < 0 || actuatorOrdinal >= len(t.actuatorEnabled) {
		return pnerr.ErrInvalidParam
	}
	packed := pnframe.PackActuator(cmd, pwmDuty)
	return t.ar.Output.WriteAt(actuatorOrdinal*pnframe.ActuatorSlotLen, packed[:])
}

func nowMicros() int64 {
	return time.Now().UnixMicro()
}
