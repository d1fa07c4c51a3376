// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package ar

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wtp/pnioc/internal/pnerr"
	"github.com/wtp/pnioc/internal/wlog"
	"github.com/wtp/pnioc/pnframe"
)

// Transport is the narrow port the connection manager sends Connect RPCs
// through. The production implementation (internal/pnet) sends to the
// device's UDP port 34964 from an ephemeral local port; tests supply a fake.
type Transport interface {
	SendConnect(ctx context.Context, addr string, req []byte, timeout time.Duration) ([]byte, error)
}

// Device is the minimal addressing/identity information the manager needs
// to attempt a Connect; the registry owns the fuller device record.
type Device struct {
	Station string
	Addr    string // "ip:34964"
	Plan    SlotPlan
}

// Manager holds one AR per device and drives each through the state machine
// of §4.3. At most one concurrent Connect attempt runs per device (§4.3).
type Manager struct {
	mu          sync.Mutex
	transport   Transport
	strategies  []Strategy
	nextSession map[string]uint16
	ars         map[string]*AR
	connecting  map[string]bool
	log         wlog.Log
	onState     []func(StateChangeEvent)

	connectDeadline time.Duration
}

func NewManager(transport Transport, log wlog.Log) *Manager {
	return &Manager{
		transport:       transport,
		strategies:      DefaultStrategies(),
		nextSession:     make(map[string]uint16),
		ars:             make(map[string]*AR),
		connecting:      make(map[string]bool),
		log:             log,
		connectDeadline: 10 * time.Second,
	}
}

// SetStrategies overrides the default bounded strategy list (§9: "do not
// hard-code the specific ordering; let it be configuration").
func (m *Manager) SetStrategies(s []Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(s) > 0 {
		m.strategies = s
	}
}

func (m *Manager) SetConnectDeadline(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectDeadline = d
}

// OnStateChange registers a callback fired after every accepted transition,
// serialized per station (§4.5/§5). Callbacks run outside the manager's
// lock.
func (m *Manager) OnStateChange(f func(StateChangeEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = append(m.onState, f)
}

func (m *Manager) fire(ev StateChangeEvent) {
	m.mu.Lock()
	cbs := append([]func(StateChangeEvent){}, m.onState...)
	m.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

// Get returns the AR for a station, if any.
func (m *Manager) Get(station string) (*AR, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.ars[station]
	return a, ok
}

// Register adopts an already-constructed AR under the manager, so Reset and
// Disconnect can drive it even when it wasn't created through Connect (e.g.
// a station restored from persisted topology, or a test fixture).
func (m *Manager) Register(station string, a *AR) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ars[station] = a
}

func (m *Manager) transition(a *AR, to State) {
	ev, changed, err := a.SetState(to)
	if err != nil {
		m.log.Warn("invalid AR transition station=%s to=%s: %v", a.Station, to, err)
		return
	}
	if changed {
		m.fire(ev)
	}
}

// nextSessionKey assigns a monotonically increasing session key per device
// across connect attempts and reconnects (§3, §4.3).
func (m *Manager) nextSessionKey(station string) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSession[station]++
	return m.nextSession[station]
}

// newARUUID mints a monotonically-ordered AR-UUID using UUIDv7 (RFC 9562),
// whose leading bits are a Unix-millisecond timestamp — satisfying §4.3's
// "monotonically increasing AR-UUID... across retries" without the manager
// having to track an explicit counter.
func newARUUID() pnframe.UUID128 {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	var u pnframe.UUID128
	copy(u[:], id[:])
	return u
}

// Connect drives a device from DISCOVERED through CONNECTING,
// PARAMETERIZING, APPLYING to RUNNING, iterating the configured strategy
// list on rejection/timeout until the overall connect deadline elapses
// (§4.3). On success the AR's IOCR buffers are allocated per the slot plan.
// At most one Connect attempt runs per station at a time (§4.3); a second,
// concurrent call for the same station fails immediately with
// ErrConnectInProgress rather than racing the first attempt's AR mutations.
func (m *Manager) Connect(ctx context.Context, dev Device) (*AR, error) {
	m.mu.Lock()
	if m.connecting[dev.Station] {
		m.mu.Unlock()
		return nil, pnerr.ErrConnectInProgress
	}
	m.connecting[dev.Station] = true
	a, exists := m.ars[dev.Station]
	strategies := m.strategies
	deadline := m.connectDeadline
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.connecting, dev.Station)
		m.mu.Unlock()
	}()

	if !exists {
		a = New(dev.Station, 0, pnframe.UUID128{})
		m.mu.Lock()
		m.ars[dev.Station] = a
		m.mu.Unlock()
	}

	m.transition(a, StateDiscovered)
	m.transition(a, StateConnecting)

	deadlineAt := time.Now().Add(deadline)
	var lastErr error
	for i := 0; time.Now().Before(deadlineAt); i++ {
		st := strategies[i%len(strategies)]

		a.mu.Lock()
		a.SessionKey = m.nextSessionKey(dev.Station)
		a.ARUUID = newARUUID()
		a.mu.Unlock()

		req := BuildConnectRequest(a, dev.Plan, st, uint32(i))

		attemptCtx, cancel := context.WithTimeout(ctx, st.ConnectTimeout)
		resp, err := m.transport.SendConnect(attemptCtx, dev.Addr, req, st.ConnectTimeout)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		cr, err := ParseConnectResponse(resp)
		if err != nil {
			lastErr = err
			continue
		}
		if !cr.Accepted {
			lastErr = pnerr.ErrConnectRejected
			continue
		}

		m.transition(a, StateParameterizing)
		// Write-records (parameterization) is accepted implicitly once the
		// peer accepted the Connect body in this simplified envelope — the
		// full per-record negotiation is out of scope (spec.md §1).
		m.transition(a, StateApplying)
		m.transition(a, StateRunning)
		a.AllocateIOCRs(len(dev.Plan.SensorSlots), len(dev.Plan.ActuatorSlots))
		return a, nil
	}

	if lastErr == nil {
		lastErr = pnerr.ErrConnectTimeout
	}
	m.transition(a, StateError)
	return a, lastErr
}

// Reset explicitly clears an ERROR'd AR back to OFFLINE (§4.3).
func (m *Manager) Reset(station string) error {
	m.mu.Lock()
	a, ok := m.ars[station]
	m.mu.Unlock()
	if !ok {
		return pnerr.ErrNotFound
	}
	if a.State() != StateError {
		return pnerr.ErrInvalidParam
	}
	m.transition(a, StateOffline)
	return nil
}

// Disconnect transitions a RUNNING AR to DISCONNECT then OFFLINE (§4.3),
// used both for operator-initiated teardown and frame-timeout handling
// (the caller, cyclic.Engine, calls this on watchdog expiry).
func (m *Manager) Disconnect(station string) error {
	m.mu.Lock()
	a, ok := m.ars[station]
	m.mu.Unlock()
	if !ok {
		return pnerr.ErrNotFound
	}
	if a.State() != StateRunning {
		return pnerr.ErrInvalidParam
	}
	m.transition(a, StateDisconnect)
	m.transition(a, StateOffline)
	return nil
}
