// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package ar implements the per-device Application Relationship (AR) state
// machine and Connect RPC negotiation (spec.md C3, §4.3).
package ar

import "github.com/wtp/pnioc/internal/pnerr"

// State is a node in the AR lifecycle graph (§4.3). Transitions are
// monotonic; the only backward edges are DISCONNECT->OFFLINE and the
// explicit ERROR->OFFLINE reset.
type State int

const (
	StateOffline State = iota
	StateDiscovered
	StateConnecting
	StateParameterizing
	StateApplying
	StateRunning
	StateDisconnect
	StateError
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "OFFLINE"
	case StateDiscovered:
		return "DISCOVERED"
	case StateConnecting:
		return "CONNECTING"
	case StateParameterizing:
		return "PARAMETERIZING"
	case StateApplying:
		return "APPLYING"
	case StateRunning:
		return "RUNNING"
	case StateDisconnect:
		return "DISCONNECT"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// edges enumerates the valid forward transitions of §4.3's graph, plus the
// two permitted backward edges (DISCONNECT->OFFLINE, ERROR->OFFLINE reset).
var edges = map[State]map[State]bool{
	StateOffline:        {StateDiscovered: true},
	StateDiscovered:     {StateConnecting: true},
	StateConnecting:     {StateParameterizing: true, StateError: true},
	StateParameterizing: {StateApplying: true, StateError: true},
	StateApplying:       {StateRunning: true, StateError: true},
	StateRunning:        {StateDisconnect: true},
	StateDisconnect:     {StateOffline: true},
	StateError:          {StateOffline: true},
}

// ValidTransition reports whether from->to is a legal edge of the graph.
func ValidTransition(from, to State) bool {
	return edges[from][to]
}

// Transition validates and reports the requested move, returning
// pnerr.ErrInvalidParam for an illegal edge.
func Transition(from, to State) error {
	if !ValidTransition(from, to) {
		return pnerr.ErrInvalidParam
	}
	return nil
}

// StateChangeEvent is fired on every accepted transition (§4.5, §5: serialized
// per station, delivered in the order they occurred).
type StateChangeEvent struct {
	Station string
	Old     State
	New     State
}
