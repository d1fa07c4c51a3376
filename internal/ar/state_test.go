// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package ar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wtp/pnioc/pnframe"
)

func TestStateMachineMonotonicity(t *testing.T) {
	a := New("rtu-1", 0, pnframe.UUID128{})

	path := []State{StateDiscovered, StateConnecting, StateParameterizing, StateApplying, StateRunning, StateDisconnect, StateOffline}
	var events []StateChangeEvent
	prev := StateOffline
	for _, to := range path {
		ev, changed, err := a.SetState(to)
		require.NoError(t, err)
		require.True(t, changed)
		assert.Equal(t, prev, ev.Old)
		assert.Equal(t, to, ev.New)
		events = append(events, ev)
		prev = to
	}
	require.Len(t, events, len(path))
}

func TestStateMachineRejectsSkippedTransitions(t *testing.T) {
	a := New("rtu-1", 0, pnframe.UUID128{})
	_, _, err := a.SetState(StateRunning)
	require.Error(t, err)
}

func TestStateMachineNoOpOnSameState(t *testing.T) {
	a := New("rtu-1", 0, pnframe.UUID128{})
	_, _, _ = a.SetState(StateDiscovered)
	_, changed, err := a.SetState(StateDiscovered)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestErrorResetToOffline(t *testing.T) {
	a := New("rtu-1", 0, pnframe.UUID128{})
	_, _, _ = a.SetState(StateDiscovered)
	_, _, _ = a.SetState(StateConnecting)
	ev, changed, err := a.SetState(StateError)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, StateError, ev.New)

	_, changed, err = a.SetState(StateOffline)
	require.NoError(t, err)
	require.True(t, changed)
}
