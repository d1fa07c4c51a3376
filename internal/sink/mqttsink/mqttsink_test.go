// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package mqttsink

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtp/pnioc/internal/ar"
	"github.com/wtp/pnioc/pnframe"
	"github.com/wtp/pnioc/registry"
)

func TestToWireStateChangedEvent(t *testing.T) {
	ev := registry.Event{
		Kind:     registry.EventStateChanged,
		Station:  "rtu-1",
		OldState: ar.StateConnecting,
		NewState: ar.StateRunning,
	}
	w := toWire(ev)
	assert.Equal(t, "StateChanged", w.Kind)
	assert.Equal(t, "CONNECTING", w.OldState)
	assert.Equal(t, "RUNNING", w.NewState)

	payload, err := json.Marshal(w)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"station":"rtu-1"`)
}

func TestToWireSensorUpdatedEventCarriesValueAndQuality(t *testing.T) {
	ev := registry.Event{
		Kind:    registry.EventSensorUpdated,
		Station: "rtu-1",
		Sensor:  registry.SensorSample{Value: 12.56, Quality: pnframe.QualityGood},
	}
	w := toWire(ev)
	assert.InDelta(t, 12.56, w.Value, 0.001)
	assert.Equal(t, "GOOD", w.Quality)
	assert.Empty(t, w.OldState, "non-state-change events must not carry a spurious OldState")
}
