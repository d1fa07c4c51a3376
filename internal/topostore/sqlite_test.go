package topostore

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtp/pnioc/registry"
)

func TestSaveAndLoadTopologyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topo.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	entries := []registry.TopologyEntry{
		{
			Station:  "rtu-4b64",
			IP:       net.ParseIP("192.168.6.21"),
			VendorID: 0x0493,
			DeviceID: 0x0001,
			Slots: []registry.SlotConfig{
				{SlotIndex: 1, Kind: registry.SlotSensor, Name: "turbidity"},
			},
		},
	}
	require.NoError(t, store.SaveTopology(entries))

	loaded, err := store.LoadTopology()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "rtu-4b64", loaded[0].Station)
	assert.Equal(t, uint16(0x0493), loaded[0].VendorID)
	assert.Equal(t, "192.168.6.21", loaded[0].IP.String())
	require.Len(t, loaded[0].Slots, 1)
	assert.Equal(t, "turbidity", loaded[0].Slots[0].Name)
}

func TestSaveTopologyReplacesPreviousSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topo.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SaveTopology([]registry.TopologyEntry{{Station: "a"}}))
	require.NoError(t, store.SaveTopology([]registry.TopologyEntry{{Station: "b"}}))

	loaded, err := store.LoadTopology()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "b", loaded[0].Station)
}
