package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "eth0", c.Interface)
	assert.Equal(t, 3*time.Second, c.DiscoveryTimeout)
	assert.Equal(t, int64(3000), c.WatchdogMs)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pnioc.yaml")
	content := []byte("interface: eth1\nwatchdog_ms: 5000\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "eth1", c.Interface)
	assert.Equal(t, int64(5000), c.WatchdogMs)
}

func TestValidRejectsEmptyInterface(t *testing.T) {
	c := &Config{DiscoveryTimeout: time.Second, ConnectDeadline: time.Second, WatchdogMs: 1, CycleTimeUs: 1}
	assert.Error(t, c.Valid())
}

func TestValidRejectsMQTTEnabledWithoutBroker(t *testing.T) {
	c := &Config{
		Interface: "eth0", DiscoveryTimeout: time.Second, ConnectDeadline: time.Second,
		WatchdogMs: 1, CycleTimeUs: 1, MQTT: MQTTConfig{Enabled: true},
	}
	assert.Error(t, c.Valid())
}
