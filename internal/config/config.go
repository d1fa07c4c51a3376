// Package config loads controller configuration from file/env via
// viper, mirroring the layered config approach the rest of the retrieval
// pack's daemons use ahead of cobra command execution.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete set of knobs the controller daemon needs (§2, §4,
// §9): interface binding, discovery/connect/watchdog deadlines, cycle time,
// rediscovery schedule, topology store path, log level, and the optional
// MQTT sink. The connect-strategy list is not configurable here.
type Config struct {
	Interface string `mapstructure:"interface"`

	DiscoveryTimeout time.Duration `mapstructure:"discovery_timeout"`
	ConnectDeadline  time.Duration `mapstructure:"connect_deadline"`
	WatchdogMs       int64         `mapstructure:"watchdog_ms"`
	CycleTimeUs      int64         `mapstructure:"cycle_time_us"`

	RediscoverCron string `mapstructure:"rediscover_cron"`

	TopologyDBPath string `mapstructure:"topology_db_path"`

	MQTT MQTTConfig `mapstructure:"mqtt"`

	LogLevel string `mapstructure:"log_level"`
}

// MQTTConfig configures the optional registry-event sink.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// Defaults applied before any file/env overrides.
func defaults(v *viper.Viper) {
	v.SetDefault("interface", "eth0")
	v.SetDefault("discovery_timeout", 3*time.Second)
	v.SetDefault("connect_deadline", 10*time.Second)
	v.SetDefault("watchdog_ms", 3000)
	v.SetDefault("cycle_time_us", 4000)
	v.SetDefault("rediscover_cron", "*/5 * * * *")
	v.SetDefault("topology_db_path", "pnioc-topology.db")
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "pniocd")
	v.SetDefault("mqtt.topic", "pnioc/events")
	v.SetDefault("log_level", "info")
}

// Load reads configuration from path (if non-empty), PNIOC_-prefixed
// environment variables, and the built-in defaults, with precedence
// (lowest to highest) defaults, file, env.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("PNIOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &c, c.Valid()
}

// Valid checks the loaded configuration for internally-consistent values.
func (c *Config) Valid() error {
	if c.Interface == "" {
		return fmt.Errorf("config: interface must not be empty")
	}
	if c.DiscoveryTimeout <= 0 {
		return fmt.Errorf("config: discovery_timeout must be positive")
	}
	if c.ConnectDeadline <= 0 {
		return fmt.Errorf("config: connect_deadline must be positive")
	}
	if c.WatchdogMs <= 0 {
		return fmt.Errorf("config: watchdog_ms must be positive")
	}
	if c.CycleTimeUs <= 0 {
		return fmt.Errorf("config: cycle_time_us must be positive")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt.broker required when mqtt.enabled")
	}
	return nil
}
