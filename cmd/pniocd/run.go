package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/wtp/pnioc/cyclic"
	"github.com/wtp/pnioc/dcp"
	"github.com/wtp/pnioc/internal/ar"
	"github.com/wtp/pnioc/internal/config"
	"github.com/wtp/pnioc/internal/pnerr"
	"github.com/wtp/pnioc/internal/pnet"
	"github.com/wtp/pnioc/internal/sink/mqttsink"
	"github.com/wtp/pnioc/internal/topostore"
	"github.com/wtp/pnioc/internal/wlog"
	"github.com/wtp/pnioc/pnframe"
	"github.com/wtp/pnioc/registry"
	"github.com/wtp/pnioc/sequence"
)

// rpcPort is the well-known UDP port Connect RPCs are sent to (spec.md §4.3).
const rpcPort = 34964

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the controller core: discovery, connect, cyclic exchange, sequences",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg)
		},
	}
}

// daemon bundles every collaborator the controller core wires together, so
// shutdown can tear them down in the right order.
type daemon struct {
	cfg  *config.Config
	log  wlog.Log
	sock pnet.PacketSocket
	reg  *registry.Registry
	mgr  *ar.Manager
	eng  *cyclic.Engine
	seqs *sequence.Engine
	sink *mqttsink.Sink
	cron *cron.Cron
}

func runDaemon(ctx context.Context, cfg *config.Config) error {
	log := newLogger(cfg.LogLevel)

	sock, err := pnet.OpenPacketSocket(cfg.Interface, pnframe.EtherTypePROFINET)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	d := &daemon{
		cfg:  cfg,
		log:  log,
		sock: sock,
		reg:  registry.New(0, log),
	}
	d.mgr = ar.NewManager(pnet.NewUDPTransport(""), log)
	d.mgr.SetConnectDeadline(cfg.ConnectDeadline)
	d.eng = cyclic.NewEngine(sock, d.mgr, log)
	// The sequence engine addresses slots by their wire slot-index (spec.md
	// §4.2: sensors 1..N, actuators N+1..M); the cyclic engine's accessors
	// take a 0-based ordinal within each direction's slot array, so the
	// wiring here converts using the backwash profile's known sensor count.
	nSensorSlots := len(backwashProfile.plan.SensorSlots)
	d.seqs = sequence.NewEngine(
		func(station string, slot int, cmd pnframe.ActuatorCmd, pwm byte) error {
			return d.eng.SetSlotOutput(station, slot-nSensorSlots-1, cmd, pwm)
		},
		func(station string, slot int) (float32, error) {
			v, _, err := d.eng.GetSlotInput(station, slot-1)
			return v, err
		},
	)
	d.seqs.Add(sequence.NewBackwashSequence())

	d.mgr.OnStateChange(func(ev ar.StateChangeEvent) {
		_ = d.reg.SetDeviceState(ev.Station, ev.New)
	})
	d.eng.OnInput(func(station string, ordinal int, value float32, quality pnframe.Quality, iopsByte byte) {
		iops := registry.IOPSBad
		if iopsByte == byte(pnframe.IOPSGood) {
			iops = registry.IOPSGood
		}
		_ = d.reg.UpdateSensor(station, ordinal, registry.SensorSample{
			Value: value, Quality: quality, IOPS: iops, TimestampUs: time.Now().UnixMicro(),
		})
	})

	if store, err := topostore.Open(cfg.TopologyDBPath); err == nil {
		_ = d.reg.LoadTopology(store)
		defer func() {
			_ = d.reg.SaveTopology(store)
			store.Close()
		}()
	} else {
		log.Warn("run: topology store unavailable: %v", err)
	}

	if cfg.MQTT.Enabled {
		sink, err := mqttsink.Connect(mqttsink.Config{Broker: cfg.MQTT.Broker, ClientID: cfg.MQTT.ClientID, Topic: cfg.MQTT.Topic}, log)
		if err != nil {
			log.Warn("run: mqtt sink unavailable: %v", err)
		} else {
			d.sink = sink
			stop := sink.Attach(d.reg)
			defer stop()
			defer sink.Close()
		}
	}

	d.eng.Start()
	defer d.eng.Stop()

	d.cron = cron.New()
	_, err = d.cron.AddFunc(cfg.RediscoverCron, func() { d.rediscover(ctx) })
	if err != nil {
		log.Warn("run: invalid rediscover_cron %q: %v", cfg.RediscoverCron, err)
	} else {
		d.cron.Start()
		defer d.cron.Stop()
	}

	go d.rediscover(ctx)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigCtx.Done():
			log.Debug("run: shutting down")
			return nil
		case <-ticker.C:
			d.seqs.Process()
		}
	}
}

// rediscover runs a DCP sweep. A station seen for the first time is added
// to the registry and, if its vendor/device ID matches a known slot
// profile, driven through Connect and attached to the cyclic engine; a
// repeat sighting of a known station only refreshes its transport identity
// (§4.1-§4.4: discover, connect, and cyclically exchange is the full
// pipeline, not discovery alone).
func (d *daemon) rediscover(ctx context.Context) {
	reports, err := dcp.NewDiscoverer(d.sock, d.log).Discover(d.cfg.DiscoveryTimeout)
	if err != nil {
		d.log.Warn("rediscover: %v", err)
		return
	}
	for _, r := range reports {
		err := d.reg.AddDevice(r.Station, registry.Device{
			IP: r.IP, MAC: r.MAC, VendorID: r.VendorID, DeviceID: r.DeviceID,
		})
		switch {
		case err == nil:
			go d.connectAndAttach(ctx, r)
		case errors.Is(err, pnerr.ErrAlreadyExists):
			if rerr := d.reg.RefreshSighting(r.Station, r.IP, r.MAC, r.VendorID, r.DeviceID); rerr != nil {
				d.log.Warn("rediscover: refresh %s: %v", r.Station, rerr)
			}
		default:
			d.log.Warn("rediscover: add %s: %v", r.Station, err)
		}
	}
}

// connectAndAttach drives a newly discovered device from DISCOVERED through
// RUNNING and wires it into the cyclic engine (spec.md §4.3/§4.4). Devices
// with no known slot profile are left registered but OFFLINE.
func (d *daemon) connectAndAttach(ctx context.Context, r dcp.DeviceReport) {
	profile, known := lookupProfile(r.VendorID, r.DeviceID)
	if !known {
		d.log.Warn("rediscover: no slot profile for %s (vendor=0x%04X device=0x%04X); not connecting", r.Station, r.VendorID, r.DeviceID)
		return
	}
	if err := d.reg.SetDeviceConfig(r.Station, profile.slots); err != nil {
		d.log.Warn("rediscover: set config %s: %v", r.Station, err)
		return
	}

	a, err := d.mgr.Connect(ctx, ar.Device{
		Station: r.Station,
		Addr:    fmt.Sprintf("%s:%d", r.IP, rpcPort),
		Plan:    profile.plan,
	})
	if err != nil {
		d.log.Warn("rediscover: connect %s: %v", r.Station, err)
		return
	}
	a.SetCycleTimeUs(d.cfg.CycleTimeUs)
	a.SetWatchdogMs(d.cfg.WatchdogMs)
	d.eng.Attach(r.Station, a, r.MAC, len(profile.plan.SensorSlots), profile.actuatorEnabled)
}
