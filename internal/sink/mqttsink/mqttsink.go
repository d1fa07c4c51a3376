// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package mqttsink publishes registry events to an MQTT broker, letting an
// external historian or HMI subscribe to device/state/sensor/actuator
// changes without embedding against the controller's Go API.
package mqttsink

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wtp/pnioc/internal/wlog"
	"github.com/wtp/pnioc/registry"
)

// Sink publishes registry.Event values as JSON to one MQTT topic.
type Sink struct {
	client mqtt.Client
	topic  string
	log    wlog.Log
	cancel func()
}

// Config configures the broker connection.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
}

// eventWire is the JSON shape published for each event.
type eventWire struct {
	Kind      string    `json:"kind"`
	Station   string    `json:"station"`
	OldState  string    `json:"old_state,omitempty"`
	NewState  string    `json:"new_state,omitempty"`
	SlotIndex uint16    `json:"slot_index,omitempty"`
	Value     float32   `json:"value,omitempty"`
	Quality   string    `json:"quality,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Connect dials the broker and returns a ready-to-use Sink.
func Connect(cfg Config, log wlog.Log) (*Sink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	client := mqtt.NewClient(opts)
	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("mqttsink: connect %s: %w", cfg.Broker, tok.Error())
	}
	return &Sink{client: client, topic: cfg.Topic, log: log}, nil
}

// Attach subscribes to a registry's event stream and republishes every
// event until cancel is called or the subscription is closed.
func (s *Sink) Attach(reg *registry.Registry) func() {
	ch, cancelSub := reg.Subscribe(64)
	done := make(chan struct{})
	go func() {
		for ev := range ch {
			s.publish(ev)
		}
		close(done)
	}()
	s.cancel = cancelSub
	return func() {
		cancelSub()
		<-done
	}
}

func toWire(ev registry.Event) eventWire {
	w := eventWire{
		Kind:      ev.Kind.String(),
		Station:   ev.Station,
		SlotIndex: ev.SlotIndex,
		Text:      ev.AlarmText,
		Timestamp: time.Now(),
	}
	if ev.Kind == registry.EventStateChanged {
		w.OldState = ev.OldState.String()
		w.NewState = ev.NewState.String()
	}
	if ev.Kind == registry.EventSensorUpdated {
		w.Value = ev.Sensor.Value
		w.Quality = ev.Sensor.Quality.String()
	}
	return w
}

func (s *Sink) publish(ev registry.Event) {
	payload, err := json.Marshal(toWire(ev))
	if err != nil {
		s.log.Warn("mqttsink: marshal event station=%s: %v", ev.Station, err)
		return
	}
	tok := s.client.Publish(s.topic, 0, false, payload)
	if !tok.WaitTimeout(2 * time.Second) {
		s.log.Warn("mqttsink: publish timeout station=%s", ev.Station)
		return
	}
	if err := tok.Error(); err != nil {
		s.log.Warn("mqttsink: publish station=%s: %v", ev.Station, err)
	}
}

// Close disconnects from the broker.
func (s *Sink) Close() {
	s.client.Disconnect(250)
}
