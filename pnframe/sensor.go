// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pnframe

import (
	"math"

	"github.com/wtp/pnioc/internal/pnerr"
)

// Quality is the per-sample data-quality tag (§3, §4.5).
type Quality byte

const (
	QualityNotConnected Quality = 0
	QualityBad          Quality = 1
	QualityUncertain    Quality = 2
	QualityGood         Quality = 3
)

func (q Quality) String() string {
	switch q {
	case QualityNotConnected:
		return "NOT_CONNECTED"
	case QualityBad:
		return "BAD"
	case QualityUncertain:
		return "UNCERTAIN"
	case QualityGood:
		return "GOOD"
	default:
		return "UNKNOWN"
	}
}

// SensorSlotLen is the fixed on-wire sensor slot size: 4B float + 1B quality.
const SensorSlotLen = 5

// ActuatorSlotLen is the fixed on-wire actuator slot size: cmd + pwm + 2 reserved.
const ActuatorSlotLen = 4

// PackSensor encodes (value, quality) into the 5-byte wire form: big-endian
// IEEE-754 float32 followed by the quality byte.
func PackSensor(value float32, q Quality) [SensorSlotLen]byte {
	var out [SensorSlotLen]byte
	bits := math.Float32bits(value)
	out[0] = byte(bits >> 24)
	out[1] = byte(bits >> 16)
	out[2] = byte(bits >> 8)
	out[3] = byte(bits)
	out[4] = byte(q)
	return out
}

// UnpackSensor decodes a 5-byte sensor slot.
func UnpackSensor(b []byte) (float32, Quality, error) {
	if len(b) < SensorSlotLen {
		return 0, 0, pnerr.ErrShortBuffer
	}
	bits := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return math.Float32frombits(bits), Quality(b[4]), nil
}

// ActuatorCmd is the command-byte enumeration for actuator slots (§3).
type ActuatorCmd byte

const (
	ActuatorOff ActuatorCmd = iota
	ActuatorOn
	ActuatorAuto
	ActuatorManual
)

func (c ActuatorCmd) String() string {
	switch c {
	case ActuatorOff:
		return "OFF"
	case ActuatorOn:
		return "ON"
	case ActuatorAuto:
		return "AUTO"
	case ActuatorManual:
		return "MANUAL"
	default:
		return "UNKNOWN"
	}
}

// PackActuator encodes a 4-byte actuator slot: command, pwm duty, 2 reserved
// zero bytes.
func PackActuator(cmd ActuatorCmd, pwmDuty byte) [ActuatorSlotLen]byte {
	return [ActuatorSlotLen]byte{byte(cmd), pwmDuty, 0, 0}
}

// UnpackActuator decodes a 4-byte actuator slot.
func UnpackActuator(b []byte) (ActuatorCmd, byte, error) {
	if len(b) < ActuatorSlotLen {
		return 0, 0, pnerr.ErrShortBuffer
	}
	return ActuatorCmd(b[0]), b[1], nil
}

// IOPSStatus is the per-slot IO Provider Status byte carried in an RT
// frame's IOPS section.
type IOPSStatus byte

const (
	IOPSBad  IOPSStatus = 0
	IOPSGood IOPSStatus = 0x80
)
