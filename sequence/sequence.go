// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package sequence implements the step-program interpreter driving
// actuators through caller-supplied setter/getter ports under per-sequence
// and per-step deadlines
// (spec.md C6, §4.6).
package sequence

import (
	"time"

	"github.com/wtp/pnioc/pnframe"
)

// State is a Sequence's run state (§3).
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateComplete
	StateAborted
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateComplete:
		return "COMPLETE"
	case StateAborted:
		return "ABORTED"
	case StateFaulted:
		return "FAULTED"
	default:
		return "UNKNOWN"
	}
}

// StepKind discriminates the step union (§4.6).
type StepKind int

const (
	StepSetOutput StepKind = iota
	StepWaitTime
	StepWaitCondition
	StepWaitLevel
	StepGoto
	StepEnd
)

// CompareOp is WAIT_CONDITION's comparison (§4.6).
type CompareOp int

const (
	CompareAbove CompareOp = iota
	CompareBelow
)

// Step is one instruction of a sequence's program. Only the fields
// relevant to Kind are meaningful; the rest are ignored.
type Step struct {
	Kind StepKind

	// SET_OUTPUT
	Station string
	Slot    int
	Command pnframe.ActuatorCmd
	PWM     byte

	// WAIT_TIME
	DurationMs int64

	// WAIT_CONDITION
	CondStation string
	CondSlot    int
	Op          CompareOp
	Threshold   float32
	TimeoutMs   int64

	// WAIT_LEVEL
	LevelStation string
	LevelSlot    int
	Target       float32
	Tolerance    float32

	// GOTO
	TargetStep int
}

// MaxSteps bounds a sequence's program length (§3).
const MaxSteps = 64

// ActuatorSetter is the port SET_OUTPUT steps act through — typically
// cyclic.Engine.SetSlotOutput or a registry-backed adapter.
type ActuatorSetter func(station string, slot int, cmd pnframe.ActuatorCmd, pwm byte) error

// SensorGetter mirrors cyclic.Engine.GetSlotInput / a registry adapter.
type SensorGetter func(station string, slot int) (value float32, err error)

// Sequence is one runnable step program (§3).
type Sequence struct {
	ID                string
	Name              string
	Enabled           bool
	Steps             []Step
	SequenceTimeoutMs  int64
	DefaultStepTimeoutMs int64

	OnStep     func(seq *Sequence, stepIndex int)
	OnComplete func(seq *Sequence, success bool)

	state           State
	currentStep     int
	sequenceStartMs int64
	stepStartMs     int64
}

// NewSequence constructs a Sequence in state IDLE.
func NewSequence(id, name string, steps []Step) *Sequence {
	if len(steps) > MaxSteps {
		steps = steps[:MaxSteps]
	}
	return &Sequence{ID: id, Name: name, Enabled: true, Steps: steps, state: StateIdle}
}

func (s *Sequence) State() State { return s.state }

func (s *Sequence) CurrentStep() int { return s.currentStep }

// Start begins (or restarts) the sequence from step 0. Requires state in
// {IDLE, COMPLETE, ABORTED, FAULTED} (§4.6).
func (s *Sequence) Start(nowMs int64) bool {
	switch s.state {
	case StateIdle, StateComplete, StateAborted, StateFaulted:
	default:
		return false
	}
	s.state = StateRunning
	s.currentStep = 0
	s.sequenceStartMs = nowMs
	s.stepStartMs = nowMs
	return true
}

// Stop aborts unconditionally (§4.6).
func (s *Sequence) Stop() {
	s.state = StateAborted
}

// Pause requires RUNNING.
func (s *Sequence) Pause() bool {
	if s.state != StateRunning {
		return false
	}
	s.state = StatePaused
	return true
}

// Resume requires PAUSED and rebases step_start_time so an in-flight
// WAIT_TIME does not spuriously fire on the very next tick (§4.6).
func (s *Sequence) Resume(nowMs int64) bool {
	if s.state != StatePaused {
		return false
	}
	s.state = StateRunning
	s.stepStartMs = nowMs
	return true
}

func (s *Sequence) fault(nowMs int64) {
	s.state = StateFaulted
	if s.OnComplete != nil {
		s.OnComplete(s, false)
	}
}

func (s *Sequence) complete() {
	s.state = StateComplete
	if s.OnComplete != nil {
		s.OnComplete(s, true)
	}
}

// Engine ticks every RUNNING sequence once per Process call (§4.6: "the
// engine does not sleep; the caller drives cadence").
type Engine struct {
	sequences []*Sequence
	setOutput ActuatorSetter
	getSensor SensorGetter
	nowMs     func() int64
}

// NewEngine constructs an Engine. setOutput and getSensor are the ports
// SET_OUTPUT/WAIT_CONDITION/WAIT_LEVEL steps act through — typically
// cyclic.Engine.SetSlotOutput and a registry-backed sensor getter.
func NewEngine(setOutput ActuatorSetter, getSensor SensorGetter) *Engine {
	return &Engine{setOutput: setOutput, getSensor: getSensor, nowMs: func() int64 { return time.Now().UnixMilli() }}
}

// Add registers a sequence with the engine.
func (e *Engine) Add(s *Sequence) {
	e.sequences = append(e.sequences, s)
}

// Sequences returns every registered sequence.
func (e *Engine) Sequences() []*Sequence {
	return e.sequences
}

// Process ticks every RUNNING sequence exactly once (§4.6).
func (e *Engine) Process() {
	now := e.nowMs()
	for _, s := range e.sequences {
		if s.state != StateRunning {
			continue
		}
		e.tick(s, now)
	}
}

func (e *Engine) tick(s *Sequence, now int64) {
	if s.SequenceTimeoutMs > 0 && now-s.sequenceStartMs >= s.SequenceTimeoutMs {
		s.fault(now)
		return
	}
	if s.currentStep >= len(s.Steps) {
		s.complete()
		return
	}

	step := s.Steps[s.currentStep]
	advance := false

	switch step.Kind {
	case StepSetOutput:
		_ = e.setOutput(step.Station, step.Slot, step.Command, step.PWM)
		advance = true

	case StepWaitTime:
		if now-s.stepStartMs >= step.DurationMs {
			advance = true
		}

	case StepWaitCondition:
		timeout := step.TimeoutMs
		if timeout <= 0 {
			timeout = s.DefaultStepTimeoutMs
		}
		if timeout > 0 && now-s.stepStartMs >= timeout {
			s.fault(now)
			return
		}
		value, err := e.getSensor(step.CondStation, step.CondSlot)
		if err == nil {
			crossed := (step.Op == CompareAbove && value > step.Threshold) ||
				(step.Op == CompareBelow && value < step.Threshold)
			if crossed {
				advance = true
			}
		}

	case StepWaitLevel:
		timeout := step.TimeoutMs
		if timeout <= 0 {
			timeout = s.DefaultStepTimeoutMs
		}
		if timeout > 0 && now-s.stepStartMs >= timeout {
			s.fault(now)
			return
		}
		value, err := e.getSensor(step.LevelStation, step.LevelSlot)
		if err == nil {
			diff := value - step.Target
			if diff < 0 {
				diff = -diff
			}
			if diff <= step.Tolerance {
				advance = true
			}
		}

	case StepGoto:
		// Rebind so the post-increment below lands exactly on TargetStep
		// (§4.6: "rebinds current_step to target-1").
		s.currentStep = step.TargetStep - 1
		advance = true

	case StepEnd:
		s.complete()
		return
	}

	if advance {
		s.currentStep++
		s.stepStartMs = now
		if s.OnStep != nil {
			s.OnStep(s, s.currentStep)
		}
		if s.currentStep >= len(s.Steps) {
			s.complete()
		}
	}
}
