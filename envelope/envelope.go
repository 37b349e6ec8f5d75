// Package envelope implements the DAHDSR envelope generator (C4):
// Delay, Attack, Hold, Decay, Sustain, Release, with linear or
// exponential slopes between stages.
package envelope

import "math"

// Shape selects the interpolation law used for a non-sustain stage.
type Shape int

const (
	ShapeExponential Shape = iota
	ShapeLinear
)

// OffMode selects how quickly a voice's envelope releases when the
// voice is stopped.
type OffMode int

const (
	OffNormal OffMode = iota
	OffFast
	OffTime
)

type state int

const (
	stateStart state = iota
	stateDelay
	stateAttack
	stateHold
	stateDecay
	stateSustain
	stateRelease
	stateDone
)

// expRatio is the target residual (-60dB) a decaying exponential
// slope is considered to have reached its end value by.
const expRatio = 0.001

// Params are the stage durations (seconds, except Sustain which is a
// percent 0..100) that parameterize one envelope instance.
type Params struct {
	Shape   Shape
	Delay   float64
	Attack  float64
	Hold    float64
	Decay   float64
	Sustain float64 // percent, 0..100
	Release float64
}

// Envelope is a single DAHDSR instance bound to a sample rate.
type Envelope struct {
	p Params

	delayLen, attackLen, holdLen, decayLen, releaseLen int
	stopLen, offTimeLen                                int
	sustainLevel                                       float64

	state state

	slopeLen    int
	slopeFactor float64
	slopeDelta  float64
	slopeEnd    float64

	level float64
}

// New returns an Envelope with the given stage parameters, not yet
// started.
func New(p Params) *Envelope {
	return &Envelope{p: p, state: stateDone}
}

func secondsToSamples(sampleRate int, seconds float64) int {
	n := int(float64(sampleRate) * seconds)
	if n < 0 {
		return 0
	}
	return n
}

// Start begins the envelope at the DELAY stage (or whichever stage is
// first non-zero), given the voice's sample rate and its off_time (for
// the TIME off-mode, computed up front so Stop never needs the
// region).
func (e *Envelope) Start(sampleRate int, offTimeSeconds float64) {
	e.delayLen = secondsToSamples(sampleRate, e.p.Delay)
	e.attackLen = secondsToSamples(sampleRate, e.p.Attack)
	e.holdLen = secondsToSamples(sampleRate, e.p.Hold)
	e.decayLen = secondsToSamples(sampleRate, e.p.Decay)
	e.sustainLevel = clamp01(e.p.Sustain * 0.01)
	e.releaseLen = max1(secondsToSamples(sampleRate, e.p.Release))
	e.stopLen = max1(secondsToSamples(sampleRate, 0.030))
	e.offTimeLen = max1(secondsToSamples(sampleRate, offTimeSeconds))

	e.level = 0
	e.state = stateStart
	e.nextState()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// nextState advances through zero-length stages immediately, matching
// the original's stage-skipping behavior.
func (e *Envelope) nextState() {
	if e.state == stateStart {
		e.state = stateDelay
		if e.delayLen != 0 {
			e.computeSlope(e.delayLen, 0, 0, stateDelay)
			return
		}
		e.level = 0
	}
	if e.state == stateDelay {
		e.state = stateAttack
		if e.attackLen != 0 {
			e.computeSlope(e.attackLen, 0, 1, stateAttack)
			return
		}
		e.level = 1
	}
	if e.state == stateAttack {
		e.state = stateHold
		if e.holdLen != 0 {
			e.computeSlope(e.holdLen, 1, 1, stateHold)
			return
		}
		e.level = 1
	}
	if e.state == stateHold {
		e.state = stateDecay
		if e.decayLen != 0 {
			e.computeSlope(e.decayLen, 1, e.sustainLevel, stateDecay)
			return
		}
		e.level = e.sustainLevel
	}
	if e.state == stateDecay {
		e.state = stateSustain
	}
}

// Stop switches the envelope to RELEASE with a duration that depends
// on off_mode.
func (e *Envelope) Stop(offMode OffMode) {
	var length int
	switch offMode {
	case OffNormal:
		length = e.releaseLen
	case OffTime:
		length = e.offTimeLen
	case OffFast:
		length = e.stopLen
	}
	e.state = stateRelease
	e.computeSlope(length, e.level, 0, stateRelease)
}

// Done reports whether the envelope has reached its terminal state.
func (e *Envelope) Done() bool { return e.state == stateDone }

// IsConstant reports whether the envelope currently needs no per-sample
// recomputation (SUSTAIN or DONE).
func (e *Envelope) IsConstant() bool {
	return e.state == stateSustain || e.state == stateDone
}

func (e *Envelope) computeSlope(length int, startX, endX float64, paramState state) {
	e.slopeEnd = endX

	if paramState == stateAttack || paramState == stateDelay || paramState == stateHold || e.p.Shape == ShapeLinear {
		e.slopeLen = length
		if e.slopeLen == 0 {
			e.slopeLen = 1
		}
		e.slopeDelta = (endX - startX) / float64(e.slopeLen)
		e.slopeFactor = 1
		return
	}

	// Exponential (DECAY or RELEASE): iterative value = value*factor+delta,
	// reaching `end` to within expRatio's relative residual after `length`
	// samples.
	if length < 1 {
		length = 1
	}
	f := -math.Log((expRatio+1)/expRatio) / float64(length)
	e.slopeLen = length
	e.slopeFactor = math.Exp(f)
	e.slopeDelta = (endX - expRatio*(startX-endX)) * (1 - e.slopeFactor)
}

// GetNext returns the next envelope sample and advances internal
// state, transitioning stages (including to DONE after RELEASE) as
// needed.
func (e *Envelope) GetNext() float64 {
	if e.state == stateSustain || e.state == stateDone {
		return e.level
	}

	e.level = e.level*e.slopeFactor + e.slopeDelta
	e.slopeLen--
	if e.slopeLen <= 0 {
		e.level = e.slopeEnd
		if e.state == stateRelease {
			e.state = stateDone
		} else {
			e.nextState()
		}
	}
	return e.level
}
