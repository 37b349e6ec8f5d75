// Package region defines the region record (the engine's consumed
// instrument-description contract, spec.md 6) that the synth and
// voice packages operate on. Regions are assumed pre-materialized by
// an external instrument-text parser; this package only defines the
// shape callers construct.
package region

import (
	"github.com/sfzvoice/sfzvoice/envelope"
	"github.com/sfzvoice/sfzvoice/filter"
	"github.com/sfzvoice/sfzvoice/lfo"
	"github.com/sfzvoice/sfzvoice/sample"
)

// Trigger selects which note event kind starts a region.
type Trigger int

const (
	TriggerAttack Trigger = iota
	TriggerRelease
	TriggerCC
)

// TriggerFromString maps an instrument-schema string to a Trigger,
// defaulting to TriggerAttack for anything unrecognized (spec.md 7).
func TriggerFromString(s string) Trigger {
	switch s {
	case "release":
		return TriggerRelease
	case "cc":
		return TriggerCC
	default:
		return TriggerAttack
	}
}

// LoopMode selects the sample's looping behavior.
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopOneShot
	LoopContinuous
	LoopSustain
)

// LoopModeFromString defaults to LoopNone for unrecognized strings.
func LoopModeFromString(s string) LoopMode {
	switch s {
	case "one_shot":
		return LoopOneShot
	case "loop_continuous":
		return LoopContinuous
	case "loop_sustain":
		return LoopSustain
	default:
		return LoopNone
	}
}

// OffMode selects how a stopped voice's amp envelope releases.
type OffMode int

const (
	OffFast OffMode = iota
	OffNormal
	OffTime
)

// OffModeFromString defaults to OffFast for unrecognized strings.
func OffModeFromString(s string) OffMode {
	switch s {
	case "normal":
		return OffNormal
	case "time":
		return OffTime
	default:
		return OffFast
	}
}

// XFCurve selects whether a crossfade uses the power law (xfin^2 +
// xfout^2 = 1) or the gain law (xfin + xfout = 1).
type XFCurve int

const (
	XFGain XFCurve = iota
	XFPower
)

// CC is one {cc, value, curve} modulation entry: the effective
// contribution is curve[cc_value]*value (spec.md 3).
type CC struct {
	Number int
	Value  float64
	Curve  int // index into the shared curve table; -1 means builtin linear 0->1
}

// CCList is a small, fixed-size-at-construction list of CC modulation
// entries for one parameter.
type CCList []CC

// Range is an inclusive [Lo, Hi] integer range, used for key/velocity
// ranges and per-CC gates.
type Range struct{ Lo, Hi int }

func (r Range) Contains(v int) bool { return v >= r.Lo && v <= r.Hi }

// FRange is a [Lo, Hi) half-open float range, used for the random
// gate.
type FRange struct{ Lo, Hi float64 }

func (r FRange) Contains(v float64) bool { return v >= r.Lo && v < r.Hi }

// EGParam is one envelope stage's time (or, for Sustain, level)
// parameter: effective = Base + Vel2*velocity_norm + sum(CC contribs).
type EGParam struct {
	Base float64
	Vel2 float64
	CC   CCList
}

// Effective resolves an EGParam given a normalized velocity [0,1] and
// a CC lookup function.
func (p EGParam) Effective(velocityNorm float64, ccValue func(cc int) int, curveGet func(curve, ccVal int) float64) float64 {
	v := p.Base + p.Vel2*velocityNorm
	for _, c := range p.CC {
		v += curveGet(c.Curve, ccValue(c.Number)) * c.Value
	}
	if v < 0 {
		v = 0
	}
	return v
}

// FilterSpec is one of a region's up-to-two filter slots.
type FilterSpec struct {
	Type        filter.Type
	Cutoff      float64
	Resonance   float64
	CutoffCC    CCList
	ResonanceCC CCList
	Keytrack    float64
	Keycenter   int
	Veltrack    float64
}

// LFOSpec is one of a region's LFOs.
type LFOSpec struct {
	Freq     float64
	Wave     lfo.Wave
	Phase    float64
	Delay    float64
	Fade     float64
	ToPitch  float64
	ToVolume float64
	ToCutoff float64
	FreqCC   CCList
	Mods     []lfo.ModLink
}

// CCRange gates a crossfade by a CC value range (xfin_ccN/xfout_ccN).
type CCRange struct {
	CC    int
	Lo    int
	Hi    int
}

// Region is one sample layer: a flat record of trigger predicates,
// playback parameters, amplitude/pitch/filter/LFO modulation, and
// off-by grouping, matching the schema in spec.md 6.
type Region struct {
	// Playback source.
	Sample *sample.Handle

	// Trigger predicates.
	Key           Range
	Velocity      Range
	Random        FRange
	PitchKeycenter int
	PitchKeytrack int // cents per semitone, typically 100
	Trigger       Trigger
	SeqLength     int
	SeqPosition   int
	CC            map[int]Range // explicit locc/hicc entries only

	// Key-switch gating.
	SwLokey, SwHikey     int
	SwLolast, SwHilast    int
	SwDefault             int
	HasKeySwitch          bool

	// Playback.
	LoopMode         LoopMode
	LoopStart        int
	LoopEnd          int
	Offset           float64
	OffsetRandom     float64
	OffsetCC         CCList
	Delay            float64
	DelayCC          CCList
	Tune             float64 // cents
	Transpose        float64 // semitones
	BendUp, BendDown float64 // cents
	TuneCC           CCList

	// Amplitude.
	Volume       float64 // dB
	Amplitude    float64 // percent, 0..100, multiplies linearly
	Pan          float64 // -100..100
	Width        float64 // -100..100
	AmpVeltrack  float64 // percent, negative inverts
	AmpRandom    float64 // dB
	PitchRandom  float64 // cents
	RTDecay      float64 // dB/sec, for release-triggered regions
	VolumeCC     CCList
	AmplitudeCC  CCList // spec.md 9: these multiply rather than sum
	PanCC        CCList
	WidthCC      CCList
	AmpVelcurve  []CCPoint // sparse velocity->gain curve points; empty means v^2/127^2

	// Crossfade.
	XFInLo, XFInHi   Range
	XFOutLo, XFOutHi Range
	XFInKeyLo, XFInKeyHi   Range
	XFOutKeyLo, XFOutKeyHi Range
	XFInCCs, XFOutCCs      []CCRange
	XFVelCurve, XFKeyCurve, XFCCCurve XFCurve

	// Envelopes.
	AmpEG EGEnvelope
	FilEG EGEnvelope
	FilEGDepth float64 // cents

	// Filters and LFOs.
	Filters [2]FilterSpec
	LFOs    []LFOSpec

	// Grouping.
	Group   int
	OffBy   int
	OffMode OffMode
	OffTime float64

	// Bookkeeping for the selector (mutated across triggers).
	PlaySeq int // counts candidate notes from 0; position is PlaySeq mod SeqLength; advances regardless of the random gate outcome
}

// CCPoint is one sparse velocity-curve control point.
type CCPoint struct {
	Pos   int
	Value float64
}

// EGEnvelope groups the six DAHDSR stage parameters, each itself
// CC/velocity modulated, as the region schema specifies.
type EGEnvelope struct {
	Shape              envelope.Shape
	Delay, Attack, Hold EGParam
	Decay, Sustain, Release EGParam
}

// ToEnvelopeParams resolves an EGEnvelope's six stage parameters
// against the current velocity and CC state, producing the envelope
// package's plain Params (envelope.Envelope has no knowledge of
// regions or controllers).
func ToEnvelopeParams(eg EGEnvelope, velocityNorm float64, ccValue func(cc int) int, curveGet func(curveIdx, ccVal int) float64) envelope.Params {
	return envelope.Params{
		Shape:   eg.Shape,
		Delay:   eg.Delay.Effective(velocityNorm, ccValue, curveGet),
		Attack:  eg.Attack.Effective(velocityNorm, ccValue, curveGet),
		Hold:    eg.Hold.Effective(velocityNorm, ccValue, curveGet),
		Decay:   eg.Decay.Effective(velocityNorm, ccValue, curveGet),
		Sustain: eg.Sustain.Effective(velocityNorm, ccValue, curveGet),
		Release: eg.Release.Effective(velocityNorm, ccValue, curveGet),
	}
}

// Playable reports whether the region has a usable sample reference.
// Regions with a missing sample are retained (so off-by/group
// bookkeeping and introspection still see them) but never produce a
// voice (spec.md 7).
func (r *Region) Playable() bool { return r.Sample != nil }
