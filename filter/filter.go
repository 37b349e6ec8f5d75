// Package filter implements the biquad/one-pole filter bank (C5): up
// to 6-pole (three cascaded biquads) LP/HP, plus 2-pole BP/BR, with
// bilinear-transform coefficient designs and a parameter-smoothing
// clamp so abrupt cutoff/resonance changes become bounded ramps.
package filter

import "math"

// Type selects the filter topology. Values match spec.md 6's region
// schema field fil[].type.
type Type int

const (
	None Type = iota
	LPF1P
	HPF1P
	LPF2P
	HPF2P
	BPF2P
	BRF2P
	LPF4P
	HPF4P
	LPF6P
	HPF6P
)

// TypeFromString maps an instrument-schema string to a Type, falling
// back to None for anything unrecognized (spec.md 7: unknown filter
// type strings substitute a safe default).
func TypeFromString(s string) Type {
	switch s {
	case "lpf_1p":
		return LPF1P
	case "hpf_1p":
		return HPF1P
	case "lpf_2p":
		return LPF2P
	case "hpf_2p":
		return HPF2P
	case "bpf_2p":
		return BPF2P
	case "brf_2p":
		return BRF2P
	case "lpf_4p":
		return LPF4P
	case "hpf_4p":
		return HPF4P
	case "lpf_6p":
		return LPF6P
	case "hpf_6p":
		return HPF6P
	default:
		return None
	}
}

// segmentSize is the number of samples between coefficient
// recomputations: update_config runs at most once per segment.
const segmentSize = 16

type biquadState struct {
	x1, x2, y1, y2 float32
}

func (s *biquadState) reset() { *s = biquadState{} }

// CR is one (cutoff, resonance) pair requested for a given sample
// index, returned by the per-sample callback given to Process.
type CR struct {
	Cutoff    float32
	Resonance float32
}

// Filter is a single filter instance (one per voice per filter slot).
// Channels share coefficients but not history.
type Filter struct {
	filterType Type
	sampleRate int

	first         bool
	lastCutoff    float32
	lastResonance float32

	a1, a2, b0, b1, b2 float32

	// Up to 3 cascaded biquad stages per channel, used depending on
	// pole count: 2-pole uses stageA only, 4-pole A+B, 6-pole A+B+Z.
	stageA [2]biquadState
	stageB [2]biquadState
	stageZ [2]biquadState
}

// New returns a Filter of the given type, bound to sampleRate.
func New(filterType Type, sampleRate int) *Filter {
	f := &Filter{filterType: filterType, sampleRate: sampleRate}
	f.Reset()
	return f
}

// SetSampleRate updates the sample rate used by the coefficient
// designer.
func (f *Filter) SetSampleRate(sr int) { f.sampleRate = sr }

// SetType changes the filter topology. Callers should Reset after
// changing type to clear stale history.
func (f *Filter) SetType(t Type) { f.filterType = t }

// Reset clears all filter history and arms the next update_config
// call to skip the smoothing clamp (no "last" value to smooth from
// yet).
func (f *Filter) Reset() {
	for c := 0; c < 2; c++ {
		f.stageA[c].reset()
		f.stageB[c].reset()
		f.stageZ[c].reset()
	}
	f.first = true
}

// fastDBToFactor converts a dB resonance value to a linear Q factor,
// using exp2 rather than a general pow call.
func fastDBToFactor(db float32) float32 {
	return float32(math.Exp2(float64(db) * 0.166096404744368))
}

// updateConfig recomputes filter coefficients, subject to the
// parameter-smoothing clamp: cutoff moves by at most a factor of 1.4
// per call, resonance by at most 1 dB, unless this is the very first
// call after Reset.
func (f *Filter) updateConfig(cutoff, resonance float32) {
	if cutoff < 10 {
		cutoff = 10
	}

	if f.first {
		f.first = false
	} else if cutoff == f.lastCutoff && resonance == f.lastResonance {
		return
	} else {
		const high = 1.4
		const low = 1.0 / high
		cutoff = clampF(cutoff, f.lastCutoff*low, f.lastCutoff*high)
		resonance = clampF(resonance, f.lastResonance-1, f.lastResonance+1)
	}
	f.lastCutoff = cutoff
	f.lastResonance = resonance

	normCutoff := cutoff / float32(f.sampleRate)
	if normCutoff > 0.49 {
		normCutoff = 0.49
	}

	switch f.filterType {
	case LPF1P:
		k := float32(math.Tan(math.Pi * float64(normCutoff)))
		div := 1 / (k + 1)
		f.b1, f.b0 = k*div, k*div
		f.a1 = (k - 1) * div

	case HPF1P:
		k := float32(math.Tan(math.Pi * float64(normCutoff)))
		div := 1 / (k + 1)
		f.b0 = div
		f.b1 = -div
		f.a1 = (k - 1) * div

	case LPF2P, LPF4P, LPF6P:
		k := float32(math.Tan(math.Pi * float64(normCutoff)))
		kk := k * k
		q := fastDBToFactor(resonance)
		div := 1 / (1 + (k+1/q)*k)
		f.b0 = kk * div
		f.b1 = 2 * kk * div
		f.b2 = kk * div
		f.a1 = 2 * (kk - 1) * div
		f.a2 = (1 - k/q + kk) * div

	case HPF2P, HPF4P, HPF6P:
		k := float32(math.Tan(math.Pi * float64(normCutoff)))
		kk := k * k
		q := fastDBToFactor(resonance)
		div := 1 / (1 + (k+1/q)*k)
		f.b0 = div
		f.b1 = -2 * div
		f.b2 = div
		f.a1 = 2 * (kk - 1) * div
		f.a2 = (1 - k/q + kk) * div

	case BPF2P:
		k := float32(math.Tan(math.Pi * float64(normCutoff)))
		kk := k * k
		q := fastDBToFactor(resonance)
		div := 1 / (1 + (k+1/q)*k)
		f.b0 = k / q * div
		f.b1 = 0
		f.b2 = -f.b0
		f.a1 = 2 * (kk - 1) * div
		f.a2 = (1 - k/q + kk) * div

	case BRF2P:
		k := float32(math.Tan(math.Pi * float64(normCutoff)))
		kk := k * k
		q := fastDBToFactor(resonance)
		div := 1 / (1 + (k+1/q)*k)
		f.b0 = (1 + kk) * div
		f.b1 = 2 * (kk - 1) * div
		f.b2 = f.b0
		f.a1 = 2 * (kk - 1) * div
		f.a2 = (1 - k/q + kk) * div
	}
}

func clampF(v, lo, hi float32) float32 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (f *Filter) applyBiquad1P(in float32, s *biquadState) float32 {
	out := f.b0*in + f.b1*s.x1 - f.a1*s.y1
	s.x1 = in
	s.y1 = out
	return out
}

func (f *Filter) applyBiquad(in float32, s *biquadState) float32 {
	out := f.b0*in + f.b1*s.x1 + f.b2*s.x2 - f.a1*s.y1 - f.a2*s.y2
	s.x2 = s.x1
	s.x1 = in
	s.y2 = s.y1
	s.y1 = out
	return out
}

func (f *Filter) applyOne(channel int, in float32) float32 {
	switch f.filterType {
	case LPF1P, HPF1P:
		return f.applyBiquad1P(in, &f.stageA[channel])
	case LPF2P, HPF2P, BPF2P, BRF2P:
		return f.applyBiquad(in, &f.stageA[channel])
	case LPF4P, HPF4P:
		return f.applyBiquad(f.applyBiquad(in, &f.stageA[channel]), &f.stageB[channel])
	case LPF6P, HPF6P:
		return f.applyBiquad(f.applyBiquad(f.applyBiquad(in, &f.stageA[channel]), &f.stageB[channel]), &f.stageZ[channel])
	default:
		return in
	}
}

// CRFunc supplies the (cutoff, resonance) pair in effect at sample
// index i of the current Process call, allowing per-sample
// modulation (e.g. from a filter envelope or LFO) without allocating.
type CRFunc func(i int) CR

// Process filters a stereo buffer in place. left and right must have
// equal, non-zero length.
func (f *Filter) Process(left, right []float32, cr CRFunc) {
	if f.filterType == None {
		return
	}
	n := len(left)
	i := 0
	for i < n {
		c := cr(i)
		f.updateConfig(c.Cutoff, c.Resonance)

		end := i + segmentSize
		if end > n {
			end = n
		}
		for ; i < end; i++ {
			left[i] = f.applyOne(0, left[i])
			right[i] = f.applyOne(1, right[i])
		}
	}
}

// ProcessMono filters a single-channel buffer in place.
func (f *Filter) ProcessMono(left []float32, cr CRFunc) {
	if f.filterType == None {
		return
	}
	n := len(left)
	i := 0
	for i < n {
		c := cr(i)
		f.updateConfig(c.Cutoff, c.Resonance)

		end := i + segmentSize
		if end > n {
			end = n
		}
		for ; i < end; i++ {
			left[i] = f.applyOne(0, left[i])
		}
	}
}

// Constant returns a CRFunc that always yields the same (cutoff,
// resonance) pair, for the common case of an unmodulated filter.
func Constant(cutoff, resonance float32) CRFunc {
	c := CR{cutoff, resonance}
	return func(int) CR { return c }
}
