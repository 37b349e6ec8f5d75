// Package lfo implements the per-voice LFO generator bank (C6):
// multiple LFOs with independent wave shapes, delay/fade gating, and
// inter-LFO frequency modulation, feeding three possible output
// buffers (pitch, volume, cutoff multipliers).
package lfo

import "math"

// Wave selects an LFO's oscillator shape.
type Wave int

const (
	WaveSine Wave = iota
	WaveTriangle
	WaveSquare
	WaveSaw
	WaveRandom // sample & hold
)

// OutputType names one of the three destinations an LFO can target.
type OutputType int

const (
	Pitch OutputType = iota
	Volume
	Cutoff
	numOutputs
)

// evalBlock is the granularity at which wave/frequency values are
// recomputed; the result is smoothed into the per-sample buffer
// rather than recomputed every sample.
const evalBlock = 32

// smoothingCoeff is the one-pole smoothing factor applied across
// evalBlock boundaries to avoid zippering.
const smoothingCoeff = 0.99

// ModLink describes one LFO's frequency being modulated by another
// LFO's current value (lfo_mods in the region schema).
type ModLink struct {
	FromIndex    int // source LFO index
	BaseFreqMod  float64
}

// Params are one LFO's static configuration, resolved from a region
// plus live CC values at Start time (CC contributions are folded into
// these fields by the caller before Start, matching how voice.cc
// recomputes CC-dependent bases on update_cc rather than on every
// sample).
type Params struct {
	Freq     float64
	Wave     Wave
	Phase    float64 // 0..1, initial phase offset
	Delay    float64 // seconds
	Fade     float64 // seconds
	ToPitch  float64 // cents
	ToVolume float64 // dB
	ToCutoff float64 // cents
	Mods     []ModLink
}

type lfoState struct {
	params Params

	phase   float64
	freq    float64
	value   float64
	delayLen int
	fadeLen  int
	fadePos  int

	shValue      float64
	lastSHPeriod int64
}

// Bank is a voice's full set of LFOs plus the three possible output
// buffers.
type Bank struct {
	sampleRate int
	lfos       []lfoState

	active  [numOutputs]bool
	buffers [numOutputs][]float64
	last    [numOutputs]float64
}

// New allocates a Bank sized for the given LFO parameter list and
// block size. Buffer allocation happens once, at voice Start time,
// never in the per-sample render path.
func New(params []Params, sampleRate, maxBlockFrames int) *Bank {
	b := &Bank{sampleRate: sampleRate, lfos: make([]lfoState, len(params))}
	for i, p := range params {
		b.lfos[i] = lfoState{
			params:   p,
			phase:    p.Phase,
			freq:     p.Freq,
			delayLen: secondsToSamples(sampleRate, p.Delay),
			fadeLen:  maxInt(secondsToSamples(sampleRate, p.Fade), 1),
			lastSHPeriod: -1,
		}
		if p.ToPitch != 0 {
			b.active[Pitch] = true
		}
		if p.ToVolume != 0 {
			b.active[Volume] = true
		}
		if p.ToCutoff != 0 {
			b.active[Cutoff] = true
		}
	}
	for t := OutputType(0); t < numOutputs; t++ {
		if b.active[t] {
			b.buffers[t] = make([]float64, maxBlockFrames)
			b.last[t] = 1.0
		}
	}
	return b
}

func secondsToSamples(sr int, seconds float64) int {
	n := int(float64(sr) * seconds)
	if n < 0 {
		return 0
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// NeedProcess reports whether this bank has any LFOs at all — a voice
// with no LFOs can skip calling Process entirely.
func (b *Bank) NeedProcess() bool { return len(b.lfos) > 0 }

// Get returns the most recently rendered output buffer for the given
// destination. The buffer is nil if no LFO targets that destination.
func (b *Bank) Get(t OutputType) []float64 {
	return b.buffers[t][:]
}

func waveValue(w Wave, phase float64, lfo *lfoState, periodIndex int64) float64 {
	// phase is in cycles, 0..1.
	switch w {
	case WaveSine:
		return math.Sin(2 * math.Pi * phase)
	case WaveTriangle:
		p := math.Mod(phase, 1)
		if p < 0 {
			p += 1
		}
		if p < 0.5 {
			return -1 + 4*p
		}
		return 3 - 4*p
	case WaveSquare:
		p := math.Mod(phase, 1)
		if p < 0 {
			p += 1
		}
		if p < 0.5 {
			return 1
		}
		return -1
	case WaveSaw:
		p := math.Mod(phase, 1)
		if p < 0 {
			p += 1
		}
		return 2*p - 1
	case WaveRandom:
		if lfo.lastSHPeriod != periodIndex {
			lfo.lastSHPeriod = periodIndex
			lfo.shValue = 2*pseudoRandom(periodIndex) - 1
		}
		return lfo.shValue
	default:
		return 0
	}
}

// pseudoRandom is a cheap deterministic generator used for the
// sample-and-hold wave: it must not allocate and must not touch
// crypto/math/rand's global lock from the audio thread.
func pseudoRandom(seed int64) float64 {
	x := uint64(seed)*0x9E3779B97F4A7C15 + 0xA24BAED4963EE407
	x ^= x >> 33
	x *= 0xFF51AFD7ED558CCD
	x ^= x >> 33
	return float64(x>>11) / float64(1<<53)
}

// Process renders n samples into the active output buffers. Matching
// lfogen.cc: the waveform/gate value and the resulting per-output
// target (summed cents for pitch/cutoff, summed dB for volume) are
// only recomputed every evalBlock samples, then smoothed into the
// per-sample buffer with a one-pole filter so a block boundary never
// zippers. Phase, delay and fade counters still advance every sample,
// using freq/sample_rate per sample and the delay/fade gate and
// inter-LFO frequency modulation. ccFreqSum supplies the per-LFO frequency
// CC contribution already summed by the caller (voice.update_cc keeps
// this current; Process never touches CC state directly).
func (b *Bank) Process(n int, ccFreqSum []float64) {
	var targetPitchCents, targetVolumeDB, targetCutoffCents float64

	for i := 0; i < n; i++ {
		if i%evalBlock == 0 {
			targetPitchCents, targetVolumeDB, targetCutoffCents = 0, 0, 0
			for idx := range b.lfos {
				l := &b.lfos[idx]
				if l.delayLen > 0 {
					l.value = 0
					continue
				}
				periodIndex := int64(l.phase)
				raw := waveValue(l.params.Wave, l.phase, l, periodIndex)

				gate := 1.0
				if l.fadePos < l.fadeLen {
					gate = float64(l.fadePos) / float64(l.fadeLen)
				}
				l.value = raw * gate

				if l.params.ToPitch != 0 {
					targetPitchCents += l.value * l.params.ToPitch
				}
				if l.params.ToVolume != 0 {
					targetVolumeDB += l.value * l.params.ToVolume
				}
				if l.params.ToCutoff != 0 {
					targetCutoffCents += l.value * l.params.ToCutoff
				}
			}
		}

		if b.active[Pitch] {
			target := 1.0
			if targetPitchCents != 0 {
				target = math.Exp2(targetPitchCents / 1200)
			}
			b.last[Pitch] = target*(1-smoothingCoeff) + b.last[Pitch]*smoothingCoeff
			b.buffers[Pitch][i] = b.last[Pitch]
		}
		if b.active[Volume] {
			target := 1.0
			if targetVolumeDB != 0 {
				target = math.Pow(10, targetVolumeDB/20)
			}
			b.last[Volume] = target*(1-smoothingCoeff) + b.last[Volume]*smoothingCoeff
			b.buffers[Volume][i] = b.last[Volume]
		}
		if b.active[Cutoff] {
			target := 1.0
			if targetCutoffCents != 0 {
				target = math.Exp2(targetCutoffCents / 1200)
			}
			b.last[Cutoff] = target*(1-smoothingCoeff) + b.last[Cutoff]*smoothingCoeff
			b.buffers[Cutoff][i] = b.last[Cutoff]
		}

		for idx := range b.lfos {
			l := &b.lfos[idx]
			freqMod := 0.0
			if ccFreqSum != nil && idx < len(ccFreqSum) {
				freqMod = ccFreqSum[idx]
			}
			for _, m := range l.params.Mods {
				if m.FromIndex >= 0 && m.FromIndex < len(b.lfos) {
					freqMod += b.lfos[m.FromIndex].value * m.BaseFreqMod
				}
			}
			l.freq = l.params.Freq + freqMod
			l.phase += l.freq / float64(b.sampleRate)
			if l.phase >= 1 {
				l.phase -= math.Floor(l.phase)
			}

			if l.delayLen > 0 {
				l.delayLen--
			}
			if l.fadePos < l.fadeLen {
				l.fadePos++
			}
		}
	}
}
