package lfo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoLFOsSkipsProcessing(t *testing.T) {
	b := New(nil, 44100, 256)
	require.False(t, b.NeedProcess())
}

func TestPitchLFODepthDoublesZeroCrossingRate(t *testing.T) {
	const sr = 44100
	const n = sr // 1 second
	slow := New([]Params{{Freq: 1, Wave: WaveSine, ToPitch: 1200}}, sr, n)
	slow.Process(n, nil)

	// The pitch buffer is the playback-rate multiplier, and so the
	// multiplier of a played sample's zero-crossing rate: at the LFO's
	// positive peak (0.25s) +1200 cents doubles it, at the negative
	// peak (0.75s) it is halved.
	pitch := slow.Get(Pitch)
	early, late := 0.0, math.Inf(1)
	for i := int(0.1 * sr); i < int(0.4*sr); i++ {
		early = math.Max(early, pitch[i])
	}
	for i := int(0.6 * sr); i < int(0.9*sr); i++ {
		late = math.Min(late, pitch[i])
	}
	require.InDelta(t, 2.0, early, 1e-3)
	require.InDelta(t, 0.5, late, 1e-3)
}

func TestVolumeLFODepthMinus6dBHalvesAmplitude(t *testing.T) {
	const sr = 44100
	const n = sr
	b := New([]Params{{Freq: 1, Wave: WaveSine, ToVolume: -6}}, sr, n)
	b.Process(n, nil)

	// At the LFO's positive peak (0.25s) the -6 dB depth roughly halves
	// the amplitude; at the negative peak (0.75s) it roughly doubles it.
	vol := b.Get(Volume)
	trough, peak := math.Inf(1), 0.0
	for i := int(0.1 * sr); i < int(0.4*sr); i++ {
		trough = math.Min(trough, vol[i])
	}
	for i := int(0.6 * sr); i < int(0.9*sr); i++ {
		peak = math.Max(peak, vol[i])
	}
	require.InDelta(t, math.Pow(10, -6.0/20), trough, 1e-3, "-6 dB at the LFO's positive peak")
	require.InDelta(t, math.Pow(10, 6.0/20), peak, 1e-3, "+6 dB at the LFO's negative peak")
}

func TestDelayGatesOutputToUnity(t *testing.T) {
	const sr = 44100
	b := New([]Params{{Freq: 5, Wave: WaveSine, ToPitch: 1200, Delay: 0.01}}, sr, sr)
	b.Process(100, nil)
	for i := 0; i < int(0.01*sr) && i < 100; i++ {
		require.InDelta(t, 1.0, b.Get(Pitch)[i], 1e-9)
	}
}

func TestSampleAndHoldIsBoundedAndDeterministicWithinPeriod(t *testing.T) {
	const sr = 44100
	b := New([]Params{{Freq: 2, Wave: WaveRandom, ToVolume: 6}}, sr, sr)
	b.Process(sr, nil)
	for _, v := range b.Get(Volume) {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}
