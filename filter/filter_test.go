package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func impulse(n int) []float32 {
	buf := make([]float32, n)
	buf[0] = 1
	return buf
}

func TestFilterStabilityNoNaNOrInf(t *testing.T) {
	types := []Type{LPF1P, HPF1P, LPF2P, HPF2P, BPF2P, BRF2P, LPF4P, HPF4P, LPF6P, HPF6P}
	rapid.Check(t, func(rt *rapid.T) {
		ty := types[rapid.IntRange(0, len(types)-1).Draw(rt, "type")]
		cutoff := rapid.Float64Range(10, 0.49*44100).Draw(rt, "cutoff")
		resonance := rapid.Float64Range(-12, 24).Draw(rt, "resonance")

		f := New(ty, 44100)
		left := impulse(4096)
		right := impulse(4096)
		f.Process(left, right, Constant(float32(cutoff), float32(resonance)))

		for _, v := range left {
			require.False(rt, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0))
		}
	})
}

func TestLPF2PAttenuatesHighFrequency(t *testing.T) {
	const sr = 44100
	f := New(LPF2P, sr)
	n := 4096
	left := make([]float32, n)
	right := make([]float32, n)
	// High-frequency content near Nyquist.
	for i := range left {
		left[i] = float32(math.Sin(2 * math.Pi * 15000 * float64(i) / sr))
		right[i] = left[i]
	}
	rms := func(buf []float32) float64 {
		var sum float64
		for _, v := range buf {
			sum += float64(v) * float64(v)
		}
		return math.Sqrt(sum / float64(len(buf)))
	}
	before := rms(left)

	f.Process(left, right, Constant(500, 0))
	after := rms(left)

	require.Less(t, after, before*0.5, "a 500Hz lowpass should attenuate a 15kHz tone")
}

func TestNoneTypePassesThrough(t *testing.T) {
	f := New(None, 44100)
	left := []float32{1, 2, 3}
	right := []float32{4, 5, 6}
	f.Process(left, right, Constant(1000, 0))
	require.Equal(t, []float32{1, 2, 3}, left)
	require.Equal(t, []float32{4, 5, 6}, right)
}
