// Package upsample implements the fixed 2x half-band polyphase
// upsampling filter used by the quality-3 voice interpolator.
package upsample

// Taps are the symmetric half-band FIR coefficients, reproduced
// byte-for-byte from the generated filter design used at quality 3
// (spec.md 6). c1 applies to the two nearest neighbors, c11 to the
// two furthest.
var Taps = [11]float32{
	0.63237116454128905,
	-0.1997498002401274,
	0.10748860423425083,
	-0.064996197861812793,
	0.040215547574385509,
	-0.024427947042245154,
	0.014168419143340378,
	-0.00763898924164643,
	0.0036936200627533675,
	-0.0015023373417955108,
	0.00043564746173319177,
}

// Mono computes one 2x-upsampled pair {even, odd} from a mono history
// window. in must provide in[-10..11] relative to the 0 index passed,
// i.e. callers index a slice with at least 10 samples of history
// before idx and 11 samples ahead.
func Mono(in []float32, idx int) (even, odd float32) {
	even = in[idx]
	odd = 0
	for k := 0; k < len(Taps); k++ {
		odd += (in[idx-k] + in[idx+k+1]) * Taps[k]
	}
	return
}

// Stereo computes one 2x-upsampled interleaved stereo frame pair from
// an interleaved history window, with the same indexing convention as
// Mono but idx counts frames (2 floats per frame).
func Stereo(in []float32, frameIdx int) (l0, r0, l1, r1 float32) {
	base := frameIdx * 2
	l0 = in[base]
	r0 = in[base+1]
	for k := 0; k < len(Taps); k++ {
		lo := (frameIdx - k) * 2
		hi := (frameIdx + k + 1) * 2
		l1 += (in[lo] + in[hi]) * Taps[k]
		r1 += (in[lo+1] + in[hi+1]) * Taps[k]
	}
	return
}
