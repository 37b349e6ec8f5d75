package voice

import "github.com/sfzvoice/sfzvoice/upsample"

// interpolateHermite implements the quality-2 interpolator: a 4-point
// cubic Hermite (Catmull-Rom) spline through the two samples
// surrounding pos and their immediate neighbors (spec.md 4.6).
func (v *Voice) interpolateHermite(pos float64) (float32, float32) {
	i0 := int(pos)
	t := float32(pos - float64(i0))
	ch := v.play.Channels()

	l0, r0 := v.fetch(i0-1, ch)
	l1, r1 := v.fetch(i0, ch)
	l2, r2 := v.fetch(i0+1, ch)
	l3, r3 := v.fetch(i0+2, ch)

	return hermite4(l0, l1, l2, l3, t), hermite4(r0, r1, r2, r3, t)
}

func hermite4(y0, y1, y2, y3, t float32) float32 {
	c0 := y1
	c1 := 0.5 * (y2 - y0)
	c2 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	c3 := 0.5*(y3-y0) + 1.5*(y1-y2)
	return ((c3*t+c2)*t+c1)*t + c0
}

// upsampleHistoryLo/Hi bound the window of source frames (relative to
// the base index) that must be fetched to evaluate the 11-tap
// half-band filter at both the base index and the next one.
const (
	upsampleHistoryLo = -10
	upsampleHistoryHi = 12
	upsampleHistoryLen = upsampleHistoryHi - upsampleHistoryLo + 1
)

// interpolateOptimal implements the quality-3 interpolator: the
// source is upsampled 2x with the fixed half-band filter, then the
// three resulting points spanning pos are linearly interpolated
// (spec.md 4.6 and 6). This trades the original's dedicated 4th-order
// optimal-2x polynomial for a plain linear blend across the 2x grid;
// recorded as a simplification in DESIGN.md.
func (v *Voice) interpolateOptimal(pos float64) (float32, float32) {
	i0 := int(pos)
	frac := pos - float64(i0)
	ch := v.play.Channels()

	lhist := v.upsampleL
	rhist := v.upsampleR
	for k := upsampleHistoryLo; k <= upsampleHistoryHi; k++ {
		l, r := v.fetch(i0+k, ch)
		lhist[k-upsampleHistoryLo] = l
		rhist[k-upsampleHistoryLo] = r
	}
	base := -upsampleHistoryLo // index of i0 within the history arrays

	le0, lo0 := upsample.Mono(lhist, base)
	le1, _ := upsample.Mono(lhist, base+1)
	re0, ro0 := upsample.Mono(rhist, base)
	re1, _ := upsample.Mono(rhist, base+1)

	local := float32(frac * 2)
	if local < 1 {
		return le0 + local*(lo0-le0), re0 + local*(ro0-re0)
	}
	t := local - 1
	return lo0 + t*(le1-lo0), ro0 + t*(re1-ro0)
}
