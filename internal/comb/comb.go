// Package comb implements a small Schroeder/Freeverb-style reverb
// (parallel comb filters feeding a series of allpass filters) used as
// an optional post-render effect by the cmd front-ends. It operates
// directly on the engine's float32 stereo render buffers, in place, so
// it can be dropped into either an offline render pass (call once over
// the whole buffer) or a live render loop (call once per block) with
// the same API.
package comb

// allpassFilter is a single fixed-delay allpass section.
type allpassFilter struct {
	buffer   []float32
	pos      int
	feedback float32
}

func newAllpass(delay int) *allpassFilter {
	if delay < 1 {
		delay = 1
	}
	return &allpassFilter{buffer: make([]float32, delay), feedback: 0.5}
}

func (a *allpassFilter) process(input float32) float32 {
	bufout := a.buffer[a.pos]
	output := -input + bufout
	a.buffer[a.pos] = input + bufout*a.feedback
	a.pos++
	if a.pos >= len(a.buffer) {
		a.pos = 0
	}
	return output
}

// combFilter is a single fixed-delay comb section with a damped
// feedback path (a one-pole lowpass inside the loop).
type combFilter struct {
	buffer      []float32
	pos         int
	decay       float32
	damping     float32
	filterStore float32
}

func newCombFilter(delay int, decay, damping float32) *combFilter {
	if delay < 1 {
		delay = 1
	}
	return &combFilter{buffer: make([]float32, delay), decay: decay, damping: damping}
}

func (c *combFilter) process(input float32) float32 {
	output := c.buffer[c.pos]
	c.filterStore = output*(1-c.damping) + c.filterStore*c.damping
	c.buffer[c.pos] = input + c.filterStore*c.decay
	c.pos++
	if c.pos >= len(c.buffer) {
		c.pos = 0
	}
	return output
}

// combTunings/allpassTunings are delay lengths in samples at 44100Hz,
// scaled to the target sample rate; the classic Freeverb tuning set,
// thinned to 4 combs and 2 allpasses per channel.
var combTunings = [4]int{1116, 1188, 1277, 1356}
var allpassTunings = [2]int{556, 441}

func scaleDelay(base, sampleRate int) int {
	d := base * sampleRate / 44100
	if d < 1 {
		d = 1
	}
	return d
}

type reverbChannel struct {
	combs     [len(combTunings)]*combFilter
	allpasses [len(allpassTunings)]*allpassFilter
}

func newReverbChannel(roomSize, damping float32, sampleRate int) *reverbChannel {
	decay := 0.28 + roomSize*0.5
	rc := &reverbChannel{}
	for i, t := range combTunings {
		rc.combs[i] = newCombFilter(scaleDelay(t, sampleRate), decay, damping)
	}
	for i, t := range allpassTunings {
		rc.allpasses[i] = newAllpass(scaleDelay(t, sampleRate))
	}
	return rc
}

func (rc *reverbChannel) process(input float32) float32 {
	var sum float32
	for _, c := range rc.combs {
		sum += c.process(input)
	}
	out := sum / float32(len(rc.combs))
	for _, a := range rc.allpasses {
		out = a.process(out)
	}
	return out
}

// StereoReverb applies a room-simulation reverb to a pair of float32
// stereo render buffers, in place. It holds no buffering of its own
// beyond the filters' internal delay lines, so Process can be called
// repeatedly across successive render blocks (a live renderer) or once
// over an entire pre-rendered buffer (an offline renderer) with
// identical results.
type StereoReverb struct {
	left, right *reverbChannel
	mix         float32
}

// NewStereoReverb constructs a reverb at sampleRate, with a
// room-size/damping pair controlling the comb filters' decay, and mix
// selecting the wet/dry blend (0 = dry, 1 = fully wet).
func NewStereoReverb(roomSize, damping, mix float32, sampleRate int) *StereoReverb {
	return &StereoReverb{
		left:  newReverbChannel(roomSize, damping, sampleRate),
		right: newReverbChannel(roomSize, damping, sampleRate),
		mix:   mix,
	}
}

// Process applies the reverb to left and right in place. The two
// slices must be the same length.
func (r *StereoReverb) Process(left, right []float32) {
	for i := range left {
		wetL := r.left.process(left[i])
		wetR := r.right.process(right[i])
		left[i] = left[i]*(1-r.mix) + wetL*r.mix
		right[i] = right[i]*(1-r.mix) + wetR*r.mix
	}
}
