// Package voice implements the per-voice DSP graph (C7): sample
// fetch and interpolation, envelope/filter/LFO modulation, gain/pan/
// width/crossfade composition, and additive mixing into the output
// buffer. Grounded on original_source/lib/voice.cc.
package voice

import (
	"math"

	"github.com/sfzvoice/sfzvoice/curve"
	"github.com/sfzvoice/sfzvoice/envelope"
	"github.com/sfzvoice/sfzvoice/filter"
	"github.com/sfzvoice/sfzvoice/lfo"
	"github.com/sfzvoice/sfzvoice/region"
	"github.com/sfzvoice/sfzvoice/sample"
	"github.com/sfzvoice/sfzvoice/smooth"
)

// State is a voice's lifecycle stage (spec.md 3).
type State int

const (
	Idle State = iota
	Active
	Sustaining
	Released
)

// Quality selects the interpolation algorithm (spec.md 4.6).
type Quality int

const (
	QualityLinear  Quality = 1
	QualityHermite Quality = 2
	QualityOptimal Quality = 3
)

// gainSmoothMS sets the smoother ramp duration used for voice
// gain/pan/pitch changes driven by controller updates (spec.md 5).
// Filter cutoff/resonance zippering is handled by the filter
// package's own per-segment smoothing clamp instead.
const gainSmoothMS = 20.0

// CCSource supplies channel controller state to a voice: current CC
// values, the pitch-bend value, and curve lookups. Voice never reads
// channel state directly, so it has no import-cycle dependency on the
// synth package that owns channelState.
type CCSource interface {
	CC(channel, number int) int
	PitchBend(channel int) int
	CurveTable() *curve.Table
}

// Voice is one transient instantiation of a Region producing audio.
type Voice struct {
	state State

	region  *region.Region
	channel int
	key     int
	velocity int

	outputSampleRate int
	quality          Quality

	ccs     CCSource
	curves  *curve.Table

	play *sample.PlayHandle
	pos  float64 // fractional source-rate frame position

	loopEnabled bool
	loopStart, loopEnd int

	ampEnv *envelope.Envelope
	filEnv *envelope.Envelope

	filters [2]*filter.Filter
	lfos    *lfo.Bank

	replaySpeed *smooth.Linear
	leftGain    *smooth.Linear
	rightGain   *smooth.Linear

	ampRandomGain   float64
	pitchRandomCent float64
	rtDecayGain     float64
	velocityGain    float64

	delayRemaining int

	onIdle func(v *Voice)

	// Scratch buffers sized once (to the dispatcher's max render span)
	// at New time and reused across Process calls, never reallocated
	// on the audio thread.
	voiceBuf  [][2]float32
	flBuf     []float32
	frBuf     []float32
	filEnvBuf []float64
	upsampleL []float32
	upsampleR []float32
}

// New allocates a Voice with its filter/LFO sub-objects constructed
// (but not started) for the given output sample rate. maxBlockFrames
// sizes the per-block scratch buffers; the LFO bank built at Start is
// sized by maxBlockFramesDefault instead.
func New(outputSampleRate int, maxBlockFrames int) *Voice {
	return &Voice{
		outputSampleRate: outputSampleRate,
		filters: [2]*filter.Filter{
			filter.New(filter.None, outputSampleRate),
			filter.New(filter.None, outputSampleRate),
		},
		replaySpeed: smooth.NewLinear(1),
		leftGain:    smooth.NewLinear(0),
		rightGain:   smooth.NewLinear(0),
		ampEnv:      envelope.New(envelope.Params{}),
		filEnv:      envelope.New(envelope.Params{}),

		voiceBuf:  make([][2]float32, maxBlockFrames),
		flBuf:     make([]float32, maxBlockFrames),
		frBuf:     make([]float32, maxBlockFrames),
		filEnvBuf: make([]float64, maxBlockFrames),
		upsampleL: make([]float32, upsampleHistoryLen),
		upsampleR: make([]float32, upsampleHistoryLen),
	}
}

// State returns the voice's current lifecycle state.
func (v *Voice) State() State { return v.state }

// Region returns the region this voice was most recently started
// with (nil only before the first Start); it is not cleared when the
// voice goes idle.
func (v *Voice) Region() *region.Region { return v.region }

// Channel returns the MIDI channel this voice is playing on.
func (v *Voice) Channel() int { return v.channel }

// Key returns the note key this voice was started with.
func (v *Voice) Key() int { return v.key }

// uniform returns a pseudo-random float in [0,1) from a package-level
// xorshift generator, avoiding math/rand's global lock on the audio
// thread.
func uniform() float64 {
	return pseudoRandomState.next()
}

// Uniform exposes the same generator to callers outside the package
// (the synth package's random trigger gate), so the whole engine
// shares one non-locking source instead of each package rolling its
// own.
func Uniform() float64 {
	return uniform()
}

type xorshiftState struct{ s uint64 }

func (x *xorshiftState) next() float64 {
	x.s ^= x.s << 13
	x.s ^= x.s >> 7
	x.s ^= x.s << 17
	if x.s == 0 {
		x.s = 0x9E3779B97F4A7C15
	}
	return float64(x.s>>11) / float64(1<<53)
}

var pseudoRandomState = &xorshiftState{s: 0x2545F4914F6CDD1D}

// Start initializes the voice from r and begins producing audio on
// subsequent Process calls (spec.md 4.6).
func (v *Voice) Start(r *region.Region, ccs CCSource, play *sample.PlayHandle, channel, key, velocity int, timeSinceNoteOn float64, quality Quality, onIdle func(*Voice)) {
	v.region = r
	v.ccs = ccs
	v.curves = ccs.CurveTable()
	v.channel = channel
	v.key = key
	v.velocity = velocity
	v.play = play
	v.quality = quality
	v.onIdle = onIdle

	v.ampRandomGain = math.Pow(10, r.AmpRandom*uniform()/20)
	v.pitchRandomCent = r.PitchRandom * uniform()

	v.velocityGain = v.computeVelocityGain(velocity)

	if r.Trigger == region.TriggerRelease {
		v.rtDecayGain = math.Pow(10, -timeSinceNoteOn*r.RTDecay/20)
	} else {
		v.rtDecayGain = 1
	}

	delaySeconds := r.Delay + v.sumCC(r.DelayCC)
	v.delayRemaining = secondsToSamples(v.outputSampleRate, delaySeconds)

	v.loopEnabled = (r.LoopMode == region.LoopContinuous || r.LoopMode == region.LoopSustain) && r.LoopEnd > r.LoopStart
	v.loopStart = r.LoopStart
	v.loopEnd = r.LoopEnd

	offsetRandom := r.OffsetRandom * uniform()
	start := r.Offset + offsetRandom + v.sumCC(r.OffsetCC)
	if v.loopEnabled && int(start) >= r.LoopEnd {
		v.loopEnabled = false
	}
	v.pos = start

	sr := v.outputSampleRate // envelopes advance once per output sample
	v.ampEnv = envelope.New(region.ToEnvelopeParams(r.AmpEG, velocityNorm(velocity), v.ccValueFunc(), v.curveGetFunc()))
	v.ampEnv.Start(sr, r.OffTime)
	v.filEnv = envelope.New(region.ToEnvelopeParams(r.FilEG, velocityNorm(velocity), v.ccValueFunc(), v.curveGetFunc()))
	v.filEnv.Start(sr, r.OffTime)

	v.filters[0].SetType(r.Filters[0].Type)
	v.filters[0].SetSampleRate(v.outputSampleRate)
	v.filters[0].Reset()
	v.filters[1].SetType(r.Filters[1].Type)
	v.filters[1].SetSampleRate(v.outputSampleRate)
	v.filters[1].Reset()

	lfoParams := make([]lfo.Params, len(r.LFOs))
	for i, l := range r.LFOs {
		lfoParams[i] = lfo.Params{
			Freq: l.Freq + v.sumCC(l.FreqCC), Wave: l.Wave, Phase: l.Phase,
			Delay: l.Delay, Fade: l.Fade,
			ToPitch: l.ToPitch, ToVolume: l.ToVolume, ToCutoff: l.ToCutoff,
			Mods: l.Mods,
		}
	}
	v.lfos = lfo.New(lfoParams, v.outputSampleRate, maxBlockFramesDefault)

	v.replaySpeed.Reset(float64(v.outputSampleRate), 0) // immediate; pitch updates ramp via CC path
	v.replaySpeed.Set(v.computeReplaySpeed(), true)

	v.leftGain.Reset(float64(v.outputSampleRate), gainSmoothMS/1000)
	v.rightGain.Reset(float64(v.outputSampleRate), gainSmoothMS/1000)
	left, right := v.computeLRGain()
	v.leftGain.Set(left, true)
	v.rightGain.Set(right, true)

	v.state = Active
}

// maxBlockFramesDefault bounds per-voice LFO buffer size; voices are
// rendered in sub-blocks capped by the dispatcher's MAX_BLOCK_SIZE.
const maxBlockFramesDefault = 1024

func secondsToSamples(sr int, seconds float64) int {
	n := int(float64(sr) * seconds)
	if n < 0 {
		return 0
	}
	return n
}

func velocityNorm(v int) float64 { return float64(v) / 127.0 }

func (v *Voice) ccValueFunc() func(cc int) int {
	return func(cc int) int { return v.ccs.CC(v.channel, cc) }
}

func (v *Voice) curveGetFunc() func(curveIdx, ccVal int) float64 {
	return func(curveIdx, ccVal int) float64 {
		if curveIdx < 0 {
			return v.curves.Builtin(curve.BuiltinLinear01).Get(ccVal)
		}
		return v.curves.Builtin(curveIdx).Get(ccVal)
	}
}

func (v *Voice) sumCC(list region.CCList) float64 {
	sum := 0.0
	for _, c := range list {
		sum += v.curveValue(c.Curve, v.ccs.CC(v.channel, c.Number)) * c.Value
	}
	return sum
}

// productCC implements the documented amplitude_cc asymmetry
// (spec.md 9): these contributions multiply rather than sum.
func (v *Voice) productCC(list region.CCList) float64 {
	product := 1.0
	for _, c := range list {
		product *= v.curveValue(c.Curve, v.ccs.CC(v.channel, c.Number)) * c.Value
	}
	return product
}

func (v *Voice) curveValue(curveIdx, ccVal int) float64 {
	if curveIdx < 0 {
		return v.curves.Builtin(curve.BuiltinLinear01).Get(ccVal)
	}
	return v.curves.Builtin(curveIdx).Get(ccVal)
}

func (v *Voice) computeVelocityGain(velocity int) float64 {
	var curveVal float64
	if len(v.region.AmpVelcurve) > 0 {
		pts := make([]curve.Point, len(v.region.AmpVelcurve))
		for i, p := range v.region.AmpVelcurve {
			pts[i] = curve.Point{Pos: p.Pos, Value: p.Value}
		}
		curveVal = v.curves.Intern(pts).Get(velocity)
	} else {
		curveVal = float64(velocity) * float64(velocity) / (127.0 * 127.0)
	}
	veltrack := v.region.AmpVeltrack / 100.0
	return (1 - veltrack) + veltrack*curveVal
}

// computeReplaySpeed implements spec.md 4.6's semitone composition
// and returns the output-rate playback increment per output sample.
func (v *Voice) computeReplaySpeed() float64 {
	r := v.region
	// PitchKeytrack is cents-per-semitone-of-key-distance (100 is the
	// normal 1 semitone per key), so this term is already in semitones.
	keytrackSemitones := float64(v.key-r.PitchKeycenter) * float64(r.PitchKeytrack) / 100.0
	bend := v.ccs.PitchBend(v.channel)
	bendSigned := float64(bend-8192) / 8192.0 // -1..~1
	var bendCents float64
	if bendSigned >= 0 {
		bendCents = r.BendUp * bendSigned
	} else {
		bendCents = r.BendDown * (-bendSigned)
	}
	semitones := keytrackSemitones +
		(r.Tune+v.pitchRandomCent)/100.0 +
		r.Transpose +
		bendCents/100.0 +
		v.sumCC(r.TuneCC)/100.0

	ratio := math.Exp2(semitones / 12.0)
	return ratio * float64(v.play.SampleRate()) / float64(v.outputSampleRate)
}

// panFactor implements the sine pan law (spec.md 4.6): channel 0 is
// left, 1 is right.
func panFactor(panSigned float64, channel int) float64 {
	p := panSigned
	if channel == 0 {
		p = -p
	}
	return math.Sin((p+100)/400*math.Pi) * math.Sqrt2
}

// cc7cc10Gain synthesizes default CC7/CC10 behavior when a region
// does not otherwise respond to those controllers (spec.md 6): CC7
// scales volume via the builtin quadratic curve, CC10 pans via the
// builtin linear -1..1 curve scaled to +-100.
func (v *Voice) cc7cc10Gain(channel int) float64 {
	vol := v.curves.Builtin(curve.BuiltinQuadratic).Get(v.ccs.CC(v.channel, 7))
	panCC := v.curves.Builtin(curve.BuiltinLinearNP1).Get(v.ccs.CC(v.channel, 10)) * 100
	return math.Sqrt(vol) * panFactor(panCC, channel) / math.Sqrt2
}

func dbToGain(db float64) float64 { return math.Pow(10, db/20) }

// applyXFCurve implements the power-law (xfin^2+xfout^2=1) and
// gain-law (xfin+xfout=1) crossfades (spec.md 8).
func applyXFCurve(x float64, curveKind region.XFCurve) (in, out float64) {
	if x <= 0 {
		return 0, 1
	}
	if x >= 1 {
		return 1, 0
	}
	if curveKind == region.XFPower {
		return math.Sqrt(x), math.Sqrt(1 - x)
	}
	return x, 1 - x
}

// Range is a small local alias to avoid importing region for this
// helper's signature duplication; see region.Range.
type Range = region.Range

func (v *Voice) crossfadeGain() float64 {
	r := v.region
	gain := 1.0

	if vIn, vOut := r.XFInLo, r.XFInHi; vIn.Hi > vIn.Lo || vOut.Hi > vOut.Lo {
		frac := fadeFraction(v.velocity, vIn, vOut)
		in, _ := applyXFCurve(frac, r.XFVelCurve)
		gain *= in
	}
	if vIn, vOut := r.XFOutLo, r.XFOutHi; vIn.Hi > vIn.Lo || vOut.Hi > vOut.Lo {
		frac := fadeFraction(v.velocity, vIn, vOut)
		_, out := applyXFCurve(frac, r.XFVelCurve)
		gain *= out
	}
	if vIn, vOut := r.XFInKeyLo, r.XFInKeyHi; vIn.Hi > vIn.Lo || vOut.Hi > vOut.Lo {
		frac := fadeFraction(v.key, vIn, vOut)
		in, _ := applyXFCurve(frac, r.XFKeyCurve)
		gain *= in
	}
	if vIn, vOut := r.XFOutKeyLo, r.XFOutKeyHi; vIn.Hi > vIn.Lo || vOut.Hi > vOut.Lo {
		frac := fadeFraction(v.key, vIn, vOut)
		_, out := applyXFCurve(frac, r.XFKeyCurve)
		gain *= out
	}
	for _, ccr := range r.XFInCCs {
		frac := fadeFraction(v.ccs.CC(v.channel, ccr.CC), Range{ccr.Lo, ccr.Lo}, Range{ccr.Hi, ccr.Hi})
		in, _ := applyXFCurve(frac, r.XFCCCurve)
		gain *= in
	}
	for _, ccr := range r.XFOutCCs {
		frac := fadeFraction(v.ccs.CC(v.channel, ccr.CC), Range{ccr.Lo, ccr.Lo}, Range{ccr.Hi, ccr.Hi})
		_, out := applyXFCurve(frac, r.XFCCCurve)
		gain *= out
	}
	return gain
}

func fadeFraction(v int, lo, hi Range) float64 {
	if v <= lo.Hi {
		return 0
	}
	if v >= hi.Lo {
		return 1
	}
	span := hi.Lo - lo.Hi
	if span <= 0 {
		return 1
	}
	return float64(v-lo.Hi) / float64(span)
}

func (v *Voice) computeVolumeGain() float64 {
	r := v.region
	db := r.Volume + v.sumCC(r.VolumeCC)
	gain := dbToGain(db)
	gain *= v.ampRandomGain
	gain *= v.crossfadeGain()
	amp := r.Amplitude / 100.0
	if len(r.AmplitudeCC) > 0 {
		amp *= v.productCC(r.AmplitudeCC)
	}
	return gain * amp
}

func (v *Voice) computeLRGain() (left, right float64) {
	r := v.region
	globalGain := v.computeVolumeGain() * v.velocityGain * v.rtDecayGain
	cc7cc10L := v.cc7cc10Gain(0)
	cc7cc10R := v.cc7cc10Gain(1)

	panL := panFactor(r.Pan, 0)
	panR := panFactor(r.Pan, 1)

	left = cc7cc10L * panL * globalGain
	right = cc7cc10R * panR * globalGain
	return
}

// UpdateCC recomputes the gain/pitch/filter parameters affected by
// controller cc and feeds the result into the relevant smoother
// (non-immediate, so the change ramps rather than snaps). Controllers
// 7 and 10 always refresh the cc7/cc10 gain (spec.md 4.6).
func (v *Voice) UpdateCC(cc int) {
	if v.state == Idle {
		return
	}
	left, right := v.computeLRGain()
	v.leftGain.Set(left, false)
	v.rightGain.Set(right, false)
	v.replaySpeed.Set(v.computeReplaySpeed(), false)
}

// SetPitchBend applies a new channel pitch-bend value.
func (v *Voice) SetPitchBend() {
	if v.state == Idle {
		return
	}
	v.replaySpeed.Set(v.computeReplaySpeed(), false)
}

// Stop transitions the voice to RELEASED, starting both envelopes'
// release stage (amp with the region's off_mode, filter with NORMAL).
func (v *Voice) Stop(offMode region.OffMode) {
	if v.state != Active && v.state != Sustaining {
		return
	}
	v.state = Released
	v.ampEnv.Stop(toEnvOffMode(offMode))
	v.filEnv.Stop(envelope.OffNormal)
}

// Sustain transitions an Active voice to Sustaining (deferred release
// while the sustain pedal is held).
func (v *Voice) Sustain() {
	if v.state == Active {
		v.state = Sustaining
	}
}

// Kill immediately silences the voice (all-sound-off / off-by group
// chokes), bypassing the release envelope.
func (v *Voice) Kill() {
	if v.state == Idle {
		return
	}
	v.state = Idle
	if v.onIdle != nil {
		v.onIdle(v)
	}
}

func toEnvOffMode(m region.OffMode) envelope.OffMode {
	switch m {
	case region.OffNormal:
		return envelope.OffNormal
	case region.OffTime:
		return envelope.OffTime
	default:
		return envelope.OffFast
	}
}

// Process renders n frames of audio, additively mixing into left/right
// (which must already contain n samples of prior content), and
// returns once the voice becomes idle mid-block (callers should stop
// calling Process for an idle voice).
func (v *Voice) Process(left, right []float32, n int) {
	if v.state == Idle {
		return
	}

	if v.lfos.NeedProcess() {
		v.lfos.Process(n, nil)
	}

	pitchLFO := v.lfos.Get(lfo.Pitch)
	volLFO := v.lfos.Get(lfo.Volume)
	cutoffLFO := v.lfos.Get(lfo.Cutoff)

	voiceBuf := v.voiceBuf[:n] // per-sample pre-filter, pre-gain render
	for i := 0; i < n; i++ {
		if v.delayRemaining > 0 {
			v.delayRemaining--
			voiceBuf[i] = [2]float32{0, 0}
			continue
		}

		if v.loopEnabled && int(v.pos) >= v.loopEnd {
			v.pos -= float64(v.loopEnd - v.loopStart)
		}

		l, r := v.interpolate(v.pos)
		env := float32(v.ampEnv.GetNext())
		voiceBuf[i] = [2]float32{l * env, r * env}

		speed := v.replaySpeed.GetNext()
		pitchMul := 1.0
		if pitchLFO != nil {
			pitchMul = pitchLFO[i]
		}
		v.pos += speed * pitchMul

		if int(v.pos) >= v.play.NumFrames() && !v.loopEnabled {
			v.finish()
			for j := i + 1; j < n; j++ {
				voiceBuf[j] = [2]float32{0, 0}
			}
			break
		}
		if v.ampEnv.Done() {
			v.finish()
			for j := i + 1; j < n; j++ {
				voiceBuf[j] = [2]float32{0, 0}
			}
			break
		}
	}

	fl := v.flBuf[:n]
	fr := v.frBuf[:n]
	for i := range voiceBuf {
		fl[i], fr[i] = voiceBuf[i][0], voiceBuf[i][1]
	}

	v.processFilters(fl, fr, n, cutoffLFO)
	v.processWidth(fl, fr, n)

	for i := 0; i < n; i++ {
		vol := 1.0
		if volLFO != nil {
			vol = volLFO[i]
		}
		left[i] += fl[i] * float32(v.leftGain.GetNext()) * float32(vol)
		right[i] += fr[i] * float32(v.rightGain.GetNext()) * float32(vol)
	}
}

func (v *Voice) finish() {
	v.state = Idle
	if v.play != nil {
		v.play.Close()
	}
	if v.onIdle != nil {
		v.onIdle(v)
	}
}

func (v *Voice) processFilters(left, right []float32, n int, cutoffLFO []float64) {
	r := v.region

	// The filter envelope must advance exactly once per sample
	// regardless of how often the filter's own coefficient-update
	// callback fires (every 16 samples), so it is rendered into a
	// buffer up front rather than sampled lazily from inside cr().
	var filEnvBuf []float64
	if r.FilEGDepth != 0 && (r.Filters[0].Type != filter.None) {
		filEnvBuf = v.filEnvBuf[:n]
		for i := 0; i < n; i++ {
			filEnvBuf[i] = v.filEnv.GetNext()
		}
	}

	for slot := 0; slot < 2; slot++ {
		fs := r.Filters[slot]
		if fs.Type == filter.None {
			continue
		}

		keyCents := float64(v.key-fs.Keycenter) * fs.Keytrack
		velCents := fs.Veltrack * velocityNorm(v.velocity)
		ccCents := v.sumCC(fs.CutoffCC)
		staticMul := math.Exp2((keyCents + velCents + ccCents) / 1200)

		cr := func(i int) filter.CR {
			cutoff := fs.Cutoff * staticMul
			if slot == 0 && filEnvBuf != nil {
				cutoff *= math.Exp2(filEnvBuf[i] * r.FilEGDepth / 1200)
			}
			if cutoffLFO != nil {
				cutoff *= cutoffLFO[i]
			}
			resonance := fs.Resonance + v.sumCC(fs.ResonanceCC)
			return filter.CR{Cutoff: float32(cutoff), Resonance: float32(resonance)}
		}
		v.filters[slot].Process(left, right, cr)
	}
}

// processWidth applies the stereo width matrix (spec.md 4.6).
func (v *Voice) processWidth(left, right []float32, n int) {
	w := (v.region.Width + 100) / 200
	if math.Abs(w-0.5) < 1e-6 {
		return
	}
	wf := float32(w)
	for i := 0; i < n; i++ {
		l, r := left[i], right[i]
		left[i] = wf*l + (1-wf)*r
		right[i] = (1-wf)*l + wf*r
	}
}

// interpolate fetches and interpolates a source sample at fractional
// position pos, dispatching on v.quality (spec.md 4.6). Quality 3's
// upsample path is implemented in interp.go.
func (v *Voice) interpolate(pos float64) (left, right float32) {
	switch v.quality {
	case QualityHermite:
		return v.interpolateHermite(pos)
	case QualityOptimal:
		return v.interpolateOptimal(pos)
	default:
		return v.interpolateLinear(pos)
	}
}

func (v *Voice) interpolateLinear(pos float64) (float32, float32) {
	i0 := int(pos)
	frac := float32(pos - float64(i0))
	ch := v.play.Channels()

	l0, r0 := v.fetch(i0, ch)
	l1, r1 := v.fetch(i0+1, ch)
	return l0 + frac*(l1-l0), r0 + frac*(r1-r0)
}

func (v *Voice) fetch(idx, ch int) (left, right float32) {
	idx = v.wrapLoop(idx)
	left = v.play.Get(idx, 0)
	if ch == 2 {
		right = v.play.Get(idx, 1)
	} else {
		right = left
	}
	return
}

func (v *Voice) wrapLoop(idx int) int {
	if v.loopEnabled && idx >= v.loopEnd {
		span := v.loopEnd - v.loopStart
		if span > 0 {
			idx = v.loopStart + (idx-v.loopStart)%span
		}
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= v.play.NumFrames() {
		idx = v.play.NumFrames() - 1
	}
	return idx
}
