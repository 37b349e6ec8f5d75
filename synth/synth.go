package synth

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/sfzvoice/sfzvoice/curve"
	"github.com/sfzvoice/sfzvoice/region"
	"github.com/sfzvoice/sfzvoice/sample"
	"github.com/sfzvoice/sfzvoice/voice"
)

// defaultMaxVoices is the default voice pool size (spec.md 3).
const defaultMaxVoices = 64

// defaultMaxEvents is the default fixed capacity of the pending event
// queue (spec.md 4.7: "Event buffer capacity is fixed at
// construction; overflow drops new events and logs").
const defaultMaxEvents = 1024

// Synth is the public engine surface (spec.md 5): a fixed voice pool
// driven by a queue of timestamped control events, rendering against
// a shared sample.Store. A Synth is not safe for concurrent use by
// more than one goroutine at a time beyond the documented control/
// render split: AddEvent* may be called from a separate control thread
// ahead of each Render call, but Render itself must not overlap with
// another Render or with itself.
type Synth struct {
	store  *sample.Store
	curves *curve.Table
	logger *log.Logger

	sampleRate int
	gain       float64
	liveMode   bool
	quality    voice.Quality
	preloadMS  int

	channels [16]*channelState

	regions []*region.Region

	voicePool    []*voice.Voice
	idleVoices   []*voice.Voice
	activeVoices []*voice.Voice

	events      []event
	eventCap    int
	eventSeq    int
	sampleClock int64
}

// NewSynth constructs a Synth backed by store, with a pool of
// defaultMaxVoices voices preallocated at the given output sample rate
// (resize it with SetMaxVoices). If logger is nil, log output is
// discarded.
func NewSynth(store *sample.Store, sampleRate int, logger *log.Logger) *Synth {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Synth{
		store:      store,
		curves:     curve.NewTable(),
		logger:     logger,
		sampleRate: sampleRate,
		gain:       1,
		quality:    voice.QualityLinear,
		preloadMS:  500,
	}
	for i := range s.channels {
		s.channels[i] = newChannelState()
	}
	s.SetMaxVoices(defaultMaxVoices)
	s.SetMaxEvents(defaultMaxEvents)
	return s
}

// SetMaxEvents resizes the pending event queue's fixed capacity,
// discarding any events already queued for the next Render call.
func (s *Synth) SetMaxEvents(n int) {
	s.eventCap = n
	s.events = make([]event, 0, n)
}

// SetMaxVoices resizes the voice pool, discarding any currently active
// voices (spec.md 5: a pool resize is a hard reset of playback).
func (s *Synth) SetMaxVoices(n int) {
	s.voicePool = make([]*voice.Voice, n)
	s.idleVoices = make([]*voice.Voice, 0, n)
	s.activeVoices = s.activeVoices[:0]
	for i := range s.voicePool {
		v := voice.New(s.sampleRate, maxBlockSize)
		s.voicePool[i] = v
		s.idleVoices = append(s.idleVoices, v)
	}
}

// SetSampleRate changes the engine's output sample rate, rebuilding
// the voice pool (a running engine's sample rate is fixed at
// construction in every other respect; this exists for offline
// renderers that want to probe multiple rates).
func (s *Synth) SetSampleRate(sr int) {
	s.sampleRate = sr
	s.SetMaxVoices(len(s.voicePool))
}

// SetGain sets the master linear output gain multiplier.
func (s *Synth) SetGain(g float64) { s.gain = g }

// SetLiveMode toggles whether new PlayHandles opened after this call
// fail soft (returning silence for unloaded segments) instead of
// blocking the render thread on the loader.
func (s *Synth) SetLiveMode(live bool) { s.liveMode = live }

// SetPreloadTime sets how many milliseconds from the start of each
// sample stay resident regardless of playback state. The instrument
// loader that builds the region list passed to Load is expected to
// read it back via PreloadTimeMS when opening each region's
// sample.Handle, since preload reservations are made at Store.Load
// time, before a region exists.
func (s *Synth) SetPreloadTime(ms int) { s.preloadMS = ms }

// PreloadTimeMS returns the current preload duration set by
// SetPreloadTime, for an instrument loader to pass to sample.Store.Load.
func (s *Synth) PreloadTimeMS() int { return s.preloadMS }

// SetSampleQuality sets the interpolation quality used by voices
// started after this call.
func (s *Synth) SetSampleQuality(q voice.Quality) { s.quality = q }

// Load replaces the active instrument with regions, killing any
// voices from the previous instrument. Each region's Sample handle is
// expected to already be open against this Synth's sample.Store (with
// its preload reservation already made) by the caller's instrument
// parser; Load does not itself parse instrument text or touch the
// store.
func (s *Synth) Load(regions []*region.Region) {
	s.AllSoundOff()
	s.regions = regions
}

// CC implements voice.CCSource.
func (s *Synth) CC(channel, number int) int {
	if channel < 0 || channel >= len(s.channels) || number < 0 || number >= 128 {
		return 0
	}
	return s.channels[channel].cc[number]
}

// PitchBend implements voice.CCSource.
func (s *Synth) PitchBend(channel int) int {
	if channel < 0 || channel >= len(s.channels) {
		return 8192
	}
	return s.channels[channel].pitchBend
}

// CurveTable implements voice.CCSource.
func (s *Synth) CurveTable() *curve.Table { return s.curves }

func (s *Synth) allocVoice() *voice.Voice {
	n := len(s.idleVoices)
	if n == 0 {
		return nil
	}
	v := s.idleVoices[n-1]
	s.idleVoices = s.idleVoices[:n-1]
	return v
}

func (s *Synth) releaseVoice(v *voice.Voice) {
	s.idleVoices = append(s.idleVoices, v)
}

// reclaimVoice removes v from activeVoices (if present) and returns it
// to the idle stack; used by the onIdle callback a voice invokes when
// Kill'd outside the normal Render sweep (off-by group chokes).
func (s *Synth) reclaimVoice(v *voice.Voice) {
	for i, av := range s.activeVoices {
		if av == v {
			s.activeVoices = append(s.activeVoices[:i], s.activeVoices[i+1:]...)
			break
		}
	}
	s.releaseVoice(v)
}

// handleNoteOn starts every candidate region for (channel, key,
// velocity) that passes the trigger predicates, first applying
// off-by/group choking (spec.md 7).
func (s *Synth) handleNoteOn(channel, key, velocity int) {
	ch := s.channels[channel]

	if isKeyswitchKey(s.regions, key) {
		ch.keyswitch = key
		return
	}

	ch.noteOnSample[key] = s.sampleClock
	ch.keyHeld[key] = true

	s.killConflict(channel, key)

	candidates := candidateRegions(s.regions, ch, key, velocity, region.TriggerAttack)
	candidates = filterByRandom(candidates, uniformDraw())

	for _, r := range candidates {
		s.chokeGroup(channel, r)
		s.startVoice(channel, key, velocity, r, 0)
	}
}

// killConflict implements spec.md 4.8 step 1: before starting a new
// attack on (channel, key), release any still-ACTIVE voice on that
// same channel/key that was itself started by an attack trigger and
// whose region is not one-shot (a one-shot region is meant to play
// out regardless of retriggers, e.g. a drum hit). The release always
// uses the region's normal off mode, never the fast/choke mode, since
// this is an ordinary retrigger rather than an off-by group choke.
//
// Snapshots activeVoices first, matching chokeGroup: Stop can invoke
// a voice's onIdle callback synchronously and mutate the slice this
// loop is reading.
func (s *Synth) killConflict(channel, key int) {
	snapshot := append([]*voice.Voice(nil), s.activeVoices...)
	for _, v := range snapshot {
		if v.Channel() != channel || v.Key() != key || v.State() != voice.Active {
			continue
		}
		r := v.Region()
		if r == nil || r.LoopMode == region.LoopOneShot || r.Trigger != region.TriggerAttack {
			continue
		}
		v.Stop(region.OffNormal)
	}
}

// chokeGroup kills every active voice on channel whose region's Group
// matches r's OffBy (spec.md 7's off-by/group choke). OffBy 0 means no
// choke group.
//
// It snapshots activeVoices before iterating: Kill invokes a voice's
// onIdle callback synchronously, which removes that voice from
// activeVoices in place, and mutating the slice a range loop is
// reading from would skip or double-visit entries.
func (s *Synth) chokeGroup(channel int, r *region.Region) {
	if r.OffBy == 0 {
		return
	}
	snapshot := append([]*voice.Voice(nil), s.activeVoices...)
	for _, v := range snapshot {
		if v.Channel() != channel || v.Region() == nil {
			continue
		}
		if v.Region().Group == r.OffBy {
			if r.OffMode == region.OffFast {
				v.Kill()
			} else {
				v.Stop(r.OffMode)
			}
		}
	}
}

// startVoice allocates and starts one voice for region r, computing
// the release-trigger rt_decay gain from timeSinceNoteOn when r is a
// release-trigger region.
func (s *Synth) startVoice(channel, key, velocity int, r *region.Region, timeSinceNoteOn float64) {
	if !r.Playable() {
		s.logger.Debug("region has no playable sample, skipping", "channel", channel, "key", key)
		return
	}
	v := s.allocVoice()
	if v == nil {
		s.logger.Debug("voice pool exhausted, dropping note", "channel", channel, "key", key)
		return
	}
	play := s.store.OpenPlayback(r.Sample, s.liveMode)
	v.Start(r, s, play, channel, key, velocity, timeSinceNoteOn, s.quality, s.reclaimVoice)
	s.activeVoices = append(s.activeVoices, v)
}

// handleNoteOff releases every active voice for (channel, key),
// deferring to the sustain pedal when held, and additionally starts
// any release-trigger regions whose gate matches this key/velocity.
func (s *Synth) handleNoteOff(channel, key, velocity int) {
	ch := s.channels[channel]
	ch.keyHeld[key] = false

	for _, v := range s.activeVoices {
		if v.Channel() != channel || v.Key() != key {
			continue
		}
		if ch.sustainDown {
			v.Sustain()
		} else if v.Region() != nil {
			v.Stop(v.Region().OffMode)
		}
	}

	timeSinceNoteOn := float64(s.sampleClock-ch.noteOnSample[key]) / float64(s.sampleRate)
	candidates := candidateRegions(s.regions, ch, key, velocity, region.TriggerRelease)
	candidates = filterByRandom(candidates, uniformDraw())
	for _, r := range candidates {
		s.startVoice(channel, key, velocity, r, timeSinceNoteOn)
	}
}

// handleCC updates channel state and every active voice's
// CC-dependent gain/pitch on that channel, and releases sustained
// voices when the pedal lifts.
func (s *Synth) handleCC(channel, number, value int) {
	ch := s.channels[channel]
	wasSustained := ch.sustainDown
	ch.setCC(number, value)

	for _, v := range s.activeVoices {
		if v.Channel() != channel {
			continue
		}
		v.UpdateCC(number)
	}

	if number == 64 && wasSustained && !ch.sustainDown {
		for _, v := range s.activeVoices {
			if v.Channel() == channel && v.State() == voice.Sustaining && v.Region() != nil {
				v.Stop(v.Region().OffMode)
			}
		}
	}
}

func (s *Synth) handlePitchBend(channel, value int) {
	s.channels[channel].pitchBend = value
	for _, v := range s.activeVoices {
		if v.Channel() == channel {
			v.SetPitchBend()
		}
	}
}

// AllSoundOff immediately kills every active voice without running
// its release stage. Load and SystemReset call it; handleCC does not,
// so a CC 120 or CC 123 event only updates that controller's stored
// value. Kill's onIdle callback mutates
// activeVoices as a side effect, so the kill loop runs over a
// snapshot (see chokeGroup) before the pool is unconditionally
// rebuilt from scratch.
func (s *Synth) AllSoundOff() {
	snapshot := append([]*voice.Voice(nil), s.activeVoices...)
	for _, v := range snapshot {
		v.Kill()
	}
	s.activeVoices = s.activeVoices[:0]
	s.idleVoices = s.idleVoices[:0]
	s.idleVoices = append(s.idleVoices, s.voicePool...)
}

// SystemReset kills all voices and restores every channel's
// controller state to its MIDI power-on defaults.
func (s *Synth) SystemReset() {
	s.AllSoundOff()
	for _, ch := range s.channels {
		ch.reset()
	}
	s.events = s.events[:0]
}

// ActiveVoiceCount reports the number of currently sounding voices,
// for introspection tooling.
func (s *Synth) ActiveVoiceCount() int { return len(s.activeVoices) }

// uniformDraw returns a float in [0,1) for the random trigger gate,
// using the voice package's audio-thread-safe generator rather than
// math/rand so that control-thread dispatch never contends with the
// render thread's own draws.
func uniformDraw() float64 {
	return voice.Uniform()
}
