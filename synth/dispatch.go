// Package synth implements the voice pool, event dispatcher (C8),
// region selector (C9), and channel state (C10) that together form
// the engine's public control surface. Grounded on
// original_source/lib/synth.cc (process_audio, sort_events_stable,
// process) and synth.hh (trigger_regions, Channel).
package synth

import (
	"sort"

	"github.com/sfzvoice/sfzvoice/voice"
)

// maxBlockSize caps how many frames are rendered between successive
// control events in one render() call, matching the per-voice LFO
// bank's preallocated buffer size (spec.md 5).
const maxBlockSize = 1024

type eventKind uint8

const (
	evNoteOn eventKind = iota
	evNoteOff
	evCC
	evPitchBend
)

// event is one pending control-thread event, timestamped to a frame
// offset within the next render() call.
type event struct {
	frame   int
	seq     int // insertion-order tiebreak for the stable sort
	kind    eventKind
	channel int
	a, b    int // NoteOn/Off: key,velocity. CC: number,value. PitchBend: value,-
}

func eventLess(a, b event) bool {
	if a.frame != b.frame {
		return a.frame < b.frame
	}
	return a.seq < b.seq
}

// sortEvents stable-sorts s.events by (frame, insertion order). A
// fast path skips the sort entirely when events already arrived in
// frame order, the overwhelmingly common case; the fallback is a
// plain insertion sort over the small per-block event count rather
// than sort.SliceStable, which allocates internally and this path may
// run from the audio thread.
func (s *Synth) sortEvents() {
	if sort.SliceIsSorted(s.events, func(i, j int) bool { return eventLess(s.events[i], s.events[j]) }) {
		return
	}
	for i := 1; i < len(s.events); i++ {
		for j := i; j > 0 && eventLess(s.events[j], s.events[j-1]); j-- {
			s.events[j-1], s.events[j] = s.events[j], s.events[j-1]
		}
	}
}

// addEvent appends ev to the pending queue with the next sequence
// number, used by all AddEvent* methods. The queue's capacity is
// fixed at construction (NewSynth/SetMaxEvents); once full, new
// events are dropped and logged rather than growing the slice, since
// this can be called from the real-time audio thread's control path
// (spec.md 4.7/8.3).
func (s *Synth) addEvent(ev event) {
	if len(s.events) >= s.eventCap {
		s.logger.Debug("event queue full, dropping event", "kind", ev.kind, "channel", ev.channel)
		return
	}
	ev.seq = s.eventSeq
	s.eventSeq++
	s.events = append(s.events, ev)
}

// validChannel/Key/CC bound the control-thread arguments accepted by
// the AddEvent* methods against the fixed-size per-channel state
// (16 channels, 128 keys/CC numbers); anything outside these ranges
// is malformed input from the caller, never produced by Render
// itself, and is dropped with a debug log rather than indexed
// (spec.md 7: "Bad event arguments... event dropped with a debug
// log").
func validChannel(c int) bool { return c >= 0 && c < 16 }
func validKey(k int) bool     { return k >= 0 && k < 128 }
func validCCNumber(n int) bool { return n >= 0 && n < 128 }

// AddEventNoteOn queues a note-on at the given frame offset within the
// next Render call.
func (s *Synth) AddEventNoteOn(channel, key, velocity, frame int) {
	if !validChannel(channel) || !validKey(key) {
		s.logger.Debug("dropping note-on with bad arguments", "channel", channel, "key", key)
		return
	}
	s.addEvent(event{frame: frame, kind: evNoteOn, channel: channel, a: key, b: velocity})
}

// AddEventNoteOff queues a note-off at the given frame offset.
func (s *Synth) AddEventNoteOff(channel, key, velocity, frame int) {
	if !validChannel(channel) || !validKey(key) {
		s.logger.Debug("dropping note-off with bad arguments", "channel", channel, "key", key)
		return
	}
	s.addEvent(event{frame: frame, kind: evNoteOff, channel: channel, a: key, b: velocity})
}

// AddEventCC queues a controller change at the given frame offset.
func (s *Synth) AddEventCC(channel, number, value, frame int) {
	if !validChannel(channel) || !validCCNumber(number) {
		s.logger.Debug("dropping CC with bad arguments", "channel", channel, "number", number)
		return
	}
	s.addEvent(event{frame: frame, kind: evCC, channel: channel, a: number, b: value})
}

// AddEventPitchBend queues a 14-bit pitch-bend value (0..16383, center
// 8192) at the given frame offset.
func (s *Synth) AddEventPitchBend(channel, value, frame int) {
	if !validChannel(channel) {
		s.logger.Debug("dropping pitch-bend with bad arguments", "channel", channel)
		return
	}
	s.addEvent(event{frame: frame, kind: evPitchBend, channel: channel, a: value})
}

// Render fills left/right (equal length, the frame count for this
// call) with the mixed output of all active voices, applying queued
// events at their recorded frame offsets and advancing the sample
// clock used for release-trigger rt_decay timing.
func (s *Synth) Render(left, right []float32) {
	n := len(left)
	for i := range left {
		left[i] = 0
		right[i] = 0
	}

	s.sortEvents()

	cursor := 0
	ei := 0
	for cursor < n {
		next := n
		for ei < len(s.events) && s.events[ei].frame <= cursor {
			s.applyEvent(s.events[ei])
			ei++
		}
		if ei < len(s.events) {
			next = s.events[ei].frame
			if next > n {
				next = n
			}
		}
		if next <= cursor {
			next = cursor + 1
			if next > n {
				next = n
			}
		}
		for next-cursor > maxBlockSize {
			s.renderSpan(left[cursor:cursor+maxBlockSize], right[cursor:cursor+maxBlockSize])
			s.sampleClock += maxBlockSize
			cursor += maxBlockSize
		}
		s.renderSpan(left[cursor:next], right[cursor:next])
		s.sampleClock += int64(next - cursor)
		cursor = next
	}
	for ei < len(s.events) {
		s.applyEvent(s.events[ei])
		ei++
	}

	if s.gain != 1 {
		g := float32(s.gain)
		for i := range left {
			left[i] *= g
			right[i] *= g
		}
	}

	s.events = s.events[:0]
}

func (s *Synth) applyEvent(e event) {
	switch e.kind {
	case evNoteOn:
		s.handleNoteOn(e.channel, e.a, e.b)
	case evNoteOff:
		s.handleNoteOff(e.channel, e.a, e.b)
	case evCC:
		s.handleCC(e.channel, e.a, e.b)
	case evPitchBend:
		s.handlePitchBend(e.channel, e.a)
	}
}

// renderSpan mixes all currently active voices into left/right,
// reclaiming any that finish mid-call back onto the idle stack.
func (s *Synth) renderSpan(left, right []float32) {
	n := len(left)
	if n == 0 {
		return
	}
	write := 0
	for _, v := range s.activeVoices {
		v.Process(left, right, n)
		if v.State() != voice.Idle {
			s.activeVoices[write] = v
			write++
		} else {
			s.idleVoices = append(s.idleVoices, v)
		}
	}
	s.activeVoices = s.activeVoices[:write]
}
