package synth

// channelState is one MIDI channel's controller snapshot (C10): the
// 128-entry CC table, 14-bit pitch bend, and sustain-pedal state.
// Grounded on original_source/lib/synth.hh's Channel struct.
type channelState struct {
	cc          [128]int
	pitchBend   int // 0..16383, center 8192
	sustainDown bool

	keyswitch int // last key pressed that fell in some region's keyswitch range, -1 if none yet

	// noteOnSample[key] is the sampleClock value when key was last
	// pressed on this channel, used to compute release-trigger
	// region's time_since_note_on for rt_decay.
	noteOnSample [128]int64
	keyHeld      [128]bool
}

func newChannelState() *channelState {
	c := &channelState{pitchBend: 8192, keyswitch: -1}
	c.cc[7] = 127  // volume
	c.cc[10] = 64  // pan, center
	c.cc[11] = 127 // expression
	return c
}

func (c *channelState) setCC(number, value int) {
	if number < 0 || number >= len(c.cc) {
		return
	}
	c.cc[number] = value
	if number == 64 {
		c.sustainDown = value >= 64
	}
}

// reset restores default controller values (system_reset).
func (c *channelState) reset() {
	*c = *newChannelState()
}
