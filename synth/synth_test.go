package synth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfzvoice/sfzvoice/filter"
	"github.com/sfzvoice/sfzvoice/region"
	"github.com/sfzvoice/sfzvoice/sample"
	"github.com/sfzvoice/sfzvoice/voice"
)

func constantDecoder(nFrames, channels int) sample.Decoder {
	return func(path string) (*sample.Frames, error) {
		data := make([]float32, nFrames*channels)
		for i := range data {
			data[i] = 1
		}
		return &sample.Frames{Channels: channels, SampleRate: 44100, Data: data, LoopStart: -1, LoopEnd: -1}, nil
	}
}

func newTestSynth(t *testing.T, regions []*region.Region) *Synth {
	t.Helper()
	store := sample.NewStore(constantDecoder(2000, 2), nil, 0)
	s := NewSynth(store, 44100, nil)
	for _, r := range regions {
		h, err := store.Load("fake.wav", sample.PreloadSpec{})
		require.NoError(t, err)
		r.Sample = h
	}
	s.Load(regions)
	return s
}

func plainRegion(keyLo, keyHi int) *region.Region {
	return &region.Region{
		Key:            region.Range{Lo: keyLo, Hi: keyHi},
		Velocity:       region.Range{Lo: 0, Hi: 127},
		PitchKeycenter: 60,
		PitchKeytrack:  100,
		LoopMode:       region.LoopNone,
		Amplitude:      100,
		AmpVeltrack:    100,
		AmpEG:          region.EGEnvelope{Shape: 0},
		FilEG:          region.EGEnvelope{Shape: 0},
		Filters:        [2]region.FilterSpec{{Type: filter.None}, {Type: filter.None}},
		SeqLength:      1,
		SeqPosition:    1,
	}
}

func TestNoteOnStartsAMatchingVoice(t *testing.T) {
	r := plainRegion(0, 127)
	s := newTestSynth(t, []*region.Region{r})

	s.AddEventNoteOn(0, 60, 100, 0)
	left := make([]float32, 32)
	right := make([]float32, 32)
	s.Render(left, right)

	require.Equal(t, 1, s.ActiveVoiceCount())
}

func TestNoteOnOutOfKeyRangeStartsNoVoice(t *testing.T) {
	r := plainRegion(0, 59)
	s := newTestSynth(t, []*region.Region{r})

	s.AddEventNoteOn(0, 60, 100, 0)
	left := make([]float32, 32)
	right := make([]float32, 32)
	s.Render(left, right)

	require.Equal(t, 0, s.ActiveVoiceCount())
}

func TestNoteOffStopsAllVoicesOnThatKey(t *testing.T) {
	r := plainRegion(0, 127)
	s := newTestSynth(t, []*region.Region{r})

	s.AddEventNoteOn(0, 60, 100, 0)
	left := make([]float32, 32)
	right := make([]float32, 32)
	s.Render(left, right)
	require.Equal(t, 1, s.ActiveVoiceCount())

	s.AddEventNoteOff(0, 60, 0, 0)
	s.Render(left, right)

	for _, v := range s.activeVoices {
		require.NotEqual(t, voice.Active, v.State())
	}
}

func TestSustainPedalDefersNoteOffUntilPedalLifts(t *testing.T) {
	r := plainRegion(0, 127)
	s := newTestSynth(t, []*region.Region{r})

	s.AddEventCC(0, 64, 127, 0)
	s.AddEventNoteOn(0, 60, 100, 0)
	left := make([]float32, 32)
	right := make([]float32, 32)
	s.Render(left, right)

	s.AddEventNoteOff(0, 60, 0, 0)
	s.Render(left, right)
	require.Equal(t, 1, len(s.activeVoices))

	s.AddEventCC(0, 64, 0, 0)
	s.Render(left, right)
	require.False(t, s.channels[0].sustainDown)
}

func TestAllSoundOffReclaimsEveryVoiceImmediately(t *testing.T) {
	r1 := plainRegion(0, 63)
	r2 := plainRegion(64, 127)
	s := newTestSynth(t, []*region.Region{r1, r2})

	s.AddEventNoteOn(0, 60, 100, 0)
	s.AddEventNoteOn(0, 70, 100, 0)
	left := make([]float32, 32)
	right := make([]float32, 32)
	s.Render(left, right)
	require.Equal(t, 2, s.ActiveVoiceCount())

	s.AllSoundOff()
	require.Equal(t, 0, s.ActiveVoiceCount())
	require.Equal(t, len(s.voicePool), len(s.idleVoices))
}

func TestOffByChokesGroup(t *testing.T) {
	sustain := plainRegion(0, 127)
	sustain.Group = 1
	hat := plainRegion(0, 127)
	hat.OffBy = 1
	hat.Key = region.Range{Lo: 0, Hi: 0}
	sustain.Key = region.Range{Lo: 1, Hi: 1}

	s := newTestSynth(t, []*region.Region{sustain, hat})

	s.AddEventNoteOn(0, 1, 100, 0)
	left := make([]float32, 32)
	right := make([]float32, 32)
	s.Render(left, right)
	require.Equal(t, 1, s.ActiveVoiceCount())

	s.AddEventNoteOn(0, 0, 100, 0)
	s.Render(left, right)
	require.Equal(t, 1, s.ActiveVoiceCount()) // the hat itself, sustain choked
}

// countActive reports how many of s.activeVoices are still in the
// Active state, as opposed to fading out Released or deferred
// Sustaining.
func countActive(s *Synth) int {
	n := 0
	for _, v := range s.activeVoices {
		if v.State() == voice.Active {
			n++
		}
	}
	return n
}

// TestRetriggerKillsPriorAttackVoiceOnSameKey pins spec.md 8's
// "At-most-one NoteOn collision" invariant (spec.md 4.8 step 1): a
// second NoteOn on the same (channel, key) with a non-one-shot,
// attack-triggered region must release the first voice before
// starting the second — the old voice may still be heard briefly
// fading out through its release tail, but it must never still be
// Active (i.e. a second full-volume attack voice) once the new one
// has started.
func TestRetriggerKillsPriorAttackVoiceOnSameKey(t *testing.T) {
	r := plainRegion(0, 127)
	s := newTestSynth(t, []*region.Region{r})

	left := make([]float32, 32)
	right := make([]float32, 32)

	s.AddEventNoteOn(0, 60, 100, 0)
	s.Render(left, right)
	require.Equal(t, 1, countActive(s))
	first := s.activeVoices[0]

	s.AddEventNoteOn(0, 60, 100, 0)
	s.Render(left, right)

	require.Equal(t, 1, countActive(s), "at most one Active voice may exist on the same key after a retrigger")
	require.NotEqual(t, voice.Active, first.State(), "the prior voice must have left Active on the kill conflict")
}

// TestOneShotRegionSurvivesRetrigger pins the ONE_SHOT exclusion in
// spec.md 4.8 step 1: a one-shot region (e.g. a drum hit) is meant to
// play out in full even if the same key is struck again, so a
// retrigger must not kill it.
func TestOneShotRegionSurvivesRetrigger(t *testing.T) {
	r := plainRegion(0, 127)
	r.LoopMode = region.LoopOneShot
	r.AmpEG.Sustain = region.EGParam{Base: 100}
	s := newTestSynth(t, []*region.Region{r})

	left := make([]float32, 32)
	right := make([]float32, 32)

	s.AddEventNoteOn(0, 60, 100, 0)
	s.Render(left, right)
	require.Equal(t, 1, s.ActiveVoiceCount())
	first := s.activeVoices[0]

	s.AddEventNoteOn(0, 60, 100, 0)
	s.Render(left, right)

	require.Equal(t, 2, s.ActiveVoiceCount(), "one-shot regions must not be killed by a retrigger")
	require.Equal(t, voice.Active, first.State())
}

func TestEventsOutOfFrameOrderAreAppliedInFrameOrder(t *testing.T) {
	r := plainRegion(0, 127)
	s := newTestSynth(t, []*region.Region{r})

	// Queue a note-off before a note-on in insertion order, but at a
	// later frame, to exercise the stable sort fallback.
	s.AddEventNoteOff(0, 60, 0, 20)
	s.AddEventNoteOn(0, 60, 100, 5)

	left := make([]float32, 32)
	right := make([]float32, 32)
	s.Render(left, right)

	require.Equal(t, 1, len(s.activeVoices))
}

func TestPitchBendUpdatesChannelState(t *testing.T) {
	s := newTestSynth(t, nil)
	s.AddEventPitchBend(0, 12000, 0)
	left := make([]float32, 8)
	right := make([]float32, 8)
	s.Render(left, right)
	require.Equal(t, 12000, s.PitchBend(0))
}

func TestMatchesSequenceAlternatesAcrossTwoPositions(t *testing.T) {
	r1 := plainRegion(0, 127)
	r1.SeqLength, r1.SeqPosition = 2, 1
	r2 := plainRegion(0, 127)
	r2.SeqLength, r2.SeqPosition = 2, 2

	require.True(t, matchesSequence(r1))
	require.False(t, matchesSequence(r2))
	require.False(t, matchesSequence(r1))
	require.True(t, matchesSequence(r2))
}

func TestMatchesKeyswitchGatesOnLatchedKey(t *testing.T) {
	r := plainRegion(0, 127)
	r.HasKeySwitch = true
	r.SwLokey, r.SwHikey = 36, 36
	r.SwLolast, r.SwHilast = 36, 36
	r.SwDefault = 36

	ch := newChannelState()
	require.True(t, matchesKeyswitch(r, ch)) // unset latch falls back to SwDefault

	ch.keyswitch = 37
	require.False(t, matchesKeyswitch(r, ch))

	ch.keyswitch = 36
	require.True(t, matchesKeyswitch(r, ch))
}

func TestIsKeyswitchKeyDetectsDeclaredRange(t *testing.T) {
	r := plainRegion(0, 127)
	r.HasKeySwitch = true
	r.SwLokey, r.SwHikey = 36, 36

	require.True(t, isKeyswitchKey([]*region.Region{r}, 36))
	require.False(t, isKeyswitchKey([]*region.Region{r}, 37))
}

func TestFilterByRandomPartitionsOneDrawAcrossSiblings(t *testing.T) {
	low := plainRegion(0, 127)
	low.Random = region.FRange{Lo: 0, Hi: 0.5}
	high := plainRegion(0, 127)
	high.Random = region.FRange{Lo: 0.5, Hi: 1}

	kept := filterByRandom([]*region.Region{low, high}, 0.25)
	require.Equal(t, []*region.Region{low}, kept)

	kept = filterByRandom([]*region.Region{low, high}, 0.75)
	require.Equal(t, []*region.Region{high}, kept)
}

func TestChannelStateSustainLatchesFromCC64(t *testing.T) {
	ch := newChannelState()
	require.False(t, ch.sustainDown)
	ch.setCC(64, 127)
	require.True(t, ch.sustainDown)
	ch.setCC(64, 0)
	require.False(t, ch.sustainDown)
}

// TestRenderWithNoEventsProducesSilence pins spec.md 8's universal
// invariant "Rendering silence": with no events queued and a freshly
// loaded instrument, render produces exact zeros on both channels for
// any length.
func TestRenderWithNoEventsProducesSilence(t *testing.T) {
	r := plainRegion(0, 127)
	s := newTestSynth(t, []*region.Region{r})

	for _, n := range []int{1, 32, 500, maxBlockSize + 17} {
		left := make([]float32, n)
		right := make([]float32, n)
		s.Render(left, right)
		for i := 0; i < n; i++ {
			require.Equal(t, float32(0), left[i], "left[%d] for n=%d", i, n)
			require.Equal(t, float32(0), right[i], "right[%d] for n=%d", i, n)
		}
	}
}

// TestVoiceAccountingInvariantHoldsAcrossLifecycle pins spec.md 8's
// universal invariant "Voice accounting": at any point
// active_voice_count + idle_voice_count == max_voices, checked after
// every render call across a sequence of note-on/note-off/AllSoundOff
// events that drives voices through every lifecycle stage.
func TestVoiceAccountingInvariantHoldsAcrossLifecycle(t *testing.T) {
	r := plainRegion(0, 127)
	s := newTestSynth(t, []*region.Region{r})
	maxVoices := len(s.voicePool)

	checkInvariant := func() {
		require.Equal(t, len(s.voicePool), s.ActiveVoiceCount()+len(s.idleVoices))
	}

	left := make([]float32, 16)
	right := make([]float32, 16)
	checkInvariant()

	for key := 0; key < maxVoices+4; key++ {
		s.AddEventNoteOn(0, key%128, 100, 0)
		s.Render(left, right)
		checkInvariant()
	}

	for key := 0; key < maxVoices+4; key++ {
		s.AddEventNoteOff(0, key%128, 0, 0)
		s.Render(left, right)
		checkInvariant()
	}

	s.AllSoundOff()
	checkInvariant()

	s.SetMaxVoices(8)
	checkInvariant()
}

func TestChannelStateResetRestoresMidiDefaults(t *testing.T) {
	ch := newChannelState()
	ch.setCC(7, 10)
	ch.pitchBend = 1000
	ch.keyswitch = 40
	ch.reset()
	require.Equal(t, 127, ch.cc[7])
	require.Equal(t, 8192, ch.pitchBend)
	require.Equal(t, -1, ch.keyswitch)
}
