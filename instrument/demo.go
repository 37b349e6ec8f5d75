// Package instrument builds minimal, hardcoded region.Region values
// for the cmd/* demonstration binaries. It is not an instrument-text
// parser (region.go's package doc excludes that from the engine's
// scope entirely): it exists only so sfzrender/sfzwav/sfzdump have
// something playable without depending on an on-disk instrument
// format this module does not define.
package instrument

import (
	"github.com/sfzvoice/sfzvoice/envelope"
	"github.com/sfzvoice/sfzvoice/filter"
	"github.com/sfzvoice/sfzvoice/region"
	"github.com/sfzvoice/sfzvoice/sample"
)

// SingleSample builds one region covering the whole keyboard and
// velocity range for h, keyed at pitchKeycenter with a short
// fixed-shape amplitude envelope. Every demo binary plays this one
// region; key-to-pitch mapping happens entirely through
// PitchKeytrack, not through multiple regions.
func SingleSample(h *sample.Handle, pitchKeycenter int) *region.Region {
	return &region.Region{
		Sample:         h,
		Key:            region.Range{Lo: 0, Hi: 127},
		Velocity:       region.Range{Lo: 0, Hi: 127},
		PitchKeycenter: pitchKeycenter,
		PitchKeytrack:  100,
		Trigger:        region.TriggerAttack,
		SeqLength:      1,
		SeqPosition:    1,
		LoopMode:       region.LoopNone,
		Amplitude:      100,
		AmpVeltrack:    100,
		Filters:        [2]region.FilterSpec{{Type: filter.None}, {Type: filter.None}},
		AmpEG: region.EGEnvelope{
			Shape:   envelope.ShapeLinear,
			Attack:  region.EGParam{Base: 0.005},
			Decay:   region.EGParam{Base: 0.1},
			Sustain: region.EGParam{Base: 100},
			Release: region.EGParam{Base: 0.3},
		},
	}
}
