package synth

import "github.com/sfzvoice/sfzvoice/region"

// matchesKeyswitch reports whether region r's optional keyswitch gate
// currently passes for channel ch (spec.md 6 sw_lokey/hikey/lolast/
// hilast/default). A region's switch-range key never itself counts as
// a playable note (keyswitch keys only move the latch).
func matchesKeyswitch(r *region.Region, ch *channelState) bool {
	if !r.HasKeySwitch {
		return true
	}
	active := ch.keyswitch
	if active < 0 {
		active = r.SwDefault
	}
	return active >= r.SwLolast && active <= r.SwHilast
}

// isKeyswitchKey reports whether key falls in any region's declared
// keyswitch range, meaning a NoteOn for it should latch the channel's
// keyswitch state rather than start a voice.
func isKeyswitchKey(regions []*region.Region, key int) bool {
	for _, r := range regions {
		if r.HasKeySwitch && key >= r.SwLokey && key <= r.SwHikey {
			return true
		}
	}
	return false
}

// matchesCC reports whether every explicit CC range gate on r is
// currently satisfied by the channel's controller snapshot.
func matchesCC(r *region.Region, ch *channelState) bool {
	for num, rng := range r.CC {
		if !rng.Contains(ch.cc[num]) {
			return false
		}
	}
	return true
}

// matchesSequence advances r's play-sequence counter (which always
// advances on a candidate note regardless of the outcome, per the
// documented seq_position asymmetry) and reports whether this
// occurrence lands on r's configured position.
func matchesSequence(r *region.Region) bool {
	if r.SeqLength <= 1 {
		r.PlaySeq++
		return true
	}
	pos := r.PlaySeq % r.SeqLength
	r.PlaySeq++
	want := (r.SeqPosition - 1) % r.SeqLength
	return pos == want
}

// candidateRegions returns the regions that pass every note-on
// trigger predicate except the random gate, which is evaluated by the
// caller with its own random draw so that regions sharing a random
// range are consistently chosen from one random value (spec.md 6).
func candidateRegions(regions []*region.Region, ch *channelState, key, velocity int, trig region.Trigger) []*region.Region {
	var out []*region.Region
	for _, r := range regions {
		if !r.Playable() || r.Trigger != trig {
			continue
		}
		if !r.Key.Contains(key) || !r.Velocity.Contains(velocity) {
			continue
		}
		if !matchesCC(r, ch) {
			continue
		}
		if !matchesKeyswitch(r, ch) {
			continue
		}
		if !matchesSequence(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// filterByRandom applies each candidate's random gate using a single
// draw per call (spec.md 6: regions sharing a disjoint random range
// partition one draw, not independent per-region draws).
func filterByRandom(regions []*region.Region, draw float64) []*region.Region {
	var out []*region.Region
	for _, r := range regions {
		if r.Random.Hi <= r.Random.Lo || r.Random.Contains(draw) {
			out = append(out, r)
		}
	}
	return out
}
