package sample

import (
	"sync/atomic"
	"time"
)

// PlayHandle is a per-voice cursor into a sample (C3): it resolves a
// requested frame position to a contiguous window of the cached
// segment array, and advertises how far it has read so the
// background loader knows what to prefetch.
type PlayHandle struct {
	entry    *Entry
	store    *Store
	liveMode bool
	closed   atomic.Bool

	cachedIdx  int
	cachedBase []float32 // segment idx's slice, indexed from -OverlapFrames
	cachedLo   int        // first valid frame (inclusive) for cachedBase
	cachedHi   int        // last valid frame (inclusive)
	haveCache  bool
}

// Close decrements the entry's playback count, making it a candidate
// for eviction beyond its preload prefix.
func (h *PlayHandle) Close() {
	if h.closed.CompareAndSwap(false, true) {
		h.entry.playbackCount.Add(-1)
	}
}

// NumFrames returns the total frame count of the underlying sample.
func (h *PlayHandle) NumFrames() int { return h.entry.NumFrames }

// Channels returns the channel count of the underlying sample.
func (h *PlayHandle) Channels() int { return h.entry.Channels }

// SampleRate returns the source sample rate of the underlying sample.
func (h *PlayHandle) SampleRate() int { return h.entry.SampleRate }

func (h *PlayHandle) touch(pos int64) {
	idx := int64(pos) / SegmentFrames
	for {
		cur := h.entry.maxTouchedIndex.Load()
		if idx <= cur {
			return
		}
		if h.entry.maxTouchedIndex.CompareAndSwap(cur, idx) {
			return
		}
	}
}

// lookup recomputes the cached segment for pos. In blocking
// (non-live) mode it sleep-polls until the segment is loaded; in live
// mode a missing segment leaves the cache empty and subsequent Get
// calls return silence.
func (h *PlayHandle) lookup(pos int) bool {
	idx := pos / SegmentFrames
	h.touch(int64(pos))

	for {
		seg := h.entry.segments[idx].Load()
		if seg != nil {
			segStart := idx * SegmentFrames
			// Every segment buffer, segment 0 included (zero-padded),
			// begins OverlapFrames before segStart.
			overlapStart := segStart - OverlapFrames
			h.cachedIdx = idx
			h.cachedBase = *seg
			h.cachedLo = overlapStart
			segEnd := segStart + SegmentFrames
			if segEnd > h.entry.NumFrames {
				segEnd = h.entry.NumFrames
			}
			h.cachedHi = segEnd - 1
			h.haveCache = true
			return true
		}
		if h.liveMode {
			h.haveCache = false
			return false
		}
		time.Sleep(loaderPollInterval)
	}
}

func (h *PlayHandle) ensure(pos int) bool {
	if h.haveCache && pos >= h.cachedLo && pos <= h.cachedHi {
		return true
	}
	return h.lookup(pos)
}

// Get returns the sample value at frame pos, channel ch (0 or 1),
// or 0 if the segment is not resident (live mode only).
func (h *PlayHandle) Get(pos, ch int) float32 {
	if pos < 0 || pos >= h.entry.NumFrames {
		return 0
	}
	if !h.ensure(pos) {
		return 0
	}
	off := (pos - h.cachedLo) * h.entry.Channels
	return h.cachedBase[off+ch]
}

// GetRange returns a contiguous interleaved window [pos, pos+n) if it
// falls entirely within one cached segment (including its
// pre-overlap); ok is false if the window spans a segment boundary or
// is not resident.
func (h *PlayHandle) GetRange(pos, n int) (window []float32, ok bool) {
	if pos < 0 || n <= 0 || pos+n > h.entry.NumFrames {
		return nil, false
	}
	if !h.ensure(pos) || pos+n-1 > h.cachedHi {
		return nil, false
	}
	off := (pos - h.cachedLo) * h.entry.Channels
	return h.cachedBase[off : off+n*h.entry.Channels], true
}
